package main

import (
	"math/big"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/build"
	"github.com/fireflyblock/benchy/config"
	"github.com/fireflyblock/benchy/prover"
)

var log = logging.Logger("benchy")

var cfg = config.Default()

func main() {
	logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:    "benchy",
		Usage:   "Benchmark sector sealing and proof-of-spacetime performance",
		Version: build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-file",
				Usage: "path to a benchy config.toml",
			},
		},
		Before: func(c *cli.Context) error {
			loaded, err := config.Load(c.String("config-file"))
			if err != nil {
				return err
			}
			cfg = loaded
			if err := logging.SetLogLevel("*", cfg.LogLevel); err != nil {
				return xerrors.Errorf("setting log level %q: %w", cfg.LogLevel, err)
			}
			return nil
		},
		Commands: []*cli.Command{
			windowPostCmd,
			winningPostCmd,
			hashConstraintsCmd,
			merkleProofsCmd,
			prodbenchCmd,
			aggregateProofCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}

func sectorSizeFlag(c *cli.Context) (abi.SectorSize, error) {
	ssize, err := units.RAMInBytes(c.String("size"))
	if err != nil || ssize <= 0 {
		return 0, xerrors.Errorf("%w: --size %q", prover.ErrInvalidSize, c.String("size"))
	}
	return abi.SectorSize(ssize), nil
}

func apiVersionFlag(c *cli.Context) (prover.ApiVersion, error) {
	s := c.String("api-version")
	if s == "" {
		s = cfg.ApiVersion
	}
	return prover.ParseApiVersion(s)
}

func minerAddrFlag(c *cli.Context) (abi.ActorID, error) {
	maddr, err := address.NewFromString(c.String("miner-addr"))
	if err != nil {
		return 0, xerrors.Errorf("parsing miner address: %w", err)
	}
	mid, err := address.IDFromAddress(maddr)
	if err != nil {
		return 0, xerrors.Errorf("miner address must be an ID address: %w", err)
	}
	return abi.ActorID(mid), nil
}

func storageRootFlag(c *cli.Context) (string, error) {
	dir := c.String("storage-dir")
	if dir == "" {
		dir = cfg.StorageDir
	}
	exp, err := homedir.Expand(dir)
	if err != nil {
		return "", xerrors.Errorf("expanding storage dir: %w", err)
	}
	if err := os.MkdirAll(exp, 0775); err != nil {
		return "", xerrors.Errorf("creating storage dir %s: %w", exp, err)
	}
	return exp, nil
}

// bps renders sector bytes over a duration as human throughput.
func bps(data abi.SectorSize, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	bdata := new(big.Int).SetUint64(uint64(data))
	bdata = bdata.Mul(bdata, big.NewInt(time.Second.Nanoseconds()))
	rate := bdata.Div(bdata, big.NewInt(d.Nanoseconds()))
	return units.BytesSize(float64(rate.Uint64())) + "/s"
}
