package main

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/bench"
	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/prover/devsim"
)

var merkleProofsCmd = &cli.Command{
	Name:  "merkleproofs",
	Usage: "Benchmark merkle proof generation",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "size",
			Usage:    "data size (e.g. 2KiB)",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "proofs",
			Usage: "how many proofs to generate",
			Value: 1024,
		},
		&cli.BoolFlag{
			Name:  "validate",
			Usage: "validate each generated proof",
			Value: true,
		},
	},
	Action: func(c *cli.Context) error {
		size, err := units.RAMInBytes(c.String("size"))
		if err != nil || size <= 0 {
			return xerrors.Errorf("%w: --size %q", prover.ErrInvalidSize, c.String("size"))
		}

		sim := devsim.New()
		report, err := bench.MerkleProofs(c.Context, sim, sim, uint64(size), c.Int("proofs"), c.Bool("validate"))
		if err != nil {
			return err
		}

		fmt.Printf("----\nmerkle proof results (%d bytes)\n", report.DataSize)
		fmt.Printf("build tree: %s\n", report.BuildTree)
		fmt.Printf("generate %d proofs: %s (%s/proof)\n", report.Proofs, report.GenTotal, report.GenPerProof)
		if report.Validated {
			fmt.Printf("validate %d proofs: %s\n", report.Proofs, report.VerifyTotal)
		}
		return nil
	},
}
