package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fireflyblock/benchy/bench"
	"github.com/fireflyblock/benchy/prover/devsim"
)

var aggregateProofCmd = &cli.Command{
	Name:  "aggregate-proof",
	Usage: "Benchmark aggregation of Window PoSt proofs",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "size",
			Usage:    "sector size (e.g. 2KiB)",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "num_agg",
			Usage: "how many window-post proofs to aggregate",
			Value: 128,
		},
		&cli.StringFlag{
			Name:  "api-version",
			Usage: "protocol api version to use",
			Value: "1.0.0",
		},
		&cli.StringFlag{
			Name:  "miner-addr",
			Usage: "miner address owning the benchmark sector",
			Value: "t01000",
		},
		&cli.StringFlag{
			Name:  "storage-dir",
			Usage: "root directory for generated cache directories",
		},
	},
	Action: func(c *cli.Context) error {
		ssize, err := sectorSizeFlag(c)
		if err != nil {
			return err
		}
		ver, err := apiVersionFlag(c)
		if err != nil {
			return err
		}
		mid, err := minerAddrFlag(c)
		if err != nil {
			return err
		}
		root, err := storageRootFlag(c)
		if err != nil {
			return err
		}

		sim := devsim.New()
		report, err := bench.AggregateProof(c.Context, sim, sim, bench.AggregateConfig{
			SectorSize:  ssize,
			ApiVersion:  ver,
			MinerID:     mid,
			StorageRoot: root,
			Count:       c.Int("num_agg"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("----\naggregate proof results (%d)\n", report.SectorSize)
		fmt.Printf("aggregate %d proofs: %s\n", report.Count, report.Aggregate)
		fmt.Printf("verify aggregate: %s\n", report.Verify)
		return nil
	},
}
