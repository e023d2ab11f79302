package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fireflyblock/benchy/bench"
	"github.com/fireflyblock/benchy/prover/devsim"
)

var winningPostCmd = &cli.Command{
	Name:  "winning-post",
	Usage: "Benchmark Winning PoSt",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "size",
			Usage:    "sector size (e.g. 2KiB)",
			Required: true,
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
		&cli.BoolFlag{
			Name:  "json-out",
			Usage: "output results in json format",
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
		report, err := bench.WinningPoSt(c.Context, sim, sim, bench.WinningPoStConfig{
			SectorSize:  ssize,
			ApiVersion:  ver,
			MinerID:     mid,
			StorageRoot: root,
		})
		if err != nil {
			return err
		}

		if c.Bool("json-out") {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("----\nwinning post results (%d)\n", report.SectorSize)
		fmt.Printf("compute winning post proof: %s\n", report.Generate)
		fmt.Printf("verify winning post proof: %s\n", report.Verify)
		return nil
	},
}
