package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fireflyblock/benchy/bench"
	"github.com/fireflyblock/benchy/pipeline"
	"github.com/fireflyblock/benchy/prover/devsim"
)

var windowPostCmd = &cli.Command{
	Name:  "window-post",
	Usage: "Benchmark Window PoSt",
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
			Name:  "cache",
			Usage: "directory where cached artifacts are persisted",
		},
		&cli.BoolFlag{
			Name:  "preserve-cache",
			Usage: "keep the cache directory after the run",
		},
		&cli.BoolFlag{
			Name:  "skip-precommit-phase1",
			Usage: "satisfy precommit phase 1 from cache",
		},
		&cli.BoolFlag{
			Name:  "skip-precommit-phase2",
			Usage: "satisfy precommit phase 2 from cache",
		},
		&cli.BoolFlag{
			Name:  "skip-commit-phase1",
			Usage: "satisfy commit phase 1 from cache",
		},
		&cli.BoolFlag{
			Name:  "skip-commit-phase2",
			Usage: "satisfy commit phase 2 from cache",
		},
		&cli.BoolFlag{
			Name:  "test-resume",
			Usage: "validate replication resume against a baseline run",
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
		report, err := bench.WindowPoSt(c.Context, sim, sim, bench.WindowPoStConfig{
			SectorSize:    ssize,
			ApiVersion:    ver,
			MinerID:       mid,
			StorageRoot:   root,
			CacheHint:     c.String("cache"),
			PreserveCache: c.Bool("preserve-cache"),
			Skip: pipeline.SkipFlags{
				PreCommit1: c.Bool("skip-precommit-phase1"),
				PreCommit2: c.Bool("skip-precommit-phase2"),
				Commit1:    c.Bool("skip-commit-phase1"),
				Commit2:    c.Bool("skip-commit-phase2"),
			},
			TestResume: c.Bool("test-resume"),
		})
		if report != nil {
			printWindowPost(c, report)
		}
		return err
	},
}

func printWindowPost(c *cli.Context, report *bench.WindowPoStReport) {
	if c.Bool("json-out") {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Errorf("encoding report: %v", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("----\nwindow post results (%d)\n", report.SectorSize)
	for _, ph := range report.Phases {
		if ph.Skipped {
			fmt.Printf("seal: %s: skipped (cached)\n", ph.Phase)
			continue
		}
		fmt.Printf("seal: %s: %s (%s)\n", ph.Phase, ph.Elapsed, bps(report.SectorSize, ph.Elapsed))
	}
	if report.Generate > 0 || report.Verify > 0 {
		fmt.Printf("sectors proven: %d\n", report.SectorsProven)
		fmt.Printf("compute window post proof: %s\n", report.Generate)
		fmt.Printf("verify window post proof: %s\n", report.Verify)
	}
}
