package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/fireflyblock/benchy/bench"
)

var hashConstraintsCmd = &cli.Command{
	Name:  "hash-constraints",
	Usage: "Benchmark the hash functions underlying the proving stack",
	Action: func(c *cli.Context) error {
		reports, err := bench.HashFns(c.Context)
		if err != nil {
			return err
		}

		fmt.Printf("----\nhash function results\n")
		for _, r := range reports {
			fmt.Printf("%s/%dB: %s/op (%.1f MiB/s)\n", r.Function, r.InputBytes, r.PerOp, r.MiBPerSec)
		}
		return nil
	},
}
