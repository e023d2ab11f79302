package main

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/bench"
	"github.com/fireflyblock/benchy/prover/devsim"
)

var prodbenchCmd = &cli.Command{
	Name:  "prodbench",
	Usage: "Run a benchmark job described by a JSON document",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "path to the job document (reads stdin when absent)",
		},
		&cli.BoolFlag{
			Name:  "skip-seal-proof",
			Usage: "skip generation (and verification) of the seal proof",
		},
		&cli.BoolFlag{
			Name:  "skip-post-proof",
			Usage: "skip generation (and verification) of the PoSt proof",
		},
		&cli.BoolFlag{
			Name:  "only-replicate",
			Usage: "only run replication",
		},
		&cli.BoolFlag{
			Name:  "only-add-piece",
			Usage: "only run piece addition",
		},
		&cli.StringFlag{
			Name:  "storage-dir",
			Usage: "root directory for generated cache directories",
		},
	},
	Action: func(c *cli.Context) error {
		var in bench.ProdbenchInputs
		var err error
		if path := c.String("config"); path != "" {
			f, ferr := os.Open(path)
			if ferr != nil {
				return xerrors.Errorf("%w: opening %s: %v", bench.ErrMalformedInput, path, ferr)
			}
			in, err = bench.ReadProdbenchInputs(f)
			f.Close()
		} else {
			in, err = bench.ReadProdbenchInputs(os.Stdin)
		}
		if err != nil {
			return err
		}

		// Command line selectors extend the document's.
		in.SkipSealProof = in.SkipSealProof || c.Bool("skip-seal-proof")
		in.SkipPostProof = in.SkipPostProof || c.Bool("skip-post-proof")
		in.OnlyReplicate = in.OnlyReplicate || c.Bool("only-replicate")
		in.OnlyAddPiece = in.OnlyAddPiece || c.Bool("only-add-piece")

		root, err := storageRootFlag(c)
		if err != nil {
			return err
		}

		sim := devsim.New()
		out, runErr := bench.Prodbench(c.Context, sim, sim, root, in)
		if out != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return xerrors.Errorf("writing outputs: %w", err)
			}
		}
		return runErr
	},
}
