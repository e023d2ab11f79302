package pipeline

import (
	"bytes"
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/stores"
)

// ResumeReport carries both runs of a resume test.
type ResumeReport struct {
	Baseline *RunResult
	Resumed  *RunResult
}

// TestResume validates the resume contract: a full baseline run, then a
// second run over a re-acquired handle on the same cache directory with every
// phase whose artifact is present marked skippable. The resumed run must
// reproduce the baseline's final artifact exactly; anything else means
// skip-detection is reusing the wrong state.
func TestResume(ctx context.Context, eng prover.Engine, sector prover.SectorRef, ticket abi.SealRandomness, seed abi.InteractiveSealRandomness, cache *stores.CacheDir) (*ResumeReport, error) {
	log.Info("resume test: baseline run")
	baseline, err := Run(ctx, eng, sector, ticket, seed, cache, SkipFlags{})
	if err != nil {
		return &ResumeReport{Baseline: baseline}, xerrors.Errorf("baseline run: %w", err)
	}

	// In-memory state from the baseline is deliberately discarded: the
	// directory is re-acquired through the marker check and the resumed run
	// sees only what survived on disk.
	meta := cache.Meta()
	ver, err := prover.ParseApiVersion(meta.ApiVersion)
	if err != nil {
		return &ResumeReport{Baseline: baseline}, xerrors.Errorf("cache marker version: %w", err)
	}
	reopened, err := stores.Acquire("", cache.Path(), meta.SectorSize, ver)
	if err != nil {
		return &ResumeReport{Baseline: baseline}, xerrors.Errorf("reopening cache: %w", err)
	}

	flags := SkipFlags{
		PreCommit1: reopened.Has(PC1File),
		PreCommit2: reopened.Has(PC2File),
		Commit1:    reopened.Has(C1File),
		Commit2:    reopened.Has(C2File),
	}
	log.Infow("resume test: resumed run", "skip", flags)

	resumed, err := Run(ctx, eng, sector, ticket, seed, reopened, flags)
	report := &ResumeReport{Baseline: baseline, Resumed: resumed}
	if err != nil {
		return report, xerrors.Errorf("resumed run: %w", err)
	}

	if err := compareRuns(baseline, resumed); err != nil {
		return report, err
	}
	return report, nil
}

// compareRuns checks the resume equivalence criterion: byte-identical final
// proof and equal sealed/unsealed commitments.
func compareRuns(baseline, resumed *RunResult) error {
	if !bytes.Equal(baseline.Proof, resumed.Proof) ||
		baseline.Cids.Sealed != resumed.Cids.Sealed ||
		baseline.Cids.Unsealed != resumed.Cids.Unsealed {
		return xerrors.Errorf("%w: baseline sealed=%s unsealed=%s, resumed sealed=%s unsealed=%s",
			ErrResumeMismatch,
			baseline.Cids.Sealed, baseline.Cids.Unsealed,
			resumed.Cids.Sealed, resumed.Cids.Unsealed)
	}
	return nil
}
