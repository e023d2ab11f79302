package bench

import (
	"context"
	"time"

	"github.com/filecoin-project/go-bitfield"
	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/pipeline"
	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/stores"
)

type WindowPoStConfig struct {
	SectorSize    abi.SectorSize
	ApiVersion    prover.ApiVersion
	MinerID       abi.ActorID
	StorageRoot   string
	CacheHint     string
	PreserveCache bool
	Skip          pipeline.SkipFlags
	TestResume    bool
}

type WindowPoStReport struct {
	SectorSize    abi.SectorSize         `json:"sector_size"`
	Phases        []pipeline.PhaseResult `json:"phases"`
	SectorsProven uint64                 `json:"sectors_proven"`
	Generate      time.Duration          `json:"generate"`
	Verify        time.Duration          `json:"verify"`
}

// WindowPoSt seals a sector (phases may be satisfied from a populated
// cache), generates a windowed PoSt over it and verifies the result, timing
// generation and verification independently.
func WindowPoSt(ctx context.Context, eng prover.Engine, vrf prover.Verifier, cfg WindowPoStConfig) (*WindowPoStReport, error) {
	spt, err := prover.SealProofType(cfg.SectorSize, cfg.ApiVersion)
	if err != nil {
		return nil, err
	}

	cache, err := stores.Acquire(cfg.StorageRoot, cfg.CacheHint, cfg.SectorSize, cfg.ApiVersion)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cache.Release(cfg.PreserveCache); err != nil {
			log.Warnf("releasing cache: %+v", err)
		}
	}()

	sector := prover.SectorRef{
		ID:        abi.SectorID{Miner: cfg.MinerID, Number: 1},
		ProofType: spt,
	}
	ticket := pipeline.Ticket("")
	seed := pipeline.Seed()

	report := &WindowPoStReport{SectorSize: cfg.SectorSize}

	var res *pipeline.RunResult
	if cfg.TestResume {
		rep, err := pipeline.TestResume(ctx, eng, sector, ticket, seed, cache)
		if rep != nil && rep.Baseline != nil {
			report.Phases = rep.Baseline.Phases
		}
		if err != nil {
			return report, err
		}
		res = rep.Resumed
	} else {
		res, err = pipeline.Run(ctx, eng, sector, ticket, seed, cache, cfg.Skip)
		if res != nil {
			report.Phases = res.Phases
		}
		if err != nil {
			return report, err
		}
	}

	sectors := []prooftypes.SectorInfo{{
		SealProof:    spt,
		SectorNumber: sector.ID.Number,
		SealedCID:    res.Cids.Sealed,
	}}

	challenged := make([]uint64, len(sectors))
	for i, si := range sectors {
		challenged[i] = uint64(si.SectorNumber)
	}
	proven := bitfield.NewFromSet(challenged)
	report.SectorsProven, err = proven.Count()
	if err != nil {
		return report, xerrors.Errorf("counting proven sectors: %w", err)
	}

	randomness := postRandomness("window-post-challenge", 0)

	log.Info("generating window post")
	start := time.Now()
	sctx, span := trace.StartSpan(ctx, "bench/generate-window-post")
	proofs, err := eng.GenerateWindowPoSt(sctx, cfg.MinerID, sectors, randomness)
	span.End()
	report.Generate = time.Since(start)
	if err != nil {
		return report, xerrors.Errorf("generating window post: %w", prover.EngineFailure(err))
	}

	log.Info("verifying window post")
	start = time.Now()
	ok, err := vrf.VerifyWindowPoSt(ctx, prooftypes.WindowPoStVerifyInfo{
		Randomness:        randomness,
		Proofs:            proofs,
		ChallengedSectors: sectors,
		Prover:            cfg.MinerID,
	})
	report.Verify = time.Since(start)
	if err != nil {
		return report, xerrors.Errorf("verifying window post: %w", err)
	}
	if !ok {
		// The engine produced a proof that does not verify. That is a
		// protocol-level anomaly, not an engine crash.
		return report, xerrors.Errorf("%w: window post", ErrProofValidationFailed)
	}

	return report, nil
}
