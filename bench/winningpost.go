package bench

import (
	"context"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	"go.opencensus.io/trace"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/pipeline"
	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/stores"
)

type WinningPoStConfig struct {
	SectorSize  abi.SectorSize
	ApiVersion  prover.ApiVersion
	MinerID     abi.ActorID
	StorageRoot string
}

type WinningPoStReport struct {
	SectorSize abi.SectorSize `json:"sector_size"`
	Generate   time.Duration  `json:"generate"`
	Verify     time.Duration  `json:"verify"`
}

// WinningPoSt is the single-shot variant: seal one sector into a scratch
// cache, then time one proof-of-spacetime generation and its verification.
// Sealing cost is not part of the report.
func WinningPoSt(ctx context.Context, eng prover.Engine, vrf prover.Verifier, cfg WinningPoStConfig) (*WinningPoStReport, error) {
	spt, err := prover.SealProofType(cfg.SectorSize, cfg.ApiVersion)
	if err != nil {
		return nil, err
	}

	cache, err := stores.Acquire(cfg.StorageRoot, "", cfg.SectorSize, cfg.ApiVersion)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cache.Release(false); err != nil {
			log.Warnf("releasing cache: %+v", err)
		}
	}()

	sector := prover.SectorRef{
		ID:        abi.SectorID{Miner: cfg.MinerID, Number: 1},
		ProofType: spt,
	}

	log.Info("sealing sector for winning post")
	res, err := pipeline.Run(ctx, eng, sector, pipeline.Ticket(""), pipeline.Seed(), cache, pipeline.SkipFlags{})
	if err != nil {
		return nil, xerrors.Errorf("sealing sector: %w", err)
	}

	sectors := []prooftypes.SectorInfo{{
		SealProof:    spt,
		SectorNumber: sector.ID.Number,
		SealedCID:    res.Cids.Sealed,
	}}
	randomness := postRandomness("winning-post-challenge", 0)

	report := &WinningPoStReport{SectorSize: cfg.SectorSize}

	log.Info("generating winning post")
	start := time.Now()
	sctx, span := trace.StartSpan(ctx, "bench/generate-winning-post")
	proofs, err := eng.GenerateWinningPoSt(sctx, cfg.MinerID, sectors, randomness)
	span.End()
	report.Generate = time.Since(start)
	if err != nil {
		return report, xerrors.Errorf("generating winning post: %w", prover.EngineFailure(err))
	}

	log.Info("verifying winning post")
	start = time.Now()
	ok, err := vrf.VerifyWinningPoSt(ctx, prooftypes.WinningPoStVerifyInfo{
		Randomness:        randomness,
		Proofs:            proofs,
		ChallengedSectors: sectors,
		Prover:            cfg.MinerID,
	})
	report.Verify = time.Since(start)
	if err != nil {
		return report, xerrors.Errorf("verifying winning post: %w", err)
	}
	if !ok {
		return report, xerrors.Errorf("%w: winning post", ErrProofValidationFailed)
	}

	return report, nil
}
