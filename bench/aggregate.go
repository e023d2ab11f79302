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

type AggregateConfig struct {
	SectorSize  abi.SectorSize
	ApiVersion  prover.ApiVersion
	MinerID     abi.ActorID
	StorageRoot string
	Count       int
}

type AggregateReport struct {
	SectorSize abi.SectorSize `json:"sector_size"`
	Count      int            `json:"count"`
	Aggregate  time.Duration  `json:"aggregate"`
	Verify     time.Duration  `json:"verify"`
}

// AggregateProof seals one sector, generates Count window-post proofs over
// it under distinct challenges, and times a single aggregation call over the
// batch. Sealing and per-proof generation cost is excluded from the
// aggregation timing.
func AggregateProof(ctx context.Context, eng prover.Engine, vrf prover.Verifier, cfg AggregateConfig) (*AggregateReport, error) {
	if cfg.Count < 1 {
		return nil, xerrors.Errorf("%w: num_agg=%d", ErrEmptyAggregateBatch, cfg.Count)
	}

	spt, err := prover.SealProofType(cfg.SectorSize, cfg.ApiVersion)
	if err != nil {
		return nil, err
	}
	wpt, err := spt.RegisteredWindowPoStProof()
	if err != nil {
		return nil, xerrors.Errorf("window post proof type: %w", err)
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

	log.Info("sealing sector for proof aggregation")
	res, err := pipeline.Run(ctx, eng, sector, pipeline.Ticket(""), pipeline.Seed(), cache, pipeline.SkipFlags{})
	if err != nil {
		return nil, xerrors.Errorf("sealing sector: %w", err)
	}

	sectors := []prooftypes.SectorInfo{{
		SealProof:    spt,
		SectorNumber: sector.ID.Number,
		SealedCID:    res.Cids.Sealed,
	}}

	log.Infof("generating %d window post proofs", cfg.Count)
	randomnesses := make([]abi.PoStRandomness, cfg.Count)
	proofs := make([]prooftypes.PoStProof, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Errorf("canceled before proof %d: %w", i, err)
		}
		randomnesses[i] = postRandomness("aggregate-challenge", uint64(i))
		out, err := eng.GenerateWindowPoSt(ctx, cfg.MinerID, sectors, randomnesses[i])
		if err != nil {
			return nil, xerrors.Errorf("generating window post %d: %w", i, prover.EngineFailure(err))
		}
		proofs[i] = out[0]
	}

	report := &AggregateReport{SectorSize: cfg.SectorSize, Count: cfg.Count}

	log.Infof("aggregating %d proofs", cfg.Count)
	start := time.Now()
	sctx, span := trace.StartSpan(ctx, "bench/aggregate-window-post")
	aggregate, err := eng.AggregateWindowPoStProofs(sctx, wpt, randomnesses, proofs)
	span.End()
	report.Aggregate = time.Since(start)
	if err != nil {
		return report, xerrors.Errorf("aggregating proofs: %w", prover.EngineFailure(err))
	}

	start = time.Now()
	ok, err := vrf.VerifyAggregateWindowPoStProofs(ctx, wpt, aggregate, randomnesses, proofs)
	report.Verify = time.Since(start)
	if err != nil {
		return report, xerrors.Errorf("verifying aggregate: %w", err)
	}
	if !ok {
		return report, xerrors.Errorf("%w: aggregate of %d proofs", ErrProofValidationFailed, cfg.Count)
	}

	return report, nil
}
