package bench

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/docker/go-units"
	sysinfo "github.com/elastic/go-sysinfo"
	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/pipeline"
	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/stores"
)

// ProdbenchInputs is the job specification document. Stage selectors may
// come from the document or be OR'd in from command line flags before
// validation.
type ProdbenchInputs struct {
	SectorSize string `json:"sector_size"`
	ApiVersion string `json:"api_version"`

	SkipSealProof bool `json:"skip_seal_proof,omitempty"`
	SkipPostProof bool `json:"skip_post_proof,omitempty"`
	OnlyReplicate bool `json:"only_replicate,omitempty"`
	OnlyAddPiece  bool `json:"only_add_piece,omitempty"`
}

// ReadProdbenchInputs decodes a job document. Any decode failure rejects the
// whole invocation before benchmarking begins.
func ReadProdbenchInputs(r io.Reader) (ProdbenchInputs, error) {
	var in ProdbenchInputs
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return ProdbenchInputs{}, xerrors.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if in.SectorSize == "" {
		return ProdbenchInputs{}, xerrors.Errorf("%w: missing sector_size", ErrMalformedInput)
	}
	if in.ApiVersion == "" {
		in.ApiVersion = "1.0.0"
	}
	return in, nil
}

// StageSelection is the resolved stage set. Constructing it once during
// validation makes the only-* exclusivity structural: past this point no
// code re-checks flag combinations.
type StageSelection int

const (
	StagesAll StageSelection = iota
	StagesSealOnly
	StagesPoStOnly
	StagesReplicateOnly
	StagesAddPieceOnly
)

func (s StageSelection) String() string {
	switch s {
	case StagesAll:
		return "all"
	case StagesSealOnly:
		return "seal-only"
	case StagesPoStOnly:
		return "post-only"
	case StagesReplicateOnly:
		return "replicate-only"
	case StagesAddPieceOnly:
		return "add-piece-only"
	default:
		return "unknown"
	}
}

// SelectStages validates the selector flags and collapses them into one
// selection. Two only-* flags at once is a rejected input, not a precedence
// question.
func SelectStages(in ProdbenchInputs) (StageSelection, error) {
	if in.OnlyReplicate && in.OnlyAddPiece {
		return 0, xerrors.Errorf("%w: only_replicate and only_add_piece are mutually exclusive", ErrMalformedInput)
	}

	switch {
	case in.OnlyAddPiece:
		return StagesAddPieceOnly, nil
	case in.OnlyReplicate:
		return StagesReplicateOnly, nil
	case in.SkipSealProof && in.SkipPostProof:
		return StagesReplicateOnly, nil
	case in.SkipSealProof:
		return StagesPoStOnly, nil
	case in.SkipPostProof:
		return StagesSealOnly, nil
	default:
		return StagesAll, nil
	}
}

type StageReport struct {
	Stage      string `json:"stage"`
	WallTimeMs int64  `json:"wall_time_ms"`
	Ok         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
}

type HostInfo struct {
	Hostname      string `json:"hostname,omitempty"`
	OS            string `json:"os,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	Architecture  string `json:"architecture,omitempty"`
	MemoryTotal   uint64 `json:"memory_total,omitempty"`
}

// ProdbenchOutputs lists one record per stage actually executed; unselected
// stages are absent, not reported as skipped.
type ProdbenchOutputs struct {
	Inputs ProdbenchInputs `json:"inputs"`
	Host   HostInfo        `json:"host"`
	Stages []StageReport   `json:"stages"`
}

func collectHost() HostInfo {
	h, err := sysinfo.Host()
	if err != nil {
		log.Warnf("collecting host info: %v", err)
		return HostInfo{}
	}
	info := h.Info()
	out := HostInfo{
		Hostname:      info.Hostname,
		KernelVersion: info.KernelVersion,
		Architecture:  info.Architecture,
	}
	if info.OS != nil {
		out.OS = info.OS.Name + " " + info.OS.Version
	}
	if mem, err := h.Memory(); err == nil {
		out.MemoryTotal = mem.Total
	}
	return out
}

// Prodbench runs the selected stages of one job and collects their timing
// records. The caller owns the output transport; this function only builds
// the document. A stage failure stops the job, but records accumulated up to
// that point are returned alongside the error.
func Prodbench(ctx context.Context, eng prover.Engine, vrf prover.Verifier, storageRoot string, in ProdbenchInputs) (*ProdbenchOutputs, error) {
	sel, err := SelectStages(in)
	if err != nil {
		return nil, err
	}

	ssizeInt, err := units.RAMInBytes(in.SectorSize)
	if err != nil || ssizeInt <= 0 {
		return nil, xerrors.Errorf("%w: sector_size %q", prover.ErrInvalidSize, in.SectorSize)
	}
	ssize := abi.SectorSize(ssizeInt)

	ver, err := prover.ParseApiVersion(in.ApiVersion)
	if err != nil {
		return nil, err
	}
	spt, err := prover.SealProofType(ssize, ver)
	if err != nil {
		return nil, err
	}

	log.Infow("prodbench job", "sector-size", ssize, "api-version", ver, "stages", sel)

	out := &ProdbenchOutputs{
		Inputs: in,
		Host:   collectHost(),
		Stages: []StageReport{},
	}

	cache, err := stores.Acquire(storageRoot, "", ssize, ver)
	if err != nil {
		return out, err
	}
	defer func() {
		if err := cache.Release(false); err != nil {
			log.Warnf("releasing cache: %+v", err)
		}
	}()

	sector := prover.SectorRef{
		ID:        abi.SectorID{Miner: 1000, Number: 1},
		ProofType: spt,
	}
	ticket := pipeline.Ticket("")
	seed := pipeline.Seed()

	stage := func(name string, fn func(context.Context) error) error {
		if err := ctx.Err(); err != nil {
			return xerrors.Errorf("canceled before %s: %w", name, err)
		}
		log.Infof("running stage %s", name)
		start := time.Now()
		err := fn(ctx)
		rec := StageReport{
			Stage:      name,
			WallTimeMs: time.Since(start).Milliseconds(),
			Ok:         err == nil,
		}
		if err != nil {
			rec.Detail = err.Error()
		}
		out.Stages = append(out.Stages, rec)
		return err
	}

	var pieces []abi.PieceInfo
	if err := stage("add-piece", func(sctx context.Context) error {
		ssz, err := sector.ProofType.SectorSize()
		if err != nil {
			return err
		}
		pi, err := eng.AddPiece(sctx, sector, abi.PaddedPieceSize(ssz).Unpadded(), pipeline.PieceData(sector))
		if err != nil {
			return prover.EngineFailure(err)
		}
		pieces = []abi.PieceInfo{pi}
		return nil
	}); err != nil {
		return out, err
	}

	if sel == StagesAddPieceOnly {
		return out, nil
	}

	var cids prover.SectorCids
	if err := stage("replicate", func(sctx context.Context) error {
		pc1o, err := eng.SealPreCommit1(sctx, sector, ticket, pieces)
		if err != nil {
			return xerrors.Errorf("precommit1: %w", prover.EngineFailure(err))
		}
		cids, err = eng.SealPreCommit2(sctx, sector, pc1o)
		if err != nil {
			return xerrors.Errorf("precommit2: %w", prover.EngineFailure(err))
		}
		return nil
	}); err != nil {
		return out, err
	}

	if sel == StagesAll || sel == StagesSealOnly {
		if err := stage("seal-proof", func(sctx context.Context) error {
			c1o, err := eng.SealCommit1(sctx, sector, ticket, seed, pieces, cids)
			if err != nil {
				return xerrors.Errorf("commit1: %w", prover.EngineFailure(err))
			}
			proof, err := eng.SealCommit2(sctx, sector, c1o)
			if err != nil {
				return xerrors.Errorf("commit2: %w", prover.EngineFailure(err))
			}
			ok, err := vrf.VerifySeal(sctx, prooftypes.SealVerifyInfo{
				SealProof:             spt,
				SectorID:              sector.ID,
				Randomness:            ticket,
				InteractiveRandomness: seed,
				Proof:                 proof,
				SealedCID:             cids.Sealed,
				UnsealedCID:           cids.Unsealed,
			})
			if err != nil {
				return xerrors.Errorf("verifying seal: %w", err)
			}
			if !ok {
				return xerrors.Errorf("%w: seal proof for sector %d", ErrProofValidationFailed, sector.ID.Number)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}

	if sel == StagesAll || sel == StagesPoStOnly {
		if err := stage("post-proof", func(sctx context.Context) error {
			sectors := []prooftypes.SectorInfo{{
				SealProof:    spt,
				SectorNumber: sector.ID.Number,
				SealedCID:    cids.Sealed,
			}}
			randomness := postRandomness("prodbench-post-challenge", 0)
			proofs, err := eng.GenerateWindowPoSt(sctx, sector.ID.Miner, sectors, randomness)
			if err != nil {
				return xerrors.Errorf("generating window post: %w", prover.EngineFailure(err))
			}
			ok, err := vrf.VerifyWindowPoSt(sctx, prooftypes.WindowPoStVerifyInfo{
				Randomness:        randomness,
				Proofs:            proofs,
				ChallengedSectors: sectors,
				Prover:            sector.ID.Miner,
			})
			if err != nil {
				return xerrors.Errorf("verifying window post: %w", err)
			}
			if !ok {
				return xerrors.Errorf("%w: window post", ErrProofValidationFailed)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}

	return out, nil
}
