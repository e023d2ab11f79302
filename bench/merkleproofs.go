package bench

import (
	"context"
	"io"
	"math/rand"
	"time"

	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/merkle"
	"github.com/fireflyblock/benchy/prover"
)

type MerkleReport struct {
	DataSize    uint64        `json:"data_size"`
	Proofs      int           `json:"proofs"`
	BuildTree   time.Duration `json:"build_tree"`
	GenTotal    time.Duration `json:"gen_total"`
	GenPerProof time.Duration `json:"gen_per_proof"`
	Validated   bool          `json:"validated"`
	VerifyTotal time.Duration `json:"verify_total,omitempty"`
}

// MerkleProofs builds one tree over dataSize bytes and generates count
// opening proofs against deterministically chosen leaves, optionally
// verifying each against the committed root.
func MerkleProofs(ctx context.Context, eng prover.Engine, vrf prover.Verifier, dataSize uint64, count int, validate bool) (*MerkleReport, error) {
	if count < 1 {
		return nil, xerrors.Errorf("proof count must be at least 1, got %d", count)
	}

	report := &MerkleReport{DataSize: dataSize, Proofs: count, Validated: validate}

	log.Infof("building merkle tree over %d bytes", dataSize)
	data := io.LimitReader(rand.New(rand.NewSource(42)), int64(dataSize))
	start := time.Now()
	tree, err := eng.BuildMerkleTree(ctx, data, dataSize)
	if err != nil {
		return report, xerrors.Errorf("building merkle tree: %w", prover.EngineFailure(err))
	}
	report.BuildTree = time.Since(start)

	root := tree.Root()
	leaves := tree.Leaves()

	log.Infof("generating %d proofs over %d leaves", count, leaves)
	proofs := make([]prover.MerkleProof, count)
	start = time.Now()
	for i := 0; i < count; i++ {
		p, err := tree.GenProof(merkle.ChallengeIndex(leaves, uint64(i)))
		if err != nil {
			return report, xerrors.Errorf("generating proof %d: %w", i, prover.EngineFailure(err))
		}
		proofs[i] = p
	}
	report.GenTotal = time.Since(start)
	report.GenPerProof = report.GenTotal / time.Duration(count)

	if !validate {
		return report, nil
	}

	log.Infof("validating %d proofs", count)
	start = time.Now()
	for i, p := range proofs {
		if !vrf.VerifyMerkleProof(root, p) {
			report.VerifyTotal = time.Since(start)
			return report, xerrors.Errorf("%w: merkle proof %d (leaf %d)", ErrProofValidationFailed, i, p.Index)
		}
	}
	report.VerifyTotal = time.Since(start)

	return report, nil
}
