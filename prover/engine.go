package prover

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	"github.com/ipfs/go-cid"
)

// ErrProofEngineFailure classifies errors surfaced by an injected Engine
// call, as opposed to harness-side validation or IO failures.
var ErrProofEngineFailure = errors.New("proof engine failure")

// EngineFailure tags err as a proof engine failure while keeping the cause
// reachable through errors.Is.
func EngineFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrProofEngineFailure, err)
}

// SectorRef identifies a sector and the proof type it is sealed under.
type SectorRef struct {
	ID        abi.SectorID
	ProofType abi.RegisteredSealProof
}

type (
	PreCommit1Out []byte
	Commit1Out    []byte
	Proof         []byte
)

// SectorCids are the commitments produced by precommit phase 2.
type SectorCids struct {
	Unsealed cid.Cid
	Sealed   cid.Cid
}

// MerkleProof is an opening proof for a single leaf. Sibling order along
// Path is bottom-up; the direction at each level follows the index bits.
type MerkleProof struct {
	Index uint64
	Leaf  [32]byte
	Path  [][32]byte
}

// MerkleTree is a committed tree that can open individual leaves.
type MerkleTree interface {
	Root() [32]byte
	Leaves() uint64
	GenProof(index uint64) (MerkleProof, error)
}

// Engine is the opaque proving capability the harness drives. Concrete
// backends (ffi bindings, remote workers, the in-process devsim) are injected
// behind it; the orchestration core never depends on a specific one.
//
// All calls may be long-running. Callers must not assume a call can be
// interrupted: cancellation is honored between calls, never inside one.
type Engine interface {
	AddPiece(ctx context.Context, sector SectorRef, pieceSize abi.UnpaddedPieceSize, data io.Reader) (abi.PieceInfo, error)

	SealPreCommit1(ctx context.Context, sector SectorRef, ticket abi.SealRandomness, pieces []abi.PieceInfo) (PreCommit1Out, error)
	SealPreCommit2(ctx context.Context, sector SectorRef, pc1o PreCommit1Out) (SectorCids, error)
	SealCommit1(ctx context.Context, sector SectorRef, ticket abi.SealRandomness, seed abi.InteractiveSealRandomness, pieces []abi.PieceInfo, cids SectorCids) (Commit1Out, error)
	SealCommit2(ctx context.Context, sector SectorRef, c1o Commit1Out) (Proof, error)

	GenerateWinningPoSt(ctx context.Context, minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) ([]prooftypes.PoStProof, error)
	GenerateWindowPoSt(ctx context.Context, minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) ([]prooftypes.PoStProof, error)
	AggregateWindowPoStProofs(ctx context.Context, proofType abi.RegisteredPoStProof, randomnesses []abi.PoStRandomness, proofs []prooftypes.PoStProof) (Proof, error)

	BuildMerkleTree(ctx context.Context, data io.Reader, size uint64) (MerkleTree, error)
}

// Verifier checks what Engine produces. Kept separate from Engine:
// verification is stateless and is often wanted without a prover.
type Verifier interface {
	VerifySeal(ctx context.Context, info prooftypes.SealVerifyInfo) (bool, error)
	VerifyWinningPoSt(ctx context.Context, info prooftypes.WinningPoStVerifyInfo) (bool, error)
	VerifyWindowPoSt(ctx context.Context, info prooftypes.WindowPoStVerifyInfo) (bool, error)
	VerifyAggregateWindowPoStProofs(ctx context.Context, proofType abi.RegisteredPoStProof, aggregate Proof, randomnesses []abi.PoStRandomness, proofs []prooftypes.PoStProof) (bool, error)
	VerifyMerkleProof(root [32]byte, p MerkleProof) bool
}
