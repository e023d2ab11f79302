// Package devsim is a deterministic, in-process proof engine. Commitments
// and proofs are chained blake2b-256 digests over the public inputs of each
// phase, so a verifier can recompute everything a prover emitted and any two
// runs over identical inputs produce byte-identical artifacts.
//
// It exists to exercise the orchestration around an engine without the ffi
// provers; it has no cryptographic soundness whatsoever.
package devsim

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"io"

	commcid "github.com/filecoin-project/go-fil-commcid"
	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	logging "github.com/ipfs/go-log/v2"
	"github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/merkle"
	"github.com/fireflyblock/benchy/prover"
)

var log = logging.Logger("devsim")

const (
	winningProofLen = 96
	windowProofLen  = 192
	porepProofLen   = 192
	aggProofLen     = 192
)

type Sim struct{}

var (
	_ prover.Engine   = (*Sim)(nil)
	_ prover.Verifier = (*Sim)(nil)
)

func New() *Sim {
	return &Sim{}
}

func sum(tag string, parts ...[]byte) [32]byte {
	buf := []byte(tag)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return blake2b.Sum256(buf)
}

// expand derives n pseudo-random bytes from (tag, parts) by counter hashing.
func expand(tag string, n int, parts ...[]byte) []byte {
	seed := sum(tag, parts...)
	out := make([]byte, 0, n)
	var ctr [4]byte
	for i := 0; len(out) < n; i++ {
		binary.LittleEndian.PutUint32(ctr[:], uint32(i))
		h := sum("expand", seed[:], ctr[:])
		out = append(out, h[:]...)
	}
	return out[:n]
}

func sectorBytes(sector prover.SectorRef) []byte {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(sector.ProofType))
	binary.LittleEndian.PutUint64(buf[8:], uint64(sector.ID.Miner))
	binary.LittleEndian.PutUint64(buf[16:], uint64(sector.ID.Number))
	return buf[:]
}

// clearFr keeps commitments inside the field element range expected by the
// commitment-to-CID conversion.
func clearFr(h [32]byte) []byte {
	h[31] &= 0x3f
	return h[:]
}

func commDFor(sector prover.SectorRef, pieces []abi.PieceInfo) []byte {
	var pb []byte
	for _, p := range pieces {
		var sz [8]byte
		binary.LittleEndian.PutUint64(sz[:], uint64(p.Size))
		pb = append(pb, sz[:]...)
		pb = append(pb, p.PieceCID.Bytes()...)
	}
	return clearFr(sum("devsim-commd", sectorBytes(sector), pb))
}

func commRFor(spt abi.RegisteredSealProof, sid abi.SectorID, ticket abi.SealRandomness, commD []byte) []byte {
	sec := sectorBytes(prover.SectorRef{ID: sid, ProofType: spt})
	return clearFr(sum("devsim-commr", sec, ticket, commD))
}

func porepProof(spt abi.RegisteredSealProof, sid abi.SectorID, commR, commD []byte, seed abi.InteractiveSealRandomness) []byte {
	sec := sectorBytes(prover.SectorRef{ID: sid, ProofType: spt})
	return expand("devsim-porep", porepProofLen, sec, commR, commD, seed)
}

func (s *Sim) AddPiece(ctx context.Context, sector prover.SectorRef, pieceSize abi.UnpaddedPieceSize, data io.Reader) (abi.PieceInfo, error) {
	digest := sum("devsim-piece", sectorBytes(sector))

	var read uint64
	buf := make([]byte, 1<<20)
	for read < uint64(pieceSize) {
		want := uint64(len(buf))
		if uint64(pieceSize)-read < want {
			want = uint64(pieceSize) - read
		}
		n, err := io.ReadFull(data, buf[:want])
		if err != nil {
			return abi.PieceInfo{}, xerrors.Errorf("reading piece data at %d: %w", read, err)
		}
		digest = sum("devsim-piece-chunk", digest[:], buf[:n])
		read += uint64(n)
	}

	pcid, err := commcid.PieceCommitmentV1ToCID(clearFr(digest))
	if err != nil {
		return abi.PieceInfo{}, xerrors.Errorf("piece commitment to cid: %w", err)
	}

	return abi.PieceInfo{
		Size:     pieceSize.Padded(),
		PieceCID: pcid,
	}, nil
}

// pc1Payload is the precommit phase 1 artifact. Later phases parse it back,
// the same way a real engine round-trips its layered replica state.
type pc1Payload struct {
	ProofType abi.RegisteredSealProof `json:"proof_type"`
	Miner     abi.ActorID             `json:"miner"`
	Number    abi.SectorNumber        `json:"number"`
	Ticket    []byte                  `json:"ticket"`
	CommD     []byte                  `json:"comm_d"`
}

type c1Payload struct {
	pc1Payload
	Seed  []byte `json:"seed"`
	CommR []byte `json:"comm_r"`
}

func (s *Sim) SealPreCommit1(ctx context.Context, sector prover.SectorRef, ticket abi.SealRandomness, pieces []abi.PieceInfo) (prover.PreCommit1Out, error) {
	if len(pieces) == 0 {
		return nil, xerrors.New("precommit1: no pieces")
	}
	if len(ticket) == 0 {
		return nil, xerrors.New("precommit1: empty ticket")
	}

	out, err := json.Marshal(pc1Payload{
		ProofType: sector.ProofType,
		Miner:     sector.ID.Miner,
		Number:    sector.ID.Number,
		Ticket:    ticket,
		CommD:     commDFor(sector, pieces),
	})
	if err != nil {
		return nil, xerrors.Errorf("encoding pc1 output: %w", err)
	}
	return prover.PreCommit1Out(out), nil
}

func (s *Sim) SealPreCommit2(ctx context.Context, sector prover.SectorRef, pc1o prover.PreCommit1Out) (prover.SectorCids, error) {
	var p pc1Payload
	if err := json.Unmarshal(pc1o, &p); err != nil {
		return prover.SectorCids{}, xerrors.Errorf("decoding pc1 output: %w", err)
	}
	if p.Miner != sector.ID.Miner || p.Number != sector.ID.Number {
		return prover.SectorCids{}, xerrors.Errorf("pc1 output belongs to sector %d-%d, not %d-%d",
			p.Miner, p.Number, sector.ID.Miner, sector.ID.Number)
	}

	commR := commRFor(sector.ProofType, sector.ID, p.Ticket, p.CommD)

	unsealed, err := commcid.DataCommitmentV1ToCID(p.CommD)
	if err != nil {
		return prover.SectorCids{}, xerrors.Errorf("data commitment to cid: %w", err)
	}
	sealed, err := commcid.ReplicaCommitmentV1ToCID(commR)
	if err != nil {
		return prover.SectorCids{}, xerrors.Errorf("replica commitment to cid: %w", err)
	}

	return prover.SectorCids{Unsealed: unsealed, Sealed: sealed}, nil
}

func (s *Sim) SealCommit1(ctx context.Context, sector prover.SectorRef, ticket abi.SealRandomness, seed abi.InteractiveSealRandomness, pieces []abi.PieceInfo, cids prover.SectorCids) (prover.Commit1Out, error) {
	commD := commDFor(sector, pieces)
	commR := commRFor(sector.ProofType, sector.ID, ticket, commD)

	wantSealed, err := commcid.ReplicaCommitmentV1ToCID(commR)
	if err != nil {
		return nil, xerrors.Errorf("replica commitment to cid: %w", err)
	}
	if wantSealed != cids.Sealed {
		return nil, xerrors.Errorf("commit1: sealed cid %s does not match replica state %s", cids.Sealed, wantSealed)
	}

	out, err := json.Marshal(c1Payload{
		pc1Payload: pc1Payload{
			ProofType: sector.ProofType,
			Miner:     sector.ID.Miner,
			Number:    sector.ID.Number,
			Ticket:    ticket,
			CommD:     commD,
		},
		Seed:  seed,
		CommR: commR,
	})
	if err != nil {
		return nil, xerrors.Errorf("encoding c1 output: %w", err)
	}
	return prover.Commit1Out(out), nil
}

func (s *Sim) SealCommit2(ctx context.Context, sector prover.SectorRef, c1o prover.Commit1Out) (prover.Proof, error) {
	var p c1Payload
	if err := json.Unmarshal(c1o, &p); err != nil {
		return nil, xerrors.Errorf("decoding c1 output: %w", err)
	}
	if p.Miner != sector.ID.Miner || p.Number != sector.ID.Number {
		return nil, xerrors.Errorf("c1 output belongs to sector %d-%d, not %d-%d",
			p.Miner, p.Number, sector.ID.Miner, sector.ID.Number)
	}

	return porepProof(p.ProofType, sector.ID, p.CommR, p.CommD, p.Seed), nil
}

func (s *Sim) VerifySeal(ctx context.Context, info prooftypes.SealVerifyInfo) (bool, error) {
	commD, err := commcid.CIDToDataCommitmentV1(info.UnsealedCID)
	if err != nil {
		return false, xerrors.Errorf("unsealed cid to commitment: %w", err)
	}
	commR, err := commcid.CIDToReplicaCommitmentV1(info.SealedCID)
	if err != nil {
		return false, xerrors.Errorf("sealed cid to commitment: %w", err)
	}

	wantR := commRFor(info.SealProof, info.SectorID, info.Randomness, commD)
	if subtle.ConstantTimeCompare(wantR, commR) != 1 {
		log.Debugw("seal verification failed", "sector", info.SectorID.Number, "reason", "comm_r mismatch")
		return false, nil
	}

	want := porepProof(info.SealProof, info.SectorID, commR, commD, info.InteractiveRandomness)
	return subtle.ConstantTimeCompare(want, info.Proof) == 1, nil
}

func postInput(minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(minerID))
	in := append([]byte{}, buf[:]...)
	in = append(in, randomness...)
	for _, si := range sectors {
		var sn [16]byte
		binary.LittleEndian.PutUint64(sn[0:], uint64(si.SealProof))
		binary.LittleEndian.PutUint64(sn[8:], uint64(si.SectorNumber))
		in = append(in, sn[:]...)
		in = append(in, si.SealedCID.Bytes()...)
	}
	return in
}

func (s *Sim) generatePoSt(tag string, proofLen int, wpt abi.RegisteredPoStProof, minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) ([]prooftypes.PoStProof, error) {
	if len(sectors) == 0 {
		return nil, xerrors.New("no sectors to prove")
	}
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(wpt))
	return []prooftypes.PoStProof{{
		PoStProof:  wpt,
		ProofBytes: expand(tag, proofLen, tb[:], postInput(minerID, sectors, randomness)),
	}}, nil
}

func (s *Sim) GenerateWinningPoSt(ctx context.Context, minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) ([]prooftypes.PoStProof, error) {
	if len(sectors) == 0 {
		return nil, xerrors.New("no sectors to prove")
	}
	wpt, err := sectors[0].SealProof.RegisteredWinningPoStProof()
	if err != nil {
		return nil, xerrors.Errorf("winning post proof type: %w", err)
	}
	return s.generatePoSt("devsim-winning-post", winningProofLen, wpt, minerID, sectors, randomness)
}

func (s *Sim) GenerateWindowPoSt(ctx context.Context, minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) ([]prooftypes.PoStProof, error) {
	if len(sectors) == 0 {
		return nil, xerrors.New("no sectors to prove")
	}
	wpt, err := sectors[0].SealProof.RegisteredWindowPoStProof()
	if err != nil {
		return nil, xerrors.Errorf("window post proof type: %w", err)
	}
	return s.generatePoSt("devsim-window-post", windowProofLen, wpt, minerID, sectors, randomness)
}

func (s *Sim) verifyPoSt(tag string, proofLen int, randomness abi.PoStRandomness, proofs []prooftypes.PoStProof, sectors []prooftypes.SectorInfo, minerID abi.ActorID) (bool, error) {
	if len(proofs) != 1 {
		return false, nil
	}
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(proofs[0].PoStProof))
	want := expand(tag, proofLen, tb[:], postInput(minerID, sectors, randomness))
	return subtle.ConstantTimeCompare(want, proofs[0].ProofBytes) == 1, nil
}

func (s *Sim) VerifyWinningPoSt(ctx context.Context, info prooftypes.WinningPoStVerifyInfo) (bool, error) {
	return s.verifyPoSt("devsim-winning-post", winningProofLen, info.Randomness, info.Proofs, info.ChallengedSectors, info.Prover)
}

func (s *Sim) VerifyWindowPoSt(ctx context.Context, info prooftypes.WindowPoStVerifyInfo) (bool, error) {
	return s.verifyPoSt("devsim-window-post", windowProofLen, info.Randomness, info.Proofs, info.ChallengedSectors, info.Prover)
}

func aggInput(proofType abi.RegisteredPoStProof, randomnesses []abi.PoStRandomness, proofs []prooftypes.PoStProof) []byte {
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(proofType))
	in := append([]byte{}, tb[:]...)
	for _, r := range randomnesses {
		in = append(in, r...)
	}
	for _, p := range proofs {
		in = append(in, p.ProofBytes...)
	}
	return in
}

func (s *Sim) AggregateWindowPoStProofs(ctx context.Context, proofType abi.RegisteredPoStProof, randomnesses []abi.PoStRandomness, proofs []prooftypes.PoStProof) (prover.Proof, error) {
	if len(proofs) == 0 {
		return nil, xerrors.New("nothing to aggregate")
	}
	if len(randomnesses) != len(proofs) {
		return nil, xerrors.Errorf("got %d randomness values for %d proofs", len(randomnesses), len(proofs))
	}
	return expand("devsim-agg", aggProofLen, aggInput(proofType, randomnesses, proofs)), nil
}

func (s *Sim) VerifyAggregateWindowPoStProofs(ctx context.Context, proofType abi.RegisteredPoStProof, aggregate prover.Proof, randomnesses []abi.PoStRandomness, proofs []prooftypes.PoStProof) (bool, error) {
	want := expand("devsim-agg", aggProofLen, aggInput(proofType, randomnesses, proofs))
	return subtle.ConstantTimeCompare(want, aggregate) == 1, nil
}

type simTree struct {
	t *merkle.Tree
}

func (st *simTree) Root() [32]byte {
	return st.t.Root()
}

func (st *simTree) Leaves() uint64 {
	return st.t.Leaves()
}

func (st *simTree) GenProof(index uint64) (prover.MerkleProof, error) {
	leaf, path, err := st.t.Proof(index)
	if err != nil {
		return prover.MerkleProof{}, err
	}
	return prover.MerkleProof{Index: index, Leaf: leaf, Path: path}, nil
}

func (s *Sim) BuildMerkleTree(ctx context.Context, data io.Reader, size uint64) (prover.MerkleTree, error) {
	t, err := merkle.Build(data, size)
	if err != nil {
		return nil, err
	}
	return &simTree{t: t}, nil
}

func (s *Sim) VerifyMerkleProof(root [32]byte, p prover.MerkleProof) bool {
	return merkle.Verify(root, p.Leaf, p.Index, p.Path)
}
