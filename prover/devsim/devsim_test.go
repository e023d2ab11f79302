package devsim

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fireflyblock/benchy/merkle"
	"github.com/fireflyblock/benchy/prover"
)

func sealedSector(t *testing.T, s *Sim, ticket abi.SealRandomness, seed abi.InteractiveSealRandomness) (prover.SectorRef, []abi.PieceInfo, prover.SectorCids, prover.Proof) {
	t.Helper()
	ctx := context.Background()

	sector := prover.SectorRef{
		ID:        abi.SectorID{Miner: 1000, Number: 7},
		ProofType: abi.RegisteredSealProof_StackedDrg2KiBV1,
	}

	pi, err := s.AddPiece(ctx, sector, abi.PaddedPieceSize(2048).Unpadded(), rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	pieces := []abi.PieceInfo{pi}

	pc1o, err := s.SealPreCommit1(ctx, sector, ticket, pieces)
	require.NoError(t, err)
	cids, err := s.SealPreCommit2(ctx, sector, pc1o)
	require.NoError(t, err)
	c1o, err := s.SealCommit1(ctx, sector, ticket, seed, pieces, cids)
	require.NoError(t, err)
	proof, err := s.SealCommit2(ctx, sector, c1o)
	require.NoError(t, err)

	return sector, pieces, cids, proof
}

func TestSealDeterministic(t *testing.T) {
	s := New()
	ticket := abi.SealRandomness(bytes.Repeat([]byte{1}, 32))
	seed := abi.InteractiveSealRandomness(bytes.Repeat([]byte{2}, 32))

	_, _, cids1, proof1 := sealedSector(t, s, ticket, seed)
	_, _, cids2, proof2 := sealedSector(t, s, ticket, seed)

	assert.Equal(t, cids1, cids2)
	assert.Equal(t, proof1, proof2)
}

func TestVerifySeal(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := abi.SealRandomness(bytes.Repeat([]byte{1}, 32))
	seed := abi.InteractiveSealRandomness(bytes.Repeat([]byte{2}, 32))

	sector, _, cids, proof := sealedSector(t, s, ticket, seed)

	info := prooftypes.SealVerifyInfo{
		SectorID:              sector.ID,
		SealedCID:             cids.Sealed,
		SealProof:             sector.ProofType,
		Proof:                 proof,
		Randomness:            ticket,
		InteractiveRandomness: seed,
		UnsealedCID:           cids.Unsealed,
	}

	ok, err := s.VerifySeal(ctx, info)
	require.NoError(t, err)
	assert.True(t, ok)

	wrong := info
	wrong.Randomness = abi.SealRandomness(bytes.Repeat([]byte{9}, 32))
	ok, err = s.VerifySeal(ctx, wrong)
	require.NoError(t, err)
	assert.False(t, ok, "wrong ticket must not verify")

	tampered := info
	tampered.Proof = append([]byte{}, proof...)
	tampered.Proof[0] ^= 0xff
	ok, err = s.VerifySeal(ctx, tampered)
	require.NoError(t, err)
	assert.False(t, ok, "tampered proof must not verify")
}

func TestWindowPoStRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := abi.SealRandomness(bytes.Repeat([]byte{1}, 32))
	seed := abi.InteractiveSealRandomness(bytes.Repeat([]byte{2}, 32))

	sector, _, cids, _ := sealedSector(t, s, ticket, seed)

	challenge := abi.PoStRandomness(bytes.Repeat([]byte{3}, 32))
	challenge[31] &= 0x3f
	sectors := []prooftypes.SectorInfo{{
		SealProof:    sector.ProofType,
		SectorNumber: sector.ID.Number,
		SealedCID:    cids.Sealed,
	}}

	proofs, err := s.GenerateWindowPoSt(ctx, sector.ID.Miner, sectors, challenge)
	require.NoError(t, err)
	require.Len(t, proofs, 1)

	ok, err := s.VerifyWindowPoSt(ctx, prooftypes.WindowPoStVerifyInfo{
		Randomness:        challenge,
		Proofs:            proofs,
		ChallengedSectors: sectors,
		Prover:            sector.ID.Miner,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	other := append(abi.PoStRandomness{}, challenge...)
	other[0] ^= 0xff
	ok, err = s.VerifyWindowPoSt(ctx, prooftypes.WindowPoStVerifyInfo{
		Randomness:        other,
		Proofs:            proofs,
		ChallengedSectors: sectors,
		Prover:            sector.ID.Miner,
	})
	require.NoError(t, err)
	assert.False(t, ok, "proof is bound to its challenge")
}

func TestWinningPoStRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := abi.SealRandomness(bytes.Repeat([]byte{1}, 32))
	seed := abi.InteractiveSealRandomness(bytes.Repeat([]byte{2}, 32))

	sector, _, cids, _ := sealedSector(t, s, ticket, seed)

	challenge := abi.PoStRandomness(bytes.Repeat([]byte{4}, 32))
	challenge[31] &= 0x3f
	sectors := []prooftypes.SectorInfo{{
		SealProof:    sector.ProofType,
		SectorNumber: sector.ID.Number,
		SealedCID:    cids.Sealed,
	}}

	proofs, err := s.GenerateWinningPoSt(ctx, sector.ID.Miner, sectors, challenge)
	require.NoError(t, err)
	require.Len(t, proofs, 1)

	ok, err := s.VerifyWinningPoSt(ctx, prooftypes.WinningPoStVerifyInfo{
		Randomness:        challenge,
		Proofs:            proofs,
		ChallengedSectors: sectors,
		Prover:            sector.ID.Miner,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAggregateWindowPoStProofs(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := abi.SealRandomness(bytes.Repeat([]byte{1}, 32))
	seed := abi.InteractiveSealRandomness(bytes.Repeat([]byte{2}, 32))

	sector, _, cids, _ := sealedSector(t, s, ticket, seed)
	wpt, err := sector.ProofType.RegisteredWindowPoStProof()
	require.NoError(t, err)
	sectors := []prooftypes.SectorInfo{{
		SealProof:    sector.ProofType,
		SectorNumber: sector.ID.Number,
		SealedCID:    cids.Sealed,
	}}

	var randomnesses []abi.PoStRandomness
	var proofs []prooftypes.PoStProof
	for i := 0; i < 4; i++ {
		r := abi.PoStRandomness(bytes.Repeat([]byte{byte(10 + i)}, 32))
		r[31] &= 0x3f
		ps, err := s.GenerateWindowPoSt(ctx, sector.ID.Miner, sectors, r)
		require.NoError(t, err)
		randomnesses = append(randomnesses, r)
		proofs = append(proofs, ps[0])
	}

	agg, err := s.AggregateWindowPoStProofs(ctx, wpt, randomnesses, proofs)
	require.NoError(t, err)
	require.NotEmpty(t, agg)

	ok, err := s.VerifyAggregateWindowPoStProofs(ctx, wpt, agg, randomnesses, proofs)
	require.NoError(t, err)
	assert.True(t, ok)

	proofs[0].ProofBytes[0] ^= 0xff
	ok, err = s.VerifyAggregateWindowPoStProofs(ctx, wpt, agg, randomnesses, proofs)
	require.NoError(t, err)
	assert.False(t, ok, "aggregate is bound to its constituents")

	_, err = s.AggregateWindowPoStProofs(ctx, wpt, nil, nil)
	require.Error(t, err)
	_, err = s.AggregateWindowPoStProofs(ctx, wpt, randomnesses[:1], proofs)
	require.Error(t, err)
}

func TestBuildMerkleTreeAndVerify(t *testing.T) {
	s := New()
	ctx := context.Background()

	size := uint64(64 * merkle.LeafSize)
	tree, err := s.BuildMerkleTree(ctx, rand.New(rand.NewSource(42)), size)
	require.NoError(t, err)
	require.Equal(t, uint64(64), tree.Leaves())

	p, err := tree.GenProof(13)
	require.NoError(t, err)
	assert.True(t, s.VerifyMerkleProof(tree.Root(), p))

	p.Leaf[0] ^= 0xff
	assert.False(t, s.VerifyMerkleProof(tree.Root(), p))
}
