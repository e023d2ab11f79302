// Package merkle implements the binary blake2b-256 merkle tree backing the
// merkleproofs benchmark and the devsim engine.
package merkle

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"
)

const LeafSize = 32

// Domain separation prefixes for leaf and interior nodes.
var (
	leafPrefix = []byte{0x00}
	nodePrefix = []byte{0x01}
)

// Tree is a fully materialized binary tree. Level 0 holds the hashed
// leaves; the last level holds the root.
type Tree struct {
	levels [][][32]byte
	leaves uint64
}

func hashLeaf(data []byte) [32]byte {
	buf := make([]byte, 0, 1+len(data))
	buf = append(buf, leafPrefix...)
	buf = append(buf, data...)
	return blake2b.Sum256(buf)
}

func hashNode(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 1+64)
	buf = append(buf, nodePrefix...)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return blake2b.Sum256(buf)
}

// Build reads size bytes from r, splits them into 32-byte leaves (the last
// leaf zero padded, the leaf count rounded up to a power of two with zero
// leaves) and hashes the full tree.
func Build(r io.Reader, size uint64) (*Tree, error) {
	if size == 0 {
		return nil, xerrors.New("cannot build a tree over zero bytes")
	}

	nleaves := (size + LeafSize - 1) / LeafSize
	if nleaves&(nleaves-1) != 0 {
		nleaves = 1 << bits.Len64(nleaves)
	}

	level := make([][32]byte, nleaves)
	buf := make([]byte, LeafSize)
	remaining := size
	for i := uint64(0); i < nleaves; i++ {
		for j := range buf {
			buf[j] = 0
		}
		if remaining > 0 {
			want := uint64(LeafSize)
			if remaining < want {
				want = remaining
			}
			if _, err := io.ReadFull(r, buf[:want]); err != nil {
				return nil, xerrors.Errorf("reading leaf %d: %w", i, err)
			}
			remaining -= want
		}
		level[i] = hashLeaf(buf)
	}

	t := &Tree{leaves: nleaves}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([][32]byte, len(level)/2)
		for i := range next {
			next[i] = hashNode(level[2*i], level[2*i+1])
		}
		t.levels = append(t.levels, next)
		level = next
	}

	return t, nil
}

func (t *Tree) Root() [32]byte {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) Leaves() uint64 {
	return t.leaves
}

// Proof opens the leaf at index, returning the leaf hash and the sibling
// path bottom-up.
func (t *Tree) Proof(index uint64) (leaf [32]byte, path [][32]byte, err error) {
	if index >= t.leaves {
		return leaf, nil, xerrors.Errorf("leaf index %d out of range (%d leaves)", index, t.leaves)
	}

	leaf = t.levels[0][index]
	idx := index
	for l := 0; l < len(t.levels)-1; l++ {
		path = append(path, t.levels[l][idx^1])
		idx >>= 1
	}
	return leaf, path, nil
}

// Verify folds a proof path back up to the root. The direction at each level
// is taken from the index bits.
func Verify(root [32]byte, leaf [32]byte, index uint64, path [][32]byte) bool {
	cur := leaf
	for l, sib := range path {
		if (index>>uint(l))&1 == 1 {
			cur = hashNode(sib, cur)
		} else {
			cur = hashNode(cur, sib)
		}
	}
	return cur == root
}

// ChallengeIndex picks the leaf opened by the i-th benchmark proof. The
// policy is a pure function of (leaves, i) so repeated runs with the same
// flags open identical leaves.
func ChallengeIndex(leaves uint64, i uint64) uint64 {
	var buf [24]byte
	copy(buf[:], "merkle-challenge")
	binary.LittleEndian.PutUint64(buf[16:], i)
	h := blake2b.Sum256(buf[:])
	return binary.LittleEndian.Uint64(h[:8]) % leaves
}
