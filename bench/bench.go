// Package bench contains the benchmark runners the CLI dispatches to. Each
// runner composes the cache manager, the pipeline and an injected proof
// engine, and returns a measurement report.
package bench

import (
	"encoding/binary"
	"errors"

	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"github.com/minio/blake2b-simd"
)

var log = logging.Logger("bench")

var (
	ErrEmptyAggregateBatch   = errors.New("aggregate batch is empty")
	ErrProofValidationFailed = errors.New("proof failed verification")
	ErrMalformedInput        = errors.New("malformed input document")
)

// postRandomness derives the i-th deterministic PoSt challenge for a tag.
// Benchmark challenges are fixed so repeated runs prove identical instances.
func postRandomness(tag string, i uint64) abi.PoStRandomness {
	var ib [8]byte
	binary.LittleEndian.PutUint64(ib[:], i)
	h := blake2b.Sum256(append([]byte(tag), ib[:]...))
	h[31] &= 0x3f
	return abi.PoStRandomness(h[:])
}
