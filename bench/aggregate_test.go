package bench

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/prover/devsim"
)

func TestAggregateProof(t *testing.T) {
	sim := devsim.New()

	report, err := AggregateProof(context.Background(), sim, sim, AggregateConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: t.TempDir(),
		Count:       8,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, report.Count)

	t.Logf("aggregate: %s verify: %s", report.Aggregate, report.Verify)
}

func TestAggregateProofSingleProof(t *testing.T) {
	sim := devsim.New()

	report, err := AggregateProof(context.Background(), sim, sim, AggregateConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: t.TempDir(),
		Count:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
}

func TestAggregateProofRejectsEmptyBatch(t *testing.T) {
	sim := devsim.New()

	for _, count := range []int{0, -5} {
		_, err := AggregateProof(context.Background(), sim, sim, AggregateConfig{
			SectorSize:  abi.SectorSize(2048),
			ApiVersion:  prover.ApiV1_0_0,
			MinerID:     1000,
			StorageRoot: t.TempDir(),
			Count:       count,
		})
		require.ErrorIs(t, err, ErrEmptyAggregateBatch, "count=%d", count)
	}
}
