package bench

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	prooftypes "github.com/filecoin-project/go-state-types/proof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/fireflyblock/benchy/pipeline"
	"github.com/fireflyblock/benchy/prover"
	"github.com/fireflyblock/benchy/prover/devsim"
	"github.com/fireflyblock/benchy/stores"
)

func TestWindowPoSt(t *testing.T) {
	sim := devsim.New()
	root := t.TempDir()

	report, err := WindowPoSt(context.Background(), sim, sim, WindowPoStConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: root,
	})
	require.NoError(t, err)

	assert.Equal(t, abi.SectorSize(2048), report.SectorSize)
	assert.Equal(t, uint64(1), report.SectorsProven)
	assert.Len(t, report.Phases, 5)

	// Scratch caches do not outlive the run.
	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, ents)

	t.Logf("generate: %s verify: %s", report.Generate, report.Verify)
}

func TestWindowPoStPreservesCacheOnRequest(t *testing.T) {
	sim := devsim.New()
	root := t.TempDir()
	hint := filepath.Join(root, "cache")

	_, err := WindowPoSt(context.Background(), sim, sim, WindowPoStConfig{
		SectorSize:    abi.SectorSize(2048),
		ApiVersion:    prover.ApiV1_0_0,
		MinerID:       1000,
		StorageRoot:   root,
		CacheHint:     hint,
		PreserveCache: true,
	})
	require.NoError(t, err)

	for _, name := range []string{stores.MetaFile, pipeline.PC1File, pipeline.C2File} {
		_, err := os.Stat(filepath.Join(hint, name))
		assert.NoError(t, err, name)
	}

	// A second run over the preserved cache can skip every phase.
	report, err := WindowPoSt(context.Background(), sim, sim, WindowPoStConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: root,
		CacheHint:   hint,
		Skip: pipeline.SkipFlags{
			PreCommit1: true,
			PreCommit2: true,
			Commit1:    true,
			Commit2:    true,
		},
	})
	require.NoError(t, err)
	for _, ph := range report.Phases {
		assert.True(t, ph.Skipped, ph.Phase)
	}
}

func TestWindowPoStSkipOnEmptyCache(t *testing.T) {
	sim := devsim.New()

	_, err := WindowPoSt(context.Background(), sim, sim, WindowPoStConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: t.TempDir(),
		Skip:        pipeline.SkipFlags{PreCommit2: true},
	})
	require.ErrorIs(t, err, pipeline.ErrMissingPrerequisite)
}

func TestWindowPoStResume(t *testing.T) {
	sim := devsim.New()

	report, err := WindowPoSt(context.Background(), sim, sim, WindowPoStConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: t.TempDir(),
		TestResume:  true,
	})
	require.NoError(t, err)
	assert.Len(t, report.Phases, 5)
	assert.Equal(t, uint64(1), report.SectorsProven)
}

func TestWindowPoStRejectsBadSize(t *testing.T) {
	sim := devsim.New()

	_, err := WindowPoSt(context.Background(), sim, sim, WindowPoStConfig{
		SectorSize:  abi.SectorSize(4096),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: t.TempDir(),
	})
	require.ErrorIs(t, err, prover.ErrInvalidSize)
}

type brokenPoStEngine struct {
	prover.Engine
}

func (brokenPoStEngine) GenerateWindowPoSt(ctx context.Context, minerID abi.ActorID, sectors []prooftypes.SectorInfo, randomness abi.PoStRandomness) ([]prooftypes.PoStProof, error) {
	return nil, xerrors.New("prover backend unavailable")
}

func TestWindowPoStClassifiesEngineFailure(t *testing.T) {
	sim := devsim.New()
	eng := brokenPoStEngine{Engine: sim}

	report, err := WindowPoSt(context.Background(), eng, sim, WindowPoStConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: t.TempDir(),
	})
	require.ErrorIs(t, err, prover.ErrProofEngineFailure)
	assert.Len(t, report.Phases, 5, "sealing completed before the engine failed")
}

func TestWinningPoSt(t *testing.T) {
	sim := devsim.New()
	root := t.TempDir()

	report, err := WinningPoSt(context.Background(), sim, sim, WinningPoStConfig{
		SectorSize:  abi.SectorSize(2048),
		ApiVersion:  prover.ApiV1_0_0,
		MinerID:     1000,
		StorageRoot: root,
	})
	require.NoError(t, err)
	assert.Equal(t, abi.SectorSize(2048), report.SectorSize)

	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, ents, "winning post cache is always scratch")
}
