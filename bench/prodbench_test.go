package bench

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fireflyblock/benchy/prover/devsim"
)

func TestReadProdbenchInputs(t *testing.T) {
	in, err := ReadProdbenchInputs(strings.NewReader(`{"sector_size": "2KiB"}`))
	require.NoError(t, err)
	assert.Equal(t, "2KiB", in.SectorSize)
	assert.Equal(t, "1.0.0", in.ApiVersion, "api version defaults")

	in, err = ReadProdbenchInputs(strings.NewReader(`{"sector_size": "8MiB", "api_version": "1.1.0", "skip_post_proof": true}`))
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", in.ApiVersion)
	assert.True(t, in.SkipPostProof)

	_, err = ReadProdbenchInputs(strings.NewReader(`{}`))
	require.ErrorIs(t, err, ErrMalformedInput, "sector_size is mandatory")

	_, err = ReadProdbenchInputs(strings.NewReader(`{"sector_size": "2KiB", "bogus": 1}`))
	require.ErrorIs(t, err, ErrMalformedInput, "unknown fields are rejected")

	_, err = ReadProdbenchInputs(strings.NewReader(`not json`))
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestSelectStages(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   ProdbenchInputs
		want StageSelection
	}{
		{"default", ProdbenchInputs{}, StagesAll},
		{"skip-seal", ProdbenchInputs{SkipSealProof: true}, StagesPoStOnly},
		{"skip-post", ProdbenchInputs{SkipPostProof: true}, StagesSealOnly},
		{"skip-both", ProdbenchInputs{SkipSealProof: true, SkipPostProof: true}, StagesReplicateOnly},
		{"only-replicate", ProdbenchInputs{OnlyReplicate: true}, StagesReplicateOnly},
		{"only-add-piece", ProdbenchInputs{OnlyAddPiece: true}, StagesAddPieceOnly},
		{"only-wins-over-skips", ProdbenchInputs{OnlyAddPiece: true, SkipSealProof: true}, StagesAddPieceOnly},
	} {
		sel, err := SelectStages(tc.in)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, sel, tc.name)
	}

	_, err := SelectStages(ProdbenchInputs{OnlyReplicate: true, OnlyAddPiece: true})
	require.ErrorIs(t, err, ErrMalformedInput)
}

func stageNames(out *ProdbenchOutputs) []string {
	names := make([]string, 0, len(out.Stages))
	for _, s := range out.Stages {
		names = append(names, s.Stage)
	}
	return names
}

func TestProdbenchAllStages(t *testing.T) {
	sim := devsim.New()

	out, err := Prodbench(context.Background(), sim, sim, t.TempDir(), ProdbenchInputs{
		SectorSize: "2KiB",
		ApiVersion: "1.0.0",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"add-piece", "replicate", "seal-proof", "post-proof"}, stageNames(out))
	for _, s := range out.Stages {
		assert.True(t, s.Ok, s.Stage)
		assert.Empty(t, s.Detail, s.Stage)
	}
}

func TestProdbenchStageSubsets(t *testing.T) {
	sim := devsim.New()

	for _, tc := range []struct {
		name string
		in   ProdbenchInputs
		want []string
	}{
		{"seal-only", ProdbenchInputs{SectorSize: "2KiB", ApiVersion: "1.0.0", SkipPostProof: true},
			[]string{"add-piece", "replicate", "seal-proof"}},
		{"post-only", ProdbenchInputs{SectorSize: "2KiB", ApiVersion: "1.0.0", SkipSealProof: true},
			[]string{"add-piece", "replicate", "post-proof"}},
		{"replicate-only", ProdbenchInputs{SectorSize: "2KiB", ApiVersion: "1.0.0", OnlyReplicate: true},
			[]string{"add-piece", "replicate"}},
		{"add-piece-only", ProdbenchInputs{SectorSize: "2KiB", ApiVersion: "1.0.0", OnlyAddPiece: true},
			[]string{"add-piece"}},
	} {
		out, err := Prodbench(context.Background(), sim, sim, t.TempDir(), tc.in)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, stageNames(out), tc.name)
	}
}

func TestProdbenchRejectsBadInputs(t *testing.T) {
	sim := devsim.New()

	_, err := Prodbench(context.Background(), sim, sim, t.TempDir(), ProdbenchInputs{
		SectorSize: "3KiB",
	})
	require.Error(t, err)

	_, err = Prodbench(context.Background(), sim, sim, t.TempDir(), ProdbenchInputs{
		SectorSize: "2KiB",
		ApiVersion: "9.9.9",
	})
	require.Error(t, err)
}

func TestProdbenchOutputsRoundTrip(t *testing.T) {
	sim := devsim.New()

	out, err := Prodbench(context.Background(), sim, sim, t.TempDir(), ProdbenchInputs{
		SectorSize: "2KiB",
		ApiVersion: "1.0.0",
	})
	require.NoError(t, err)

	b, err := json.Marshal(out)
	require.NoError(t, err)

	var back ProdbenchOutputs
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *out, back)
}
