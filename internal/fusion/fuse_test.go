package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGini_EmptyReturnsZero(t *testing.T) {
	g, err := gini(nil)
	require.NoError(t, err)
	assert.Zero(t, g)
}

func TestGini_AllZeroReturnsZero(t *testing.T) {
	g, err := gini([]float64{0, 0, 0})
	require.NoError(t, err)
	assert.Zero(t, g)
}

func TestGini_AllEqualReturnsZero(t *testing.T) {
	g, err := gini([]float64{1, 1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, g, 1e-9)
}

func TestGini_OnePeakIsNearThreeQuarters(t *testing.T) {
	g, err := gini([]float64{1, 0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, g, 0.01)
}

func TestGini_NegativeElementErrors(t *testing.T) {
	_, err := gini([]float64{1, -1})
	assert.Error(t, err)
}

func TestFuse_EmptyInputsReturnEmpty(t *testing.T) {
	fused, err := Fuse(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, fused)
}

func TestFuse_AgreementBetweenListsWinsTieBreak(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.8}}
	sparse := []Hit{{ID: 2, Score: 0.95}, {ID: 3, Score: 0.6}}

	fused, err := Fuse(dense, sparse)
	require.NoError(t, err)
	require.NotEmpty(t, fused)
	assert.Equal(t, int64(2), fused[0].ID, "id present in both lists should win via the sqrt(sd*ss) agreement term")
}

func TestFuse_EmptySparsePreservesDenseOrderWithinUnitRange(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 0.5}, {ID: 2, Score: 0.4}}

	fused, err := Fuse(dense, nil)
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, int64(1), fused[0].ID)
	assert.Equal(t, int64(2), fused[1].ID)
	for _, f := range fused {
		assert.GreaterOrEqual(t, f.Score, 0.0)
		assert.LessOrEqual(t, f.Score, 1.0)
	}
}

func TestFuse_ScoresAreWithinUnitRange(t *testing.T) {
	dense := []Hit{{ID: 1, Score: 1.0}, {ID: 2, Score: 0.3}, {ID: 3, Score: 0.1}}
	sparse := []Hit{{ID: 1, Score: 0.2}, {ID: 4, Score: 1.0}}

	fused, err := Fuse(dense, sparse)
	require.NoError(t, err)
	for _, f := range fused {
		assert.GreaterOrEqual(t, f.Score, 0.0)
		assert.LessOrEqual(t, f.Score, 1.0)
	}
}

func TestFuse_NegativeDenseScoresAreClampedNotRejected(t *testing.T) {
	dense := []Hit{{ID: 1, Score: -0.3}, {ID: 2, Score: 0.6}}
	sparse := []Hit{{ID: 2, Score: 0.5}}

	fused, err := Fuse(dense, sparse)
	require.NoError(t, err)
	require.NotEmpty(t, fused)
}

func TestFuse_TieBreaksByAscendingID(t *testing.T) {
	dense := []Hit{{ID: 5, Score: 0}, {ID: 2, Score: 0}}
	sparse := []Hit{}

	fused, err := Fuse(dense, sparse)
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, int64(2), fused[0].ID)
	assert.Equal(t, int64(5), fused[1].ID)
}

func TestWeights_AlwaysSatisfyClampAndSumInvariant(t *testing.T) {
	cases := []struct {
		gD, gS, maxD, maxS float64
	}{
		{0.9, 0.1, 1, 1},
		{0.1, 0.9, 1, 1},
		{0, 0, 0, 0},
		{0.5, 0.5, 1, 0},
		{0.5, 0.5, 0, 1},
	}
	for _, c := range cases {
		wD, wS := weights(c.gD, c.gS, c.maxD, c.maxS)
		assert.GreaterOrEqual(t, wD, 0.2)
		assert.LessOrEqual(t, wD, 0.8)
		assert.GreaterOrEqual(t, wS, 0.2)
		assert.LessOrEqual(t, wS, 0.8)
		assert.InDelta(t, 1.0, wD+wS, 1e-9)
	}
}
