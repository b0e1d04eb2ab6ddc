package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDenseIndex(t *testing.T) *HNSWDenseIndex {
	t.Helper()
	s, err := NewHNSWDenseIndex(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func unitVec(dim int, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func TestHNSWDenseIndex_CreateFailsIfAlreadyExists(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))

	err := s.Create("docs", 4)
	assert.Error(t, err)
}

func TestHNSWDenseIndex_VecAddAndQuery_FindsNearestNeighbor(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))

	require.NoError(t, s.VecAdd("docs", []DenseVector{
		{ID: 1, Vector: unitVec(4, 0)},
		{ID: 2, Vector: unitVec(4, 1)},
	}))

	hits, err := s.Query("docs", unitVec(4, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 0.01)
}

func TestHNSWDenseIndex_VecAdd_RejectsWrongDimension(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))

	err := s.VecAdd("docs", []DenseVector{{ID: 1, Vector: []float32{1, 0}}})
	assert.Error(t, err)
}

func TestHNSWDenseIndex_VecAdd_UpdatesExistingID(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))
	require.NoError(t, s.VecAdd("docs", []DenseVector{{ID: 1, Vector: unitVec(4, 0)}}))
	require.NoError(t, s.VecAdd("docs", []DenseVector{{ID: 1, Vector: unitVec(4, 1)}}))

	hits, err := s.Query("docs", unitVec(4, 1), 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
}

func TestHNSWDenseIndex_VecDel_RemovesFromResults(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))
	require.NoError(t, s.VecAdd("docs", []DenseVector{
		{ID: 1, Vector: unitVec(4, 0)},
		{ID: 2, Vector: unitVec(4, 1)},
	}))

	require.NoError(t, s.VecDel("docs", []int64{1}))

	hits, err := s.Query("docs", unitVec(4, 0), 5, nil)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, int64(1), h.ID)
	}
}

func TestHNSWDenseIndex_Query_FilterIDsRestrictsResults(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))
	require.NoError(t, s.VecAdd("docs", []DenseVector{
		{ID: 1, Vector: unitVec(4, 0)},
		{ID: 2, Vector: unitVec(4, 0)},
		{ID: 3, Vector: unitVec(4, 0)},
	}))

	hits, err := s.Query("docs", unitVec(4, 0), 10, []int64{2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)
}

func TestHNSWDenseIndex_Query_EmptyCollectionReturnsNoHits(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))

	hits, err := s.Query("docs", unitVec(4, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWDenseIndex_Query_UnknownCollectionErrors(t *testing.T) {
	s := newDenseIndex(t)

	_, err := s.Query("missing", unitVec(4, 0), 5, nil)
	assert.Error(t, err)
}

func TestHNSWDenseIndex_Delete_RemovesPersistedFiles(t *testing.T) {
	s := newDenseIndex(t)
	require.NoError(t, s.Create("docs", 4))
	require.NoError(t, s.VecAdd("docs", []DenseVector{{ID: 1, Vector: unitVec(4, 0)}}))

	require.NoError(t, s.Delete("docs"))

	_, err := s.Query("docs", unitVec(4, 0), 5, nil)
	assert.Error(t, err)
}

func TestHNSWDenseIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewHNSWDenseIndex(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Create("docs", 4))
	require.NoError(t, s1.VecAdd("docs", []DenseVector{{ID: 1, Vector: unitVec(4, 0)}}))
	require.NoError(t, s1.Close())

	s2, err := NewHNSWDenseIndex(dir)
	require.NoError(t, err)
	defer s2.Close()

	hits, err := s2.Query("docs", unitVec(4, 0), 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
}
