package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	s, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteMetadataStore_IndexAddAndGet(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexAdd(ctx, "docs", nil))

	got, err := s.IndexGet(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", got.Name)
}

func TestSQLiteMetadataStore_IndexAdd_IsInsertOrNoop(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.IndexAdd(ctx, "docs", nil)) // second call must not error
}

func TestSQLiteMetadataStore_IndexGet_MissingReturnsErrNoRows(t *testing.T) {
	s := newMetadataStore(t)

	_, err := s.IndexGet(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSQLiteMetadataStore_IndexDel_CascadesToBundlesAndChunks(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b1", Index: "docs", Source: "upload", Name: "doc one"}, nil))
	_, err := s.ChunksAdd(ctx, []*Chunk{{Index: "docs", BundleID: "b1", Content: "hello", Ref: "1", ChunkOrder: 1}})
	require.NoError(t, err)

	require.NoError(t, s.IndexDel(ctx, "docs", nil))

	_, err = s.BundleGet(ctx, "b1", "docs")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	chunks, err := s.ChunksGetByBundleID(ctx, "b1", "docs")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSQLiteMetadataStore_CommitCallback_RunsInsideTransaction(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()

	called := false
	require.NoError(t, s.IndexAdd(ctx, "docs", func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestSQLiteMetadataStore_CommitCallback_FailureRollsBackMutation(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()

	err := s.IndexAdd(ctx, "docs", func() error {
		return errors.New("side effect failed")
	})
	assert.Error(t, err)

	_, err = s.IndexGet(ctx, "docs")
	assert.True(t, errors.Is(err, sql.ErrNoRows), "insert should have been rolled back")
}

func TestSQLiteMetadataStore_BundleStatusGetSet(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b1", Index: "docs", Source: "upload", Name: "doc one"}, nil))

	status, err := s.BundleStatusGet(ctx, "b1", "docs")
	require.NoError(t, err)
	assert.Equal(t, BundleStatusPending, status)

	require.NoError(t, s.BundleStatusSet(ctx, "b1", "docs", BundleStatusChunked))

	status, err = s.BundleStatusGet(ctx, "b1", "docs")
	require.NoError(t, err)
	assert.Equal(t, BundleStatusChunked, status)
}

func TestSQLiteMetadataStore_BundleStatusGet_MissingReturnsErrNoRows(t *testing.T) {
	s := newMetadataStore(t)

	_, err := s.BundleStatusGet(context.Background(), "missing", "docs")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSQLiteMetadataStore_SameBundleIDAcrossIndexesIsAllowed(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.IndexAdd(ctx, "archive", nil))

	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "shared", Index: "docs", Source: "a", Name: "x"}, nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "shared", Index: "archive", Source: "a", Name: "x"}, nil))

	_, err := s.BundleGet(ctx, "shared", "docs")
	require.NoError(t, err)
	_, err = s.BundleGet(ctx, "shared", "archive")
	require.NoError(t, err)
}

func TestSQLiteMetadataStore_ChunksAdd_AssignsIDsAndEnforcesOrderUniqueness(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b1", Index: "docs", Source: "a", Name: "x"}, nil))

	added, err := s.ChunksAdd(ctx, []*Chunk{
		{Index: "docs", BundleID: "b1", Content: "one", Ref: "1", ChunkOrder: 1},
		{Index: "docs", BundleID: "b1", Content: "two", Ref: "1", ChunkOrder: 2},
	})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.NotZero(t, added[0].ID)
	assert.NotEqual(t, added[0].ID, added[1].ID)

	_, err = s.ChunksAdd(ctx, []*Chunk{
		{Index: "docs", BundleID: "b1", Content: "dup", Ref: "1", ChunkOrder: 1},
	})
	assert.Error(t, err, "duplicate (bundle_id, idx, chunk_order) must violate the unique index")
}

func TestSQLiteMetadataStore_ChunksGet_ReturnsRequestedIDsRegardlessOfOrder(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b1", Index: "docs", Source: "a", Name: "x"}, nil))
	added, err := s.ChunksAdd(ctx, []*Chunk{
		{Index: "docs", BundleID: "b1", Content: "one", Ref: "1", ChunkOrder: 1},
		{Index: "docs", BundleID: "b1", Content: "two", Ref: "1", ChunkOrder: 2},
		{Index: "docs", BundleID: "b1", Content: "three", Ref: "1", ChunkOrder: 3},
	})
	require.NoError(t, err)

	got, err := s.ChunksGet(ctx, []int64{added[2].ID, added[0].ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteMetadataStore_ChunksGet_EmptyIDsReturnsNil(t *testing.T) {
	s := newMetadataStore(t)

	got, err := s.ChunksGet(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteMetadataStore_ChunksGetByIndex_ReturnsAllBundlesChunks(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b1", Index: "docs", Source: "a", Name: "x"}, nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b2", Index: "docs", Source: "a", Name: "y"}, nil))
	_, err := s.ChunksAdd(ctx, []*Chunk{
		{Index: "docs", BundleID: "b1", Content: "one", Ref: "1", ChunkOrder: 1},
		{Index: "docs", BundleID: "b2", Content: "two", Ref: "1", ChunkOrder: 1},
	})
	require.NoError(t, err)

	got, err := s.ChunksGetByIndex(ctx, "docs")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteMetadataStore_ChunksGetByIndex_UnknownIndexReturnsEmpty(t *testing.T) {
	s := newMetadataStore(t)

	got, err := s.ChunksGetByIndex(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteMetadataStore_BundleDel_CascadesToChunks(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: "b1", Index: "docs", Source: "a", Name: "x"}, nil))
	_, err := s.ChunksAdd(ctx, []*Chunk{{Index: "docs", BundleID: "b1", Content: "one", Ref: "1", ChunkOrder: 1}})
	require.NoError(t, err)

	require.NoError(t, s.BundleDel(ctx, "b1", "docs", nil))

	chunks, err := s.ChunksGetByBundleID(ctx, "b1", "docs")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSQLiteMetadataStore_BundleList_PaginatesWhenItemsPositive(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: string(rune('a' + i)), Index: "docs", Source: "a", Name: "x"}, nil))
	}

	page0, err := s.BundleList(ctx, "docs", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page0, 2)

	page1, err := s.BundleList(ctx, "docs", 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.NotEqual(t, page0[0].ID, page1[0].ID)
}

func TestSQLiteMetadataStore_BundleList_NoPaginationWhenItemsZero(t *testing.T) {
	s := newMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, s.IndexAdd(ctx, "docs", nil))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.BundleAdd(ctx, &Bundle{ID: string(rune('a' + i)), Index: "docs", Source: "a", Name: "x"}, nil))
	}

	all, err := s.BundleList(ctx, "docs", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
