// Package store provides the persistence layer: a relational metadata store,
// a sparse (inverted-index) adapter, and a dense (vector) adapter.
package store

import (
	"context"
	"time"
)

// BundleStatus tracks a bundle through its ingestion lifecycle.
type BundleStatus string

const (
	BundleStatusPending   BundleStatus = "pending"
	BundleStatusChunked   BundleStatus = "chunked"
	BundleStatusCompleted BundleStatus = "completed"
)

// Index is a named namespace; creating one implies a matching sparse store
// and dense collection.
type Index struct {
	Name string
}

// Bundle is a logical document within one index. Primary key is (ID, Index)
// since the same content may be ingested into more than one index.
type Bundle struct {
	ID      string
	Index   string
	Source  string
	Name    string
	Created time.Time
	Status  BundleStatus
}

// Chunk is a retrievable unit produced by the chunker. ID is assigned by the
// metadata store (auto-increment) and is globally unique across indexes.
type Chunk struct {
	ID         int64
	Index      string
	BundleID   string
	Content    string
	Ref        string
	ChunkOrder int
}

// CommitCallback runs inside the same transaction as the mutation that
// triggered it. Returning an error rolls back the whole transaction,
// including the triggering mutation.
type CommitCallback func() error

// MetadataStore persists indexes, bundles, and chunks in a transactional
// relational store.
type MetadataStore interface {
	IndexAdd(ctx context.Context, name string, cb CommitCallback) error
	IndexDel(ctx context.Context, name string, cb CommitCallback) error
	IndexGet(ctx context.Context, name string) (*Index, error)
	IndexList(ctx context.Context, page, items int) ([]*Index, error)

	BundleAdd(ctx context.Context, b *Bundle, cb CommitCallback) error
	BundleDel(ctx context.Context, id, index string, cb CommitCallback) error
	BundleGet(ctx context.Context, id, index string) (*Bundle, error)
	BundleList(ctx context.Context, index string, page, items int) ([]*Bundle, error)

	BundleStatusGet(ctx context.Context, id, index string) (BundleStatus, error)
	BundleStatusSet(ctx context.Context, id, index string, status BundleStatus) error

	// ChunksAdd inserts chunks in a single transaction and returns them with
	// their assigned ids, in input order.
	ChunksAdd(ctx context.Context, chunks []*Chunk) ([]*Chunk, error)

	// ChunksGet returns rows in arbitrary order; callers rebuild order from
	// the id list. Implementations batch internally around SQLite's
	// bound-parameter limit.
	ChunksGet(ctx context.Context, ids []int64) ([]*Chunk, error)

	ChunksGetByBundleID(ctx context.Context, bundleID, index string) ([]*Chunk, error)
	ChunksDeleteByBundleID(ctx context.Context, bundleID, index string) error

	// ChunksGetByIndex returns every chunk row belonging to index, across all
	// bundles. Used to enumerate backend ids ahead of an index delete.
	ChunksGetByIndex(ctx context.Context, index string) ([]*Chunk, error)

	Close() error
}

// QueryOp selects the boolean combination of terms in a sparse query.
type QueryOp string

const (
	OpOR  QueryOp = "OR"
	OpAND QueryOp = "AND"
)

// SparseDoc is a document to be indexed in the sparse backend, keyed by
// chunk id.
type SparseDoc struct {
	ID      int64
	Content string
}

// SparseHit is a single sparse search result, score normalized to [0,1].
type SparseHit struct {
	ID    int64
	Score float64
}

// SparseIndex provides keyword search over per-index inverted indexes.
type SparseIndex interface {
	// Create fails if the index already exists.
	Create(name string) error

	// Delete is idempotent; a missing index is not an error.
	Delete(name string) error

	DocAdd(name string, docs []SparseDoc, lang string) error

	// DocDel is silent on ids that do not exist.
	DocDel(name string, ids []int64) error

	Query(name string, q string, limit int, filterIDs []int64, op QueryOp, lang string) ([]SparseHit, error)

	Close() error
}

// DenseVector is a point to be upserted into the dense backend, keyed by
// chunk id.
type DenseVector struct {
	ID     int64
	Vector []float32
}

// DenseHit is a single dense search result; Score is the cosine similarity
// in [-1, 1] (1 identical, 0 orthogonal, -1 opposite).
type DenseHit struct {
	ID     int64
	Vector []float32
	Score  float32
}

// DenseIndex provides approximate nearest-neighbor search over per-index
// vector collections.
type DenseIndex interface {
	// Create fails if a collection of that name already exists.
	Create(name string, dim int) error

	Delete(name string) error

	VecAdd(name string, points []DenseVector) error

	// VecDel lazily tombstones ids; they are filtered out of query results.
	VecDel(name string, ids []int64) error

	Query(name string, vec []float32, limit int, filterIDs []int64) ([]DenseHit, error)

	Close() error
}
