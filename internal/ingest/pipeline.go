package ingest

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/retrievvy/retrievvy/internal/chunking"
	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
	"github.com/retrievvy/retrievvy/internal/store"
)

// Embedder is the dependency the pipeline needs from the embedding package:
// both embedding.Service (the worker-backed production path) and a raw
// embedding.Backend satisfy it, so tests can swap in embedding.NewStatic()
// without a worker goroutine in the loop.
type Embedder interface {
	EmbedBatch(ctx context.Context, sentences []string) ([][]float32, error)
}

// Pipeline drives bundles through the ingestion status machine: pending ->
// chunked -> completed, serialized per (id, index) and coordinating index
// auto-creation.
type Pipeline struct {
	metadata store.MetadataStore
	sparse   store.SparseIndex
	dense    store.DenseIndex
	embedder Embedder
	chunker  *chunking.Chunker

	dataDir string
	dim     int
	lang    string

	locks  *stripedLocks
	logger *slog.Logger
}

// Option configures optional Pipeline fields beyond the required
// constructor arguments.
type Option func(*Pipeline)

// WithLang overrides the default stemming language ("en") used for sparse
// indexing and querying.
func WithLang(lang string) Option {
	return func(p *Pipeline) { p.lang = lang }
}

// WithLogger overrides the default (slog.Default()) logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline builds a Pipeline. dataDir roots the per-index create-if-absent
// lock files (internal/ingest/index.go); dim is the fixed embedding
// dimension new collections are created with.
func NewPipeline(
	metadata store.MetadataStore,
	sparse store.SparseIndex,
	dense store.DenseIndex,
	embedder Embedder,
	chunker *chunking.Chunker,
	dataDir string,
	dim int,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		metadata: metadata,
		sparse:   sparse,
		dense:    dense,
		embedder: embedder,
		chunker:  chunker,
		dataDir:  dataDir,
		dim:      dim,
		lang:     "en",
		locks:    newStripedLocks(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest drives Bundle b through its status machine and returns the final
// status reached. Re-ingesting the same (ID, Index) bundle is safe: it
// either no-ops (already completed) or resumes from the last successful
// phase.
func (p *Pipeline) Ingest(ctx context.Context, b Bundle) (store.BundleStatus, error) {
	lock := p.locks.forKey(bundleKey(b.ID, b.Index))
	lock.Lock()
	defer lock.Unlock()

	if err := p.ensureIndex(ctx, b.Index, p.dim); err != nil {
		return "", err
	}

	status, err := p.metadata.BundleStatusGet(ctx, b.ID, b.Index)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := p.metadata.BundleAdd(ctx, &store.Bundle{
			ID:     b.ID,
			Index:  b.Index,
			Source: b.Source,
			Name:   b.Name,
			Status: store.BundleStatusPending,
		}, nil); err != nil {
			return "", retrievalerrors.InternalError("add bundle", err)
		}
		status = store.BundleStatusPending
		p.logger.Info("bundle_added", slog.String("bundle_id", b.ID), slog.String("index", b.Index))
	case err != nil:
		return "", retrievalerrors.InternalError("get bundle status", err)
	}

	if status == store.BundleStatusPending {
		if err := p.chunkAndStore(ctx, b); err != nil {
			return status, err
		}
		status = store.BundleStatusChunked
	}

	if status != store.BundleStatusCompleted {
		if err := p.indexChunks(ctx, b.ID, b.Index); err != nil {
			return store.BundleStatusChunked, err
		}
		status = store.BundleStatusCompleted
	}

	return status, nil
}

// chunkAndStore runs the chunker over b.Blocks and bulk-inserts the result,
// advancing the bundle from pending to chunked in the same logical step.
func (p *Pipeline) chunkAndStore(ctx context.Context, b Bundle) error {
	chunks, err := p.chunker.Chunk(b.Blocks)
	if err != nil {
		// A chunking-consistency error is fatal: the bundle stays pending
		// so a retry re-runs chunking from scratch rather than resuming
		// into a half-written state.
		return err
	}

	rows := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = &store.Chunk{
			Index:      b.Index,
			BundleID:   b.ID,
			Content:    c.Content,
			Ref:        c.Ref,
			ChunkOrder: c.ChunkOrder,
		}
	}

	if len(rows) > 0 {
		if _, err := p.metadata.ChunksAdd(ctx, rows); err != nil {
			return retrievalerrors.InternalError("insert chunks", err)
		}
	}

	if err := p.metadata.BundleStatusSet(ctx, b.ID, b.Index, store.BundleStatusChunked); err != nil {
		return retrievalerrors.InternalError("set bundle status chunked", err)
	}
	p.logger.Info("bundle_chunked", slog.String("bundle_id", b.ID), slog.String("index", b.Index), slog.Int("chunk_count", len(rows)))
	return nil
}

// indexChunks loads the bundle's chunk rows, embeds their content as one
// batch, and writes them into both backends in parallel. Any indexing
// failure triggers a best-effort compensating delete from both backends so
// no orphaned index data survives a failed attempt; metadata stays at
// "chunked" so a retry resumes from here.
func (p *Pipeline) indexChunks(ctx context.Context, bundleID, index string) error {
	rows, err := p.metadata.ChunksGetByBundleID(ctx, bundleID, index)
	if err != nil {
		return retrievalerrors.InternalError("load chunk rows", err)
	}
	if len(rows) == 0 {
		if err := p.metadata.BundleStatusSet(ctx, bundleID, index, store.BundleStatusCompleted); err != nil {
			return retrievalerrors.InternalError("set bundle status completed", err)
		}
		return nil
	}

	contents := make([]string, len(rows))
	for i, r := range rows {
		contents[i] = r.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return err // already a *retrievalerrors.RetrievalError (EmbeddingError)
	}
	if len(vectors) != len(rows) {
		return retrievalerrors.InternalError("embedding backend returned mismatched vector count", nil)
	}

	sparseDocs := make([]store.SparseDoc, len(rows))
	denseVecs := make([]store.DenseVector, len(rows))
	ids := make([]int64, len(rows))
	for i, r := range rows {
		sparseDocs[i] = store.SparseDoc{ID: r.ID, Content: r.Content}
		denseVecs[i] = store.DenseVector{ID: r.ID, Vector: vectors[i]}
		ids[i] = r.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.sparse.DocAdd(index, sparseDocs, p.lang) })
	g.Go(func() error { _ = gctx; return p.dense.VecAdd(index, denseVecs) })

	if err := g.Wait(); err != nil {
		p.compensate(index, ids)
		return retrievalerrors.BackendFailureError("index chunks into backends", err)
	}

	if err := p.metadata.BundleStatusSet(ctx, bundleID, index, store.BundleStatusCompleted); err != nil {
		return retrievalerrors.InternalError("set bundle status completed", err)
	}
	p.logger.Info("bundle_completed", slog.String("bundle_id", bundleID), slog.String("index", index), slog.Int("chunk_count", len(rows)))
	return nil
}

// compensate attempts to remove ids from both backends after a failed
// indexing attempt. Both deletes are attempted even if one fails; a failed
// compensating delete is logged but never masks the original error.
func (p *Pipeline) compensate(index string, ids []int64) {
	if err := p.sparse.DocDel(index, ids); err != nil {
		p.logger.Warn("compensating sparse delete failed", slog.String("index", index), slog.Any("error", retrievalerrors.FormatForLog(err)))
	}
	if err := p.dense.VecDel(index, ids); err != nil {
		p.logger.Warn("compensating dense delete failed", slog.String("index", index), slog.Any("error", retrievalerrors.FormatForLog(err)))
	}
}
