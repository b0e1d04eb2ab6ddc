package query

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
	"github.com/retrievvy/retrievvy/internal/fusion"
	"github.com/retrievvy/retrievvy/internal/keywords"
	"github.com/retrievvy/retrievvy/internal/store"
)

// overfetchPadding is added on top of 2x the caller's limit to leave
// headroom for fusion reordering before truncation.
const overfetchPadding = 5

// defaultChunkCacheSize bounds the LRU cache of rehydrated chunk rows in
// front of MetadataStore.ChunksGet.
const defaultChunkCacheSize = 2048

// Orchestrator answers Query requests by dispatching to the sparse and
// dense backends in parallel, fusing the two ranked lists, and rehydrating
// the fused ids into full chunk rows.
type Orchestrator struct {
	metadata  store.MetadataStore
	sparse    store.SparseIndex
	dense     store.DenseIndex
	embedder  Embedder
	extractor *keywords.Extractor

	lang  string
	cache *lru.Cache[int64, *store.Chunk]

	logger *slog.Logger
}

// Option configures optional Orchestrator fields.
type Option func(*Orchestrator)

// WithLang overrides the default stemming language ("en").
func WithLang(lang string) Option {
	return func(o *Orchestrator) { o.lang = lang }
}

// WithLogger overrides the default (slog.Default()) logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithChunkCacheSize overrides the default chunk-row rehydration cache size.
func WithChunkCacheSize(size int) Option {
	return func(o *Orchestrator) {
		cache, err := lru.New[int64, *store.Chunk](size)
		if err == nil {
			o.cache = cache
		}
	}
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(
	metadata store.MetadataStore,
	sparse store.SparseIndex,
	dense store.DenseIndex,
	embedder Embedder,
	extractor *keywords.Extractor,
	opts ...Option,
) *Orchestrator {
	cache, _ := lru.New[int64, *store.Chunk](defaultChunkCacheSize)
	o := &Orchestrator{
		metadata:  metadata,
		sparse:    sparse,
		dense:     dense,
		embedder:  embedder,
		extractor: extractor,
		lang:      "en",
		cache:     cache,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Query dispatches req to both backends in parallel, fuses the results, and
// rehydrates the fused ids into Hits truncated to req.Limit. Either backend
// failing fails the whole call: no partial results.
func (o *Orchestrator) Query(ctx context.Context, req Request) (*Result, error) {
	overfetch := req.Limit*2 + overfetchPadding

	var sparseHits []store.SparseHit
	var denseHits []store.DenseHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kw := o.extractor.Extract(req.Q)
		hits, err := o.sparse.Query(req.Index, strings.Join(kw, " "), overfetch, nil, store.OpOR, o.lang)
		if err != nil {
			return err
		}
		sparseHits = hits
		return nil
	})
	g.Go(func() error {
		vectors, err := o.embedder.EmbedBatch(gctx, []string{req.Q})
		if err != nil {
			return err
		}
		hits, err := o.dense.Query(req.Index, vectors[0], overfetch, nil)
		if err != nil {
			return err
		}
		denseHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, retrievalerrors.QueryError("index may be missing or empty", err)
	}

	fused, err := fusion.Fuse(toFusionHits(denseHits), toFusionHitsSparse(sparseHits))
	if err != nil {
		return nil, retrievalerrors.InternalError("fuse dense and sparse results", err)
	}

	scores := make([]float64, len(fused))
	for i, f := range fused {
		scores[i] = f.Score
	}
	g2, err := fusion.Gini(scores)
	if err != nil {
		return nil, retrievalerrors.InternalError("compute fused-score gini", err)
	}

	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	rows, err := o.rehydrate(ctx, ids)
	if err != nil {
		return nil, retrievalerrors.InternalError("rehydrate chunk rows", err)
	}

	hits := make([]Hit, 0, req.Limit)
	for _, f := range fused {
		row, ok := rows[f.ID]
		if !ok {
			continue // stale backend entry; metadata is authoritative
		}
		hits = append(hits, Hit{
			ID:         row.ID,
			BundleID:   row.BundleID,
			Content:    row.Content,
			Ref:        row.Ref,
			ChunkOrder: row.ChunkOrder,
			Score:      f.Score,
		})
		if len(hits) == req.Limit {
			break
		}
	}

	return &Result{Gini: g2, Hits: hits}, nil
}

// rehydrate resolves ids to chunk rows, serving from the LRU cache where
// possible and batch-fetching the rest from the metadata store.
func (o *Orchestrator) rehydrate(ctx context.Context, ids []int64) (map[int64]*store.Chunk, error) {
	out := make(map[int64]*store.Chunk, len(ids))
	var miss []int64

	for _, id := range ids {
		if o.cache != nil {
			if row, ok := o.cache.Get(id); ok {
				out[id] = row
				continue
			}
		}
		miss = append(miss, id)
	}
	if len(miss) == 0 {
		return out, nil
	}

	rows, err := o.metadata.ChunksGet(ctx, miss)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
		if o.cache != nil {
			o.cache.Add(row.ID, row)
		}
	}
	return out, nil
}

// InvalidateChunks evicts ids from the rehydration cache. Called by the
// composition root after any chunk delete so a subsequent query never
// rehydrates a row the metadata store no longer has.
func (o *Orchestrator) InvalidateChunks(ids []int64) {
	if o.cache == nil {
		return
	}
	for _, id := range ids {
		o.cache.Remove(id)
	}
}

func toFusionHits(hits []store.DenseHit) []fusion.Hit {
	out := make([]fusion.Hit, len(hits))
	for i, h := range hits {
		out[i] = fusion.Hit{ID: h.ID, Score: float64(h.Score)}
	}
	return out
}

func toFusionHitsSparse(hits []store.SparseHit) []fusion.Hit {
	out := make([]fusion.Hit, len(hits))
	for i, h := range hits {
		out[i] = fusion.Hit{ID: h.ID, Score: h.Score}
	}
	return out
}
