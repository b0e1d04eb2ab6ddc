// Package service is the composition root: it wires the metadata store,
// sparse and dense backends, embedder, chunker, and fusion-backed query
// orchestrator into one Service, mirroring the reference's
// NewEngine/EngineOption functional-options pattern.
package service

import (
	"context"
	"log/slog"

	"github.com/retrievvy/retrievvy/internal/chunking"
	"github.com/retrievvy/retrievvy/internal/config"
	"github.com/retrievvy/retrievvy/internal/embedding"
	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
	"github.com/retrievvy/retrievvy/internal/ingest"
	"github.com/retrievvy/retrievvy/internal/keywords"
	"github.com/retrievvy/retrievvy/internal/logging"
	"github.com/retrievvy/retrievvy/internal/query"
	"github.com/retrievvy/retrievvy/internal/store"
)

// Service is the retrieval system's single entry point: Ingest a bundle,
// Query an index, and manage index/bundle lifecycle.
type Service struct {
	metadata store.MetadataStore
	sparse   store.SparseIndex
	dense    store.DenseIndex

	pipeline     *ingest.Pipeline
	orchestrator *query.Orchestrator

	lang       string
	logger     *slog.Logger
	loggerSet  bool
	debugLog   bool
	logCleanup func()
}

// Option configures optional Service fields.
type Option func(*Service)

// WithLogger overrides the default rotating-file logger with logger,
// threaded into both the ingestion pipeline and the query orchestrator.
// Setting this skips logging.Setup entirely, so no log file is opened.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger; s.loggerSet = true }
}

// WithDebugLogging switches the default rotating-file logger (built by
// NewService via logging.Setup when WithLogger is not supplied) to
// logging.DebugConfig() instead of logging.DefaultConfig().
func WithDebugLogging() Option {
	return func(s *Service) { s.debugLog = true }
}

// WithStemmingLang overrides the default "en" stemming language used by
// both ingestion (doc_add) and query (sparse query parsing).
func WithStemmingLang(lang string) Option {
	return func(s *Service) { s.lang = lang }
}

// NewService validates dependencies and wires them into a Service. dataDir
// roots the ingestion pipeline's per-index create-if-absent lock files;
// dim is the fixed embedding dimension new dense collections are created
// with; chunkerCfg bounds the chunker's token budget. Unless WithLogger is
// passed, the logger is built from logging.Setup (a rotating log file under
// logging.DefaultLogDir, mirrored to stderr); Close releases it.
func NewService(
	metadata store.MetadataStore,
	sparse store.SparseIndex,
	dense store.DenseIndex,
	embedder embedding.Backend,
	tok chunking.Tokenizer,
	chunkerCfg chunking.Config,
	dataDir string,
	dim int,
	opts ...Option,
) (*Service, error) {
	if metadata == nil {
		return nil, retrievalerrors.ValidationError("metadata store is required", nil)
	}
	if sparse == nil {
		return nil, retrievalerrors.ValidationError("sparse index is required", nil)
	}
	if dense == nil {
		return nil, retrievalerrors.ValidationError("dense index is required", nil)
	}
	if embedder == nil {
		return nil, retrievalerrors.ValidationError("embedder is required", nil)
	}

	chunker, err := chunking.NewChunker(tok, chunkerCfg)
	if err != nil {
		return nil, err
	}

	embedSvc := embedding.NewService(embedder)

	s := &Service{
		metadata: metadata,
		sparse:   sparse,
		dense:    dense,
		lang:     "en",
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.loggerSet {
		logCfg := logging.DefaultConfig()
		if s.debugLog {
			logCfg = logging.DebugConfig()
		}
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			// No writable log directory; fall back rather than fail
			// construction over an ambient logging concern.
			s.logger = slog.Default()
		} else {
			s.logger = logger
			s.logCleanup = cleanup
		}
	}

	s.pipeline = ingest.NewPipeline(metadata, sparse, dense, embedSvc, chunker, dataDir, dim,
		ingest.WithLang(s.lang), ingest.WithLogger(s.logger))

	extractor := keywords.NewExtractor(nil)
	s.orchestrator = query.NewOrchestrator(metadata, sparse, dense, embedSvc, extractor,
		query.WithLang(s.lang), query.WithLogger(s.logger))

	return s, nil
}

// NewFromConfig builds a Service from cfg, opening fresh metadata, sparse,
// and dense backends rooted at cfg.DataDir. cfg.StemmingLang and cfg.Debug
// are threaded through as the stemming language and (via WithDebugLogging)
// the default logger's level; cfg.DefaultTokenBudget and cfg.EmbeddingDim
// size the chunker and new dense collections respectively.
func NewFromConfig(cfg config.Config, embedder embedding.Backend, tok chunking.Tokenizer) (*Service, error) {
	metadata, err := store.NewSQLiteMetadataStore(cfg.DataDir + "/metadata.db")
	if err != nil {
		return nil, retrievalerrors.InternalError("open metadata store", err)
	}
	sparse, err := store.NewBleveSparseIndex(cfg.DataDir + "/sparse")
	if err != nil {
		return nil, retrievalerrors.InternalError("open sparse index", err)
	}
	dense, err := store.NewHNSWDenseIndex(cfg.DataDir + "/dense")
	if err != nil {
		return nil, retrievalerrors.InternalError("open dense index", err)
	}

	opts := []Option{WithStemmingLang(cfg.StemmingLang)}
	if cfg.Debug {
		opts = append(opts, WithDebugLogging())
	}

	chunkerCfg := chunking.Config{TokenBudget: cfg.DefaultTokenBudget}
	return NewService(metadata, sparse, dense, embedder, tok, chunkerCfg, cfg.DataDir, cfg.EmbeddingDim, opts...)
}

// Ingest drives bundle b through the ingestion status machine, returning
// the final status reached.
func (s *Service) Ingest(ctx context.Context, b ingest.Bundle) (store.BundleStatus, error) {
	return s.pipeline.Ingest(ctx, b)
}

// Query answers req by fusing dense and sparse results and rehydrating
// them into chunk rows.
func (s *Service) Query(ctx context.Context, req query.Request) (*query.Result, error) {
	return s.orchestrator.Query(ctx, req)
}

// CreateIndex explicitly creates an empty index (sparse store + dense
// collection + metadata row), idempotently.
func (s *Service) CreateIndex(ctx context.Context, name string) error {
	return s.pipeline.CreateIndex(ctx, name)
}

// DeleteIndex cascades: the sparse directory and dense collection are torn
// down as a post-commit callback on the metadata delete, so a failure
// tearing down either backend rolls back the metadata row too (the index
// is not considered gone until its backends are). The index's chunk rows
// are enumerated first so their rehydration-cache entries are evicted too;
// on-disk metadata cleanup still relies on the bundles/chunks foreign keys
// cascading from the indexes row delete.
func (s *Service) DeleteIndex(ctx context.Context, name string) error {
	chunks, err := s.metadata.ChunksGetByIndex(ctx, name)
	if err != nil {
		return err
	}

	if err := s.metadata.IndexDel(ctx, name, func() error {
		if err := s.sparse.Delete(name); err != nil {
			return err
		}
		return s.dense.Delete(name)
	}); err != nil {
		return err
	}

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	s.orchestrator.InvalidateChunks(ids)
	return nil
}

// DeleteBundle removes the bundle's metadata row (cascading to its chunks
// via the foreign key) synchronously, then cleans up the now-orphaned
// backend entries in a detached goroutine so the caller is not blocked on
// backend I/O. A query that races the cleanup and still finds a stale
// backend hit simply skips it during rehydration.
func (s *Service) DeleteBundle(ctx context.Context, id, index string) error {
	chunks, err := s.metadata.ChunksGetByBundleID(ctx, id, index)
	if err != nil {
		return err
	}

	if err := s.metadata.BundleDel(ctx, id, index, nil); err != nil {
		return err
	}

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	s.orchestrator.InvalidateChunks(ids)

	if len(ids) == 0 {
		return nil
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic during bundle backend cleanup",
					slog.String("bundle_id", id), slog.String("index", index), slog.Any("panic", r))
			}
		}()
		if err := s.sparse.DocDel(index, ids); err != nil {
			s.logger.Warn("async sparse cleanup failed", slog.String("bundle_id", id), slog.String("index", index), slog.Any("error", retrievalerrors.FormatForLog(err)))
		}
		if err := s.dense.VecDel(index, ids); err != nil {
			s.logger.Warn("async dense cleanup failed", slog.String("bundle_id", id), slog.String("index", index), slog.Any("error", retrievalerrors.FormatForLog(err)))
		}
	}()

	return nil
}

// Close releases the sparse and dense backends' open handles and the
// metadata store's database connection.
func (s *Service) Close() error {
	var firstErr error
	if err := s.sparse.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.dense.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.metadata.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.logCleanup != nil {
		s.logCleanup()
	}
	return firstErr
}
