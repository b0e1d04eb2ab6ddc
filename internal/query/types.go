// Package query implements the query orchestrator: parallel dispatch to
// the sparse and dense backends, fusion, and chunk-row rehydration.
package query

import "context"

// Request is one query call.
type Request struct {
	Q     string
	Index string
	Limit int
}

// Hit is one rehydrated, fused result.
type Hit struct {
	ID         int64
	BundleID   string
	Content    string
	Ref        string
	ChunkOrder int
	Score      float64
}

// Result is the orchestrator's output: the fused hits plus the Gini
// coefficient of their score distribution, reported as a ranking-quality
// signal.
type Result struct {
	Gini float64
	Hits []Hit
}

// Embedder is the dependency the orchestrator needs from the embedding
// package; embedding.Service and embedding.Backend both satisfy it.
type Embedder interface {
	EmbedBatch(ctx context.Context, sentences []string) ([][]float32, error)
}
