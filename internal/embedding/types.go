// Package embedding turns text into fixed-dimension normalized vectors. The
// core retrieval pipeline treats the embedding backend as a black box: it
// only cares that outputs are stable, normalized, and ordered to match
// inputs.
package embedding

import "context"

// Dimensions is the fixed embedding dimension every backend must produce.
const Dimensions = 384

// Backend is the thing the worker actually calls. It may be a local model,
// a remote inference service, or (for tests and dependency-free operation)
// the deterministic hash-based Static backend.
type Backend interface {
	EmbedBatch(ctx context.Context, sentences []string) ([][]float32, error)
}

type embedRequest struct {
	ctx   context.Context
	batch []string
	reply chan embedReply
}

type embedReply struct {
	vectors [][]float32
	err     error
}
