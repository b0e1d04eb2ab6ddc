package embedding

import (
	"context"
	"math"

	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
)

// retryConfig is the embedding worker's retry policy for backend calls.
var retryConfig = retrievalerrors.EmbeddingRetryConfig()

// Service is a single long-lived worker goroutine in front of a Backend,
// connected to callers over buffered channels standing in for the
// original's OS-process request/response queues. Requests are served
// strictly in arrival order; replies are addressed to their own channel so a
// caller need not rely on queue position to find its answer.
type Service struct {
	backend Backend
	reqCh   chan embedRequest
}

// NewService starts the worker goroutine and returns a handle to it. The
// worker runs until Close is called.
func NewService(backend Backend) *Service {
	s := &Service{
		backend: backend,
		reqCh:   make(chan embedRequest, 32),
	}
	go s.loop()
	return s
}

func (s *Service) loop() {
	for req := range s.reqCh {
		vectors, err := s.call(req)
		select {
		case req.reply <- embedReply{vectors: vectors, err: err}:
		default:
			// Each reply channel is buffered for exactly one reply, so the
			// send above succeeds even when the caller has already returned
			// on context cancellation; this case only guarantees the loop
			// can never stall on a reply nobody is waiting for.
		}
	}
}

func (s *Service) call(req embedRequest) ([][]float32, error) {
	vectors, err := retrievalerrors.RetryWithResult(req.ctx, retryConfig, func() ([][]float32, error) {
		return s.backend.EmbedBatch(req.ctx, req.batch)
	})
	if err != nil {
		return nil, retrievalerrors.EmbeddingError("embedding backend failed after retries", err)
	}
	for i, v := range vectors {
		vectors[i] = normalizeVector(v)
	}
	return vectors, nil
}

// EmbedBatch submits sentences to the worker and blocks for the reply. If
// ctx is cancelled before the reply arrives, the reply is discarded without
// attempting to abort the in-flight backend call.
func (s *Service) EmbedBatch(ctx context.Context, sentences []string) ([][]float32, error) {
	if len(sentences) == 0 {
		return [][]float32{}, nil
	}

	reply := make(chan embedReply, 1)
	select {
	case s.reqCh <- embedRequest{ctx: ctx, batch: sentences, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.vectors, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker. In-flight requests already off reqCh still run to
// completion; their replies are simply never read if the caller already
// returned on context cancellation.
func (s *Service) Close() {
	close(s.reqCh)
}

// normalizeVector scales v to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
