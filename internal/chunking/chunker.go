package chunking

import (
	"strings"

	retrievalerrors "github.com/retrievvy/retrievvy/internal/errors"
)

// Chunker turns a bundle's ordered blocks into token-bounded chunks.
type Chunker struct {
	tok Tokenizer
	cfg Config
}

// NewChunker builds a Chunker. A nil tok constructs a TikTokenizer; pass
// one explicitly to reuse a single loaded encoding across many bundles.
func NewChunker(tok Tokenizer, cfg Config) (*Chunker, error) {
	cfg = cfg.withDefaults()
	if tok == nil {
		t, err := NewTikTokenizer()
		if err != nil {
			return nil, retrievalerrors.InternalError("load tokenizer", err)
		}
		tok = t
	}
	return &Chunker{tok: tok, cfg: cfg}, nil
}

// Chunk concatenates blocks, splits the result into token-bounded pieces,
// and locates each piece back in the concatenation to label it with the
// block range it came from. Blocks are never reordered or dropped; an
// empty block simply has no range a chunk can match.
func (c *Chunker) Chunk(blocks []string) ([]Chunk, error) {
	combined, ranges := concatBlocks(blocks)
	if strings.TrimSpace(combined) == "" {
		return nil, nil
	}

	splitter := &recursiveSplitter{tok: c.tok, budget: c.cfg.TokenBudget, minChars: c.cfg.MinChars}
	pieces := splitter.splitText(combined)

	chunks := make([]Chunk, 0, len(pieces))
	cursor := 0
	for i, piece := range pieces {
		idx := strings.Index(combined[cursor:], piece)
		if idx < 0 {
			return nil, retrievalerrors.ChunkingConsistencyError(
				"produced chunk not found in source text", nil)
		}
		start := cursor + idx
		startRune := len([]rune(combined[:start]))
		endRune := startRune + len([]rune(piece)) - 1

		startBlock, endBlock := blockSpan(ranges, startRune, endRune)
		if startBlock == 0 {
			return nil, retrievalerrors.ChunkingConsistencyError(
				"chunk range did not overlap any source block", nil)
		}

		chunks = append(chunks, Chunk{
			Content:    piece,
			Ref:        refFor(startBlock, endBlock),
			ChunkOrder: i + 1,
		})

		cursor = start + len(piece)
	}

	return chunks, nil
}
