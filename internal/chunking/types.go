// Package chunking splits a bundle's text blocks into token-bounded,
// non-overlapping chunks, each labeled with the source block range it
// came from.
package chunking

// Chunk is one chunker output. ChunkOrder is 1-based within the bundle;
// Ref is a block-range label ("3" or "3-5").
type Chunk struct {
	Content    string
	Ref        string
	ChunkOrder int
}

// Config bounds the recursive splitter.
type Config struct {
	// TokenBudget is the maximum token count per chunk, measured by the
	// configured tokenizer. Zero uses DefaultTokenBudget.
	TokenBudget int

	// MinChars is the minimum character length a produced chunk should
	// have before the merge step will still pack more text in. Zero uses
	// DefaultMinChars.
	MinChars int
}

const (
	DefaultTokenBudget = 512
	DefaultMinChars    = 12
)

func (c Config) withDefaults() Config {
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.MinChars <= 0 {
		c.MinChars = DefaultMinChars
	}
	return c
}

// Tokenizer counts tokens the same way the embedding backend's BPE does,
// so the token budget tracks what actually gets embedded downstream.
type Tokenizer interface {
	Count(text string) int
}
