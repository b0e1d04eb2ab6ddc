package chunking

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// cl100k_base is the BPE vocabulary used to count tokens, matching what
// the embedding backend's context window is measured in.
const tiktokenEncoding = "cl100k_base"

// TikTokenizer counts tokens with OpenAI's cl100k_base byte-pair encoding.
type TikTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTikTokenizer loads the cl100k_base encoding once; reuse the returned
// value across chunker calls rather than constructing it per call.
func NewTikTokenizer() (*TikTokenizer, error) {
	enc, err := tiktoken.GetEncoding(tiktokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", tiktokenEncoding, err)
	}
	return &TikTokenizer{enc: enc}, nil
}

func (t *TikTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

var _ Tokenizer = (*TikTokenizer)(nil)
