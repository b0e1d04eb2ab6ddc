package embedding

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// englishStopWords are filtered out before hashing so that common function
// words don't dominate a document's vector.
var englishStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true, "as": true, "by": true, "it": true, "this": true, "that": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Static is a deterministic, dependency-free embedding backend: it hashes
// tokens and character n-grams into a fixed-width vector. It produces no
// genuine semantic similarity, only a stable fingerprint, which is enough to
// exercise the rest of the pipeline without a real model.
type Static struct{}

// NewStatic returns a Static backend.
func NewStatic() *Static { return &Static{} }

// EmbedBatch implements Backend.
func (s *Static) EmbedBatch(_ context.Context, sentences []string) ([][]float32, error) {
	out := make([][]float32, len(sentences))
	for i, sentence := range sentences {
		out[i] = s.embedOne(sentence)
	}
	return out, nil
}

func (s *Static) embedOne(text string) []float32 {
	vector := make([]float32, Dimensions)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector
	}

	for _, token := range filterStopWords(tokenize(trimmed)) {
		vector[hashToIndex(token, Dimensions)] += tokenWeight
	}
	for _, ngram := range extractNgrams(normalizeForNgrams(trimmed), ngramSize) {
		vector[hashToIndex(ngram, Dimensions)] += ngramWeight
	}

	return vector
}

func tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

func filterStopWords(tokens []string) []string {
	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !englishStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
