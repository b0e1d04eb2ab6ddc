// Package keywords reduces a query string to a short list of salient
// tokens for the sparse side of a query. No YAKE implementation or
// statistical POS tagger exists anywhere in the reference pack (the one
// NLP-adjacent library present, a Punkt sentence splitter, operates on
// sentence boundaries, not word-level tags), so both the unsupervised
// keyword scorer and the adjective/numeral tagger here are built on the
// standard library.
package keywords

// MaxKeywords bounds the YAKE-style pass before heuristic tags are appended.
const MaxKeywords = 7

// Extractor reduces a query to its salient tokens.
type Extractor struct {
	stop map[string]bool
}

// NewExtractor builds an Extractor. A nil stop map uses DefaultStopWords.
func NewExtractor(stop map[string]bool) *Extractor {
	if stop == nil {
		stop = BuildStopWordMap(DefaultStopWords)
	}
	return &Extractor{stop: stop}
}

// Extract returns up to MaxKeywords YAKE-scored unigrams, followed by any
// heuristically tagged adjective or numeral not already present, lowercased,
// appended (not interleaved) after the scored list.
func (e *Extractor) Extract(query string) []string {
	top := topUnigrams(query, e.stop, MaxKeywords)

	present := make(map[string]bool, len(top))
	for _, t := range top {
		present[t] = true
	}

	for _, t := range taggedTokens(query) {
		if !present[t] {
			top = append(top, t)
			present[t] = true
		}
	}

	return top
}
