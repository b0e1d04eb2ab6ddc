package keywords

import "strings"

// DefaultStopWords is the built-in English stopword list used when no
// override is supplied. Callers needing a different list (e.g. a test
// fixture loaded from YAML) can build their own map with BuildStopWordMap.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "nor", "so", "yet",
	"is", "are", "was", "were", "be", "been", "being",
	"of", "in", "on", "at", "to", "for", "with", "as", "by", "from", "into", "onto",
	"it", "its", "this", "that", "these", "those", "there", "here",
	"i", "you", "he", "she", "we", "they", "them", "his", "her", "our", "your", "their",
	"do", "does", "did", "not", "no", "can", "could", "will", "would", "should", "may", "might",
	"what", "which", "who", "whom", "when", "where", "why", "how",
}

// BuildStopWordMap turns a word list into a lowercased lookup set.
func BuildStopWordMap(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}

// FilterStopWords drops any token present in stop, preserving order.
func FilterStopWords(tokens []string, stop map[string]bool) []string {
	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !stop[strings.ToLower(t)] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
