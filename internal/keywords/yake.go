package keywords

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// windowSize is the co-occurrence window used for the relatedness feature,
// matching YAKE's default.
const windowSize = 2

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'-]*`)
var sentenceSplitRegex = regexp.MustCompile(`[.!?]+`)

type occurrence struct {
	sentence int
	position int
	cased    bool // capitalized or all-uppercase occurrence
}

// candidateStats accumulates the raw signals YAKE scores a term from.
type candidateStats struct {
	occurrences []occurrence
	leftCooc    map[string]int
	rightCooc   map[string]int
}

// topUnigrams scores every non-stopword unigram in text YAKE-style (lower
// score = more salient) and returns the n best, best first. Ties fall back
// to first occurrence in text for determinism.
func topUnigrams(text string, stop map[string]bool, n int) []string {
	sentences := sentenceSplitRegex.Split(text, -1)

	stats := make(map[string]*candidateStats)
	order := make([]string, 0)
	totalSentences := 0
	globalPos := 0

	for sentIdx, sentence := range sentences {
		words := wordRegex.FindAllString(sentence, -1)
		if len(words) == 0 {
			continue
		}
		totalSentences++

		lower := make([]string, len(words))
		for i, w := range words {
			lower[i] = strings.ToLower(w)
		}

		for i, w := range lower {
			if stop[w] {
				globalPos++
				continue
			}
			st, ok := stats[w]
			if !ok {
				st = &candidateStats{leftCooc: map[string]int{}, rightCooc: map[string]int{}}
				stats[w] = st
				order = append(order, w)
			}
			st.occurrences = append(st.occurrences, occurrence{
				sentence: sentIdx,
				position: globalPos,
				cased:    isCasedWord(words[i]),
			})

			for d := 1; d <= windowSize; d++ {
				if i-d >= 0 && !stop[lower[i-d]] {
					st.leftCooc[lower[i-d]]++
				}
				if i+d < len(lower) && !stop[lower[i+d]] {
					st.rightCooc[lower[i+d]]++
				}
			}
			globalPos++
		}
	}

	if totalSentences == 0 {
		totalSentences = 1
	}

	type scored struct {
		term  string
		score float64
	}
	results := make([]scored, 0, len(order))
	for _, term := range order {
		results = append(results, scored{term: term, score: score(stats[term], totalSentences)})
	}

	// Stable sort ascending by score (lower is more salient); ties keep
	// first-occurrence order since `order` was built in text order and
	// insertion sort here is stable.
	for i := 1; i < len(results); i++ {
		v := results[i]
		j := i - 1
		for j >= 0 && results[j].score > v.score {
			results[j+1] = results[j]
			j--
		}
		results[j+1] = v
	}

	if n > len(results) {
		n = len(results)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = results[i].term
	}
	return out
}

// score implements the YAKE composite: S = (rel * position) / (case + freq/rel + sentence/rel).
func score(st *candidateStats, totalSentences int) float64 {
	freq := float64(len(st.occurrences))

	var casedCount float64
	minPos := st.occurrences[0].position
	sentences := map[int]struct{}{}
	for _, o := range st.occurrences {
		if o.cased {
			casedCount++
		}
		if o.position < minPos {
			minPos = o.position
		}
		sentences[o.sentence] = struct{}{}
	}

	tCase := casedCount / freq

	// Earlier first-occurrence is more salient; log-scaled per YAKE.
	tPosition := math.Log(3 + float64(minPos))

	meanFreq := freq // single-document mean approximated by this term's own frequency
	tFreq := freq / (meanFreq + 1)

	distinctLeft := float64(len(st.leftCooc))
	distinctRight := float64(len(st.rightCooc))
	tRel := 1 + (distinctLeft+distinctRight)/2

	tSentence := float64(len(sentences)) / float64(totalSentences)

	return (tRel * tPosition) / (tCase + tFreq/tRel + tSentence/tRel)
}

func isCasedWord(w string) bool {
	runes := []rune(w)
	if len(runes) == 0 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	return true
}
