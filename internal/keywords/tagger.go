package keywords

import (
	"regexp"
	"strings"
)

var numeralRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

var numberWords = map[string]bool{
	"zero": true, "one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
	"first": true, "second": true, "third": true,
}

// adjectiveSuffixes is a weak heuristic: no POS tagger exists in the
// reference pack, so common English adjective-forming suffixes stand in
// for real tagging.
var adjectiveSuffixes = []string{"able", "ible", "ous", "ful", "ive", "less", "al", "ic", "ary"}

func isNumeral(word string) bool {
	return numeralRegex.MatchString(word) || numberWords[strings.ToLower(word)]
}

func isLikelyAdjective(word string) bool {
	lower := strings.ToLower(word)
	if len(lower) < 5 {
		return false
	}
	for _, suffix := range adjectiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// taggedTokens returns, in order of appearance, every word regex match in
// text that looks like a numeral or an adjective by the heuristics above.
func taggedTokens(text string) []string {
	words := wordRegex.FindAllString(text, -1)
	var tagged []string
	for _, w := range words {
		if isNumeral(w) || isLikelyAdjective(w) {
			tagged = append(tagged, strings.ToLower(w))
		}
	}
	return tagged
}
