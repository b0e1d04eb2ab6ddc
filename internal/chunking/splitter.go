package chunking

import (
	"regexp"
	"strings"
)

// paragraphSep separates paragraphs; tried first since it is the coarsest,
// most meaning-preserving boundary.
const paragraphSep = "\n\n"

// sentenceRegex approximates sentence boundaries by trailing punctuation,
// keeping the punctuation attached to the sentence it closes.
var sentenceRegex = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

// clauseRegex is the hard-fallback tier's boundary, one step finer than
// sentences: commas, semicolons and colons.
var clauseRegex = regexp.MustCompile(`[^,;:]+[,;:]+|[^,;:]+$`)

// textSplit is one candidate piece produced by a split pass, annotated
// with whether it came from a meaning-preserving split (paragraph or
// sentence) rather than a hard fallback (regex clause, whitespace, char).
type textSplit struct {
	text       string
	isSentence bool
	tokens     int
}

// recursiveSplitter implements the paragraph -> sentence -> clause ->
// whitespace -> char fallback chain, packing pieces back up to the
// budget field (in tokens) with no overlap between produced chunks.
type recursiveSplitter struct {
	tok      Tokenizer
	budget   int
	minChars int
}

func (r *recursiveSplitter) splitText(text string) []string {
	if text == "" {
		return nil
	}
	splits := r.split(text)
	chunks := r.merge(splits)
	chunks = mergeSmall(chunks, r.minChars)
	return postprocess(chunks)
}

// mergeSmall folds any chunk shorter than minChars into its predecessor.
// Chunks are still contiguous, untrimmed substrings of the original text
// at this point, so concatenating two adjacent ones stays a contiguous
// substring too.
func mergeSmall(chunks []string, minChars int) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if len(out) > 0 && len(strings.TrimSpace(c)) < minChars {
			out[len(out)-1] += c
		} else {
			out = append(out, c)
		}
	}
	return out
}

func (r *recursiveSplitter) split(text string) []textSplit {
	tokens := r.tok.Count(text)
	if tokens <= r.budget {
		return []textSplit{{text: text, isSentence: true, tokens: tokens}}
	}

	pieces, isSentence := r.splitByFns(text)
	var out []textSplit
	for _, piece := range pieces {
		pieceTokens := r.tok.Count(piece)
		switch {
		case pieceTokens <= r.budget:
			out = append(out, textSplit{text: piece, isSentence: isSentence, tokens: pieceTokens})
		case piece == text:
			// No split function made progress (a single rune still over
			// budget); accept it rather than recurse forever.
			out = append(out, textSplit{text: piece, isSentence: isSentence, tokens: pieceTokens})
		default:
			out = append(out, r.split(piece)...)
		}
	}
	return out
}

// splitByFns tries, in order: paragraph separator, sentence regex
// (meaning-preserving tier); then clause-ish punctuation, whitespace,
// and finally individual runes (hard fallback tier). The first function
// to produce more than one piece wins its tier.
func (r *recursiveSplitter) splitByFns(text string) ([]string, bool) {
	if pieces := splitBySep(text, paragraphSep); len(pieces) > 1 {
		return pieces, true
	}
	if pieces := splitByRegex(text, sentenceRegex); len(pieces) > 1 {
		return pieces, true
	}

	if pieces := splitByRegex(text, clauseRegex); len(pieces) > 1 {
		return pieces, false
	}
	if pieces := splitBySep(text, " "); len(pieces) > 1 {
		return pieces, false
	}
	return splitByChar(text), false
}

// merge packs consecutive splits into chunks bounded by the token budget.
// Any split, whether or not it is flagged isSentence, is always admitted
// into a chunk that is still empty, even if it alone exceeds the budget,
// matching
// the reference splitter's "a chunk must contain at least one split"
// rule; there is no overlap carried between chunks.
func (r *recursiveSplitter) merge(splits []textSplit) []string {
	var chunks []string
	var cur []string
	curTokens := 0

	closeChunk := func() {
		chunks = append(chunks, strings.Join(cur, ""))
		cur = nil
		curTokens = 0
	}

	for _, s := range splits {
		if len(cur) > 0 && curTokens+s.tokens > r.budget {
			closeChunk()
		}
		cur = append(cur, s.text)
		curTokens += s.tokens
	}
	if len(cur) > 0 {
		closeChunk()
	}
	return chunks
}

func postprocess(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		trimmed := strings.TrimSpace(c)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// splitBySep splits on sep, keeping the separator attached to the piece
// that precedes it so the concatenation of pieces recovers the input.
func splitBySep(text, sep string) []string {
	if sep == "" {
		return []string{text}
	}
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return parts
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			out[i] = p + sep
		} else {
			out[i] = p
		}
	}
	return out
}

func splitByRegex(text string, re *regexp.Regexp) []string {
	return re.FindAllString(text, -1)
}

func splitByChar(text string) []string {
	runes := []rune(text)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
