package chunking

import (
	"strconv"
	"strings"
)

// blockSep joins blocks before handing the result to the splitter. Two
// characters so a chunk that crosses the join point never collapses two
// block-final/block-initial words together.
const blockSep = "\n "

// blockRange records where one input block landed in the concatenation,
// as an inclusive rune range, plus its 1-based position among the blocks.
type blockRange struct {
	number   int
	startRow int
	endRow   int
}

// concatBlocks joins blocks with blockSep and records each non-empty
// block's inclusive rune range in the result. Empty blocks get a
// zero-length range and are recorded with startRow > endRow so they never
// match a produced chunk.
func concatBlocks(blocks []string) (string, []blockRange) {
	var b strings.Builder
	ranges := make([]blockRange, len(blocks))

	row := 0
	for i, block := range blocks {
		if i > 0 {
			b.WriteString(blockSep)
			row += len([]rune(blockSep))
		}
		start := row
		runes := []rune(block)
		b.WriteString(block)
		row += len(runes)
		end := row - 1

		if len(runes) == 0 {
			ranges[i] = blockRange{number: i + 1, startRow: start, endRow: start - 1}
		} else {
			ranges[i] = blockRange{number: i + 1, startRow: start, endRow: end}
		}
	}

	return b.String(), ranges
}

// blockSpan returns the 1-based start and end block numbers covering the
// inclusive rune range [start, end] of the concatenation.
func blockSpan(ranges []blockRange, start, end int) (int, int) {
	startBlock, endBlock := 0, 0
	for _, r := range ranges {
		if r.startRow > r.endRow {
			continue // empty block, never overlaps
		}
		if r.startRow <= end && start <= r.endRow {
			if startBlock == 0 {
				startBlock = r.number
			}
			endBlock = r.number
		}
	}
	return startBlock, endBlock
}

// refFor formats the Ref label for a chunk spanning [startBlock, endBlock].
func refFor(startBlock, endBlock int) string {
	if startBlock == endBlock {
		return strconv.Itoa(startBlock)
	}
	return strconv.Itoa(startBlock) + "-" + strconv.Itoa(endBlock)
}
