package retrieval

import (
	"sort"
	"strings"
)

// lexicalScore scores content against a set of lowercase query terms by
// case-insensitive term match count plus a proximity bonus for terms
// found close together, per §4.13's "simple bag-of-terms scoring" used
// when no vector store is configured.
func lexicalScore(content string, terms []string) float64 {
	if len(terms) == 0 || content == "" {
		return 0
	}

	lower := strings.ToLower(content)
	var score float64
	var positions []int

	for _, term := range terms {
		if term == "" {
			continue
		}
		count := 0
		start := 0
		for {
			idx := strings.Index(lower[start:], term)
			if idx == -1 {
				break
			}
			abs := start + idx
			positions = append(positions, abs)
			count++
			start = abs + len(term)
		}
		score += float64(count)
	}

	score += proximityBonus(positions)
	return score
}

// proximityBonus rewards query terms that appear close together: the
// tighter the span containing every match, the larger the bonus. Capped
// so a single huge file with scattered matches can't dominate purely on
// span size.
func proximityBonus(positions []int) float64 {
	if len(positions) < 2 {
		return 0
	}
	sort.Ints(positions)
	span := positions[len(positions)-1] - positions[0]
	if span <= 0 {
		return 1.0
	}
	bonus := 1.0 / float64(span)
	if bonus > 1.0 {
		bonus = 1.0
	}
	return bonus
}

// tokenizeQuery lowercases and splits the query on non-alphanumeric
// runs, dropping empty tokens.
func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// lexicalResult pairs a chunk with its bag-of-terms score for sorting.
type lexicalResult struct {
	chunkID string
	score   float64
}

// sortLexicalResults orders by score desc, then chunk id asc, per
// §4.13's "deterministic ordering by score desc, then chunk id asc."
func sortLexicalResults(results []lexicalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
}
