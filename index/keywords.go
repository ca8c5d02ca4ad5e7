package index

import (
	"sort"
	"strings"
	"unicode"
)

// maxKeywords caps the keyword bag size for chunks and queries alike.
const maxKeywords = 20

// ExtractKeywords returns up to 20 distinct lowercase tokens from text,
// ordered by descending frequency with ties broken by first appearance.
// Tokens of length <= 2 and stop words are excluded.
func ExtractKeywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	pos := 0
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		if _, ok := counts[tok]; !ok {
			firstSeen[tok] = pos
			pos++
		}
		counts[tok]++
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return firstSeen[a] < firstSeen[b]
	})

	if len(tokens) > maxKeywords {
		tokens = tokens[:maxKeywords]
	}
	return tokens
}

// stopWords is the fixed set of common English words excluded from keyword
// bags. Chunk bags and query bags must use the same set or keyword overlap
// scores become meaningless.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true, "can": true,
	"need": true, "it": true, "its": true, "this": true, "that": true,
	"these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"all": true, "each": true, "every": true, "both": true, "few": true,
	"more": true, "most": true, "other": true, "some": true, "such": true,
	"no": true, "nor": true, "not": true, "only": true, "own": true,
	"same": true, "so": true, "than": true, "too": true, "very": true,
	"just": true, "as": true, "if": true, "then": true, "because": true,
	"while": true, "although": true,
}

// IsStopWord reports whether the lowercased token is in the stop-word set.
func IsStopWord(tok string) bool {
	return stopWords[strings.ToLower(tok)]
}
