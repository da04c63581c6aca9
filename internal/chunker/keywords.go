package chunker

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultKeywordCount is how many salient keywords each segment carries.
const DefaultKeywordCount = 8

// englishStopwords are function words excluded from keyword extraction
// and from the English language profile.
var englishStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "i": true,
	"you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true, "not": true, "no": true, "nor": true, "so": true,
	"than": true, "then": true, "there": true, "their": true, "its": true,
	"if": true, "into": true, "about": true, "over": true, "under": true,
}

// ExtractKeywords returns up to n salient content words of text, most
// frequent first; frequency ties break alphabetically so extraction is
// deterministic.
func ExtractKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	freq := make(map[string]int)
	for _, tok := range contentWords(text) {
		freq[tok]++
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if n < len(words) {
		words = words[:n]
	}
	return words
}

// contentWords tokenizes text and drops stopwords and very short tokens.
func contentWords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) <= 2 || englishStopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
