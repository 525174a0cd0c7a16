// internal/matcher/lexical.go
package matcher

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// lexicalCandidates scores templates by Jaccard token overlap between the
// query and the template's indexed text. Used only when the embedding
// service is down; scores are comparable to similarities but coarser.
func (m *Matcher) lexicalCandidates(query string, k int) []Candidate {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	candidates := make([]Candidate, 0, len(m.texts))
	for id, text := range m.texts {
		score := jaccard(queryTokens, tokenize(text))
		if score == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			TemplateID: id,
			Similarity: score,
			Lexical:    true,
		})
	}
	sortCandidates(candidates)

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func tokenize(text string) map[string]bool {
	tokens := map[string]bool{}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
