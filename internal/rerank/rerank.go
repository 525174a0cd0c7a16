// Package rerank applies domain knowledge on top of raw embedding similarity
// and gates the final candidate list on confidence.
package rerank

import (
	"fmt"
	"sort"
	"strings"

	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/domainmodel"
	"intent-gateway/internal/matcher"
	"intent-gateway/internal/template"
)

// BoostConfig tunes the additive boosts. All boosts are bounded: the sum per
// candidate is capped at MaxBoost and the final score clamps to [0, 1].
type BoostConfig struct {
	ExactEntity   float64
	SynonymEntity float64
	ActionVerb    float64
	PatternMatch  float64
	MaxBoost      float64
}

// DefaultBoostConfig returns the tuned production defaults.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		ExactEntity:   0.3,
		SynonymEntity: 0.1,
		ActionVerb:    0.2,
		PatternMatch:  0.15,
		MaxBoost:      0.5,
	}
}

// RankedCandidate is a candidate after domain boosting.
type RankedCandidate struct {
	TemplateID string
	Similarity float64
	Boost      float64
	FinalScore float64
	Lexical    bool
}

// NoConfidentMatchError reports that no candidate cleared the gate. BestScore
// helps operators tune the threshold.
type NoConfidentMatchError struct {
	BestScore  float64
	BestID     string
	Candidates int
}

func (e *NoConfidentMatchError) Error() string {
	return fmt.Sprintf("no confident match: best %.3f (%s) of %d candidates", e.BestScore, e.BestID, e.Candidates)
}

// Reranker rescores candidates with vocabulary and pattern boosts. The
// pattern strategy is selected once from the domain type.
type Reranker struct {
	domain   *domainmodel.Model
	boosts   BoostConfig
	strategy patternStrategy
	logger   logger.Logger
}

// NewReranker creates a reranker for the given domain model. An unknown or
// empty domain type falls back to the generic strategy.
func NewReranker(domain *domainmodel.Model, boosts BoostConfig, log logger.Logger) *Reranker {
	var strategy patternStrategy
	switch domainType(domain) {
	case "customer_order":
		strategy = customerOrderStrategy{}
	default:
		strategy = genericStrategy{}
	}

	return &Reranker{
		domain:   domain,
		boosts:   boosts,
		strategy: strategy,
		logger:   log.WithFields(map[string]interface{}{"component": "reranker"}),
	}
}

func domainType(domain *domainmodel.Model) string {
	if domain == nil {
		return ""
	}
	return domain.DomainType
}

// Rerank boosts each candidate and returns the list re-sorted by final score
// descending, ties by template id ascending. Candidates whose template is
// missing from the set are dropped.
func (r *Reranker) Rerank(query string, candidates []matcher.Candidate, set *template.TemplateSet) []RankedCandidate {
	queryLower := strings.ToLower(query)

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		tmpl, ok := set.Get(c.TemplateID)
		if !ok {
			continue
		}

		boost := r.vocabularyBoost(queryLower, tmpl)
		boost += r.strategy.boost(query, queryLower, tmpl, r.domain, r.boosts)

		if boost > r.boosts.MaxBoost {
			boost = r.boosts.MaxBoost
		}

		final := c.Similarity + boost
		if final > 1 {
			final = 1
		}
		if final < 0 {
			final = 0
		}

		ranked = append(ranked, RankedCandidate{
			TemplateID: c.TemplateID,
			Similarity: c.Similarity,
			Boost:      boost,
			FinalScore: final,
			Lexical:    c.Lexical,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].TemplateID < ranked[j].TemplateID
	})
	return ranked
}

// vocabularyBoost rewards direct and synonym mentions of the template's
// entities and its action verbs.
func (r *Reranker) vocabularyBoost(queryLower string, tmpl *template.Template) float64 {
	var boost float64
	st := tmpl.SemanticTags

	for _, entity := range []string{st.PrimaryEntity, st.SecondaryEntity} {
		if entity == "" {
			continue
		}
		if mentions(queryLower, entity) {
			boost += r.boosts.ExactEntity
			continue
		}
		if r.domain != nil {
			for _, syn := range r.domain.EntitySynonyms(entity) {
				if mentions(queryLower, syn) {
					boost += r.boosts.SynonymEntity
					break
				}
			}
		}
	}

	if st.Action != "" && r.domain != nil {
		for _, verb := range r.domain.ActionVerbs(st.Action) {
			if mentions(queryLower, verb) {
				boost += r.boosts.ActionVerb
				break
			}
		}
	}

	return boost
}

// Gate accepts the top candidate only when it clears the confidence
// threshold and, when configured, leads the runner-up by the minimum margin.
func (r *Reranker) Gate(ranked []RankedCandidate, threshold, minMargin float64) ([]RankedCandidate, error) {
	if len(ranked) == 0 {
		return nil, &NoConfidentMatchError{}
	}

	top := ranked[0]
	if top.FinalScore < threshold {
		return nil, &NoConfidentMatchError{
			BestScore:  top.FinalScore,
			BestID:     top.TemplateID,
			Candidates: len(ranked),
		}
	}
	if minMargin > 0 && len(ranked) > 1 {
		if top.FinalScore-ranked[1].FinalScore < minMargin {
			return nil, &NoConfidentMatchError{
				BestScore:  top.FinalScore,
				BestID:     top.TemplateID,
				Candidates: len(ranked),
			}
		}
	}

	// Every candidate over the threshold stays eligible for fall-through.
	eligible := make([]RankedCandidate, 0, len(ranked))
	for _, c := range ranked {
		if c.FinalScore >= threshold {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}

// mentions matches a term against lowercased query text, accepting the
// trivial plural so "order" still matches "orders".
func mentions(queryLower, term string) bool {
	term = strings.ToLower(term)
	return containsWord(queryLower, term) || containsWord(queryLower, term+"s")
}

// containsWord reports whether text contains needle on word boundaries.
// Plain substring matching would let "order" match "border".
func containsWord(text, needle string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
