// internal/rerank/strategy.go
package rerank

import (
	"regexp"
	"strings"

	"intent-gateway/internal/domainmodel"
	"intent-gateway/internal/template"
)

// patternStrategy contributes a domain-specific boost, possibly negative,
// for one candidate. Implementations are selected by domain type in a
// closed switch; there is no runtime registry.
type patternStrategy interface {
	boost(query, queryLower string, tmpl *template.Template, domain *domainmodel.Model, cfg BoostConfig) float64
}

// genericStrategy rewards qualifier mentions. Works for any domain whose
// vocabulary is filled in.
type genericStrategy struct{}

func (genericStrategy) boost(_, queryLower string, tmpl *template.Template, _ *domainmodel.Model, cfg BoostConfig) float64 {
	var boost float64
	for _, q := range tmpl.SemanticTags.Qualifiers {
		if mentions(queryLower, q) {
			boost += cfg.PatternMatch
		}
	}
	return boost
}

var (
	// Two consecutive capitalized words, the usual shape of a person name
	// inside an otherwise lowercase question.
	personNameRe = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)

	// "in Springfield", "from Portland": a location reference.
	locationRefRe = regexp.MustCompile(`\b(?:in|from|near|around) [A-Z][a-z]+`)
)

// customerOrderStrategy disambiguates person-name lookups from city lookups.
// "What did Maria Garcia order?" and "orders from Chicago" embed very close
// together; the surface shape of the query decides which template family
// should win.
type customerOrderStrategy struct{}

func (customerOrderStrategy) boost(query, queryLower string, tmpl *template.Template, domain *domainmodel.Model, cfg BoostConfig) float64 {
	hasPersonName := personNameRe.MatchString(query)
	hasLocationRef := locationRefRe.MatchString(query) ||
		strings.Contains(queryLower, "city") || strings.Contains(queryLower, "location")

	wantsPerson := hasSemanticParam(tmpl, "person_name")
	wantsCity := hasSemanticParam(tmpl, "city_name")

	var boost float64
	switch {
	case wantsPerson && hasPersonName && !hasLocationRef:
		boost += cfg.ExactEntity
	case wantsPerson && hasLocationRef && !hasPersonName:
		boost -= cfg.ActionVerb
	case wantsCity && hasLocationRef:
		boost += cfg.ExactEntity
	case wantsCity && hasPersonName && !hasLocationRef:
		boost -= cfg.ActionVerb
	}

	// Qualifier mentions still count, same as the generic strategy.
	boost += genericStrategy{}.boost(query, queryLower, tmpl, domain, cfg)
	return boost
}

func hasSemanticParam(tmpl *template.Template, semanticType string) bool {
	for _, p := range tmpl.Parameters {
		if p.SemanticType == semanticType {
			return true
		}
	}
	return false
}
