// internal/matcher/embedding_text.go
package matcher

import (
	"strings"

	"intent-gateway/internal/domainmodel"
	"intent-gateway/internal/template"
)

// BuildEmbeddingText assembles the text a template is indexed under. More
// signal in the text means better recall: description, example questions,
// tags, parameter names and semantic tags all contribute, plus the domain
// synonyms of the entities the template touches.
func BuildEmbeddingText(t *template.Template, domain *domainmodel.Model) string {
	var parts []string

	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	parts = append(parts, t.NLExamples...)

	if len(t.Tags) > 0 {
		parts = append(parts, strings.Join(t.Tags, " "))
	}

	var paramNames []string
	for _, p := range t.Parameters {
		paramNames = append(paramNames, strings.ReplaceAll(p.Name, "_", " "))
		paramNames = append(paramNames, p.Aliases...)
	}
	if len(paramNames) > 0 {
		parts = append(parts, strings.Join(paramNames, " "))
	}

	st := t.SemanticTags
	var tagParts []string
	if st.Action != "" {
		tagParts = append(tagParts, st.Action)
	}
	for _, entity := range []string{st.PrimaryEntity, st.SecondaryEntity} {
		if entity == "" {
			continue
		}
		tagParts = append(tagParts, entity)
		if domain != nil {
			tagParts = append(tagParts, domain.EntitySynonyms(entity)...)
		}
	}
	tagParts = append(tagParts, st.Qualifiers...)
	if len(tagParts) > 0 {
		parts = append(parts, strings.Join(tagParts, " "))
	}

	return strings.Join(parts, "\n")
}
