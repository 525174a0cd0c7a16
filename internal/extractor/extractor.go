// Package extractor pulls typed parameter values out of a natural-language
// query using a completion service.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/llm"
	"intent-gateway/internal/template"
)

// Provenance records where a parameter value came from.
type Provenance string

const (
	ProvenanceExtracted Provenance = "extracted"
	ProvenanceDefault   Provenance = "default"
)

// Value is one coerced parameter value with its provenance.
type Value struct {
	Value      interface{}
	Provenance Provenance
}

// InsufficientInformationError reports required parameters the query did not
// supply and no default covers. The engine turns this into a user-facing
// outcome, never a retry.
type InsufficientInformationError struct {
	TemplateID string
	Missing    []string
}

func (e *InsufficientInformationError) Error() string {
	return fmt.Sprintf("insufficient information for template %s: missing %s",
		e.TemplateID, strings.Join(e.Missing, ", "))
}

// Extractor drives the completion service and validates its output against
// the template's parameter declarations.
type Extractor struct {
	completer llm.Completer
	logger    logger.Logger
}

func NewExtractor(completer llm.Completer, log logger.Logger) *Extractor {
	return &Extractor{
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"component": "extractor"}),
	}
}

// Extract returns a value for every declared parameter, or an error. One
// batched completion covers all parameters; if its output cannot be parsed
// at all, each parameter is retried individually before giving up.
func (e *Extractor) Extract(ctx context.Context, query string, tmpl *template.Template) (map[string]Value, error) {
	if len(tmpl.Parameters) == 0 {
		return map[string]Value{}, nil
	}

	raw, err := e.extractBatch(ctx, query, tmpl)
	if err != nil {
		e.logger.Warn("Batched extraction failed, falling back to per-parameter calls", map[string]interface{}{
			"templateId": tmpl.ID,
			"error":      err.Error(),
		})
		var svcErr error
		raw, svcErr = e.extractPerParameter(ctx, query, tmpl)
		if svcErr != nil {
			// Every call failed: the service is down, the query is not at fault.
			return nil, svcErr
		}
	}

	values := make(map[string]Value, len(tmpl.Parameters))
	var missing []string

	for _, p := range tmpl.Parameters {
		rawValue, present := raw[p.Name]
		if present && rawValue != nil {
			coerced, cerr := Coerce(rawValue, &p)
			if cerr == nil {
				values[p.Name] = Value{Value: coerced, Provenance: ProvenanceExtracted}
				continue
			}
			e.logger.Warn("Extracted value failed coercion", map[string]interface{}{
				"templateId": tmpl.ID,
				"parameter":  p.Name,
				"error":      cerr.Error(),
			})
		}

		if p.Default != nil {
			coerced, cerr := Coerce(p.Default, &p)
			if cerr != nil {
				return nil, fmt.Errorf("default of parameter %q is invalid: %w", p.Name, cerr)
			}
			values[p.Name] = Value{Value: coerced, Provenance: ProvenanceDefault}
			continue
		}

		if p.Required {
			missing = append(missing, p.Name)
		}
	}

	if len(missing) > 0 {
		return nil, &InsufficientInformationError{TemplateID: tmpl.ID, Missing: missing}
	}

	applyLikeWrapping(tmpl, values)
	return values, nil
}

// extractBatch asks for every parameter in one completion and parses the
// JSON object out of the response.
func (e *Extractor) extractBatch(ctx context.Context, query string, tmpl *template.Template) (map[string]interface{}, error) {
	prompt := buildBatchPrompt(query, tmpl)

	response, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := salvageJSONObject(response)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// extractPerParameter issues one completion per parameter. An individual
// failure leaves that parameter unset; defaults and required checks run
// afterwards as usual. When every call errors the last error is returned so
// an outage is reported as such.
func (e *Extractor) extractPerParameter(ctx context.Context, query string, tmpl *template.Template) (map[string]interface{}, error) {
	raw := make(map[string]interface{}, len(tmpl.Parameters))

	var lastErr error
	failures := 0
	for _, p := range tmpl.Parameters {
		prompt := buildSingleParamPrompt(query, &p)
		response, err := e.completer.Complete(ctx, prompt)
		if err != nil {
			failures++
			lastErr = err
			continue
		}

		answer := strings.TrimSpace(response)
		answer = strings.Trim(answer, `"`)
		if answer == "" || strings.EqualFold(answer, "null") || strings.EqualFold(answer, "unknown") {
			continue
		}
		raw[p.Name] = answer
	}

	if failures == len(tmpl.Parameters) && lastErr != nil {
		return nil, lastErr
	}
	return raw, nil
}

func buildBatchPrompt(query string, tmpl *template.Template) string {
	var b strings.Builder
	b.WriteString("Extract the following parameters from the user question.\n")
	b.WriteString("Respond with a single JSON object. Use null for any parameter the question does not mention. Do not invent values.\n\n")
	b.WriteString("Parameters:\n")

	for _, p := range tmpl.Parameters {
		b.WriteString(fmt.Sprintf("- %s (%s)", p.Name, p.Type))
		if p.Description != "" {
			b.WriteString(": " + p.Description)
		}
		if len(p.AllowedValues) > 0 {
			b.WriteString(fmt.Sprintf(" [one of: %s]", strings.Join(p.AllowedValues, ", ")))
		}
		if p.Example != nil {
			b.WriteString(fmt.Sprintf(" (example: %v)", p.Example))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nQuestion: " + query + "\n")
	b.WriteString("JSON:")
	return b.String()
}

func buildSingleParamPrompt(query string, p *template.Parameter) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From the user question, extract the value of %q (%s).", p.Name, p.Type))
	if p.Description != "" {
		b.WriteString(" " + p.Description + ".")
	}
	if len(p.AllowedValues) > 0 {
		b.WriteString(fmt.Sprintf(" It must be one of: %s.", strings.Join(p.AllowedValues, ", ")))
	}
	b.WriteString(" Respond with the value only, or null if the question does not mention it.\n\n")
	b.WriteString("Question: " + query)
	return b.String()
}

// salvageJSONObject finds the outermost balanced JSON object in a model
// response. Models wrap answers in prose and code fences often enough that
// plain unmarshal of the whole response is not reliable.
func salvageJSONObject(response string) (map[string]interface{}, error) {
	start := strings.Index(response, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var parsed map[string]interface{}
				if err := json.Unmarshal([]byte(response[start:i+1]), &parsed); err != nil {
					return nil, fmt.Errorf("salvaged object is not valid JSON: %w", err)
				}
				return parsed, nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}

// applyLikeWrapping wraps name-ish string values in %...% when the template
// binds them into a LIKE clause, so partial names still match.
func applyLikeWrapping(tmpl *template.Template, values map[string]Value) {
	if tmpl.Kind != template.KindSQL {
		return
	}
	sqlUpper := strings.ToUpper(tmpl.SQL)

	for _, p := range tmpl.Parameters {
		if p.Type != template.TypeString {
			continue
		}
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		s, ok := v.Value.(string)
		if !ok || s == "" || strings.Contains(s, "%") {
			continue
		}
		if boundViaLike(sqlUpper, strings.ToUpper(p.Name)) {
			values[p.Name] = Value{Value: "%" + s + "%", Provenance: v.Provenance}
		}
	}
}

// boundViaLike reports whether the uppercased query binds exactly this
// placeholder in a LIKE clause. The placeholder must end at a non-word
// character so a parameter never matches a longer-named sibling.
func boundViaLike(sqlUpper, nameUpper string) bool {
	needle := "LIKE :" + nameUpper
	for from := 0; ; {
		i := strings.Index(sqlUpper[from:], needle)
		if i < 0 {
			return false
		}
		end := from + i + len(needle)
		if end == len(sqlUpper) || !isPlaceholderChar(sqlUpper[end]) {
			return true
		}
		from = end
	}
}

func isPlaceholderChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
