// internal/template/loader.go
package template

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	stderrors "intent-gateway/internal/common/errors"
	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/common/validation"

	"gopkg.in/yaml.v3"
)

var (
	sqlPlaceholderRe  = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)
	pathPlaceholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
)

// Loader reads template library documents from disk and produces a validated
// TemplateSet. Invalid records are skipped with a reason, never fatal; an
// unreadable file fails the whole load.
type Loader struct {
	logger logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	return &Loader{
		logger: log.WithFields(map[string]interface{}{"component": "template-loader"}),
	}
}

// Load reads every path in order and merges their records. A template id seen
// again in a later file replaces the earlier record (last file wins) with a
// warning.
func (l *Loader) Load(paths []string) (*TemplateSet, *LoadReport, error) {
	report := &LoadReport{}
	byID := make(map[string]Template)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, &stderrors.StandardError{
				Code:      stderrors.ErrCodeTemplateLibraryUnreadable,
				Message:   "Template library file unreadable",
				Details:   fmt.Sprintf("path: %s, error: %s", path, err.Error()),
				Retryable: false,
			}
		}

		var doc libraryDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, &stderrors.StandardError{
				Code:      stderrors.ErrCodeTemplateLibraryUnreadable,
				Message:   "Template library file is not valid YAML",
				Details:   fmt.Sprintf("path: %s, error: %s", path, err.Error()),
				Retryable: false,
			}
		}

		report.FilesRead++
		if report.Domain == "" {
			report.Domain = doc.Domain
		}

		for _, record := range doc.Templates {
			tmpl, reason := l.parseRecord(record)
			if reason != "" {
				id, _ := record["id"].(string)
				report.Skipped = append(report.Skipped, SkippedTemplate{
					ID:     id,
					File:   path,
					Reason: reason,
				})
				l.logger.Warn("Skipping invalid template record", map[string]interface{}{
					"templateId": id,
					"file":       path,
					"reason":     reason,
				})
				continue
			}

			if _, exists := byID[tmpl.ID]; exists {
				report.Replaced++
				l.logger.Warn("Duplicate template id, later file wins", map[string]interface{}{
					"templateId": tmpl.ID,
					"file":       path,
				})
			}
			byID[tmpl.ID] = *tmpl
		}
	}

	templates := make([]Template, 0, len(byID))
	for _, t := range byID {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })

	report.Loaded = len(templates)
	l.logger.Info("Template library loaded", map[string]interface{}{
		"files":    report.FilesRead,
		"loaded":   report.Loaded,
		"replaced": report.Replaced,
		"skipped":  len(report.Skipped),
	})

	return NewTemplateSet(templates), report, nil
}

// parseRecord validates one raw record structurally then semantically and
// returns the typed template, or an empty template and a skip reason.
func (l *Loader) parseRecord(record map[string]interface{}) (*Template, string) {
	violations, err := validation.ValidateTemplateRecord(record)
	if err != nil {
		return nil, fmt.Sprintf("schema check failed: %s", err.Error())
	}
	if len(violations) > 0 {
		return nil, "schema: " + strings.Join(violations, "; ")
	}

	// Round-trip through YAML to decode the raw map into the typed struct.
	raw, err := yaml.Marshal(record)
	if err != nil {
		return nil, fmt.Sprintf("re-encode failed: %s", err.Error())
	}
	var tmpl Template
	if err := yaml.Unmarshal(raw, &tmpl); err != nil {
		return nil, fmt.Sprintf("decode failed: %s", err.Error())
	}

	if reason := validateSemantics(&tmpl); reason != "" {
		return nil, reason
	}
	return &tmpl, ""
}

// validateSemantics enforces the cross-field rules the JSON schema cannot
// express: body presence per kind, placeholder and parameter bijection,
// location coherence and enum defaults.
func validateSemantics(t *Template) string {
	declared := make(map[string]Parameter, len(t.Parameters))
	for _, p := range t.Parameters {
		if _, dup := declared[p.Name]; dup {
			return fmt.Sprintf("duplicate parameter %q", p.Name)
		}
		declared[p.Name] = p

		if p.Type == TypeEnum && len(p.AllowedValues) == 0 {
			return fmt.Sprintf("enum parameter %q has no allowed_values", p.Name)
		}
		if p.Default != nil && p.Type == TypeEnum {
			def := fmt.Sprintf("%v", p.Default)
			if !contains(p.AllowedValues, def) {
				return fmt.Sprintf("default %q of parameter %q is not in allowed_values", def, p.Name)
			}
		}
	}

	switch t.Kind {
	case KindSQL:
		if strings.TrimSpace(t.SQL) == "" {
			return "sql kind requires a non-empty sql body"
		}
		return validatePlaceholders(sqlPlaceholders(t.SQL), declared, "sql body")

	case KindHTTP:
		if t.Request == nil {
			return "http kind requires a request descriptor"
		}
		pathParams := map[string]bool{}
		for _, m := range pathPlaceholderRe.FindAllStringSubmatch(t.Request.Path, -1) {
			name := m[1]
			pathParams[name] = true
			if _, ok := declared[name]; !ok {
				return fmt.Sprintf("path placeholder {%s} has no parameter declaration", name)
			}
		}
		for _, p := range t.Parameters {
			if p.Location == LocationPath && !pathParams[p.Name] {
				return fmt.Sprintf("path parameter %q does not appear in the request path", p.Name)
			}
			if p.Location == LocationBind || p.Location == "" {
				return fmt.Sprintf("parameter %q of http template needs an explicit location", p.Name)
			}
		}
		return ""

	case KindElasticsearch:
		if t.ES == nil {
			return "elasticsearch kind requires an es descriptor"
		}
		return validatePlaceholders(esPlaceholders(t.ES.Query), declared, "es query")

	default:
		return fmt.Sprintf("unknown kind %q", t.Kind)
	}
}

func validatePlaceholders(used map[string]bool, declared map[string]Parameter, where string) string {
	for name := range used {
		if _, ok := declared[name]; !ok {
			return fmt.Sprintf("placeholder :%s in %s has no parameter declaration", name, where)
		}
	}
	for name, p := range declared {
		if p.Location != LocationBind && p.Location != "" {
			return fmt.Sprintf("parameter %q location %q is not valid for this kind", name, p.Location)
		}
		if !used[name] {
			return fmt.Sprintf("parameter %q does not appear in %s", name, where)
		}
	}
	return ""
}

// sqlPlaceholders collects :name placeholders, skipping postgres type casts
// written as ::type.
func sqlPlaceholders(query string) map[string]bool {
	found := map[string]bool{}
	for _, m := range sqlPlaceholderRe.FindAllStringSubmatchIndex(query, -1) {
		start := m[0]
		if start > 0 && query[start-1] == ':' {
			continue
		}
		found[query[m[2]:m[3]]] = true
	}
	return found
}

// esPlaceholders walks the decoded query tree and collects :name string
// values in value positions.
func esPlaceholders(node interface{}) map[string]bool {
	found := map[string]bool{}
	collectESPlaceholders(node, found)
	return found
}

func collectESPlaceholders(node interface{}, found map[string]bool) {
	switch v := node.(type) {
	case map[string]interface{}:
		for _, child := range v {
			collectESPlaceholders(child, found)
		}
	case []interface{}:
		for _, child := range v {
			collectESPlaceholders(child, found)
		}
	case string:
		if strings.HasPrefix(v, ":") && len(v) > 1 {
			found[v[1:]] = true
		}
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
