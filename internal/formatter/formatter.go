// Package formatter renders execution outcomes into context items for the
// caller.
package formatter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"intent-gateway/internal/extractor"
	"intent-gateway/internal/template"
)

var fieldPlaceholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ContextItem is one formatted result unit.
type ContextItem struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Formatter renders rows per the template's result mapping.
type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatRows renders one context item per row. With a content_template each
// {field} is substituted from the row; without one the row renders as sorted
// key-value pairs.
func (f *Formatter) FormatRows(tmpl *template.Template, rows []map[string]interface{}, similarity float64, params map[string]extractor.Value) []ContextItem {
	items := make([]ContextItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ContextItem{
			Content:  f.renderRow(tmpl, row),
			Metadata: f.metadata(tmpl, similarity, params, len(rows)),
		})
	}
	return items
}

// FormatEmpty renders exactly one item explaining that the query matched a
// template but the datasource had nothing for it.
func (f *Formatter) FormatEmpty(tmpl *template.Template, similarity float64, params map[string]extractor.Value) []ContextItem {
	message := tmpl.ResultMapping.EmptyMessage
	if message == "" {
		message = "No results were found for this query."
	}
	return []ContextItem{{
		Content:  message,
		Metadata: f.metadata(tmpl, similarity, params, 0),
	}}
}

func (f *Formatter) renderRow(tmpl *template.Template, row map[string]interface{}) string {
	contentTemplate := tmpl.ResultMapping.ContentTemplate
	if contentTemplate != "" {
		return fieldPlaceholderRe.ReplaceAllStringFunc(contentTemplate, func(match string) string {
			field := match[1 : len(match)-1]
			if value, ok := row[field]; ok && value != nil {
				return fmt.Sprintf("%v", value)
			}
			return ""
		})
	}

	fields := tmpl.ResultMapping.Fields
	if len(fields) == 0 {
		fields = sortedKeys(row)
	}

	var parts []string
	for _, field := range fields {
		value, ok := row[field]
		if !ok || value == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", field, value))
	}
	return strings.Join(parts, ", ")
}

func (f *Formatter) metadata(tmpl *template.Template, similarity float64, params map[string]extractor.Value, rowCount int) map[string]interface{} {
	paramMeta := make(map[string]interface{}, len(params))
	for name, v := range params {
		paramMeta[name] = map[string]interface{}{
			"value":      v.Value,
			"provenance": string(v.Provenance),
		}
	}

	return map[string]interface{}{
		"template_id": tmpl.ID,
		"similarity":  similarity,
		"parameters":  paramMeta,
		"row_count":   rowCount,
	}
}

func sortedKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
