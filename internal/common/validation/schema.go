// internal/common/validation/schema.go
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// templateRecordSchema is the structural contract every template record in a
// library document must satisfy before semantic validation runs.
var templateRecordSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"id", "description", "kind", "nl_examples"},
	"properties": map[string]interface{}{
		"id": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
			"pattern":   "^[a-z0-9_]+$",
		},
		"version":     map[string]interface{}{"type": "string"},
		"description": map[string]interface{}{"type": "string", "minLength": 1},
		"kind": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"sql", "http", "elasticsearch"},
		},
		"sql": map[string]interface{}{"type": "string"},
		"request": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"method", "path"},
			"properties": map[string]interface{}{
				"method":  map[string]interface{}{"type": "string"},
				"path":    map[string]interface{}{"type": "string"},
				"query":   map[string]interface{}{"type": "object"},
				"headers": map[string]interface{}{"type": "object"},
				"body":    map[string]interface{}{"type": "object"},
			},
		},
		"es": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"index", "query"},
			"properties": map[string]interface{}{
				"index": map[string]interface{}{"type": "string"},
				"query": map[string]interface{}{"type": "object"},
			},
		},
		"parameters": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"name", "type"},
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":    "string",
						"pattern": "^[a-zA-Z_][a-zA-Z0-9_]*$",
					},
					"type": map[string]interface{}{
						"type": "string",
						"enum": []interface{}{"string", "integer", "float", "boolean", "date", "enum"},
					},
					"description":    map[string]interface{}{"type": "string"},
					"required":       map[string]interface{}{"type": "boolean"},
					"default":        map[string]interface{}{},
					"example":        map[string]interface{}{},
					"allowed_values": map[string]interface{}{"type": "array"},
					"aliases": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
					"location": map[string]interface{}{
						"type": "string",
						"enum": []interface{}{"bind", "path", "query", "header", "body"},
					},
					"semantic_type": map[string]interface{}{"type": "string"},
				},
			},
		},
		"nl_examples": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]interface{}{"type": "string"},
		},
		"tags": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"semantic_tags": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":           map[string]interface{}{"type": "string"},
				"primary_entity":   map[string]interface{}{"type": "string"},
				"secondary_entity": map[string]interface{}{"type": "string"},
				"qualifiers": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
			},
		},
		"result_mapping": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content_template": map[string]interface{}{"type": "string"},
				"fields": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
				"empty_message": map[string]interface{}{"type": "string"},
			},
		},
	},
}

// ValidateTemplateRecord checks a decoded template record against the
// structural schema. Returns a list of human-readable violations; an empty
// list means the record is structurally valid.
func ValidateTemplateRecord(record map[string]interface{}) ([]string, error) {
	schemaLoader := gojsonschema.NewGoLoader(templateRecordSchema)
	documentLoader := gojsonschema.NewGoLoader(record)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return violations, nil
}
