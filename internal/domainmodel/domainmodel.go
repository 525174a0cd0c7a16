// Package domainmodel loads the domain knowledge document used for reranking
// and embedding-text enrichment. The model is immutable after load.
package domainmodel

import (
	"fmt"
	"os"
	"strings"

	stderrors "intent-gateway/internal/common/errors"

	"gopkg.in/yaml.v3"
)

// Field describes one attribute of a domain entity.
type Field struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	SemanticType string `yaml:"semantic_type"`
	Searchable   bool   `yaml:"searchable"`
}

// Entity is one business object of the domain.
type Entity struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Fields      []Field `yaml:"fields"`
}

// Relationship links two entities.
type Relationship struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Kind string `yaml:"kind"`
}

// Vocabulary carries the lexical knowledge of the domain.
type Vocabulary struct {
	EntitySynonyms map[string][]string `yaml:"entity_synonyms"`
	ActionVerbs    map[string][]string `yaml:"action_verbs"`
}

// Model is the loaded, immutable domain configuration.
type Model struct {
	DomainName    string         `yaml:"domain_name"`
	DomainType    string         `yaml:"domain_type"`
	Entities      []Entity       `yaml:"entities"`
	Vocabulary    Vocabulary     `yaml:"vocabulary"`
	Relationships []Relationship `yaml:"relationships"`
}

// Load reads and validates a domain configuration document.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stderrors.NewDomainConfigInvalidError(
			fmt.Sprintf("path: %s, error: %s", path, err.Error()))
	}

	var model Model
	if err := yaml.Unmarshal(data, &model); err != nil {
		return nil, stderrors.NewDomainConfigInvalidError(
			fmt.Sprintf("path: %s, error: %s", path, err.Error()))
	}

	if err := model.validate(); err != nil {
		return nil, err
	}
	return &model, nil
}

func (m *Model) validate() error {
	if strings.TrimSpace(m.DomainName) == "" {
		return stderrors.NewDomainConfigInvalidError("domain_name is required")
	}
	seen := map[string]bool{}
	for _, e := range m.Entities {
		if e.Name == "" {
			return stderrors.NewDomainConfigInvalidError("entity with empty name")
		}
		if seen[e.Name] {
			return stderrors.NewDomainConfigInvalidError(
				fmt.Sprintf("duplicate entity %q", e.Name))
		}
		seen[e.Name] = true
	}
	for _, r := range m.Relationships {
		if !seen[r.From] || !seen[r.To] {
			return stderrors.NewDomainConfigInvalidError(
				fmt.Sprintf("relationship %s -> %s references unknown entity", r.From, r.To))
		}
	}
	return nil
}

// EntitySynonyms returns the synonyms configured for an entity, or nil.
func (m *Model) EntitySynonyms(entity string) []string {
	return m.Vocabulary.EntitySynonyms[entity]
}

// ActionVerbs returns the verb set configured for an action, or nil.
func (m *Model) ActionVerbs(action string) []string {
	return m.Vocabulary.ActionVerbs[action]
}

// SemanticType returns the semantic type of an entity field, or "".
func (m *Model) SemanticType(entity, field string) string {
	for _, e := range m.Entities {
		if e.Name != entity {
			continue
		}
		for _, f := range e.Fields {
			if f.Name == field {
				return f.SemanticType
			}
		}
	}
	return ""
}

// Entity returns the named entity declaration, or nil.
func (m *Model) Entity(name string) *Entity {
	for i := range m.Entities {
		if m.Entities[i].Name == name {
			return &m.Entities[i]
		}
	}
	return nil
}
