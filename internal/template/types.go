// Package template defines the parameterized query template model and the
// store that serves validated templates to the matching pipeline.
package template

import "fmt"

// Kind identifies the datasource a template executes against.
type Kind string

const (
	KindSQL           Kind = "sql"
	KindHTTP          Kind = "http"
	KindElasticsearch Kind = "elasticsearch"
)

// ParamType is the declared type of a template parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeFloat   ParamType = "float"
	TypeBoolean ParamType = "boolean"
	TypeDate    ParamType = "date"
	TypeEnum    ParamType = "enum"
)

// ParamLocation says where an http-kind parameter is injected.
type ParamLocation string

const (
	LocationBind   ParamLocation = "bind" // sql / es value binding (default)
	LocationPath   ParamLocation = "path"
	LocationQuery  ParamLocation = "query"
	LocationHeader ParamLocation = "header"
	LocationBody   ParamLocation = "body"
)

// Parameter declares one extractable slot of a template.
type Parameter struct {
	Name          string        `yaml:"name"`
	Type          ParamType     `yaml:"type"`
	Description   string        `yaml:"description"`
	Required      bool          `yaml:"required"`
	Default       interface{}   `yaml:"default"`
	Example       interface{}   `yaml:"example"`
	AllowedValues []string      `yaml:"allowed_values"`
	Aliases       []string      `yaml:"aliases"`
	Location      ParamLocation `yaml:"location"`
	SemanticType  string        `yaml:"semantic_type"`
}

// RequestSpec describes an http-kind template's outgoing request. Path may
// contain {name} segments bound from parameters.
type RequestSpec struct {
	Method  string                 `yaml:"method"`
	Path    string                 `yaml:"path"`
	Query   map[string]string      `yaml:"query"`
	Headers map[string]string      `yaml:"headers"`
	Body    map[string]interface{} `yaml:"body"`
}

// ESSpec describes an elasticsearch-kind template. Query is the search body
// with :name placeholders in value positions.
type ESSpec struct {
	Index string                 `yaml:"index"`
	Query map[string]interface{} `yaml:"query"`
}

// SemanticTags carry the domain intent of a template for reranking.
type SemanticTags struct {
	Action          string   `yaml:"action"`
	PrimaryEntity   string   `yaml:"primary_entity"`
	SecondaryEntity string   `yaml:"secondary_entity"`
	Qualifiers      []string `yaml:"qualifiers"`
}

// ResultMapping controls how result rows render into context items.
type ResultMapping struct {
	ContentTemplate string   `yaml:"content_template"`
	Fields          []string `yaml:"fields"`
	EmptyMessage    string   `yaml:"empty_message"`
}

// Template is one validated, executable query template.
type Template struct {
	ID            string        `yaml:"id"`
	Version       string        `yaml:"version"`
	Description   string        `yaml:"description"`
	Kind          Kind          `yaml:"kind"`
	SQL           string        `yaml:"sql"`
	Request       *RequestSpec  `yaml:"request"`
	ES            *ESSpec       `yaml:"es"`
	Parameters    []Parameter   `yaml:"parameters"`
	NLExamples    []string      `yaml:"nl_examples"`
	Tags          []string      `yaml:"tags"`
	SemanticTags  SemanticTags  `yaml:"semantic_tags"`
	ResultMapping ResultMapping `yaml:"result_mapping"`
}

// Parameter returns the named parameter declaration, or nil.
func (t *Template) Parameter(name string) *Parameter {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i]
		}
	}
	return nil
}

// libraryDocument is the on-disk shape of one template library file.
type libraryDocument struct {
	Domain    string                   `yaml:"domain"`
	Templates []map[string]interface{} `yaml:"templates"`
}

// SkippedTemplate records one invalid record dropped during a load.
type SkippedTemplate struct {
	ID     string
	File   string
	Reason string
}

// LoadReport summarizes one library load for callers and logs.
type LoadReport struct {
	FilesRead int
	Loaded    int
	Replaced  int
	Skipped   []SkippedTemplate
	Domain    string
}

func (r *LoadReport) String() string {
	return fmt.Sprintf("files=%d loaded=%d replaced=%d skipped=%d",
		r.FilesRead, r.Loaded, r.Replaced, len(r.Skipped))
}
