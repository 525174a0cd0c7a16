// internal/executor/binder.go
package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	stderrors "intent-gateway/internal/common/errors"
	"intent-gateway/internal/template"
)

var sqlPlaceholderRe = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// BindSQL rewrites :name placeholders to positional $1..$n arguments. Values
// are never interpolated into the query text; they travel separately to
// database/sql. A placeholder repeated in the query reuses its position.
func BindSQL(tmpl *template.Template, params map[string]interface{}) (string, []interface{}, error) {
	positions := map[string]int{}
	var args []interface{}
	var out strings.Builder

	src := tmpl.SQL
	last := 0
	for _, m := range sqlPlaceholderRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		// Leave postgres ::type casts alone.
		if start > 0 && src[start-1] == ':' {
			continue
		}

		name := src[m[2]:m[3]]
		pos, seen := positions[name]
		if !seen {
			value, ok := params[name]
			if !ok {
				return "", nil, stderrors.NewBindingFailedError(tmpl.ID,
					fmt.Errorf("no value for placeholder :%s", name))
			}
			args = append(args, value)
			pos = len(args)
			positions[name] = pos
		}

		out.WriteString(src[last:start])
		out.WriteString(fmt.Sprintf("$%d", pos))
		last = end
	}
	out.WriteString(src[last:])

	return out.String(), args, nil
}

// BoundRequest is an http-kind template ready to send.
type BoundRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// BindHTTP builds the outgoing request from the template's descriptor. Path
// values are percent-encoded per segment, query values go through url.Values
// and body parameters are merged into the declared body before marshalling.
func BindHTTP(tmpl *template.Template, params map[string]interface{}, baseURL string, baseHeaders map[string]string) (*BoundRequest, error) {
	spec := tmpl.Request

	path := spec.Path
	queryValues := url.Values{}
	headers := map[string]string{}
	for k, v := range baseHeaders {
		headers[k] = v
	}
	for k, v := range spec.Headers {
		headers[k] = v
	}

	var body map[string]interface{}
	if spec.Body != nil {
		body = make(map[string]interface{}, len(spec.Body))
		for k, v := range spec.Body {
			body[k] = v
		}
	}

	for _, p := range tmpl.Parameters {
		value, ok := params[p.Name]
		if !ok {
			return nil, stderrors.NewBindingFailedError(tmpl.ID,
				fmt.Errorf("no value for parameter %q", p.Name))
		}
		text := fmt.Sprintf("%v", value)

		switch p.Location {
		case template.LocationPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(text))
		case template.LocationQuery:
			queryValues.Set(p.Name, text)
		case template.LocationHeader:
			headers[p.Name] = text
		case template.LocationBody:
			if body == nil {
				body = map[string]interface{}{}
			}
			body[p.Name] = value
		default:
			return nil, stderrors.NewBindingFailedError(tmpl.ID,
				fmt.Errorf("parameter %q has unsupported location %q", p.Name, p.Location))
		}
	}

	// Static query entries from the descriptor keep their literal values.
	for k, v := range spec.Query {
		if queryValues.Get(k) == "" {
			queryValues.Set(k, v)
		}
	}

	fullURL := strings.TrimRight(baseURL, "/") + path
	if encoded := queryValues.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, stderrors.NewBindingFailedError(tmpl.ID, err)
		}
	}

	method := spec.Method
	if method == "" {
		method = "GET"
	}

	return &BoundRequest{
		Method:  strings.ToUpper(method),
		URL:     fullURL,
		Headers: headers,
		Body:    bodyBytes,
	}, nil
}

// BindES substitutes :name string values in the decoded query tree and
// returns the marshalled search body. Substitution is structural; parameter
// values end up as typed JSON values, not spliced strings.
func BindES(tmpl *template.Template, params map[string]interface{}) (string, []byte, error) {
	bound, err := substituteESNode(tmpl.ES.Query, params)
	if err != nil {
		return "", nil, stderrors.NewBindingFailedError(tmpl.ID, err)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(bound); err != nil {
		return "", nil, stderrors.NewBindingFailedError(tmpl.ID, err)
	}
	return tmpl.ES.Index, buf.Bytes(), nil
}

func substituteESNode(node interface{}, params map[string]interface{}) (interface{}, error) {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, child := range v {
			bound, err := substituteESNode(child, params)
			if err != nil {
				return nil, err
			}
			out[key] = bound
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			bound, err := substituteESNode(child, params)
			if err != nil {
				return nil, err
			}
			out[i] = bound
		}
		return out, nil
	case string:
		if strings.HasPrefix(v, ":") && len(v) > 1 {
			name := v[1:]
			value, ok := params[name]
			if !ok {
				return nil, fmt.Errorf("no value for placeholder :%s", name)
			}
			return value, nil
		}
		return v, nil
	default:
		return v, nil
	}
}
