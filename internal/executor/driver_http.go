// internal/executor/driver_http.go
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"intent-gateway/internal/common/config"
	"intent-gateway/internal/common/httpclient"
	"intent-gateway/internal/template"
)

// HTTPDriver executes http-kind templates against the configured REST
// backend.
type HTTPDriver struct {
	client *httpclient.Client
	cfg    config.HTTPSourceConfig
}

func NewHTTPDriver(client *httpclient.Client, cfg config.HTTPSourceConfig) *HTTPDriver {
	return &HTTPDriver{client: client, cfg: cfg}
}

func (d *HTTPDriver) Name() string { return "http" }

func (d *HTTPDriver) Execute(ctx context.Context, tmpl *template.Template, params map[string]interface{}) ([]map[string]interface{}, error) {
	bound, err := BindHTTP(tmpl, params, d.cfg.BaseURL, d.cfg.Headers)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Send(ctx, bound.Method, bound.URL, bound.Headers, bound.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &httpStatusError{status: resp.StatusCode, body: truncateBody(string(resp.Body))}
	}

	return parseHTTPRows(resp.Body)
}

// parseHTTPRows accepts the common REST response shapes: a bare array, a
// bare object (one row) or an object wrapping the rows in a well-known key.
func parseHTTPRows(data []byte) ([]map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var asList []map[string]interface{}
	if err := json.Unmarshal(data, &asList); err == nil {
		return asList, nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return nil, fmt.Errorf("unparseable backend response: %w", err)
	}

	for _, key := range []string{"results", "data", "items", "rows"} {
		wrapped, ok := asObject[key].([]interface{})
		if !ok {
			continue
		}
		rows := make([]map[string]interface{}, 0, len(wrapped))
		for _, item := range wrapped {
			if row, ok := item.(map[string]interface{}); ok {
				rows = append(rows, row)
			}
		}
		return rows, nil
	}

	return []map[string]interface{}{asObject}, nil
}

func truncateBody(s string) string {
	if len(s) <= 256 {
		return s
	}
	return s[:256] + "..."
}
