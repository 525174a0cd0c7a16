// internal/executor/driver_es.go
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"intent-gateway/internal/template"

	"github.com/elastic/go-elasticsearch/v8"
)

// ESDriver executes elasticsearch-kind templates as search requests.
type ESDriver struct {
	client *elasticsearch.Client
}

func NewESDriver(client *elasticsearch.Client) *ESDriver {
	return &ESDriver{client: client}
}

func (d *ESDriver) Name() string { return "elasticsearch" }

func (d *ESDriver) Execute(ctx context.Context, tmpl *template.Template, params map[string]interface{}) ([]map[string]interface{}, error) {
	index, body, err := BindES(tmpl, params)
	if err != nil {
		return nil, err
	}

	res, err := d.client.Search(
		d.client.Search.WithContext(ctx),
		d.client.Search.WithIndex(index),
		d.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	if res.IsError() {
		return nil, &httpStatusError{status: res.StatusCode, body: truncateBody(string(data))}
	}

	return parseESHits(data)
}

// parseESHits flattens hits into rows. The document source is the row;
// the document id and score ride along under reserved keys.
func parseESHits(data []byte) ([]map[string]interface{}, error) {
	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string                 `json:"_id"`
				Score  float64                `json:"_score"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unparseable search response: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		row := make(map[string]interface{}, len(hit.Source)+2)
		for k, v := range hit.Source {
			row[k] = v
		}
		row["_id"] = hit.ID
		row["_score"] = hit.Score
		rows = append(rows, row)
	}
	return rows, nil
}
