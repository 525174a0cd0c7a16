// internal/common/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a response body is read. Both the model
// providers and the REST datasources return small payloads; anything larger
// is a misbehaving backend.
const maxResponseBytes = 10 << 20

// Client is the shared outbound HTTP client of the gateway. One instance per
// backend, each with its own timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Response is the status and fully-read body of one exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Send performs one request and drains the response body, capped at
// maxResponseBytes, so the connection returns to the pool. A JSON content
// type is set whenever a body is present; caller headers take precedence.
func (c *Client) Send(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
