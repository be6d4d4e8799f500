// Package httprequest implements the HTTP request node: it calls an external
// endpoint with templated URL, headers and body, retrying transient failures.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/template"
)

// Config defaults.
const (
	DefaultTimeoutSeconds = 30
	DefaultAttempts       = 1
)

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
}

// HTTPRequestNode performs one HTTP call per execution.
type HTTPRequestNode struct {
	id       string
	url      string
	method   string
	headers  map[string]string
	body     string
	timeout  time.Duration
	attempts int
	delay    time.Duration
	client   *http.Client
}

// NewHTTPRequestNode builds an HTTP request node from its config.
func NewHTTPRequestNode(id string, config map[string]any) (*HTTPRequestNode, error) {
	node := &HTTPRequestNode{
		id:       id,
		method:   http.MethodGet,
		headers:  make(map[string]string),
		timeout:  DefaultTimeoutSeconds * time.Second,
		attempts: DefaultAttempts,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	node.url = url

	if method, ok := config["method"].(string); ok {
		upper := strings.ToUpper(method)
		if !validMethods[upper] {
			return nil, fmt.Errorf("invalid HTTP method %q", method)
		}

		node.method = upper
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if text, ok := value.(string); ok {
				node.headers[key] = text
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		node.body = body
	}

	if timeout, ok := config["timeout"].(float64); ok {
		if timeout < 1 || timeout > 300 {
			return nil, errors.New("timeout must be between 1 and 300 seconds")
		}

		node.timeout = time.Duration(timeout) * time.Second
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok {
			if attempts < 1 || attempts > 10 {
				return nil, errors.New("retry attempts must be between 1 and 10")
			}

			node.attempts = int(attempts)
		}

		if delay, ok := retries["delay_ms"].(float64); ok {
			if delay < 0 || delay > 30000 {
				return nil, errors.New("retry delay must be between 0 and 30000 milliseconds")
			}

			node.delay = time.Duration(delay) * time.Millisecond
		}
	}

	node.client = &http.Client{Timeout: node.timeout}

	return node, nil
}

// Execute renders the request pieces, performs the call and returns the
// response. Server errors and network failures are retried up to the
// configured attempt budget; client errors (4xx) are not.
func (n *HTTPRequestNode) Execute(ctx context.Context, in protocol.Input) (*models.NodeResult, error) {
	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	url, err := template.RenderString(n.url, scope)
	if err != nil {
		return n.errorResult(fmt.Sprintf("failed to render url: %v", err)), nil
	}

	body := ""

	if n.body != "" {
		body, err = template.RenderString(n.body, scope)
		if err != nil {
			return n.errorResult(fmt.Sprintf("failed to render body: %v", err)), nil
		}
	}

	headers := make(map[string]string, len(n.headers))

	for key, value := range n.headers {
		rendered, err := template.RenderString(value, scope)
		if err != nil {
			return n.errorResult(fmt.Sprintf("failed to render header %q: %v", key, err)), nil
		}

		headers[key] = rendered
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(n.delay), uint64(n.attempts-1)),
		ctx,
	)

	output, err := backoff.RetryWithData(func() (map[string]any, error) {
		out, err := n.perform(ctx, url, body, headers)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.Code < http.StatusInternalServerError {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		return out, nil
	}, policy)
	if err != nil {
		return n.errorResult(fmt.Sprintf("request failed: %v", err)), nil
	}

	return &models.NodeResult{NodeID: n.id, Success: true, Output: output}, nil
}

// StatusError is an HTTP response outside the 2xx/3xx range.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (n *HTTPRequestNode) perform(ctx context.Context, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, n.method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		output["json"] = decoded
	}

	return output, nil
}

func (n *HTTPRequestNode) errorResult(message string) *models.NodeResult {
	return &models.NodeResult{NodeID: n.id, Error: message}
}
