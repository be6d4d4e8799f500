package httprequest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/vesselhq/vessel/pkg/protocol"
)

func testInput(data map[string]any) protocol.Input {
	return protocol.Input{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "test-http",
		Data:        data,
	}
}

func TestHTTPRequestNode_Execute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"price": "1850.25", "asset": "ETH"}`))
	}))
	defer server.Close()

	node, err := NewHTTPRequestNode("test-http", map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(nil))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	if result.Output["status_code"] != http.StatusOK {
		t.Errorf("expected status code 200, got %v", result.Output["status_code"])
	}

	decoded, ok := result.Output["json"].(map[string]any)
	if !ok {
		t.Fatal("expected JSON responses to be decoded")
	}

	if decoded["asset"] != "ETH" {
		t.Errorf("expected decoded body, got %v", decoded)
	}
}

func TestHTTPRequestNode_Execute_TemplatedRequest(t *testing.T) {
	var gotPath, gotHeader, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Run")

		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	node, err := NewHTTPRequestNode("test-http", map[string]any{
		"url":     server.URL + "/assets/{{.trigger.asset}}",
		"method":  "POST",
		"headers": map[string]any{"X-Run": "{{.execution.id}}"},
		"body":    `{"amount": {{.amount}}}`,
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	data := map[string]any{
		"trigger": map[string]any{"asset": "usdc"},
		"amount":  12,
	}

	result, err := node.Execute(context.Background(), testInput(data))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	if gotPath != "/assets/usdc" {
		t.Errorf("expected templated path, got %q", gotPath)
	}

	if gotHeader != "exec-1" {
		t.Errorf("expected templated header, got %q", gotHeader)
	}

	if gotBody != `{"amount": 12}` {
		t.Errorf("expected templated body, got %q", gotBody)
	}
}

func TestHTTPRequestNode_Execute_SecretsInHeaders(t *testing.T) {
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	node, err := NewHTTPRequestNode("test-http", map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer {{.secrets.API_TOKEN}}"},
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	in := testInput(nil)
	in.Secrets = map[string]string{"API_TOKEN": "tok-123"}

	result, err := node.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected secret-backed header, got %q", gotAuth)
	}
}

func TestHTTPRequestNode_Execute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	node, err := NewHTTPRequestNode("test-http", map[string]any{
		"url":     server.URL,
		"retries": map[string]any{"attempts": float64(3), "delay_ms": float64(1)},
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(nil))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success after retries, got error: %s", result.Error)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPRequestNode_Execute_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	node, err := NewHTTPRequestNode("test-http", map[string]any{
		"url":     server.URL,
		"retries": map[string]any{"attempts": float64(5), "delay_ms": float64(1)},
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	result, err := node.Execute(context.Background(), testInput(nil))
	if err != nil {
		t.Fatalf("node execution failed: %v", err)
	}

	if result.Success {
		t.Error("expected a failed result for a 404 response")
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt for a client error, got %d", got)
	}
}

func TestHTTPRequestNode_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing url", config: map[string]any{}},
		{name: "bad method", config: map[string]any{"url": "http://x", "method": "FETCH"}},
		{name: "timeout too large", config: map[string]any{"url": "http://x", "timeout": float64(500)}},
		{
			name:   "too many attempts",
			config: map[string]any{"url": "http://x", "retries": map[string]any{"attempts": float64(50)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHTTPRequestNode("test-http", tt.config); err == nil {
				t.Error("expected a config error")
			}
		})
	}
}
