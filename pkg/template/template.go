// Package template renders node configuration values against run state
// using Go text templates.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

func funcMap() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(maxValue int) int {
			if maxValue <= 0 {
				return 0
			}

			num := make([]byte, 1)
			if _, err := rand.Read(num); err != nil {
				return 0
			}

			return int(num[0]) % maxValue
		},
	}
}

// NeedsTemplating reports whether a string contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Scope assembles the render scope for one node invocation: the node's
// merged input at the top level, plus env, secrets and execution metadata.
func Scope(executionID, workflowID, nodeID string, data map[string]any, secrets map[string]string) map[string]any {
	scope := make(map[string]any, len(data)+3)

	for key, value := range data {
		scope[key] = value
	}

	scope["env"] = envVars()
	scope["secrets"] = secrets
	scope["execution"] = map[string]any{
		"id":          executionID,
		"workflow_id": workflowID,
		"node_id":     nodeID,
	}

	return scope
}

// RenderString renders a template and returns the raw output.
func RenderString(templateStr string, data any) (string, error) {
	tmpl, err := template.New("node").Funcs(funcMap()).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render renders a template and coerces the output: JSON objects and arrays
// decode into maps and slices, numeric text into float64, boolean text into
// bool, anything else stays a string.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderAny walks maps and slices rendering every templated string leaf.
// Strings without template actions and non-string leaves pass through.
func RenderAny(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := RenderAny(item, data)
			if err != nil {
				return nil, err
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := RenderAny(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
