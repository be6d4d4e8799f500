package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always come back as float
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_ObjectConstruction(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"name":  "Alice",
			"email": "alice@example.com",
		},
		"orders": []any{
			map[string]any{"id": 1, "total": 100.50},
			map[string]any{"id": 2, "total": 75.25},
		},
	}

	result, err := Render("{{ .user.name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "Alice", result)

	result, err = Render(`{
		"user_name": "{{ .user.name }}",
		"total_orders": {{ len .orders }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)

	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
}

func TestRender_ConditionalExpression(t *testing.T) {
	data := map[string]any{
		"api_call": map[string]any{
			"status": 200,
		},
	}

	result, err := Render("{{ if eq .api_call.status 200 }}success{{ else }}failed{{ end }}", data)
	require.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestRender_ErrorHandling(t *testing.T) {
	data := map[string]any{
		"test": "value",
	}

	_, err := Render("{ invalid..expression }}", data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")

	_, err = Render("{{ nonexistent.field }}", data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")
}

func TestRender_StringInterpolation(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"name": "John",
			"id":   123,
		},
		"action": "login",
	}

	result, err := Render("User {{.user.name}} performed {{.action}}", data)
	require.NoError(t, err)
	assert.Equal(t, "User John performed login", result)

	result, err = Render("https://api.example.com/users/{{.user.id}}", data)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/123", result)
}

func TestRenderString_NoCoercion(t *testing.T) {
	result, err := RenderString("{{ .amount }}", map[string]any{"amount": "100"})
	require.NoError(t, err)
	assert.Equal(t, "100", result)
}

func TestScope(t *testing.T) {
	t.Setenv("VESSEL_TEST_SCOPE_VAR", "from_env")

	scope := Scope("exec-1", "wf-1", "node-1", map[string]any{
		"trigger": map[string]any{"kind": "webhook"},
	}, map[string]string{"API_TOKEN": "s3cret"})

	result, err := Render("{{ .execution.id }}/{{ .execution.node_id }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "exec-1/node-1", result)

	result, err = Render("{{ .env.VESSEL_TEST_SCOPE_VAR }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "from_env", result)

	result, err = Render("{{ .trigger.kind }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "webhook", result)

	result, err = Render("Bearer {{ .secrets.API_TOKEN }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", result)
}

func TestRenderAny_WalksNestedValues(t *testing.T) {
	data := map[string]any{"city": "Lisbon", "temp": 21}

	value, err := RenderAny(map[string]any{
		"static":  "unchanged",
		"message": "weather in {{ .city }}",
		"reading": "{{ .temp }}",
		"nested": []any{
			"{{ .city }}",
			42,
		},
	}, data)
	require.NoError(t, err)

	rendered, ok := value.(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "unchanged", rendered["static"])
	assert.Equal(t, "weather in Lisbon", rendered["message"])
	assert.Equal(t, 21.0, rendered["reading"])

	nested, ok := rendered["nested"].([]any)
	require.True(t, ok)
	assert.Equal(t, "Lisbon", nested[0])
	assert.Equal(t, 42, nested[1])
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, NeedsTemplating("{{ .value }}"))
	assert.False(t, NeedsTemplating("plain text"))
	assert.False(t, NeedsTemplating("0x38869bf66a61cF6bDB996A6aE40D5853Fd43B526"))
}
