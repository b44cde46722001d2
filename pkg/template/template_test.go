package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundleContext() map[string]any {
	return map[string]any{
		"accounts": map[string]any{
			"slack": map[string]any{
				"access_token": "abc",
				"scopes":       []any{"chat:write"},
			},
		},
		"variables": map[string]any{
			"token":   "abc",
			"retries": 3.0,
		},
	}
}

func TestExprRenderer_Render(t *testing.T) {
	r := NewExprRenderer()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"plain text", `{"a": 1}`, `{"a": 1}`},
		{"string value is written raw", `{"token": "{{ accounts.slack.access_token }}"}`, `{"token": "abc"}`},
		{"number value", `{"retries": {{ variables.retries }}}`, `{"retries": 3}`},
		{"array value as json", `{"scopes": {{ accounts.slack.scopes }}}`, `{"scopes": ["chat:write"]}`},
		{"expression", `{{ variables.token + "-x" }}`, `abc-x`},
		{"without spaces", `{{variables.token}}`, `abc`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Render(tt.text, bundleContext())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExprRenderer_Errors(t *testing.T) {
	r := NewExprRenderer()

	tests := []struct {
		name string
		text string
	}{
		{"unclosed", `{{ variables.token `},
		{"empty", `{{ }}`},
		{"undefined variable", `{{ missing }}`},
		{"syntax error", `{{ variables. }}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(tt.text, bundleContext())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRender)
		})
	}
}

func TestExprRenderer_CachesPrograms(t *testing.T) {
	r := NewExprRenderer()

	_, err := r.Render(`{{ variables.token }}`, bundleContext())
	require.NoError(t, err)

	result, err := r.Render(`{{ variables.token }}`, map[string]any{"variables": map[string]any{"token": "def"}})
	require.NoError(t, err)
	assert.Equal(t, "def", result)
	assert.Len(t, r.cache, 1)
}

func TestGoTemplateRenderer_Render(t *testing.T) {
	r := NewGoTemplateRenderer()

	result, err := r.Render(`{"token": "{{ .accounts.slack.access_token }}"}`, bundleContext())
	require.NoError(t, err)
	assert.JSONEq(t, `{"token": "abc"}`, result)

	_, err = r.Render(`{{ .missing.key }}`, bundleContext())
	require.ErrorIs(t, err, ErrRender)

	_, err = r.Render(`{{ .accounts `, bundleContext())
	require.ErrorIs(t, err, ErrRender)

	result, err = r.Render(`{{ rand 0 }}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "0", result)
}

func TestNew(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)
	assert.Equal(t, EngineExpr, r.Name())

	r, err = New(EngineGoTemplate)
	require.NoError(t, err)
	assert.Equal(t, EngineGoTemplate, r.Name())

	_, err = New("jsonata")
	require.ErrorIs(t, err, ErrUnknownEngine)
}

func TestSource(t *testing.T) {
	assert.Equal(t, `{"token": "{{ x }}"}`, Source(json.RawMessage(`"{\"token\": \"{{ x }}\"}"`)))
	assert.Equal(t, `{"token": "{{ x }}"}`, Source(json.RawMessage(`{"token": "{{ x }}"}`)))
}

func TestValue(t *testing.T) {
	assert.Equal(t, map[string]any{"token": "abc"}, Value(`{"token": "abc"}`))
	assert.Equal(t, []any{1.0, 2.0}, Value(` [1, 2] `))
	assert.Equal(t, "abc", Value("abc"))
	assert.Equal(t, "{not json}", Value("{not json}"))
}
