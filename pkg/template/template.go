// Package template renders task configuration blobs against a bundling context.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	EngineExpr       = "expr"
	EngineGoTemplate = "gotemplate"
)

var (
	// ErrUnknownEngine is returned by New for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown template engine")

	// ErrRender wraps every parse or evaluation failure.
	ErrRender = errors.New("template render failed")
)

// Renderer turns template text into a string using data as the lookup context.
type Renderer interface {
	Name() string
	Render(text string, data map[string]any) (string, error)
}

// New returns the renderer registered under engine. An empty name selects expr.
func New(engine string) (Renderer, error) {
	switch engine {
	case "", EngineExpr:
		return NewExprRenderer(), nil
	case EngineGoTemplate:
		return NewGoTemplateRenderer(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// Source returns the template text of a stored JSON blob. A JSON string is the
// template itself; any other JSON value is rendered from its JSON text.
func Source(blob json.RawMessage) string {
	var text string

	if err := json.Unmarshal(blob, &text); err == nil {
		return text
	}

	return string(blob)
}

// Value converts rendered output into a structured value when it is a JSON object
// or array, and keeps it as a string otherwise.
func Value(rendered string) any {
	trimmed := strings.TrimSpace(rendered)

	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var structured any

		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil {
			return structured
		}
	}

	return rendered
}
