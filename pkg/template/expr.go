package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprRenderer resolves {{ expression }} placeholders with expr-lang. Strings are
// written as-is, other values as JSON. Compiled programs are cached per expression.
type ExprRenderer struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExprRenderer() *ExprRenderer {
	return &ExprRenderer{cache: make(map[string]*vm.Program)}
}

func (r *ExprRenderer) Name() string {
	return EngineExpr
}

func (r *ExprRenderer) Render(text string, data map[string]any) (string, error) {
	var result strings.Builder

	result.Grow(len(text))

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "{{")
		if idx == -1 {
			result.WriteString(text[i:])

			break
		}

		result.WriteString(text[i : i+idx])
		start := i + idx + 2

		end := strings.Index(text[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("%w: unclosed {{ at offset %d", ErrRender, i+idx)
		}

		end += start

		expression := strings.TrimSpace(text[start:end])
		if expression == "" {
			return "", fmt.Errorf("%w: empty expression at offset %d", ErrRender, i+idx)
		}

		value, err := r.evaluate(expression, data)
		if err != nil {
			return "", err
		}

		inline, err := marshalInline(value)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrRender, expression, err)
		}

		result.WriteString(inline)

		i = end + 2
	}

	return result.String(), nil
}

func (r *ExprRenderer) evaluate(expression string, data map[string]any) (any, error) {
	program, err := r.compile(expression)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluating %q: %w", ErrRender, expression, err)
	}

	if out == nil {
		return nil, fmt.Errorf("%w: %q resolved to nothing", ErrRender, expression)
	}

	return out, nil
}

func (r *ExprRenderer) compile(expression string) (*vm.Program, error) {
	r.mu.RLock()
	program, ok := r.cache[expression]
	r.mu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: compiling %q: %w", ErrRender, expression, err)
	}

	r.mu.Lock()
	r.cache[expression] = program
	r.mu.Unlock()

	return program, nil
}

func marshalInline(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}

		return string(encoded), nil
	}
}
