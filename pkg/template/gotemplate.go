package template

import (
	"crypto/rand"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// GoTemplateRenderer renders with text/template. Fields are addressed with a
// leading dot: {{ .accounts.slack.access_token }}. Missing keys are errors.
type GoTemplateRenderer struct {
	funcs template.FuncMap
}

func NewGoTemplateRenderer() *GoTemplateRenderer {
	return &GoTemplateRenderer{
		funcs: template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(limit int) int {
				if limit <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % limit
			},
		},
	}
}

func (r *GoTemplateRenderer) Name() string {
	return EngineGoTemplate
}

func (r *GoTemplateRenderer) Render(text string, data map[string]any) (string, error) {
	tmpl, err := template.
		New("config").
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse template: %w", ErrRender, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("%w: failed to execute template: %w", ErrRender, err)
	}

	return buf.String(), nil
}
