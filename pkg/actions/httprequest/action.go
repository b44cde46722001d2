// Package httprequest provides the "http" executor: one outbound HTTP request per task.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/operion-engine/pkg/registry"
)

const (
	PluginID              = "http"
	defaultTimeoutSeconds = 30
)

var (
	// ErrUnsupportedMethod is returned for methods other than GET, POST, PUT and DELETE.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
	// ErrMissingField is returned when method or url is absent from the payload.
	ErrMissingField = errors.New("HTTP missing required fields (method, url)")
	// ErrHTTPStatus is returned for non-2xx responses when FailOnStatus is set.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

var supportedMethods = map[string]string{
	"GET":    http.MethodGet,
	"POST":   http.MethodPost,
	"PUT":    http.MethodPut,
	"DELETE": http.MethodDelete,
}

// Request is the decoded payload of an http task.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

type Option func(*Action)

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Action) {
		a.client.Timeout = timeout
	}
}

// WithFailOnStatus makes non-2xx responses an execution failure.
func WithFailOnStatus(fail bool) Option {
	return func(a *Action) {
		a.failOnStatus = fail
	}
}

// WithClient replaces the HTTP client, keeping the configured timeout.
func WithClient(client *http.Client) Option {
	return func(a *Action) {
		timeout := a.client.Timeout
		a.client = client

		if a.client.Timeout == 0 {
			a.client.Timeout = timeout
		}
	}
}

// Action performs the HTTP request described by a task payload.
type Action struct {
	logger       *slog.Logger
	client       *http.Client
	failOnStatus bool
}

var _ registry.Executor = (*Action)(nil)

func NewAction(logger *slog.Logger, opts ...Option) *Action {
	action := &Action{
		logger: logger.With("module", "http_request_action"),
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}

	for _, opt := range opts {
		opt(action)
	}

	return action
}

func (a *Action) ID() string {
	return PluginID
}

// Execute sends the request and returns the raw response body as a string.
func (a *Action) Execute(ctx context.Context, payload any) (any, error) {
	request, err := ParseRequest(payload)
	if err != nil {
		return nil, err
	}

	a.logger.DebugContext(ctx, "Creating HTTP request", "method", request.Method, "url", request.URL)

	var body io.Reader
	if request.Body != "" {
		body = strings.NewReader(request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, request.Method, request.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	a.logger.InfoContext(ctx, "HTTP request completed",
		"status", resp.StatusCode,
		"body_length", len(bodyBytes))

	if a.failOnStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	return string(bodyBytes), nil
}

// ParseRequest validates a bundled payload and extracts the request fields. Every
// validation error wraps registry.ErrInvalidPayload.
func ParseRequest(payload any) (*Request, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %w: payload must be an object", registry.ErrInvalidPayload, ErrMissingField)
	}

	method, _ := fields["method"].(string)
	url, _ := fields["url"].(string)

	if method == "" || url == "" {
		return nil, fmt.Errorf("%w: %w", registry.ErrInvalidPayload, ErrMissingField)
	}

	normalized, ok := supportedMethods[strings.ToUpper(method)]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", registry.ErrInvalidPayload, ErrUnsupportedMethod, method)
	}

	err := registry.ValidatePayload(Schema(), payload)
	if err != nil {
		return nil, err
	}

	request := &Request{
		Method:  normalized,
		URL:     url,
		Headers: make(map[string]string),
	}

	if headers, ok := fields["headers"].(map[string]any); ok {
		for key, value := range headers {
			if str, ok := value.(string); ok {
				request.Headers[key] = str
			}
		}
	}

	request.Body, _ = fields["body"].(string)

	return request, nil
}
