// Package registry maps plugin ids to the executors that run tasks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownPlugin is returned when no executor is registered for a plugin id.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrInvalidPayload is returned when a payload does not match an executor schema.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Executor runs a bundled payload and returns its result.
type Executor interface {
	ID() string
	Execute(ctx context.Context, payload any) (any, error)
}

// ExecutionError wraps an executor failure with the plugin that produced it.
type ExecutionError struct {
	PluginID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.PluginID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Option func(*Registry)

// WithFallback runs executor for plugin ids nothing else is registered for.
func WithFallback(executor Executor) Option {
	return func(r *Registry) {
		r.fallback = executor
	}
}

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	executors map[string]Executor
	fallback  Executor
}

func New(logger *slog.Logger, opts ...Option) *Registry {
	registry := &Registry{
		logger:    logger.With("module", "registry"),
		executors: make(map[string]Executor),
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// Register adds executor under its ID, replacing any previous one.
func (r *Registry) Register(executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[executor.ID()] = executor
}

// Lookup resolves a plugin id, falling back when configured.
func (r *Registry) Lookup(pluginID string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if executor, ok := r.executors[pluginID]; ok {
		return executor, nil
	}

	if r.fallback != nil {
		return r.fallback, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, pluginID)
}

// Execute dispatches payload to the executor of pluginID.
func (r *Registry) Execute(ctx context.Context, pluginID string, payload any) (any, error) {
	executor, err := r.Lookup(pluginID)
	if err != nil {
		return nil, err
	}

	if executor.ID() != pluginID {
		r.logger.WarnContext(ctx, "no executor registered, using fallback",
			"plugin_id", pluginID,
			"fallback", executor.ID())
	}

	result, err := executor.Execute(ctx, payload)
	if err != nil {
		return nil, &ExecutionError{PluginID: pluginID, Err: err}
	}

	return result, nil
}

// IDs lists the registered plugin ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// ValidatePayload checks payload against a JSON schema.
func ValidatePayload(schema map[string]any, payload any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(messages, "; "))
	}

	return nil
}
