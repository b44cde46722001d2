package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/operion-engine/pkg/actions/httprequest"
	logaction "github.com/dukex/operion-engine/pkg/actions/log"
	"github.com/dukex/operion-engine/pkg/actions/noop"
	"github.com/dukex/operion-engine/pkg/registry"
)

type RegistryOptions struct {
	HTTPTimeout         time.Duration
	HTTPFailOnStatus    bool
	AllowUnknownPlugins bool
}

// NewRegistry registers the native executors. With AllowUnknownPlugins, tasks naming an
// unregistered plugin run the noop executor instead of failing.
func NewRegistry(logger *slog.Logger, options RegistryOptions) *registry.Registry {
	var opts []registry.Option
	if options.AllowUnknownPlugins {
		opts = append(opts, registry.WithFallback(noop.NewAction(logger)))
	}

	reg := registry.New(logger, opts...)

	httpOptions := []httprequest.Option{httprequest.WithFailOnStatus(options.HTTPFailOnStatus)}
	if options.HTTPTimeout > 0 {
		httpOptions = append(httpOptions, httprequest.WithTimeout(options.HTTPTimeout))
	}

	reg.Register(httprequest.NewAction(logger, httpOptions...))
	reg.Register(logaction.NewAction(logger))

	return reg
}
