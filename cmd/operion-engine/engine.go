package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/operion-engine/pkg/accounts"
	"github.com/dukex/operion-engine/pkg/bundler"
	"github.com/dukex/operion-engine/pkg/cmd"
	"github.com/dukex/operion-engine/pkg/eventbus"
	"github.com/dukex/operion-engine/pkg/otelhelper"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/planner"
	"github.com/dukex/operion-engine/pkg/retry"
	"github.com/dukex/operion-engine/pkg/scheduler"
	"github.com/dukex/operion-engine/pkg/secrets"
	"github.com/dukex/operion-engine/pkg/sources/schedule"
	"github.com/dukex/operion-engine/pkg/template"
	"github.com/dukex/operion-engine/pkg/trigger"
	"github.com/dukex/operion-engine/pkg/web"
	"github.com/go-playground/validator/v10"
)

const serviceName = "operion-engine"

type EngineConfig struct {
	DatabaseURL         string
	EventBus            string
	KafkaBrokers        string
	EnableSecrets       bool
	RedisURL            string
	EnableResults       bool
	AllowUnknownPlugins bool
	HTTPFailOnStatus    bool
	HTTPTimeout         time.Duration
	TemplateEngine      string
	OAuthLeeway         time.Duration
	APIPort             int
	DisableSchedules    bool
	Tracing             bool
	TraceSampleRatio    float64
	Scheduler           scheduler.Config
}

// Engine owns every long-lived component of a run. closers run in reverse order.
type Engine struct {
	logger    *slog.Logger
	config    EngineConfig
	store     persistence.Persistence
	bus       eventbus.EventBus
	scheduler *scheduler.Scheduler
	server    *web.Server
	schedules *schedule.Source
	closers   []func(context.Context) error
}

func retryPolicy(attempts int, delay, maxDelay time.Duration) retry.Policy {
	if attempts <= 1 {
		return retry.Once()
	}

	return retry.Policy{
		Attempts: attempts,
		Strategy: retry.Exponential{Initial: delay, Max: maxDelay},
	}
}

// NewEngine builds the engine. Any configuration error is returned before a task is polled.
func NewEngine(ctx context.Context, logger *slog.Logger, config EngineConfig) (*Engine, error) {
	e := &Engine{logger: logger, config: config}

	err := e.build(ctx)
	if err != nil {
		e.close(ctx)

		return nil, err
	}

	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	store, err := cmd.NewPersistence(ctx, e.logger, e.config.DatabaseURL)
	if err != nil {
		return err
	}

	e.store = store
	e.closers = append(e.closers, store.Close)

	renderer, err := template.New(e.config.TemplateEngine)
	if err != nil {
		return err
	}

	options := bundler.Options{
		Accounts: accounts.NewRefreshingProvider(e.logger, store.AccountRepository(),
			accounts.WithLeeway(e.config.OAuthLeeway)),
	}

	if e.config.EnableSecrets {
		options.Secrets, err = e.secretsStore(ctx)
		if err != nil {
			return err
		}
	}

	if e.config.EnableResults {
		options.Results = store.TaskRepository()
	}

	bus, err := cmd.NewEventBus(e.config.EventBus, e.config.KafkaBrokers, e.logger)
	if err != nil {
		return err
	}

	wake := scheduler.NewSignal()

	var (
		schedulerOpts  []scheduler.Option
		dispatcherOpts []trigger.Option
	)

	if bus != nil {
		e.bus = bus
		e.closers = append(e.closers, func(context.Context) error { return bus.Close() })

		err = scheduler.WakeOnTaskCreated(bus, wake)
		if err != nil {
			return err
		}

		schedulerOpts = append(schedulerOpts, scheduler.WithPublisher(bus))
		dispatcherOpts = append(dispatcherOpts, trigger.WithPublisher(bus))
	}

	if e.config.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName, e.config.TraceSampleRatio)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		e.closers = append(e.closers, shutdown)
		schedulerOpts = append(schedulerOpts, scheduler.WithTracer(tracer))
	}

	reg := cmd.NewRegistry(e.logger, cmd.RegistryOptions{
		HTTPTimeout:         e.config.HTTPTimeout,
		HTTPFailOnStatus:    e.config.HTTPFailOnStatus,
		AllowUnknownPlugins: e.config.AllowUnknownPlugins,
	})

	e.scheduler = scheduler.New(
		e.logger,
		store.TaskRepository(),
		planner.New(e.logger, store.FlowVersionRepository(), store.TaskRepository()),
		bundler.New(e.logger, renderer, options.Sources()...),
		reg,
		wake,
		e.config.Scheduler,
		schedulerOpts...,
	)

	dispatcher := trigger.NewDispatcher(e.logger, store.FlowVersionRepository(), store.TaskRepository(), wake, dispatcherOpts...)

	if !e.config.DisableSchedules {
		e.schedules = schedule.New(e.logger, store.ScheduleRepository(), dispatcher)
	}

	if e.config.APIPort > 0 {
		handlers := web.NewAPIHandlers(dispatcher, store, reg, validator.New(validator.WithRequiredStructEnabled()))
		e.server = web.NewServer(e.logger, handlers)
	}

	return nil
}

func (e *Engine) secretsStore(ctx context.Context) (secrets.Store, error) {
	if e.config.RedisURL == "" {
		e.logger.WarnContext(ctx, "Secrets enabled without a redis URL, using an empty in-memory store")

		return secrets.NewMemoryStore(), nil
	}

	store, err := secrets.NewRedisStore(ctx, e.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to secrets store: %w", err)
	}

	e.closers = append(e.closers, func(context.Context) error { return store.Close() })

	return store, nil
}

// Run blocks until SIGINT or SIGTERM, then drains in-flight flows. SIGHUP reloads the
// cron schedules.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer e.close(context.WithoutCancel(ctx))

	e.handleSignals(ctx, cancel)

	if e.bus != nil {
		err := e.bus.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to event bus: %w", err)
		}
	}

	if e.schedules != nil {
		err := e.schedules.Start(ctx)
		if err != nil {
			return fmt.Errorf("failed to start schedule source: %w", err)
		}

		defer func() {
			err := e.schedules.Stop(context.WithoutCancel(ctx))
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to stop schedule source", "error", err)
			}
		}()
	}

	if e.server != nil {
		go func() {
			err := e.server.Start(e.config.APIPort)
			if err != nil {
				e.logger.ErrorContext(ctx, "API server stopped", "error", err)
				cancel()
			}
		}()

		defer func() {
			err := e.server.Shutdown()
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to shut down API server", "error", err)
			}
		}()
	}

	err := e.scheduler.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	e.logger.InfoContext(ctx, "Operion Engine stopped")

	return nil
}

func (e *Engine) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				e.logger.InfoContext(ctx, "Received signal", "signal", sig)

				switch sig {
				case syscall.SIGHUP:
					e.reloadSchedules(ctx)
				default:
					e.logger.InfoContext(ctx, "Shutting down gracefully...")
					cancel()

					return
				}
			}
		}
	}()
}

func (e *Engine) reloadSchedules(ctx context.Context) {
	if e.schedules == nil {
		return
	}

	err := e.schedules.Reload(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to reload schedules", "error", err)

		return
	}

	e.logger.InfoContext(ctx, "Schedules reloaded", "schedules", e.schedules.Len())
}

func (e *Engine) close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		err := e.closers[i](ctx)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to close engine component", "error", err)
		}
	}

	e.closers = nil
}
