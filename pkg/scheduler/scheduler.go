// Package scheduler polls for pending tasks and runs their flow sessions with bounded
// concurrency.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/operion-engine/pkg/eventbus"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/dukex/operion-engine/pkg/otelhelper"
	"github.com/dukex/operion-engine/pkg/persistence"
	"github.com/dukex/operion-engine/pkg/retry"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const DefaultMaxConcurrency = 10

// Planner expands a trigger task into the pending tasks of its flow session.
type Planner interface {
	ProcessTrigger(ctx context.Context, trigger *models.Task) ([]*models.Task, error)
}

// Bundler renders the payload of a task right before execution.
type Bundler interface {
	Bundle(ctx context.Context, task *models.Task) (any, error)
}

// Dispatcher runs a payload with the executor registered for pluginID.
type Dispatcher interface {
	Execute(ctx context.Context, pluginID string, payload any) (any, error)
}

type Config struct {
	MaxConcurrency int64
	BackoffFloor   time.Duration
	BackoffMax     time.Duration

	// BundleTimeout bounds rendering, credential refresh included. Zero disables it.
	BundleTimeout time.Duration
	// TaskTimeout bounds each executor attempt. Zero disables it.
	TaskTimeout time.Duration

	Retry retry.Policy
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
		BackoffFloor:   DefaultBackoffFloor,
		BackoffMax:     DefaultBackoffMax,
		Retry:          retry.Once(),
	}
}

type Option func(*Scheduler)

// WithPublisher publishes flow.finished events when a flow session ends.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *Scheduler) {
		s.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

type Scheduler struct {
	logger     *slog.Logger
	tasks      persistence.TaskRepository
	planner    Planner
	bundler    Bundler
	dispatcher Dispatcher
	signal     *Signal
	config     Config

	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	now       func() time.Time

	sem     *semaphore.Weighted
	backoff *Backoff
	wg      sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(
	logger *slog.Logger,
	tasks persistence.TaskRepository,
	planner Planner,
	bundler Bundler,
	dispatcher Dispatcher,
	signal *Signal,
	config Config,
	opts ...Option,
) *Scheduler {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}

	s := &Scheduler{
		logger:     logger.With("module", "scheduler"),
		tasks:      tasks,
		planner:    planner,
		bundler:    bundler,
		dispatcher: dispatcher,
		signal:     signal,
		config:     config,
		tracer:     otelhelper.NoopTracer(),
		now:        func() time.Time { return time.Now().UTC() },
		sem:        semaphore.NewWeighted(config.MaxConcurrency),
		backoff:    NewBackoff(config.BackoffFloor, config.BackoffMax),
		inFlight:   make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run polls until ctx is done, then waits for in-flight flows to finish. In-flight flows
// are not interrupted by ctx; task timeouts bound how long that takes.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler",
		"max_concurrency", s.config.MaxConcurrency,
		"backoff_floor", s.backoff.floor,
		"backoff_max", s.backoff.max)

	defer s.wg.Wait()

	flowCtx := context.WithoutCancel(ctx)

	for {
		if !s.wait(ctx) {
			s.logger.InfoContext(ctx, "Stopping scheduler, waiting for in-flight flows")

			return nil
		}

		task := s.poll(ctx)
		if task == nil {
			next := s.backoff.Increase()
			s.logger.DebugContext(ctx, "No pending task", "next_poll", next)

			continue
		}

		s.backoff.Reset()

		err := s.sem.Acquire(ctx, 1)
		if err != nil {
			return nil
		}

		s.track(task.FlowSessionID)
		s.wg.Add(1)

		go s.processFlow(flowCtx, task)
	}
}

func (s *Scheduler) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.backoff.Current())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.signal.C():
		s.logger.DebugContext(ctx, "Received wake signal")
	case <-timer.C:
	}

	return ctx.Err() == nil
}

// poll returns the oldest pending task, preferring the testing stage. Read errors are
// logged and treated as no task.
func (s *Scheduler) poll(ctx context.Context) *models.Task {
	exclude := s.sessions()

	for _, stage := range models.PollOrder {
		task, err := s.tasks.NextPending(ctx, stage, exclude)
		if err == nil {
			return task
		}

		if !errors.Is(err, persistence.ErrTaskNotFound) {
			s.logger.ErrorContext(ctx, "Failed to poll pending task", "stage", stage, "error", err)

			return nil
		}
	}

	return nil
}

func (s *Scheduler) track(flowSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight[flowSessionID] = struct{}{}
}

func (s *Scheduler) untrack(flowSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, flowSessionID)
}

func (s *Scheduler) sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}

	return ids
}

// IdleDelay is how long the loop waits before its next poll unless woken.
func (s *Scheduler) IdleDelay() time.Duration {
	return s.backoff.Current()
}

// InFlight reports how many flow sessions are currently being processed.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inFlight)
}
