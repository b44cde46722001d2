package main

import (
	"context"
	"time"

	"github.com/dukex/operion-engine/pkg/accounts"
	"github.com/dukex/operion-engine/pkg/log"
	"github.com/dukex/operion-engine/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the scheduler, the trigger API and the cron source",
		Flags: []cli.Flag{
			databaseURLFlag(),
			&cli.Int64Flag{
				Name:    "max-concurrency",
				Usage:   "Maximum number of flow sessions processed at once",
				Value:   scheduler.DefaultMaxConcurrency,
				Sources: cli.EnvVars("MAX_CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "backoff-floor",
				Usage:   "Idle wait after a poll finds work",
				Value:   scheduler.DefaultBackoffFloor,
				Sources: cli.EnvVars("BACKOFF_FLOOR"),
			},
			&cli.DurationFlag{
				Name:    "backoff-max",
				Usage:   "Upper bound of the idle wait",
				Value:   scheduler.DefaultBackoffMax,
				Sources: cli.EnvVars("BACKOFF_MAX"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka); empty disables events",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "enable-secrets",
				Usage:   "Expose account secrets to templates as secrets.<name>",
				Sources: cli.EnvVars("ENABLE_SECRETS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL of the secrets store; in-memory when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "enable-results",
				Usage:   "Expose completed task results to templates as <node_id>.result",
				Value:   true,
				Sources: cli.EnvVars("ENABLE_RESULTS"),
			},
			&cli.BoolFlag{
				Name:    "allow-unknown-plugins",
				Usage:   "Run tasks with an unregistered plugin as no-ops instead of failing them",
				Sources: cli.EnvVars("ALLOW_UNKNOWN_PLUGINS"),
			},
			&cli.BoolFlag{
				Name:    "http-fail-on-status",
				Usage:   "Fail http tasks answered with a non-2xx status",
				Sources: cli.EnvVars("HTTP_FAIL_ON_STATUS"),
			},
			&cli.DurationFlag{
				Name:    "http-timeout",
				Usage:   "Timeout of http task requests",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("HTTP_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "task-timeout",
				Usage:   "Timeout of each executor attempt; 0 disables it",
				Sources: cli.EnvVars("TASK_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "bundle-timeout",
				Usage:   "Timeout of input rendering and credential refresh; 0 disables it",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("BUNDLE_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "retry-attempts",
				Usage:   "Executor attempts per task",
				Value:   1,
				Sources: cli.EnvVars("RETRY_ATTEMPTS"),
			},
			&cli.DurationFlag{
				Name:    "retry-delay",
				Usage:   "Delay before the first retry, doubled on each attempt",
				Value:   time.Second,
				Sources: cli.EnvVars("RETRY_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "retry-max-delay",
				Usage:   "Upper bound of the retry delay",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("RETRY_MAX_DELAY"),
			},
			&cli.StringFlag{
				Name:    "template-engine",
				Usage:   "Input template engine (expr, gotemplate)",
				Value:   "expr",
				Sources: cli.EnvVars("TEMPLATE_ENGINE"),
			},
			&cli.DurationFlag{
				Name:    "oauth-leeway",
				Usage:   "Refresh OAuth tokens expiring within this window",
				Value:   accounts.DefaultLeeway,
				Sources: cli.EnvVars("OAUTH_LEEWAY"),
			},
			&cli.IntFlag{
				Name:    "api-port",
				Usage:   "Port of the trigger API; 0 disables it",
				Value:   3000,
				Sources: cli.EnvVars("API_PORT"),
			},
			&cli.BoolFlag{
				Name:    "disable-schedules",
				Usage:   "Do not fire cron schedules",
				Sources: cli.EnvVars("DISABLE_SCHEDULES"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_* variables)",
				Sources: cli.EnvVars("TRACING"),
			},
			&cli.FloatFlag{
				Name:    "trace-sample-ratio",
				Usage:   "Fraction of flow runs traced when tracing is enabled",
				Value:   1,
				Sources: cli.EnvVars("TRACE_SAMPLE_RATIO"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("operion-engine")

			logger.InfoContext(ctx, "Initializing Operion Engine")

			engine, err := NewEngine(ctx, logger, configFromCommand(command))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize engine", "error", err)

				return err
			}

			return engine.Run(ctx)
		},
	}
}

func configFromCommand(command *cli.Command) EngineConfig {
	return EngineConfig{
		DatabaseURL:         command.String("database-url"),
		EventBus:            command.String("event-bus"),
		KafkaBrokers:        command.String("kafka-brokers"),
		EnableSecrets:       command.Bool("enable-secrets"),
		RedisURL:            command.String("redis-url"),
		EnableResults:       command.Bool("enable-results"),
		AllowUnknownPlugins: command.Bool("allow-unknown-plugins"),
		HTTPFailOnStatus:    command.Bool("http-fail-on-status"),
		HTTPTimeout:         command.Duration("http-timeout"),
		TemplateEngine:      command.String("template-engine"),
		OAuthLeeway:         command.Duration("oauth-leeway"),
		APIPort:             command.Int("api-port"),
		DisableSchedules:    command.Bool("disable-schedules"),
		Tracing:             command.Bool("tracing"),
		TraceSampleRatio:    command.Float("trace-sample-ratio"),
		Scheduler: scheduler.Config{
			MaxConcurrency: command.Int64("max-concurrency"),
			BackoffFloor:   command.Duration("backoff-floor"),
			BackoffMax:     command.Duration("backoff-max"),
			BundleTimeout:  command.Duration("bundle-timeout"),
			TaskTimeout:    command.Duration("task-timeout"),
			Retry:          retryPolicy(command.Int("retry-attempts"), command.Duration("retry-delay"), command.Duration("retry-max-delay")),
		},
	}
}
