package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "operion-engine",
		EnableShellCompletion: true,
		Usage:                 "Plan and execute workflow tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewMigrateCommand(),
			NewPlanCommand(),
			NewValidateCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func databaseURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Database connection URL for persistence (postgres://... or memory://)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}
