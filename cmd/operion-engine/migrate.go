package main

import (
	"context"
	"fmt"

	"github.com/dukex/operion-engine/pkg/cmd"
	"github.com/dukex/operion-engine/pkg/log"
	"github.com/urfave/cli/v3"
)

func NewMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit",
		Flags: []cli.Flag{
			databaseURLFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("operion-engine")

			// Opening a postgres store applies its migrations.
			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}

			logger.InfoContext(ctx, "Database is up to date")

			return store.Close(ctx)
		},
	}
}
