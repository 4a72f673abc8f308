package main

import (
	"github.com/smallbiznis/stagepass/internal/migration"
	"github.com/smallbiznis/stagepass/internal/scheduler"
	"github.com/smallbiznis/stagepass/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the settlement scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				infraModules(),
				domainModules(),
				server.Module,
				scheduler.Module,
			}
			if !skipMigrations {
				opts = append(opts, migration.Module)
			}
			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on start")
	return cmd
}

func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the settlement scheduler without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infraModules(),
				domainModules(),
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
