package main

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/pairs-ledger/internal/config"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/report"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/urfave/cli/v3"
)

func (a *app) schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Manage the ledger tables",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create the signals, orders and positions tables if they are missing",
				Action: func(ctx context.Context, _ *cli.Command) error {
					gateway, err := a.connect(ctx)
					if err != nil {
						return err
					}

					if err := gateway.CreateSchema(ctx); err != nil {
						return err
					}

					fmt.Fprintln(a.out, "Schema is up to date")

					return nil
				},
			},
			{
				Name:  "drop",
				Usage: "Drop every ledger table and its data",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm that all recorded data may be deleted",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if !cmd.Bool("yes") {
						return errors.New(errors.ErrCodeDestructiveNotAllowed, "dropping the schema deletes all data, pass --yes to confirm")
					}

					gateway, err := a.connect(ctx, database.WithDestructiveOperations())
					if err != nil {
						return err
					}

					if err := gateway.DropSchema(ctx); err != nil {
						return err
					}

					fmt.Fprintln(a.out, "Schema dropped")

					return nil
				},
			},
			{
				Name:  "tables",
				Usage: "List the tables of the database",
				Flags: []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gateway, err := a.connect(ctx)
					if err != nil {
						return err
					}

					tables, err := gateway.Tables(ctx)
					if err != nil {
						return err
					}

					if cmd.Bool("json") {
						return a.printer(cmd).Value(tables)
					}

					for _, table := range tables {
						fmt.Fprintln(a.out, table)
					}

					return nil
				},
			},
		},
	}
}

func (a *app) healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the database answers",
		Action: func(ctx context.Context, _ *cli.Command) error {
			gateway, err := a.connect(ctx)
			if err != nil {
				return err
			}

			if !gateway.IsAlive(ctx) {
				return errors.New(errors.ErrCodeLivenessFailed, "database did not answer")
			}

			fmt.Fprintln(a.out, "Database is alive:", gateway.Dialect().Name)

			return nil
		},
	}
}

func (a *app) configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the configuration",
		Commands: []*cli.Command{
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the configuration file",
				Action: func(_ context.Context, _ *cli.Command) error {
					schema, err := config.Schema()
					if err != nil {
						return err
					}

					fmt.Fprintln(a.out, schema)

					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration with secrets hidden",
				Action: func(_ context.Context, _ *cli.Command) error {
					cfg := a.cfg
					if cfg.Binance.SecretKey != "" {
						cfg.Binance.SecretKey = "***"
					}

					return report.NewPrinter(a.out, report.FormatJSON).Value(cfg)
				},
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of a table",
	}
}
