package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/config"
	"github.com/rxtech-lab/pairs-ledger/internal/database"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/internal/report"
	"github.com/rxtech-lab/pairs-ledger/internal/version"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/urfave/cli/v3"
)

// app holds what every command shares. The gateway is opened lazily by commands that need it.
type app struct {
	cfg     config.Config
	log     *logger.Logger
	gateway *database.Gateway
	out     io.Writer
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}

	if uri := cmd.String("database"); uri != "" {
		cfg.Database.URI = uri
	}

	if level := cmd.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	log, err := logger.NewLoggerWithConfig(cfg.Logging)
	if err != nil {
		return ctx, err
	}

	a.cfg = cfg
	a.log = log

	return ctx, nil
}

func (a *app) after(_ context.Context, _ *cli.Command) error {
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			return err
		}

		a.gateway = nil
	}

	if a.log != nil {
		_ = a.log.Sync()
	}

	return nil
}

// connect opens the configured database once per run.
func (a *app) connect(ctx context.Context, opts ...database.Option) (*database.Gateway, error) {
	if a.gateway != nil {
		return a.gateway, nil
	}

	opts = append([]database.Option{
		database.WithLogger(a.log),
		database.WithQueryTimeout(a.cfg.Database.QueryTimeout),
		database.WithMaxOpenConns(a.cfg.Database.MaxOpenConns),
	}, opts...)

	gateway, err := database.Connect(ctx, a.cfg.Database.URI, opts...)
	if err != nil {
		return nil, err
	}

	a.gateway = gateway

	return gateway, nil
}

func (a *app) printer(cmd *cli.Command) *report.Printer {
	if cmd.Bool("json") {
		return report.NewPrinter(a.out, report.FormatJSON)
	}

	return report.NewPrinter(a.out, report.FormatTable)
}

// days reads the optional --days window.
func days(cmd *cli.Command) optional.Option[int] {
	if !cmd.IsSet("days") {
		return optional.None[int]()
	}

	return optional.Some(int(cmd.Int("days")))
}

func newApp(out io.Writer) *cli.Command {
	a := &app{out: out}

	return &cli.Command{
		Name:    "ledger",
		Version: version.GetVersion(),
		Usage:   "Record pairs trading signals, orders and positions and report on their performance",
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "database",
				Usage: "Database URI (duckdb://path, mysql://..., postgres://...), overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.schemaCommand(),
			a.healthCommand(),
			a.signalCommand(),
			a.orderCommand(),
			a.fillCommand(),
			a.reportCommand(),
			a.exportCommand(),
			a.importCommand(),
			a.simulateCommand(),
			a.serveCommand(),
			a.configCommand(),
		},
	}
}

// describe turns an error into the message shown to the user.
func describe(err error) string {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return "invalid input: " + err.Error()
	case errors.KindConnection:
		return "database unavailable: " + err.Error()
	case errors.KindDataAccess:
		return "database operation failed: " + err.Error()
	case errors.KindInvalidOrderState:
		return "order cannot change positions: " + err.Error()
	case errors.KindExchange:
		return "exchange request failed: " + err.Error()
	default:
		return err.Error()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, report.TitleStyle.Render("Error:"), describe(err))
		os.Exit(1)
	}
}
