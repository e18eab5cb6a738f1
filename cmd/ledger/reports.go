package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rxtech-lab/pairs-ledger/internal/analytics"
	"github.com/rxtech-lab/pairs-ledger/internal/api"
	"github.com/rxtech-lab/pairs-ledger/internal/exchange"
	"github.com/rxtech-lab/pairs-ledger/internal/lifecycle"
	"github.com/rxtech-lab/pairs-ledger/internal/report"
	"github.com/rxtech-lab/pairs-ledger/internal/simulate"
	"github.com/rxtech-lab/pairs-ledger/internal/store"
	"github.com/urfave/cli/v3"
)

func windowFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "days",
		Aliases: []string{"d"},
		Usage:   "Only include positions closed in the last `N` days. Defaults to the full history.",
	}
}

// reportAction runs fn against the analytics engine of the configured database.
func (a *app) reportAction(fn func(ctx context.Context, cmd *cli.Command, reporter analytics.Reporter, printer *report.Printer) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		gateway, err := a.connect(ctx)
		if err != nil {
			return err
		}

		return fn(ctx, cmd, analytics.NewEngine(gateway, analytics.WithLogger(a.log)), a.printer(cmd))
	}
}

func (a *app) reportCommand() *cli.Command {
	flags := []cli.Flag{windowFlag(), jsonFlag()}

	return &cli.Command{
		Name:  "report",
		Usage: "Report on closed positions",
		Commands: []*cli.Command{
			{
				Name:  "trades",
				Usage: "List closed round trips, oldest exit first",
				Flags: flags,
				Action: a.reportAction(func(ctx context.Context, cmd *cli.Command, reporter analytics.Reporter, printer *report.Printer) error {
					trades, err := reporter.TradeHistory(ctx, days(cmd))
					if err != nil {
						return err
					}

					return printer.Trades(trades)
				}),
			},
			{
				Name:  "pnl",
				Usage: "Sum the realized PnL",
				Flags: flags,
				Action: a.reportAction(func(ctx context.Context, cmd *cli.Command, reporter analytics.Reporter, printer *report.Printer) error {
					window := days(cmd)

					total, err := reporter.TotalPnL(ctx, window)
					if err != nil {
						return err
					}

					return printer.TotalPnL(window, total)
				}),
			},
			{
				Name:  "win-loss",
				Usage: "Count winning and losing positions",
				Flags: flags,
				Action: a.reportAction(func(ctx context.Context, cmd *cli.Command, reporter analytics.Reporter, printer *report.Printer) error {
					window := days(cmd)

					ratio, err := reporter.WinLossRatio(ctx, window)
					if err != nil {
						return err
					}

					return printer.WinLoss(window, ratio)
				}),
			},
			{
				Name:  "returns",
				Usage: "Show the cumulative realized PnL after each close",
				Flags: flags,
				Action: a.reportAction(func(ctx context.Context, cmd *cli.Command, reporter analytics.Reporter, printer *report.Printer) error {
					points, err := reporter.CumulativeReturns(ctx, days(cmd))
					if err != nil {
						return err
					}

					return printer.Returns(points)
				}),
			},
			{
				Name:  "summary",
				Usage: "Run every report over the same window",
				Flags: flags,
				Action: a.reportAction(func(ctx context.Context, cmd *cli.Command, reporter analytics.Reporter, printer *report.Printer) error {
					summary, err := reporter.Summary(ctx, days(cmd))
					if err != nil {
						return err
					}

					return printer.Summary(summary)
				}),
			},
		},
	}
}

func (a *app) exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write every ledger table to Parquet (DuckDB only)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "Output directory", Value: "export"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gateway, err := a.connect(ctx)
			if err != nil {
				return err
			}

			files, err := store.Export(ctx, gateway, cmd.String("dir"))
			if err != nil {
				return err
			}

			for _, file := range files {
				fmt.Fprintln(a.out, file)
			}

			return nil
		},
	}
}

func (a *app) importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import executed trades from an exchange",
		Commands: []*cli.Command{
			{
				Name:  "binance",
				Usage: "Replay the account trades of a symbol into the ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Pair symbol, e.g. BTC/ETH", Required: true},
					&cli.TimestampFlag{
						Name:   "since",
						Usage:  "Skip trades before this time (`YYYY-MM-DD`)",
						Config: cli.TimestampConfig{Layouts: []string{"2006-01-02", time.RFC3339}},
					},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of trades to fetch"},
					&cli.BoolFlag{Name: "live", Usage: "Use the live exchange instead of the testnet"},
					jsonFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gateway, err := a.connect(ctx)
					if err != nil {
						return err
					}

					binanceConfig := a.cfg.Binance
					if cmd.Bool("live") {
						binanceConfig.UseTestnet = false
					}

					importer, err := exchange.NewBinanceImporter(binanceConfig,
						lifecycle.NewEngine(gateway, a.log), store.NewOrders(gateway), a.log)
					if err != nil {
						return err
					}

					req := exchange.ImportRequest{
						Symbol: cmd.String("symbol"),
						Since:  time.Time{},
						Limit:  int(cmd.Int("limit")),
					}

					if cmd.IsSet("since") {
						req.Since = cmd.Timestamp("since")
					}

					result, err := importer.Import(ctx, req)
					if err != nil {
						return err
					}

					if cmd.Bool("json") {
						return a.printer(cmd).Value(result)
					}

					fmt.Fprintf(a.out, "Fetched %d trades: %d opened, %d closed, %d ignored, %d already imported\n",
						result.Fetched, result.Opened, result.Closed, result.Ignored, result.Skipped)

					return nil
				},
			},
		},
	}
}

func (a *app) simulateCommand() *cli.Command {
	defaults := simulate.DefaultConfig()

	return &cli.Command{
		Name:  "simulate",
		Usage: "Fill the ledger with synthetic mean reversion trading",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Pair symbol", Value: defaults.Symbol},
			&cli.TimestampFlag{
				Name:   "start",
				Usage:  "Time of the first sample (`YYYY-MM-DD`)",
				Value:  defaults.Start,
				Config: cli.TimestampConfig{Layouts: []string{"2006-01-02", time.RFC3339}},
			},
			&cli.DurationFlag{Name: "interval", Usage: "Time between samples", Value: defaults.Interval},
			&cli.IntFlag{Name: "intervals", Aliases: []string{"n"}, Usage: "Number of samples", Value: 50000},
			&cli.FloatFlag{Name: "base-price", Usage: "Mean of the price ratio", Value: defaults.BasePrice},
			&cli.FloatFlag{Name: "spread", Usage: "Maximum distance of a sample from the mean", Value: defaults.Spread},
			&cli.FloatFlag{Name: "threshold", Usage: "Distance from the mean that triggers a signal", Value: defaults.Threshold},
			&cli.IntFlag{Name: "seed", Usage: "Random seed. Defaults to the current time."},
			&cli.BoolFlag{Name: "quiet", Usage: "Hide the progress bar"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gateway, err := a.connect(ctx)
			if err != nil {
				return err
			}

			cfg := simulate.Config{
				Symbol:    cmd.String("symbol"),
				Start:     cmd.Timestamp("start").UTC(),
				Interval:  cmd.Duration("interval"),
				Intervals: int(cmd.Int("intervals")),
				BasePrice: cmd.Float("base-price"),
				Spread:    cmd.Float("spread"),
				Threshold: cmd.Float("threshold"),
				FillDelay: defaults.FillDelay,
				Seed:      defaults.Seed,
			}

			if cmd.IsSet("seed") {
				cfg.Seed = int64(cmd.Int("seed"))
			}

			opts := []simulate.Option{simulate.WithLogger(a.log)}
			if !cmd.Bool("quiet") {
				opts = append(opts, simulate.WithProgress(os.Stderr))
			}

			sim := simulate.NewSimulator(store.NewSignals(gateway), lifecycle.NewEngine(gateway, a.log), opts...)

			result, err := sim.Run(ctx, cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Simulated %d intervals: %d signals, %d positions opened, %d closed\n",
				result.Intervals, result.Signals, result.Opened, result.Closed)

			return nil
		},
	}
}

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the analytics API for the dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Listen address. Defaults to the configured api.address."},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gateway, err := a.connect(ctx)
			if err != nil {
				return err
			}

			address := a.cfg.API.Address
			if cmd.IsSet("address") {
				address = cmd.String("address")
			}

			server := api.NewServer(analytics.NewEngine(gateway, analytics.WithLogger(a.log)), gateway, a.log)
			if err := server.Start(address); err != nil {
				return err
			}

			fmt.Fprintln(a.out, "Serving analytics on", server.Address())

			<-ctx.Done()

			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return server.Stop(shutdown)
		},
	}
}
