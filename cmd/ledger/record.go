package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/lifecycle"
	"github.com/rxtech-lab/pairs-ledger/internal/store"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"github.com/urfave/cli/v3"
)

func timestampFlag(name, usage string) cli.Flag {
	return &cli.TimestampFlag{
		Name:  name,
		Usage: usage + " in RFC3339 or `YYYY-MM-DD HH:MM:SS` format. Defaults to now.",
		Config: cli.TimestampConfig{
			Layouts: []string{time.RFC3339, time.DateTime},
		},
	}
}

// timestamp returns the flag value, or the current time when it was not given.
func timestamp(cmd *cli.Command, name string) time.Time {
	if !cmd.IsSet(name) {
		return time.Now().UTC()
	}

	return cmd.Timestamp(name).UTC()
}

func (a *app) signalCommand() *cli.Command {
	return &cli.Command{
		Name:  "signal",
		Usage: "Record trading signals",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Record a signal produced by the strategy",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Pair symbol, e.g. BTC/ETH", Required: true},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "BUY, SELL or HOLD", Required: true},
					&cli.FloatFlag{Name: "confidence", Usage: "Confidence reported by the strategy"},
					timestampFlag("at", "Signal time"),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					signal, err := types.NewSignal(
						cmd.String("symbol"),
						types.SignalType(strings.ToUpper(cmd.String("type"))),
						cmd.Float("confidence"),
						timestamp(cmd, "at"),
					)
					if err != nil {
						return err
					}

					gateway, err := a.connect(ctx)
					if err != nil {
						return err
					}

					if err := store.NewSignals(gateway).Insert(ctx, signal); err != nil {
						return err
					}

					fmt.Fprintln(a.out, signal.ID)

					return nil
				},
			},
		},
	}
}

func (a *app) orderCommand() *cli.Command {
	return &cli.Command{
		Name:  "order",
		Usage: "Record orders and their outcome",
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Record a new PENDING order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Pair symbol, e.g. BTC/ETH", Required: true},
					&cli.StringFlag{Name: "side", Usage: "BUY or SELL", Required: true},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "MARKET, LIMIT or STOP", Value: string(types.OrderTypeMarket)},
					&cli.FloatFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Order quantity", Required: true},
					&cli.FloatFlag{Name: "price", Usage: "Limit or stop price"},
					&cli.StringFlag{Name: "signal", Usage: "Id of the signal the order acts on"},
					timestampFlag("at", "Submission time"),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					req := types.OrderRequest{
						SignalID:    optional.None[string](),
						Symbol:      cmd.String("symbol"),
						Type:        types.OrderType(strings.ToUpper(cmd.String("type"))),
						Side:        types.OrderSide(strings.ToUpper(cmd.String("side"))),
						Quantity:    cmd.Float("quantity"),
						Price:       optional.None[float64](),
						SubmittedAt: timestamp(cmd, "at"),
					}

					if id := cmd.String("signal"); id != "" {
						req.SignalID = optional.Some(id)
					}

					if cmd.IsSet("price") {
						req.Price = optional.Some(cmd.Float("price"))
					}

					gateway, err := a.connect(ctx)
					if err != nil {
						return err
					}

					order, err := lifecycle.NewEngine(gateway, a.log).Submit(ctx, req)
					if err != nil {
						return err
					}

					fmt.Fprintln(a.out, order.ID)

					return nil
				},
			},
			a.orderStatusCommand("cancel", types.OrderStatusCancelled),
			a.orderStatusCommand("reject", types.OrderStatusRejected),
		},
	}
}

func (a *app) orderStatusCommand(name string, status types.OrderStatus) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     fmt.Sprintf("Mark a PENDING order %s", status),
		ArgsUsage: "<order-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return errors.New(errors.ErrCodeInvalidParameter, "order id is required")
			}

			gateway, err := a.connect(ctx)
			if err != nil {
				return err
			}

			order, err := store.NewOrders(gateway).UpdateStatus(ctx, id, status)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Order %s is %s\n", order.ID, order.Status)

			return nil
		},
	}
}

func (a *app) fillCommand() *cli.Command {
	return &cli.Command{
		Name:  "fill",
		Usage: "Report the fill of a PENDING order and update the position",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "order", Aliases: []string{"o"}, Usage: "Id of the filled order", Required: true},
			&cli.FloatFlag{Name: "price", Aliases: []string{"p"}, Usage: "Fill price", Required: true},
			&cli.FloatFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Filled quantity. Defaults to the ordered quantity."},
			timestampFlag("at", "Fill time"),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gateway, err := a.connect(ctx)
			if err != nil {
				return err
			}

			order, err := store.NewOrders(gateway).Get(ctx, cmd.String("order"))
			if err != nil {
				return err
			}

			quantity := order.Quantity
			if cmd.IsSet("quantity") {
				quantity = cmd.Float("quantity")
			}

			transition, err := lifecycle.NewEngine(gateway, a.log).ApplyFill(ctx, types.FillNotification{
				OrderID:  order.ID,
				Symbol:   order.Symbol,
				Side:     order.Side,
				Quantity: quantity,
				Price:    cmd.Float("price"),
				FilledAt: timestamp(cmd, "at"),
			})
			if err != nil {
				return err
			}

			switch transition.Action {
			case lifecycle.ActionOpened, lifecycle.ActionClosed:
				position := transition.Position.Unwrap()
				fmt.Fprintf(a.out, "Position %s %s\n", position.ID, transition.Action)

				if pnl := position.RealizedPnL(); pnl.IsSome() {
					fmt.Fprintf(a.out, "Realized PnL: %.4f\n", pnl.Unwrap())
				}
			default:
				fmt.Fprintf(a.out, "Fill recorded, position unchanged: %s\n", transition.Reason)
			}

			return nil
		},
	}
}
