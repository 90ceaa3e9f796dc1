package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/autopecas/sigesync/config"
	"github.com/autopecas/sigesync/internal/app"
	"github.com/autopecas/sigesync/internal/domain"
	"github.com/autopecas/sigesync/internal/infrastructure/report"
	"github.com/autopecas/sigesync/internal/infrastructure/sige"
	"github.com/autopecas/sigesync/internal/logging"
	"github.com/autopecas/sigesync/internal/usecase"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sigesync:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "sigesync",
		Usage: "reconcile the local catalog with SIGE and inspect stock balances",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (defaults to ./config.yaml)"},
			&cli.StringFlag{Name: "token", Usage: "SIGE bearer token", EnvVars: []string{"SIGE_TOKEN"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "match every local product against the SIGE catalog and store the mappings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "clear", Usage: "delete every stored mapping before writing"},
					&cli.BoolFlag{Name: "balances", Usage: "fetch balances for the matched items"},
					&cli.IntFlag{Name: "batch-size", Usage: "balance requests in flight per group"},
					&cli.StringFlag{Name: "report", Usage: "write the review workbook to this .xlsx file"},
				},
				Action: withService(out, func(c *cli.Context, svc *usecase.ReconciliationService, logger logrus.FieldLogger) (interface{}, error) {
					req := domain.SyncRequest{
						ClearExisting: c.Bool("clear"),
						FetchBalances: c.Bool("balances"),
						BatchSize:     c.Int("batch-size"),
					}
					opts := usecase.BatchOptions{
						OnProgress: func(done, total int) {
							logger.Infof("[CLI] balances %d/%d", done, total)
						},
					}
					result, err := svc.RunSync(c.Context, req, opts)
					if result != nil && c.String("report") != "" {
						if werr := writeReport(c.String("report"), result); werr != nil {
							return nil, werr
						}
					}
					if err != nil && result != nil {
						logger.WithError(err).Warn("[CLI] sync finished with balance errors")
						return result, nil
					}
					return result, err
				}),
			},
			{
				Name:      "map",
				Usage:     "store a manual mapping",
				ArgsUsage: "SKU REMOTE_ID [DESCRIPTION]",
				Action: withService(out, func(c *cli.Context, svc *usecase.ReconciliationService, _ logrus.FieldLogger) (interface{}, error) {
					if c.NArg() < 2 {
						return nil, fmt.Errorf("%w: map needs SKU and REMOTE_ID", domain.ErrInvalidRequest)
					}
					return svc.SetManualMapping(c.Context, usecase.ManualMappingRequest{
						SKU:         c.Args().Get(0),
						RemoteID:    c.Args().Get(1),
						Description: c.Args().Get(2),
					})
				}),
			},
			{
				Name:      "unmap",
				Usage:     "remove the mapping of a SKU",
				ArgsUsage: "SKU",
				Action: withService(out, func(c *cli.Context, svc *usecase.ReconciliationService, _ logrus.FieldLogger) (interface{}, error) {
					sku := c.Args().First()
					if err := svc.RemoveMapping(c.Context, sku); err != nil {
						return nil, err
					}
					return map[string]string{"removed": sku}, nil
				}),
			},
			{
				Name:  "mappings",
				Usage: "list every stored mapping",
				Action: withService(out, func(c *cli.Context, svc *usecase.ReconciliationService, _ logrus.FieldLogger) (interface{}, error) {
					return svc.ListMappings(c.Context)
				}),
			},
			{
				Name:      "balance",
				Usage:     "look up the live balance of a SKU or SIGE id",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "skip the balance cache"},
					&cli.BoolFlag{Name: "debug", Usage: "include the resolution trace"},
				},
				Action: withService(out, func(c *cli.Context, svc *usecase.ReconciliationService, _ logrus.FieldLogger) (interface{}, error) {
					return svc.LookupBalance(c.Context, c.Args().First(), domain.LookupOptions{
						Force: c.Bool("force"),
						Debug: c.Bool("debug"),
					})
				}),
			},
		},
	}
}

type serviceAction func(c *cli.Context, svc *usecase.ReconciliationService, logger logrus.FieldLogger) (interface{}, error)

// withService loads configuration, builds the service and prints the action's result as JSON
func withService(out io.Writer, action serviceAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadFrom(c.String("config"))
		if err != nil {
			return err
		}
		// stdout carries the JSON result
		logger := logging.NewWithOutput(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		a, err := app.Build(c.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if token := c.String("token"); token != "" {
			c.Context = sige.WithToken(c.Context, token)
		}

		result, err := action(c, a.Service, logger)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

func writeReport(path string, result *domain.SyncResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteMatchReport(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
