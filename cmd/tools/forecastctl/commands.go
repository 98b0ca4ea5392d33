package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/bootstrap"
	"github.com/soltixdb/ledgercast/internal/downsampling"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
	"github.com/spf13/cobra"
)

// runCmd creates a forecast session
func runCmd() *cobra.Command {
	var (
		name          string
		source        string
		periodicity   string
		from, to      string
		methods       []string
		horizon       int
		scenariosFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a forecast session",
		Long: `Aggregates the ledger history of a data source and evaluates each scenario.
Scenarios come from --method (one default-parameter scenario per method) or
from a JSON file holding a scenario array.`,
		Example: `  forecastctl run --source revenue --from 2023-01-01 --to 2024-12-31 --method linear_regression --method moving_average
  forecastctl run --source expenses --periodicity quarterly --from 2020-01-01 --to 2024-12-31 --scenarios-file scenarios.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := analytics.ParseDateRange(from, to)
			if err != nil {
				return err
			}
			scenarios, err := loadScenarios(scenariosFile, methods, horizon)
			if err != nil {
				return err
			}
			if name == "" {
				name = fmt.Sprintf("%s %s %s", source, periodicity, r)
			}

			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				sess, err := app.Service.CreateSession(ctx, services.CreateSessionRequest{
					Name:        name,
					DataSource:  ledger.DataSource(source),
					Periodicity: analytics.Periodicity(periodicity),
					DateRange:   r,
					Scenarios:   scenarios,
				})
				if err != nil {
					return err
				}
				return printSession(os.Stdout, sess)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Session name (default derived from source and range)")
	cmd.Flags().StringVar(&source, "source", "", "Data source: revenue, expenses, cash_flow, inventory")
	cmd.Flags().StringVar(&periodicity, "periodicity", string(analytics.Monthly), "Aggregation periodicity")
	cmd.Flags().StringVar(&from, "from", "", "History start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "History end date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&methods, "method", nil, "Forecast method, repeatable")
	cmd.Flags().IntVar(&horizon, "horizon", 6, "Periods to forecast for --method scenarios")
	cmd.Flags().StringVar(&scenariosFile, "scenarios-file", "", "JSON file with a scenario array")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// loadScenarios reads the scenarios file when given and appends one scenario per method
func loadScenarios(path string, methods []string, horizon int) ([]session.Scenario, error) {
	var scenarios []session.Scenario

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenarios file: %w", err)
		}
		if err := json.Unmarshal(data, &scenarios); err != nil {
			return nil, fmt.Errorf("parse scenarios file: %w", err)
		}
	}

	for _, m := range methods {
		method := forecast.Method(strings.TrimSpace(m))
		if !method.Valid() {
			return nil, fmt.Errorf("%w: %q", forecast.ErrUnknownMethod, m)
		}
		scenarios = append(scenarios, session.Scenario{
			ID:              string(method),
			Name:            strings.ReplaceAll(string(method), "_", " "),
			Method:          method,
			ForecastHorizon: horizon,
		})
	}

	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios: pass --method or --scenarios-file")
	}
	return scenarios, nil
}

// sessionsCmd groups the session management commands
func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage saved forecast sessions",
	}

	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionIDCmd("show", "Show a session with its forecasts", func(ctx context.Context, app *bootstrap.App, id string) error {
		sess, err := app.Service.GetSession(ctx, id)
		if err != nil {
			return err
		}
		return printSession(os.Stdout, sess)
	}))
	cmd.AddCommand(sessionIDCmd("delete", "Delete a session and its results", func(ctx context.Context, app *bootstrap.App, id string) error {
		if err := app.Service.DeleteSession(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Session %s deleted\n", id)
		return nil
	}))
	cmd.AddCommand(sessionIDCmd("best", "Show the scenario with the highest R²", func(ctx context.Context, app *bootstrap.App, id string) error {
		best, err := app.Service.BestScenario(ctx, id)
		if err != nil {
			return err
		}
		return printBest(os.Stdout, best)
	}))
	cmd.AddCommand(sessionIDCmd("accuracy", "Show per-scenario accuracy metrics", func(ctx context.Context, app *bootstrap.App, id string) error {
		summary, err := app.Service.AccuracySummary(ctx, id)
		if err != nil {
			return err
		}
		return printAccuracy(os.Stdout, summary)
	}))
	cmd.AddCommand(sessionsRerunCmd())

	return cmd
}

func sessionIDCmd(use, short string, fn func(ctx context.Context, app *bootstrap.App, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SESSION_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return fn(ctx, app, args[0])
			})
		},
	}
}

func sessionsListCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				var (
					sessions []*session.Session
					err      error
				)
				if source != "" {
					sessions, err = app.Service.ListSessionsByDataSource(ctx, ledger.DataSource(source))
				} else {
					sessions, err = app.Service.ListSessions(ctx)
				}
				if err != nil {
					return err
				}
				return printSessions(os.Stdout, sessions)
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only list sessions of this data source")
	return cmd
}

func sessionsRerunCmd() *cobra.Command {
	var scenarioIDs []string

	cmd := &cobra.Command{
		Use:   "rerun SESSION_ID",
		Short: "Re-evaluate scenarios against the stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				sess, err := app.Service.RerunSession(ctx, args[0], scenarioIDs)
				if err != nil {
					return err
				}
				return printSession(os.Stdout, sess)
			})
		},
	}

	cmd.Flags().StringSliceVar(&scenarioIDs, "scenario", nil, "Scenario id to re-run, repeatable (default all)")
	return cmd
}

// historyCmd prints the aggregated series of a data source
func historyCmd() *cobra.Command {
	var (
		periodicity, from, to string
		maxPoints             int
		downsample            string
	)

	cmd := &cobra.Command{
		Use:   "history SOURCE",
		Short: "Print the aggregated history of a data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := analytics.ParseDateRange(from, to)
			if err != nil {
				return err
			}
			mode, err := downsampling.ParseMode(downsample)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				points, err := app.Service.GetHistoricalData(ctx, ledger.DataSource(args[0]), r, analytics.Periodicity(periodicity))
				if err != nil {
					return err
				}
				if maxPoints > 0 {
					if points, err = downsampling.Apply(points, mode, maxPoints); err != nil {
						return err
					}
				}
				return printPoints(os.Stdout, points)
			})
		},
	}

	cmd.Flags().StringVar(&periodicity, "periodicity", string(analytics.Monthly), "Aggregation periodicity")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "Downsample to at most this many points (0 keeps every point)")
	cmd.Flags().StringVar(&downsample, "downsample", "auto", "Downsampling mode: auto, lttb, minmax, avg, m4 or none")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// cacheCmd groups the historical cache commands
func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the historical data cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Regenerate the cached history of every data source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				report, err := app.Service.RefreshCache(ctx)
				if err != nil {
					return err
				}
				if err := printRefresh(os.Stdout, report); err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d data source(s) failed to refresh", len(report.Failed))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate SOURCE",
		Short: "Drop the cached history of one data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Service.InvalidateSource(ctx, ledger.DataSource(args[0])); err != nil {
					return err
				}
				fmt.Printf("Cache for %s invalidated\n", args[0])
				return nil
			})
		},
	})

	return cmd
}
