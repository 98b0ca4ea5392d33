package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/soltixdb/ledgercast/internal/subscriber"
	"github.com/spf13/cobra"
)

// eventsCmd watches and publishes ledgercast events on the configured queue
func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Watch or publish events on the configured queue",
	}
	cmd.AddCommand(eventsWatchCmd())
	cmd.AddCommand(eventsNotifyCmd())
	return cmd
}

func eventsWatchCmd() *cobra.Command {
	var (
		group     string
		fromStart bool
	)

	cmd := &cobra.Command{
		Use:   "watch [SUBJECT...]",
		Short: "Print events until interrupted",
		Long: `Subscribes to the given subjects, or to every ledgercast subject when none
are named, and prints each event as it arrives. The memory queue type lives
inside one process and cannot be watched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			subjects := args
			if len(subjects) == 0 {
				subjects = queue.Subjects
			}

			sub, err := subscriber.New(cfg.Queue, subscriber.Config{
				ConsumerGroup:   group,
				ConsumerID:      fmt.Sprintf("forecastctl-%d", os.Getpid()),
				StartFromOldest: fromStart,
			}, nil, cliLogger())
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			ctx := cmd.Context()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			for _, subject := range subjects {
				err := sub.Subscribe(ctx, subject, func(_ context.Context, subject string, data []byte) error {
					return out.write(func(w io.Writer) error {
						return printEvent(w, time.Now(), subject, data)
					})
				})
				if err != nil {
					return err
				}
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "forecastctl", "Consumer group, kept apart from the forecaster's")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Replay retained events for a new consumer group")
	return cmd
}

func eventsNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-ledger-change [SOURCE...]",
		Short: "Announce changed ledger documents so cached history is dropped",
		Long: `Publishes a ledger.changed event. Forecasters listening for ledger changes
invalidate the cached history of each named source, or of every source when
none are named.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if !ledger.DataSource(name).Valid() {
					return fmt.Errorf("unknown data source %q (available: %v)", name, ledger.DataSources)
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			publisher, err := queue.NewPublisher(cfg.Queue)
			if err != nil {
				return err
			}
			defer func() { _ = publisher.Close() }()

			data, err := json.Marshal(queue.LedgerChangedEvent{DataSources: args, Timestamp: time.Now().UTC()})
			if err != nil {
				return err
			}
			if err := publisher.Publish(cmd.Context(), queue.SubjectLedgerChanged, data); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", queue.SubjectLedgerChanged)
			return nil
		},
	}
}

func cliLogger() *logging.Logger {
	return logging.NewWithWriter(os.Stderr, logLevel())
}
