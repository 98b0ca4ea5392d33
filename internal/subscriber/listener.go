package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
)

// Invalidator drops the cached history of one data source
type Invalidator interface {
	InvalidateSource(ctx context.Context, source ledger.DataSource) error
}

// LedgerListener invalidates cached history when ledger writers announce
// changed documents on the ledger.changed subject
type LedgerListener struct {
	sub         Subscriber
	invalidator Invalidator
	logger      *logging.Logger
}

// NewLedgerListener creates a listener. Start must be called to consume.
func NewLedgerListener(sub Subscriber, invalidator Invalidator, logger *logging.Logger) *LedgerListener {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LedgerListener{
		sub:         sub,
		invalidator: invalidator,
		logger:      logger.Component("ledger_listener"),
	}
}

// Start subscribes to ledger change events until ctx is done
func (l *LedgerListener) Start(ctx context.Context) error {
	if err := l.sub.Subscribe(ctx, queue.SubjectLedgerChanged, l.Handle); err != nil {
		return fmt.Errorf("subscribe to %s: %w", queue.SubjectLedgerChanged, err)
	}
	l.logger.Info("Listening for ledger changes", "subject", queue.SubjectLedgerChanged)
	return nil
}

// Stop unsubscribes from ledger change events
func (l *LedgerListener) Stop() error {
	return l.sub.Unsubscribe(queue.SubjectLedgerChanged)
}

// Handle invalidates every source named by one encoded LedgerChangedEvent.
// Malformed payloads and unknown sources are dropped. Invalidation failures
// are returned so the message is redelivered.
func (l *LedgerListener) Handle(ctx context.Context, subject string, data []byte) error {
	var event queue.LedgerChangedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		l.logger.Warn("Dropping malformed ledger event", "subject", subject, "error", err)
		return nil
	}

	sources := ledger.DataSources
	if len(event.DataSources) > 0 {
		sources = make([]ledger.DataSource, 0, len(event.DataSources))
		for _, name := range event.DataSources {
			source := ledger.DataSource(name)
			if !source.Valid() {
				l.logger.Warn("Ignoring unknown data source in ledger event", "data_source", name)
				continue
			}
			sources = append(sources, source)
		}
	}

	var errs []error
	for _, source := range sources {
		if err := l.invalidator.InvalidateSource(ctx, source); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", source, err))
			continue
		}
		l.logger.Debug("Cached history invalidated", "data_source", source.String())
	}
	return errors.Join(errs...)
}
