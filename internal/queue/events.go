package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/soltixdb/ledgercast/internal/logging"
)

// SubjectPrefix is shared by every event subject
const SubjectPrefix = "ledgercast"

// Event subjects
const (
	SubjectSessionSaved   = SubjectPrefix + ".sessions.saved"
	SubjectSessionDeleted = SubjectPrefix + ".sessions.deleted"
	SubjectCacheRefreshed = SubjectPrefix + ".cache.refreshed"
	SubjectLedgerChanged  = SubjectPrefix + ".ledger.changed"
)

// Subjects lists every subject ledgercast publishes or consumes
var Subjects = []string{
	SubjectSessionSaved,
	SubjectSessionDeleted,
	SubjectCacheRefreshed,
	SubjectLedgerChanged,
}

// SessionSavedEvent is published after a session is created or re-run
type SessionSavedEvent struct {
	SessionID       string    `json:"session_id"`
	Name            string    `json:"name"`
	DataSource      string    `json:"data_source"`
	Periodicity     string    `json:"periodicity"`
	Scenarios       []string  `json:"scenarios"`
	FailedScenarios []string  `json:"failed_scenarios,omitempty"`
	Rerun           bool      `json:"rerun"`
	Timestamp       time.Time `json:"timestamp"`
}

// SessionDeletedEvent is published after a session is deleted
type SessionDeletedEvent struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheRefreshedEvent is published after a bulk cache refresh
type CacheRefreshedEvent struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// LedgerChangedEvent is published by ledger writers after documents of a
// source change. An empty DataSources means every source is stale.
type LedgerChangedEvent struct {
	DataSources []string  `json:"data_sources,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter encodes events as JSON and publishes them. Failures are logged
// and never returned.
type Emitter struct {
	publisher Publisher
	logger    *logging.Logger
}

// NewEmitter creates an Emitter. A nil publisher drops every event.
func NewEmitter(publisher Publisher, logger *logging.Logger) *Emitter {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Emitter{publisher: publisher, logger: logger.Component("events")}
}

// Emit publishes v on subject
func (e *Emitter) Emit(ctx context.Context, subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("Failed to encode event", "subject", subject, "error", err)
		return
	}

	if err := e.publisher.Publish(ctx, subject, data); err != nil {
		e.logger.Warn("Failed to publish event", "subject", subject, "error", err)
		return
	}
	e.logger.Debug("Event published", "subject", subject, "bytes", len(data))
}

// Close closes the underlying publisher
func (e *Emitter) Close() error {
	return e.publisher.Close()
}
