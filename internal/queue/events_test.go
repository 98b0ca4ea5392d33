package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ nopPublisher }

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("broker down")
}

func TestEmitter_Emit(t *testing.T) {
	q := NewMemoryQueue()
	emitter := NewEmitter(q, logging.NewNop())
	defer func() { _ = emitter.Close() }()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	emitter.Emit(context.Background(), SubjectSessionSaved, SessionSavedEvent{
		SessionID:       "s1",
		Name:            "Q2 revenue",
		DataSource:      "revenue",
		Periodicity:     "monthly",
		Scenarios:       []string{"a", "b"},
		FailedScenarios: []string{"b"},
		Timestamp:       ts,
	})

	require.Equal(t, 1, q.PendingCount(SubjectSessionSaved))

	var got SessionSavedEvent
	require.NoError(t, json.Unmarshal(<-q.channels[SubjectSessionSaved], &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, []string{"b"}, got.FailedScenarios)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestEmitter_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(failingPublisher{}, logging.NewWithWriter(&buf, zerolog.DebugLevel))

	emitter.Emit(context.Background(), SubjectSessionDeleted, SessionDeletedEvent{SessionID: "s1"})

	assert.Contains(t, buf.String(), "Failed to publish event")
	assert.Contains(t, buf.String(), "broker down")
}

func TestEmitter_EncodeFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	q := NewMemoryQueue()
	emitter := NewEmitter(q, logging.NewWithWriter(&buf, zerolog.DebugLevel))
	defer func() { _ = emitter.Close() }()

	emitter.Emit(context.Background(), SubjectCacheRefreshed, make(chan int))

	assert.Contains(t, buf.String(), "Failed to encode event")
	assert.Zero(t, q.PendingCount(SubjectCacheRefreshed))
}

func TestEmitter_NilPublisher(t *testing.T) {
	emitter := NewEmitter(nil, nil)
	emitter.Emit(context.Background(), SubjectCacheRefreshed, CacheRefreshedEvent{Refreshed: []string{"revenue"}})
	assert.NoError(t, emitter.Close())
}
