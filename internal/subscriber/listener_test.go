package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	mu      sync.Mutex
	sources []ledger.DataSource
	failFor ledger.DataSource
}

func (r *recordingInvalidator) InvalidateSource(_ context.Context, source ledger.DataSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source == r.failFor {
		return errors.New("cache down")
	}
	r.sources = append(r.sources, source)
	return nil
}

func (r *recordingInvalidator) seen() []ledger.DataSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.DataSource(nil), r.sources...)
}

func encodeChange(t *testing.T, sources ...string) []byte {
	t.Helper()
	data, err := json.Marshal(queue.LedgerChangedEvent{DataSources: sources, Timestamp: time.Now()})
	require.NoError(t, err)
	return data
}

func TestLedgerListener_Handle(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []ledger.DataSource
	}{
		{
			name:    "named sources",
			payload: []byte(`{"data_sources":["expenses","revenue"]}`),
			want:    []ledger.DataSource{ledger.Expenses, ledger.Revenue},
		},
		{
			name:    "no sources means all",
			payload: []byte(`{"timestamp":"2025-01-01T00:00:00Z"}`),
			want:    ledger.DataSources,
		},
		{
			name:    "unknown sources are skipped",
			payload: []byte(`{"data_sources":["payroll","inventory"]}`),
			want:    []ledger.DataSource{ledger.Inventory},
		},
		{
			name:    "malformed payload is dropped",
			payload: []byte(`not json`),
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &recordingInvalidator{}
			l := NewLedgerListener(nil, inv, logging.NewNop())

			err := l.Handle(context.Background(), queue.SubjectLedgerChanged, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inv.seen())
		})
	}
}

func TestLedgerListener_HandleFailureIsReturned(t *testing.T) {
	inv := &recordingInvalidator{failFor: ledger.Revenue}
	l := NewLedgerListener(nil, inv, nil)

	err := l.Handle(context.Background(), queue.SubjectLedgerChanged, encodeChange(t, "revenue", "expenses"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate revenue")
	assert.Equal(t, []ledger.DataSource{ledger.Expenses}, inv.seen())
}

func TestLedgerListener_MemoryQueue(t *testing.T) {
	q := queue.NewMemoryQueue()
	defer func() { _ = q.Close() }()

	inv := &recordingInvalidator{}
	l := NewLedgerListener(NewMemorySubscriber(q, nil), inv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Start(ctx))

	require.NoError(t, q.Publish(ctx, queue.SubjectLedgerChanged, encodeChange(t, "cash_flow")))

	assert.Eventually(t, func() bool {
		seen := inv.seen()
		return len(seen) == 1 && seen[0] == ledger.CashFlow
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Stop())
	assert.Error(t, l.Stop())
}
