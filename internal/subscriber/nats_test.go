package subscriber

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestNATS starts an embedded JetStream-enabled NATS server
func setupTestNATS(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestNATSSubscriber_Receive(t *testing.T) {
	url := setupTestNATS(t)

	sub, err := NewNATSSubscriber(queue.NATSOptions{URL: url}, Config{}, nil)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	pub, err := queue.NewNATSQueue(queue.NATSOptions{URL: url})
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	received := make(chan string, 1)
	require.NoError(t, sub.Subscribe(context.Background(), queue.SubjectLedgerChanged, func(_ context.Context, subject string, data []byte) error {
		received <- subject + ":" + string(data)
		return nil
	}))

	require.NoError(t, pub.Publish(context.Background(), queue.SubjectLedgerChanged, []byte("{}")))

	select {
	case got := <-received:
		assert.Equal(t, queue.SubjectLedgerChanged+":{}", got)
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for message")
	}
}

func TestNATSSubscriber_StartFromOldest(t *testing.T) {
	url := setupTestNATS(t)

	pub, err := queue.NewNATSQueue(queue.NATSOptions{URL: url})
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()
	require.NoError(t, pub.Publish(context.Background(), queue.SubjectSessionSaved, []byte("before")))

	sub, err := NewNATSSubscriber(queue.NATSOptions{URL: url}, Config{ConsumerGroup: "replay", StartFromOldest: true}, nil)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	received := make(chan string, 1)
	require.NoError(t, sub.Subscribe(context.Background(), queue.SubjectSessionSaved, func(_ context.Context, _ string, data []byte) error {
		received <- string(data)
		return nil
	}))

	select {
	case got := <-received:
		assert.Equal(t, "before", got)
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for replayed message")
	}
}

func TestNATSSubscriber_SubscribeTwice(t *testing.T) {
	url := setupTestNATS(t)

	sub, err := NewNATSSubscriber(queue.NATSOptions{URL: url}, Config{}, nil)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	noop := func(context.Context, string, []byte) error { return nil }
	require.NoError(t, sub.Subscribe(context.Background(), queue.SubjectCacheRefreshed, noop))
	assert.Error(t, sub.Subscribe(context.Background(), queue.SubjectCacheRefreshed, noop))

	require.NoError(t, sub.Unsubscribe(queue.SubjectCacheRefreshed))
	assert.Error(t, sub.Unsubscribe(queue.SubjectCacheRefreshed))
}

func TestNATSSubscriber_DurableName(t *testing.T) {
	s := &NATSSubscriber{config: Config{ConsumerGroup: "ledgercast"}}
	assert.Equal(t, "ledgercast-ledgercast_ledger_changed", s.durableName(queue.SubjectLedgerChanged))
}
