package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis returns a publisher and a fast-polling subscriber sharing one
// miniredis instance
func newTestRedis(t *testing.T) (*queue.RedisPublisher, *RedisSubscriber, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)

	pub, err := queue.NewRedisPublisher(queue.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	sub, err := NewRedisSubscriber(queue.RedisConfig{URL: "redis://" + mr.Addr()}, Config{}, nil)
	require.NoError(t, err)
	sub.block = 50 * time.Millisecond
	t.Cleanup(func() { _ = sub.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return pub, sub, client
}

func TestNewRedisSubscriber_Unreachable(t *testing.T) {
	_, err := NewRedisSubscriber(queue.RedisConfig{URL: "127.0.0.1:1"}, Config{}, nil)
	assert.Error(t, err)
}

func TestRedisSubscriber_Receive(t *testing.T) {
	pub, sub, client := newTestRedis(t)
	ctx := context.Background()

	received := make(chan string, 1)
	require.NoError(t, sub.Subscribe(ctx, queue.SubjectLedgerChanged, func(_ context.Context, subject string, data []byte) error {
		received <- subject + ":" + string(data)
		return nil
	}))

	require.NoError(t, pub.Publish(ctx, queue.SubjectLedgerChanged, []byte(`{"data_sources":["revenue"]}`)))

	select {
	case got := <-received:
		assert.Equal(t, queue.SubjectLedgerChanged+`:{"data_sources":["revenue"]}`, got)
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for message")
	}

	stream := sub.StreamName(queue.SubjectLedgerChanged)
	assert.Eventually(t, func() bool {
		pending, err := client.XPending(ctx, stream, "ledgercast").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisSubscriber_FailedMessageStaysPending(t *testing.T) {
	pub, sub, client := newTestRedis(t)
	ctx := context.Background()

	handled := make(chan struct{}, 1)
	require.NoError(t, sub.Subscribe(ctx, "jobs", func(context.Context, string, []byte) error {
		handled <- struct{}{}
		return errors.New("cache unavailable")
	}))
	require.NoError(t, pub.Publish(ctx, "jobs", []byte("x")))

	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for handler")
	}

	pending, err := client.XPending(ctx, sub.StreamName("jobs"), "ledgercast").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestRedisSubscriber_InvalidFormatIsAcked(t *testing.T) {
	pub, sub, client := newTestRedis(t)
	ctx := context.Background()

	var payloads []string
	handled := make(chan struct{}, 1)
	require.NoError(t, sub.Subscribe(ctx, "jobs", func(_ context.Context, _ string, data []byte) error {
		payloads = append(payloads, string(data))
		handled <- struct{}{}
		return errors.New("keep pending")
	}))

	stream := sub.StreamName("jobs")
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]interface{}{"other": "x"}}).Err())
	require.NoError(t, pub.Publish(ctx, "jobs", []byte("valid")))

	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for handler")
	}

	// only the valid message is left unacknowledged
	pending, err := client.XPending(ctx, stream, "ledgercast").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
	assert.Equal(t, []string{"valid"}, payloads)
}

func TestRedisSubscriber_SubscribeTwice(t *testing.T) {
	_, sub, _ := newTestRedis(t)
	noop := func(context.Context, string, []byte) error { return nil }

	require.NoError(t, sub.Subscribe(context.Background(), "jobs", noop))
	assert.Error(t, sub.Subscribe(context.Background(), "jobs", noop))

	require.NoError(t, sub.Unsubscribe("jobs"))
	assert.Error(t, sub.Unsubscribe("jobs"))
}
