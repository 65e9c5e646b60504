package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/sms-credits/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	// adapters are cached by name
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func testConfig(name string) QueueConfig {
	return QueueConfig{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}
}

func TestQueue_PublishAndConsume(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.PublishJSON(ctx, map[string]string{"key": "value"}, map[string]string{"type": "test"})
	require.NoError(t, err)

	received := make(chan *Message, 1)
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "value", data["key"])
		assert.Equal(t, "test", msg.Metadata["type"])
		assert.Equal(t, 0, msg.Attempts)
		assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats(ctx)
		return err == nil && stats.PendingMessages == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_RetryThenDeadLetter(t *testing.T) {
	_, adapter := setupTestRedis(t)

	cfg := testConfig("test:retry:queue")
	cfg.MaxRetries = 2
	cfg.VisibilityTimeout = 50 * time.Millisecond
	queue, err := NewQueue(adapter, cfg)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.Publish(ctx, []byte(`{"reference":"ws_CO_1"}`), map[string]string{"reason": "unknown_reference"})
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		calls.Add(1)
		return assert.AnError
	}))

	assert.Eventually(t, func() bool {
		stats, err := queue.GetStats(ctx)
		return err == nil && stats.DeadLetters == 1 && stats.PendingMessages == 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())

	dead, err := adapter.XRange(ctx, "test:retry:queue:dlq", "-", "+")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, `{"reference":"ws_CO_1"}`, dead[0].Values["data"])
	assert.Equal(t, "unknown_reference", dead[0].Values["meta_reason"])
}

func TestQueue_RetrySucceeds(t *testing.T) {
	_, adapter := setupTestRedis(t)

	cfg := testConfig("test:recover:queue")
	cfg.VisibilityTimeout = 50 * time.Millisecond
	queue, err := NewQueue(adapter, cfg)
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	_, err = queue.Publish(ctx, []byte("x"), nil)
	require.NoError(t, err)

	var attempts []int
	done := make(chan struct{})
	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		attempts = append(attempts, msg.Attempts)
		if msg.Attempts == 0 {
			return assert.AnError
		}
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("message was not redelivered")
	}
	require.NoError(t, queue.Stop(time.Second))
	assert.Equal(t, []int{0, 1}, attempts)

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingMessages)
	assert.Zero(t, stats.DeadLetters)
}

func TestQueue_StuckEntryClaimedByOneConsumer(t *testing.T) {
	_, adapter := setupTestRedis(t)

	cfg := testConfig("test:claim:queue")
	cfg.VisibilityTimeout = 50 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond

	var first, redeliveries atomic.Int32
	handler := func(ctx context.Context, msg *Message) error {
		if msg.Attempts == 0 {
			first.Add(1)
			return assert.AnError
		}
		redeliveries.Add(1)
		return nil
	}

	var queues []*Queue
	for _, name := range []string{"consumer-a", "consumer-b", "consumer-c"} {
		c := cfg
		c.ConsumerName = name
		q, err := NewQueue(adapter, c)
		require.NoError(t, err)
		queues = append(queues, q)
	}

	_, err := queues[0].Publish(context.Background(), []byte("x"), nil)
	require.NoError(t, err)
	for _, q := range queues {
		require.NoError(t, q.Consume(handler))
	}

	assert.Eventually(t, func() bool { return redeliveries.Load() >= 1 }, 3*time.Second, 5*time.Millisecond)
	// a second claim would only happen after another visibility timeout
	time.Sleep(20 * time.Millisecond)
	for _, q := range queues {
		require.NoError(t, q.Stop(time.Second))
	}

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), redeliveries.Load())
}

func TestQueue_GetStats(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:stats:queue"))
	require.NoError(t, err)
	defer queue.Stop(time.Second)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := queue.PublishJSON(ctx, map[string]int{"count": i}, nil)
		require.NoError(t, err)
	}

	stats, err := queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalMessages)
	assert.Zero(t, stats.PendingMessages)
}

func TestNewQueue(t *testing.T) {
	_, adapter := setupTestRedis(t)

	_, err := NewQueue(adapter, QueueConfig{})
	assert.Error(t, err)

	q1, err := NewQueue(adapter, QueueConfig{Name: "same"})
	require.NoError(t, err)
	defer q1.Stop(time.Second)

	// the group already exists
	q2, err := NewQueue(adapter, QueueConfig{Name: "same"})
	require.NoError(t, err)
	defer q2.Stop(time.Second)

	assert.Equal(t, "same", q2.Name())
	assert.Equal(t, 3, q2.config.MaxRetries)
	assert.Equal(t, "default-group", q2.config.ConsumerGroup)

	assert.Error(t, q1.Consume(nil))
}

func TestQueue_Stop(t *testing.T) {
	_, adapter := setupTestRedis(t)

	queue, err := NewQueue(adapter, testConfig("test:stop:queue"))
	require.NoError(t, err)

	require.NoError(t, queue.Consume(func(ctx context.Context, msg *Message) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}))

	assert.NoError(t, queue.Stop(2*time.Second))
	assert.NoError(t, queue.Stop(time.Second))
}
