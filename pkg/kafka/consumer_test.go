package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hellodd/orderflow/pkg/logger"
)

// fakeReader serves queued messages and then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

type fakeDLQ struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	causes []error
}

func (d *fakeDLQ) Publish(_ context.Context, msg kafka.Message, cause error, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	d.causes = append(d.causes, cause)
	return nil
}

func eventMessage(t *testing.T, offset int64, correlationID string) kafka.Message {
	t.Helper()
	ctx := context.Background()
	if correlationID != "" {
		ctx = logger.WithCorrelationID(ctx, correlationID)
	}
	event, err := NewEvent(ctx, "saga.compensation_failed", "saga-1", "saga", "gateway", map[string]string{"k": "v"})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "orderflow.saga.compensation_failed", Offset: offset, Value: raw}
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		GroupID:      "test-group",
		Topic:        "orderflow.saga.compensation_failed",
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}
}

func TestConsumer_ProcessSuccessCommits(t *testing.T) {
	r := &fakeReader{}
	var got *Event
	var gotCorrelation string
	c := newConsumer(r, testConsumerConfig(), func(ctx context.Context, e *Event) error {
		got = e
		gotCorrelation = logger.CorrelationIDFromContext(ctx)
		return nil
	}, testLogger())

	msg := eventMessage(t, 5, "corr-1")
	assert.True(t, c.process(context.Background(), msg))

	require.NotNil(t, got)
	assert.Equal(t, "saga-1", got.AggregateID)
	assert.Equal(t, "corr-1", gotCorrelation)
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(5), r.committed[0].Offset)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	r := &fakeReader{}
	calls := 0
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, testLogger())

	dlq := &fakeDLQ{}
	c.dlq = dlq

	assert.True(t, c.process(context.Background(), eventMessage(t, 1, "")))
	assert.Equal(t, 3, calls)
	assert.Empty(t, dlq.msgs)
	assert.Len(t, r.committed, 1)
}

func TestConsumer_ExhaustedAttemptsGoToDLQ(t *testing.T) {
	r := &fakeReader{}
	dlq := &fakeDLQ{}
	handlerErr := errors.New("permanent")
	calls := 0
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		calls++
		return handlerErr
	}, testLogger(), WithDeadLetter(dlq))

	assert.True(t, c.process(context.Background(), eventMessage(t, 9, "")))
	assert.Equal(t, 3, calls)
	require.Len(t, dlq.msgs, 1)
	assert.ErrorIs(t, dlq.causes[0], handlerErr)
	assert.Len(t, r.committed, 1, "dead-lettered message is committed")
}

func TestConsumer_PoisonMessageGoesToDLQ(t *testing.T) {
	r := &fakeReader{}
	dlq := &fakeDLQ{}
	called := false
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		called = true
		return nil
	}, testLogger(), WithDeadLetter(dlq))

	assert.True(t, c.process(context.Background(), kafka.Message{Offset: 3, Value: []byte("garbage")}))
	assert.False(t, called)
	assert.Len(t, dlq.msgs, 1)
	assert.Len(t, r.committed, 1)
}

func TestConsumer_CancelDuringBackoffStops(t *testing.T) {
	r := &fakeReader{}
	cfg := testConsumerConfig()
	cfg.RetryBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, cfg, func(context.Context, *Event) error {
		cancel()
		return errors.New("fail")
	}, testLogger())

	assert.False(t, c.process(ctx, eventMessage(t, 1, "")))
	assert.Empty(t, r.committed, "uncommitted message is redelivered after restart")
}

func TestConsumer_StartDrainsAndStopsOnCancel(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 1, ""), eventMessage(t, 2, "")}}

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	seen := 0
	c := newConsumer(r, testConsumerConfig(), func(context.Context, *Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == 2 {
			cancel()
		}
		return nil
	}, testLogger())

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}

	assert.Equal(t, 2, seen)
	assert.Len(t, r.committed, 2)
	assert.Equal(t, 1, r.closed)
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed, "Close is idempotent")
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := newConsumer(&fakeReader{}, ConsumerConfig{Topic: "t"}, func(context.Context, *Event) error { return nil }, testLogger())
	assert.Equal(t, 3, c.cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, c.cfg.RetryBackoff)
}
