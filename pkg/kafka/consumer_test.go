package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.pending) > 0 {
			msg := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()
			return msg, nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	reader := &fakeReader{pending: []kafka.Message{
		{Topic: "merges", Offset: 10},
		{Topic: "merges", Offset: 11},
	}}

	var mu sync.Mutex
	var seen []int64
	handler := func(ctx context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.Offset)
		if msg.Offset == 10 && len(seen) < 3 {
			return errors.New("a merge involving these users is already in progress")
		}
		return nil
	}

	consumer := newConsumer(reader, "merges", logger, handler)
	consumer.backoff = time.Millisecond
	consumer.maxBackoff = 2 * time.Millisecond

	require.NoError(t, consumer.Start(context.Background()))
	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, consumer.Health())
	require.NoError(t, consumer.Stop())

	assert.Equal(t, []int64{10, 11}, reader.Committed())
	mu.Lock()
	assert.Equal(t, []int64{10, 10, 10, 11}, seen)
	mu.Unlock()
	assert.True(t, reader.closed)
	assert.False(t, consumer.Health())
}

func TestConsumer_StopLeavesFailingMessageUncommitted(t *testing.T) {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	reader := &fakeReader{pending: []kafka.Message{
		{Topic: "merges", Offset: 3},
		{Topic: "merges", Offset: 4},
	}}

	attempts := make(chan int64, 100)
	handler := func(ctx context.Context, msg *IncomingMessage) error {
		attempts <- msg.Offset
		return errors.New("connection refused")
	}

	consumer := newConsumer(reader, "merges", logger, handler)
	consumer.backoff = time.Millisecond
	consumer.maxBackoff = time.Millisecond

	require.NoError(t, consumer.Start(context.Background()))
	for i := 0; i < 3; i++ {
		select {
		case offset := <-attempts:
			assert.Equal(t, int64(3), offset)
		case <-time.After(time.Second):
			t.Fatal("handler was not retried")
		}
	}
	require.NoError(t, consumer.Stop())

	assert.Empty(t, reader.Committed())
	close(attempts)
	for offset := range attempts {
		assert.Equal(t, int64(3), offset)
	}
}
