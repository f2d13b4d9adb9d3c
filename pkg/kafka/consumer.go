package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultMaxRetryBackoff = 30 * time.Second
)

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers         []string
	Topic           string
	ConsumerGroup   string
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// Consumer reads merge commands and hands them to a handler one at a time.
// A failed message is retried in place until the handler accepts it, because
// committing any later offset would also commit it.
type Consumer struct {
	reader     messageReader
	topic      string
	logger     ectologger.Logger
	handler    MessageHandler
	backoff    time.Duration
	maxBackoff time.Duration
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    atomic.Bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})

	c := newConsumer(reader, cfg.Topic, logger, handler)
	if cfg.RetryBackoff > 0 {
		c.backoff = cfg.RetryBackoff
	}
	if cfg.MaxRetryBackoff > 0 {
		c.maxBackoff = cfg.MaxRetryBackoff
	}
	return c
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		logger:     logger,
		handler:    handler,
		backoff:    defaultRetryBackoff,
		maxBackoff: defaultMaxRetryBackoff,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.running.Store(true)
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
				continue
			}

			if !c.processMessage(ctx, msg) {
				return
			}
		}
	}
}

// processMessage runs the handler until it succeeds, then commits. It
// returns false when ctx ends first; the message stays uncommitted and is
// read again by the next consumer of the group.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := toIncoming(msg)
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, incoming)
		if err == nil {
			break
		}

		tracing.RecordError(span, err)
		log.WithError(err).WithFields(map[string]any{
			"attempt":  attempt,
			"retry_in": backoff.String(),
		}).Warn("Failed to process message; retrying")

		select {
		case <-ctx.Done():
			log.Warn("Stopped before the message succeeded; leaving it uncommitted")
			return false
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
	return true
}

func toIncoming(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}

// Health reports whether the consume loop is running.
func (c *Consumer) Health() bool {
	return c.running.Load()
}
