package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// EventTypeUserMerged is the event type of MergeEvent.
const EventTypeUserMerged = "user.merged"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer handles Kafka event emission
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishMergeEvent publishes a merge event keyed by the absorber so every
// event about one account lands on the same partition.
func (p *Producer) PublishMergeEvent(ctx context.Context, event *MergeEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMergeEvent")
	defer span.End()

	if event.EventType == "" {
		event.EventType = EventTypeUserMerged
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(event.EventType)},
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		headers = append(headers, kafka.Header{Key: HeaderTraceParent, Value: []byte(traceParent)})
	}

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.AbsorberID),
		Value:   data,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish merge event")
		tracing.RecordError(span, err)
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":  event.EventType,
		"merge_id":    event.MergeID,
		"absorber_id": event.AbsorberID,
	}).Debug("Published merge event")

	return nil
}
