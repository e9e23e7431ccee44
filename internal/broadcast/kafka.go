package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/model"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds an async writer that hashes keys to partitions, so
// all updates for a symbol land on the same partition in order. Async write
// failures are logged.
func NewKafkaWriter(cfg config.KafkaConfig, logger *slog.Logger) *kafka.Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("kafka write failed", "topic", cfg.Topic, "messages", len(msgs), "error", err)
			}
		},
	}
}

// KafkaPublisher writes one record per changed quote, keyed by symbol.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Name implements Sink.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish writes q.
func (p *KafkaPublisher) Publish(ctx context.Context, q model.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(q.Symbol),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", q.Symbol, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
