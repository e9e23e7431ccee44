package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/quote-relay/internal/config"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_KeyedBySymbol(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w)

	require.NoError(t, p.Publish(context.Background(), quote("ABC", 100)))
	require.NoError(t, p.Publish(context.Background(), quote("XYZ", 7)))

	require.Len(t, w.messages, 2)
	assert.Equal(t, "ABC", string(w.messages[0].Key))
	assert.Equal(t, "XYZ", string(w.messages[1].Key))
	assert.False(t, w.messages[0].Time.IsZero())

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &got))
	assert.Equal(t, 100.0, got["matchPrice"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewKafkaPublisher(w)

	err := p.Publish(context.Background(), quote("ABC", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, "kafka", p.Name())
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"k1:9092", "k2:9092"}, Topic: "quotes"}, nil)
	defer w.Close()

	assert.Equal(t, "quotes", w.Topic)
	assert.True(t, w.Async)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, 50*time.Millisecond, w.BatchTimeout)
}
