package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/model"
)

type fakeSink struct {
	name   string
	err    error
	mu     sync.Mutex
	quotes []model.Quote
	ctxOK  bool
	closed bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Publish(ctx context.Context, q model.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, s.ctxOK = ctx.Deadline()
	s.quotes = append(s.quotes, q)
	return s.err
}

func (s *fakeSink) Close() error {
	s.closed = true
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes)
}

// blockingSink holds every delivery until release is closed.
type blockingSink struct {
	name    string
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	symbols []string
}

func newBlockingSink(name string) *blockingSink {
	return &blockingSink{
		name:    name,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Name() string { return s.name }

func (s *blockingSink) Publish(_ context.Context, q model.Quote) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	s.mu.Lock()
	s.symbols = append(s.symbols, q.Symbol)
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) Close() error { return nil }

func quote(symbol string, price float64) model.Quote {
	return model.Quote{Symbol: symbol, MatchPrice: model.Float(price)}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, sink string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "sink" && l.GetValue() == sink {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMulti_PublishReachesAllSinks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	failing := &fakeSink{name: "redis", err: errors.New("connection refused")}
	ok := &fakeSink{name: "websocket"}
	b := NewMulti([]Sink{failing, ok}, time.Second, m, nil)
	assert.Equal(t, 2, b.Sinks())

	b.Publish(context.Background(), quote("ABC", 100))
	_ = b.Close()

	require.Len(t, failing.quotes, 1)
	require.Len(t, ok.quotes, 1, "a failing sink must not stop other sinks")
	assert.Equal(t, "ABC", ok.quotes[0].Symbol)
	assert.True(t, ok.ctxOK, "sink context should carry a deadline")

	assert.Equal(t, 1.0, counterValue(t, reg, "quote_relay_broadcast_errors_total", "redis"))
	assert.Equal(t, 1.0, counterValue(t, reg, "quote_relay_broadcasts_total", "websocket"))
}

func TestMulti_PreservesOrderPerSink(t *testing.T) {
	s := &fakeSink{name: "kafka"}
	b := NewMulti([]Sink{s}, 0, nil, nil)

	for _, sym := range []string{"A", "B", "C", "D"} {
		b.Publish(context.Background(), quote(sym, 1))
	}
	require.NoError(t, b.Close())

	var got []string
	for _, q := range s.quotes {
		got = append(got, q.Symbol)
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)
}

func TestMulti_SlowSinkDoesNotBlockPublisher(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	slow := newBlockingSink("slow")
	fast := &fakeSink{name: "fast"}
	b := NewMulti([]Sink{slow, fast}, time.Minute, m, nil, WithQueueSize(1))

	b.Publish(context.Background(), quote("A", 1))
	select {
	case <-slow.started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow sink never received the first quote")
	}
	require.Eventually(t, func() bool { return fast.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	begin := time.Now()
	b.Publish(context.Background(), quote("B", 1))
	require.Eventually(t, func() bool { return fast.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	b.Publish(context.Background(), quote("C", 1))
	require.Eventually(t, func() bool { return fast.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Less(t, time.Since(begin), time.Second, "Publish waited on the slow sink")

	// A is in flight and B fills the queue, so C is dropped for the slow sink only.
	assert.Equal(t, 1.0, counterValue(t, reg, "quote_relay_broadcast_errors_total", "slow"))
	assert.Equal(t, 0.0, counterValue(t, reg, "quote_relay_broadcast_errors_total", "fast"))

	close(slow.release)
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"A", "B"}, slow.symbols)
}

func TestMulti_NilMetrics(t *testing.T) {
	s := &fakeSink{name: "kafka"}
	b := NewMulti([]Sink{s}, 0, nil, nil)
	assert.Equal(t, DefaultPublishTimeout, b.timeout)
	assert.Equal(t, DefaultQueueSize, b.queueSize)

	b.Publish(context.Background(), quote("XYZ", 1))
	require.NoError(t, b.Close())

	assert.Len(t, s.quotes, 1)
}

func TestMulti_PublishAfterCloseIsDropped(t *testing.T) {
	s := &fakeSink{name: "websocket"}
	b := NewMulti([]Sink{s}, 0, nil, nil)
	require.NoError(t, b.Close())

	b.Publish(context.Background(), quote("ABC", 1))

	assert.Equal(t, 0, s.count())
	assert.True(t, s.closed)
	assert.NoError(t, b.Close(), "second Close")
}

func TestMulti_CloseJoinsErrors(t *testing.T) {
	a := &fakeSink{name: "a", err: errors.New("a failed")}
	b := &fakeSink{name: "b"}
	c := &fakeSink{name: "c", err: errors.New("c failed")}

	err := NewMulti([]Sink{a, b, c}, 0, nil, nil).Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "c failed")
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestMulti_EmptyIsNoop(t *testing.T) {
	b := NewMulti(nil, 0, nil, nil)
	b.Publish(context.Background(), quote("ABC", 1))
	assert.NoError(t, b.Close())
}
