package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/model"
)

const (
	// DefaultPublishTimeout bounds a single sink delivery.
	DefaultPublishTimeout = 2 * time.Second

	// DefaultQueueSize is the per-sink backlog before quotes are dropped.
	DefaultQueueSize = 1024
)

// ErrQueueFull is recorded when a sink's backlog is full and a quote is dropped.
var ErrQueueFull = errors.New("broadcast queue full")

// Sink delivers a changed quote to one kind of consumer.
type Sink interface {
	Name() string
	Publish(ctx context.Context, q model.Quote) error
	Close() error
}

// MultiOption configures a Multi.
type MultiOption func(*Multi)

// WithQueueSize sets the per-sink backlog.
func WithQueueSize(n int) MultiOption {
	return func(b *Multi) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// sinkWorker owns one sink and delivers its queued quotes in order.
type sinkWorker struct {
	sink  Sink
	queue chan model.Quote
}

// Multi forwards every quote to all of its sinks. Each sink has its own
// queue and worker, so a slow sink delays only itself and never the caller.
type Multi struct {
	workers   []*sinkWorker
	timeout   time.Duration
	queueSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewMulti creates a Multi and starts one worker per sink. A non-positive
// timeout uses DefaultPublishTimeout.
func NewMulti(sinks []Sink, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger, opts ...MultiOption) *Multi {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Multi{
		timeout:   timeout,
		queueSize: DefaultQueueSize,
		metrics:   m,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, s := range sinks {
		w := &sinkWorker{sink: s, queue: make(chan model.Quote, b.queueSize)}
		b.workers = append(b.workers, w)
		b.wg.Add(1)
		go b.run(w)
	}
	return b
}

// Publish queues q for every sink and returns without waiting for delivery.
// A sink whose queue is full drops q; the drop is logged and counted.
func (b *Multi) Publish(_ context.Context, q model.Quote) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, w := range b.workers {
		select {
		case w.queue <- q:
		default:
			b.metrics.Broadcast(w.sink.Name(), ErrQueueFull)
			b.logger.Warn("broadcast dropped",
				"phase", "broadcast",
				"sink", w.sink.Name(),
				"symbol", q.Symbol,
				"error", ErrQueueFull,
			)
		}
	}
}

func (b *Multi) run(w *sinkWorker) {
	defer b.wg.Done()
	for q := range w.queue {
		b.deliver(w.sink, q)
	}
}

func (b *Multi) deliver(s Sink, q model.Quote) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	err := s.Publish(ctx, q)
	cancel()

	b.metrics.Broadcast(s.Name(), err)
	if err != nil {
		b.logger.Warn("broadcast failed",
			"phase", "broadcast",
			"sink", s.Name(),
			"symbol", q.Symbol,
			"error", err,
		)
	}
}

// Sinks returns the number of configured sinks.
func (b *Multi) Sinks() int {
	return len(b.workers)
}

// Close stops accepting quotes, waits for the queued ones to be delivered,
// then closes every sink and joins their errors. Later calls return the
// same result.
func (b *Multi) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, w := range b.workers {
			close(w.queue)
		}
		b.mu.Unlock()

		b.wg.Wait()

		var errs []error
		for _, w := range b.workers {
			if err := w.sink.Close(); err != nil {
				errs = append(errs, err)
				b.logger.Error("close sink failed", "sink", w.sink.Name(), "error", err)
			}
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}
