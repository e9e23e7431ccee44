package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/model"
)

// ErrEmptySymbol is returned for quotes without a symbol.
var ErrEmptySymbol = errors.New("writer: quote has no symbol")

const upsertQuoteSQL = `
	INSERT INTO quotes (symbol, data, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (symbol) DO UPDATE SET
		data       = quotes.data || EXCLUDED.data,
		updated_at = EXCLUDED.updated_at
`

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Upserts   int64
	Errors    int64
	LastWrite time.Time
}

// QuoteWriter upserts quotes keyed by symbol.
type QuoteWriter struct {
	db      Execer
	logger  *slog.Logger
	prom    *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewQuoteWriter creates a QuoteWriter. A zero timeout leaves the caller's
// deadline in charge.
func NewQuoteWriter(db Execer, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *QuoteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteWriter{
		db:      db,
		logger:  logger,
		prom:    m,
		timeout: timeout,
	}
}

// UpsertQuote stores q, merging it into any existing row for its symbol.
func (w *QuoteWriter) UpsertQuote(ctx context.Context, q model.Quote) error {
	if q.Symbol == "" {
		return ErrEmptySymbol
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", q.Symbol, err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err = w.db.Exec(ctx, upsertQuoteSQL, q.Symbol, data)
	w.prom.StoreWrite(time.Since(start), err)

	w.mu.Lock()
	if err != nil {
		w.metrics.Errors++
	} else {
		w.metrics.Upserts++
		w.metrics.LastWrite = time.Now()
	}
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("upsert quote %s: %w", q.Symbol, err)
	}

	w.logger.Debug("quote upserted",
		"symbol", q.Symbol,
		"duration", time.Since(start),
	)
	return nil
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}
