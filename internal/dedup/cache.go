package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/model"
)

// DefaultTTL is how long an idle entry is kept.
const DefaultTTL = 5 * time.Minute

// Store persists quotes keyed by symbol.
type Store interface {
	UpsertQuote(ctx context.Context, q model.Quote) error
}

// Broadcaster pushes changed quotes to real-time subscribers. Publish is
// fire and forget.
type Broadcaster interface {
	Publish(ctx context.Context, q model.Quote)
}

// Config holds cache settings.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Entry is the cached state for one symbol.
type Entry struct {
	Snapshot    model.Snapshot
	LastUpdated time.Time
}

// ChangeCache forwards quotes whose significant fields changed.
type ChangeCache struct {
	cfg         Config
	store       Store
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a ChangeCache. broadcaster may be nil.
func New(cfg Config, store Store, broadcaster Broadcaster, m *metrics.Metrics, logger *slog.Logger) *ChangeCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeCache{
		cfg:         cfg,
		store:       store,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]Entry),
	}
}

// SaveIfChanged stores and broadcasts q when it is the first quote for its
// symbol or a significant field differs from the cached snapshot. Quotes
// without a symbol are ignored. If the store write fails the error is
// returned and neither the cache nor the broadcaster is touched, so the next
// identical quote retries the write.
func (c *ChangeCache) SaveIfChanged(ctx context.Context, q model.Quote) error {
	if q.Symbol == "" {
		return nil
	}

	snap := q.Snapshot()

	c.mu.RLock()
	prev, ok := c.entries[q.Symbol]
	c.mu.RUnlock()

	if ok && prev.Snapshot.Equal(snap) {
		c.metrics.QuoteDecision(false)
		return nil
	}
	c.metrics.QuoteDecision(true)

	if err := c.store.UpsertQuote(ctx, q); err != nil {
		c.logger.Error("store quote failed", "symbol", q.Symbol, "error", err)
		return err
	}

	c.mu.Lock()
	now := c.now()
	if cur, ok := c.entries[q.Symbol]; ok && !now.After(cur.LastUpdated) {
		now = cur.LastUpdated.Add(time.Nanosecond)
	}
	c.entries[q.Symbol] = Entry{Snapshot: snap, LastUpdated: now}
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.SetCacheEntries(size)

	if c.broadcaster != nil {
		c.broadcaster.Publish(ctx, q)
	}

	c.logger.Debug("quote updated", "symbol", q.Symbol)
	return nil
}

// Cleanup evicts entries idle for longer than the TTL and returns how many
// were removed.
func (c *ChangeCache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for symbol, e := range c.entries {
		if now.Sub(e.LastUpdated) > c.cfg.TTL {
			delete(c.entries, symbol)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.CacheEvicted(removed)
	c.metrics.SetCacheEntries(size)
	if removed > 0 {
		c.logger.Debug("cleaned up stale cache entries", "removed", removed, "remaining", size)
	}
	return removed
}

// Get returns the cached entry for symbol.
func (c *ChangeCache) Get(symbol string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	return e, ok
}

// Len returns the number of cached symbols.
func (c *ChangeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start runs Cleanup every CleanupInterval until Stop or ctx is done.
func (c *ChangeCache) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.cleanupLoop(ctx)

	c.logger.Info("change cache started",
		"ttl", c.cfg.TTL,
		"cleanup_interval", c.cfg.CleanupInterval,
	)
	return nil
}

// Stop halts the cleanup loop.
func (c *ChangeCache) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("change cache stopped")
	case <-ctx.Done():
		c.logger.Warn("change cache stop timed out")
		return ctx.Err()
	}
	return nil
}

func (c *ChangeCache) cleanupLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
