package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quote_relay"

// Metrics holds the relay's collectors.
type Metrics struct {
	messagesReceived prometheus.Counter
	messagesDropped  *prometheus.CounterVec
	quotesChanged    prometheus.Counter
	quotesUnchanged  prometheus.Counter
	storeWrites      *prometheus.CounterVec
	storeLatency     prometheus.Histogram
	broadcasts       *prometheus.CounterVec
	broadcastErrors  *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	connectionState  prometheus.Gauge
	cacheEntries     prometheus.Gauge
	cacheEvictions   prometheus.Counter
	wsClients        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Passing a
// *prometheus.Registry also enables Handler. Go runtime and process
// collectors are registered alongside.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound broker messages.",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound broker messages dropped before reaching the cache.",
		}, []string{"reason"}),
		quotesChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_changed_total",
			Help:      "Quotes whose significant fields changed and were forwarded.",
		}),
		quotesUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_unchanged_total",
			Help:      "Quotes skipped because no significant field changed.",
		}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Quote upserts by result.",
		}, []string{"result"}),
		storeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_seconds",
			Help:      "Quote upsert latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Quotes handed to a broadcast sink.",
		}, []string{"sink"}),
		broadcastErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "Failed broadcast deliveries.",
		}, []string{"sink"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Scheduled or forced broker reconnects by reason.",
		}, []string{"reason"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Supervisor state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 stopped.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Symbols held in the change cache.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Change cache entries evicted by TTL.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket subscribers.",
		}),
	}

	reg.MustRegister(
		m.messagesReceived,
		m.messagesDropped,
		m.quotesChanged,
		m.quotesUnchanged,
		m.storeWrites,
		m.storeLatency,
		m.broadcasts,
		m.broadcastErrors,
		m.reconnects,
		m.connectionState,
		m.cacheEntries,
		m.cacheEvictions,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// MessageReceived counts an inbound broker message.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

// MessageDropped counts a message dropped for reason.
func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// QuoteDecision counts a change-cache decision.
func (m *Metrics) QuoteDecision(changed bool) {
	if m == nil {
		return
	}
	if changed {
		m.quotesChanged.Inc()
		return
	}
	m.quotesUnchanged.Inc()
}

// StoreWrite records one upsert.
func (m *Metrics) StoreWrite(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.storeLatency.Observe(d.Seconds())
	if err != nil {
		m.storeWrites.WithLabelValues("error").Inc()
		return
	}
	m.storeWrites.WithLabelValues("ok").Inc()
}

// Broadcast records one delivery attempt to sink.
func (m *Metrics) Broadcast(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.broadcastErrors.WithLabelValues(sink).Inc()
		return
	}
	m.broadcasts.WithLabelValues(sink).Inc()
}

// Reconnect counts a reconnect for reason.
func (m *Metrics) Reconnect(reason string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(reason).Inc()
}

// SetConnectionState records the supervisor state code.
func (m *Metrics) SetConnectionState(code int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(code))
}

// SetCacheEntries records the change cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// CacheEvicted counts n evictions.
func (m *Metrics) CacheEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

// SetWebSocketClients records the number of websocket subscribers.
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
