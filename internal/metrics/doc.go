// Package metrics provides Prometheus metrics for the relay.
//
// Key metrics:
//   - Broker connection state, reconnects by reason and inbound message rates
//   - Change-cache decisions, size and evictions
//   - Store write results and latency
//   - Broadcast deliveries per sink and connected websocket clients
//
// All recording methods are safe on a nil *Metrics.
package metrics
