// Package broadcast fans changed quotes out to real-time consumers.
//
// A Multi holds one or more Sinks and implements the change cache's
// Broadcaster. Each sink gets its own bounded queue and worker. Delivery is
// best effort: a failing or slow sink is logged and counted but never blocks
// the others or the cache, and a full queue drops the quote for that sink.
//
// Sinks:
//
//	Hub             websocket push to UI clients, optional per-client symbol filter
//	RedisPublisher  latest snapshot key plus a pub/sub message per symbol
//	KafkaPublisher  one record per change, keyed by symbol
package broadcast
