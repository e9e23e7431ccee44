// Package dedup implements the change cache that sits between the broker
// connection and the downstream sinks.
//
// For each symbol the cache remembers the significant fields of the last
// forwarded quote. A quote is forwarded (stored, then broadcast) only when
// it is the first for its symbol or one of those fields differs. Entries
// idle for longer than the TTL are evicted; eviction never touches the store.
package dedup
