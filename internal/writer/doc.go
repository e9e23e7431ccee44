// Package writer persists changed quotes.
//
// QuoteWriter upserts one row per symbol into the quotes table. The stored
// jsonb document is merged with the incoming one, so fields missing from an
// update keep their previous value. Writes are synchronous: the change cache
// only advances once the write has succeeded.
package writer
