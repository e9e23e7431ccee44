// Package model defines the quote record shared across the relay.
//
// Conventions:
//   - Numeric quote fields are *float64; nil means the source value was absent
//     or not numeric. Absent is never coerced to zero.
//   - Fields the relay does not interpret are carried through untouched in
//     Quote.Extra as raw JSON.
//   - The instrument symbol is the unique key everywhere (cache, store, topics).
package model
