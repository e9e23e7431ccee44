// Package database provides the PostgreSQL pool and the relay's table access.
//
// Tables:
//   - quotes: latest quote per symbol as a jsonb document, merged on upsert
//   - credentials: the single broker credential, keyed by a fixed id
//
// Queries run through DBTX so that both *pgxpool.Pool and pgx.Tx satisfy them.
package database
