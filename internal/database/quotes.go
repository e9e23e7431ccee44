package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/quote-relay/internal/model"
)

// QuoteReader reads persisted quotes.
type QuoteReader struct {
	db DBTX
}

// NewQuoteReader creates a QuoteReader.
func NewQuoteReader(db DBTX) *QuoteReader {
	return &QuoteReader{db: db}
}

// GetQuote returns the stored quote for symbol; ok is false when none exists.
func (r *QuoteReader) GetQuote(ctx context.Context, symbol string) (model.Quote, bool, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM quotes WHERE symbol = $1`, symbol).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Quote{}, false, nil
	}
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("get quote %s: %w", symbol, err)
	}

	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("decode quote %s: %w", symbol, err)
	}
	return q, true, nil
}

// ListQuotes returns every stored quote ordered by symbol.
func (r *QuoteReader) ListQuotes(ctx context.Context) ([]model.Quote, error) {
	rows, err := r.db.Query(ctx, `SELECT data FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]model.Quote, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		var q model.Quote
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}

	return quotes, nil
}
