package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/quote-relay/internal/auth"
)

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if len(db.execs) != 2 {
		t.Fatalf("execs = %d, want 2", len(db.execs))
	}
	if !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS quotes") {
		t.Errorf("first statement = %q", db.execs[0])
	}
	if !strings.Contains(db.execs[1], "CREATE TABLE IF NOT EXISTS credentials") {
		t.Errorf("second statement = %q", db.execs[1])
	}
}

func TestEnsureSchema_Error(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	if err := EnsureSchema(context.Background(), db); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestCredentialStore_Load(t *testing.T) {
	expires := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("no row", func(t *testing.T) {
		store := NewCredentialStore(&fakeDB{})
		_, ok, err := store.LoadCredential(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("ok = true, want false")
		}
	})

	t.Run("row", func(t *testing.T) {
		store := NewCredentialStore(&fakeDB{row: []any{"tok", "INV-1", expires}})
		cred, ok, err := store.LoadCredential(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("ok = false, want true")
		}
		want := auth.Credential{Token: "tok", AccountID: "INV-1", ExpiresAt: expires}
		if cred != want {
			t.Errorf("cred = %+v, want %+v", cred, want)
		}
	})

	t.Run("query error", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		store := NewCredentialStore(&fakeDB{rowErr: dbErr})
		_, _, err := store.LoadCredential(context.Background())
		if !errors.Is(err, dbErr) {
			t.Errorf("error = %v, want %v", err, dbErr)
		}
	})
}

func TestCredentialStore_SaveUsesFixedKey(t *testing.T) {
	db := &fakeDB{}
	store := NewCredentialStore(db)
	expires := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for _, tok := range []string{"first", "second"} {
		err := store.SaveCredential(context.Background(), auth.Credential{Token: tok, AccountID: "INV-1", ExpiresAt: expires})
		if err != nil {
			t.Fatalf("SaveCredential() error = %v", err)
		}
	}

	if len(db.execs) != 2 {
		t.Fatalf("execs = %d, want 2", len(db.execs))
	}
	for i, args := range db.args {
		if args[0] != CredentialKey {
			t.Errorf("exec %d key = %v, want %q", i, args[0], CredentialKey)
		}
		if !strings.Contains(db.execs[i], "ON CONFLICT (id) DO UPDATE") {
			t.Errorf("exec %d is not an upsert: %q", i, db.execs[i])
		}
	}
	if db.args[1][1] != "second" {
		t.Errorf("second token = %v, want second", db.args[1][1])
	}
}

func TestQuoteReader_GetQuote(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db := &fakeDB{row: []any{[]byte(`{"symbol":"ABC","matchPrice":100,"exchange":"HOSE"}`)}}
		q, ok, err := NewQuoteReader(db).GetQuote(context.Background(), "ABC")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("ok = false, want true")
		}
		if q.Symbol != "ABC" {
			t.Errorf("Symbol = %q, want ABC", q.Symbol)
		}
		if q.MatchPrice == nil || *q.MatchPrice != 100 {
			t.Errorf("MatchPrice = %v, want 100", q.MatchPrice)
		}
		if string(q.Extra["exchange"]) != `"HOSE"` {
			t.Errorf("Extra[exchange] = %s", q.Extra["exchange"])
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, ok, err := NewQuoteReader(&fakeDB{}).GetQuote(context.Background(), "XYZ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("ok = true, want false")
		}
	})

	t.Run("corrupt document", func(t *testing.T) {
		db := &fakeDB{row: []any{[]byte(`[1,2,3]`)}}
		if _, _, err := NewQuoteReader(db).GetQuote(context.Background(), "ABC"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestQuoteReader_ListQuotes(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{[]byte(`{"symbol":"AAA","matchPrice":1}`)},
		{[]byte(`{"symbol":"BBB","matchPrice":"2"}`)},
	}}

	quotes, err := NewQuoteReader(db).ListQuotes(context.Background())
	if err != nil {
		t.Fatalf("ListQuotes() error = %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("len = %d, want 2", len(quotes))
	}
	if quotes[0].Symbol != "AAA" || quotes[1].Symbol != "BBB" {
		t.Errorf("symbols = %q, %q", quotes[0].Symbol, quotes[1].Symbol)
	}
	if quotes[1].MatchPrice == nil || *quotes[1].MatchPrice != 2 {
		t.Errorf("BBB MatchPrice = %v, want 2", quotes[1].MatchPrice)
	}
}

func TestQuoteReader_ListQuotesEmpty(t *testing.T) {
	quotes, err := NewQuoteReader(&fakeDB{}).ListQuotes(context.Background())
	if err != nil {
		t.Fatalf("ListQuotes() error = %v", err)
	}
	if quotes == nil || len(quotes) != 0 {
		t.Errorf("quotes = %v, want empty non-nil slice", quotes)
	}
}
