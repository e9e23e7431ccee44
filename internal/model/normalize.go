package model

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Normalize converts a decoded broker payload into a Quote.
//
// Each numeric field is coerced with number semantics: numeric strings
// (surrounding whitespace ignored), booleans and null convert; the empty
// string is zero; a missing key or anything that does not convert is absent.
// Every other key is kept verbatim in Extra. Normalize never fails.
func Normalize(raw map[string]any) Quote {
	var q Quote
	numeric := make(map[string]**float64, 12)
	for _, f := range q.numericFields() {
		numeric[f.name] = f.ptr
	}

	for key, val := range raw {
		if ptr, ok := numeric[key]; ok {
			if n, ok := toNumber(val); ok {
				*ptr = Float(n)
			}
			continue
		}

		switch key {
		case FieldSymbol:
			if s, ok := val.(string); ok {
				q.Symbol = s
				continue
			}
		case FieldTradingTime:
			if s, ok := val.(string); ok {
				q.TradingTime = s
				continue
			}
		}

		b, err := json.Marshal(val)
		if err != nil {
			continue
		}
		if q.Extra == nil {
			q.Extra = make(map[string]json.RawMessage)
		}
		q.Extra[key] = b
	}

	return q
}

// toNumber reports the numeric value of v, or false when v has none.
// Non-finite results are rejected since they cannot be stored as JSON.
func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case nil:
		return 0, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, ok := parseNumericString(s)
		if !ok {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// parseNumericString parses a trimmed decimal string, or an unsigned integer
// with a 0x, 0o or 0b prefix.
func parseNumericString(s string) (float64, bool) {
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			digits := s[2:]
			if digits[0] == '+' || digits[0] == '-' {
				return 0, false
			}
			i, ok := new(big.Int).SetString(digits, base)
			if !ok {
				return 0, false
			}
			f, _ := new(big.Float).SetInt(i).Float64()
			return f, true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
