package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON field names of the typed quote fields.
const (
	FieldSymbol            = "symbol"
	FieldTradingTime       = "tradingTime"
	FieldMatchPrice        = "matchPrice"
	FieldMatchQuantity     = "matchQuantity"
	FieldTotalVolumeTraded = "totalVolumeTraded"
	FieldListedShares      = "listedShares"
	FieldReferencePrice    = "referencePrice"
	FieldOpenPrice         = "openPrice"
	FieldClosePrice        = "closePrice"
	FieldAveragePrice      = "averagePrice"
	FieldHighLimitPrice    = "highLimitPrice"
	FieldLowLimitPrice     = "lowLimitPrice"
	FieldChangedValue      = "changedValue"
	FieldChangedRatio      = "changedRatio"
)

// Quote is a normalized market quote for one instrument.
type Quote struct {
	Symbol      string // Instrument code, unique key
	TradingTime string // Exchange trading time as sent by the broker

	MatchPrice        *float64
	MatchQuantity     *float64
	TotalVolumeTraded *float64
	ListedShares      *float64
	ReferencePrice    *float64
	OpenPrice         *float64
	ClosePrice        *float64
	AveragePrice      *float64
	HighLimitPrice    *float64
	LowLimitPrice     *float64
	ChangedValue      *float64
	ChangedRatio      *float64

	// Extra holds every inbound field not listed above, verbatim.
	Extra map[string]json.RawMessage
}

type numericField struct {
	name string
	ptr  **float64
}

// numericFields lists the twelve coerced fields in wire order.
func (q *Quote) numericFields() []numericField {
	return []numericField{
		{FieldMatchPrice, &q.MatchPrice},
		{FieldMatchQuantity, &q.MatchQuantity},
		{FieldTotalVolumeTraded, &q.TotalVolumeTraded},
		{FieldListedShares, &q.ListedShares},
		{FieldReferencePrice, &q.ReferencePrice},
		{FieldOpenPrice, &q.OpenPrice},
		{FieldClosePrice, &q.ClosePrice},
		{FieldAveragePrice, &q.AveragePrice},
		{FieldHighLimitPrice, &q.HighLimitPrice},
		{FieldLowLimitPrice, &q.LowLimitPrice},
		{FieldChangedValue, &q.ChangedValue},
		{FieldChangedRatio, &q.ChangedRatio},
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Field returns the value of a quote field by its JSON name. Typed fields
// are returned as string or float64, passthrough fields as json.RawMessage.
// ok is false when the field is absent.
func (q Quote) Field(name string) (any, bool) {
	switch name {
	case FieldSymbol:
		if q.Symbol == "" {
			break
		}
		return q.Symbol, true
	case FieldTradingTime:
		if q.TradingTime == "" {
			break
		}
		return q.TradingTime, true
	}
	for _, f := range q.numericFields() {
		if f.name != name {
			continue
		}
		if *f.ptr == nil {
			return nil, false
		}
		return **f.ptr, true
	}
	raw, ok := q.Extra[name]
	if !ok {
		return nil, false
	}
	return raw, true
}

// MarshalJSON encodes the quote as a flat JSON object. Absent numeric fields
// are omitted.
func (q Quote) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(q.Extra)+14)
	for k, v := range q.Extra {
		out[k] = v
	}

	if q.Symbol != "" {
		b, err := json.Marshal(q.Symbol)
		if err != nil {
			return nil, err
		}
		out[FieldSymbol] = b
	}
	if q.TradingTime != "" {
		b, err := json.Marshal(q.TradingTime)
		if err != nil {
			return nil, err
		}
		out[FieldTradingTime] = b
	}
	for _, f := range q.numericFields() {
		if *f.ptr == nil {
			continue
		}
		b, err := json.Marshal(**f.ptr)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.name, err)
		}
		out[f.name] = b
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes a JSON object and normalizes it.
func (q *Quote) UnmarshalJSON(data []byte) error {
	raw, err := DecodeRaw(data)
	if err != nil {
		return err
	}
	*q = Normalize(raw)
	return nil
}

// DecodeRaw decodes a JSON object keeping numbers as json.Number so that
// passthrough fields survive without float rounding.
func DecodeRaw(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("quote payload is not a JSON object")
	}
	return raw, nil
}

// Snapshot is the subset of quote fields whose change triggers a write.
type Snapshot struct {
	MatchPrice        *float64
	TotalVolumeTraded *float64
	MatchQuantity     *float64
	ChangedValue      *float64
	ChangedRatio      *float64
}

// Snapshot returns a copy of the significant fields of q.
func (q Quote) Snapshot() Snapshot {
	return Snapshot{
		MatchPrice:        cloneFloat(q.MatchPrice),
		TotalVolumeTraded: cloneFloat(q.TotalVolumeTraded),
		MatchQuantity:     cloneFloat(q.MatchQuantity),
		ChangedValue:      cloneFloat(q.ChangedValue),
		ChangedRatio:      cloneFloat(q.ChangedRatio),
	}
}

// Equal reports whether every significant field matches. Two absent values
// are equal; absent never equals a present value.
func (s Snapshot) Equal(o Snapshot) bool {
	return floatEqual(s.MatchPrice, o.MatchPrice) &&
		floatEqual(s.TotalVolumeTraded, o.TotalVolumeTraded) &&
		floatEqual(s.MatchQuantity, o.MatchQuantity) &&
		floatEqual(s.ChangedValue, o.ChangedValue) &&
		floatEqual(s.ChangedRatio, o.ChangedRatio)
}

func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
