package model

// externalFields maps external API field names onto quote fields.
// Order matches the published response layout.
var externalFields = []struct {
	external string
	internal string
}{
	{"StockCode", FieldSymbol},
	{"TradingDate", FieldTradingTime},
	{"KLCPLH", FieldListedShares},
	{"PriorClosePrice", FieldReferencePrice},
	{"CeilingPrice", FieldHighLimitPrice},
	{"FloorPrice", FieldLowLimitPrice},
	{"TotalVol", FieldTotalVolumeTraded},
	{"TotalVal", "matchValue"},
	{"HighestPrice", "highestPrice"},
	{"LowestPrice", "lowestPrice"},
	{"OpenPrice", FieldOpenPrice},
	{"LastPrice", FieldMatchPrice},
	{"AvrPrice", FieldAveragePrice},
	{"Change", FieldChangedValue},
	{"ClosePrice", FieldMatchPrice},
	{"BasicPrice", FieldReferencePrice},
}

// ToExternalFormat renames the quote's fields to the external API layout.
// Fields absent on the quote are left out of the result.
func ToExternalFormat(q Quote) map[string]any {
	out := make(map[string]any, len(externalFields))
	for _, f := range externalFields {
		if v, ok := q.Field(f.internal); ok {
			out[f.external] = v
		}
	}
	return out
}
