package models

import (
	"fmt"
	"math"
	"time"
)

// FeatureRow holds the derived features for one book snapshot. A row with
// Valid=false carries NaN feature fields; batch TRAIN derivation drops such
// rows while streaming consumers skip the tick entirely.
type FeatureRow struct {
	Timestamp  time.Time
	Coin       string
	BidPx      float64
	AskPx      float64
	BidSz      float64
	AskSz      float64
	MidPrice   float64
	Spread     float64
	Imbalance  float64
	WMP        float64
	Volatility float64
	Target     int32
	Labeled    bool
	Valid      bool
}

// ScoredRow is a feature row with the model probability attached.
type ScoredRow struct {
	FeatureRow
	Prob float64
}

// FeatureParquetRecord is the on-disk schema for feature files, one file per
// (coin, date). Column order matches FeatureSchema plus identity and target.
type FeatureParquetRecord struct {
	Timestamp  int64   `parquet:"name=timestamp, type=INT64"`
	Coin       string  `parquet:"name=coin, type=BYTE_ARRAY, convertedtype=UTF8"`
	BidPx      float64 `parquet:"name=bid_px, type=DOUBLE"`
	AskPx      float64 `parquet:"name=ask_px, type=DOUBLE"`
	BidSz      float64 `parquet:"name=bid_sz, type=DOUBLE"`
	AskSz      float64 `parquet:"name=ask_sz, type=DOUBLE"`
	MidPrice   float64 `parquet:"name=mid_price, type=DOUBLE"`
	Spread     float64 `parquet:"name=spread, type=DOUBLE"`
	Imbalance  float64 `parquet:"name=imbalance_1, type=DOUBLE"`
	WMP        float64 `parquet:"name=wmp, type=DOUBLE"`
	Volatility float64 `parquet:"name=volatility_5m, type=DOUBLE"`
	Target     int32   `parquet:"name=target, type=INT32"`
}

// FeatureSchema is the declared, ordered feature-column list. The scaler and
// classifier are fitted against exactly this set in this order; loading an
// artifact with a different schema is rejected.
func FeatureSchema() []string {
	return []string{
		"bid_px", "ask_px", "bid_sz", "ask_sz",
		"mid_price", "spread", "imbalance_1", "wmp",
		"volatility_5m",
	}
}

// Vector lays the row out in the order the given schema declares.
func (r FeatureRow) Vector(schema []string) ([]float64, error) {
	vec := make([]float64, 0, len(schema))
	for _, col := range schema {
		switch col {
		case "bid_px":
			vec = append(vec, r.BidPx)
		case "ask_px":
			vec = append(vec, r.AskPx)
		case "bid_sz":
			vec = append(vec, r.BidSz)
		case "ask_sz":
			vec = append(vec, r.AskSz)
		case "mid_price":
			vec = append(vec, r.MidPrice)
		case "spread":
			vec = append(vec, r.Spread)
		case "imbalance_1":
			vec = append(vec, r.Imbalance)
		case "wmp":
			vec = append(vec, r.WMP)
		case "volatility_5m":
			vec = append(vec, r.Volatility)
		default:
			return nil, fmt.Errorf("unknown feature column '%s'", col)
		}
	}
	return vec, nil
}

// ToParquet converts the row to its persisted form.
func (r FeatureRow) ToParquet() FeatureParquetRecord {
	return FeatureParquetRecord{
		Timestamp:  r.Timestamp.UnixMilli(),
		Coin:       r.Coin,
		BidPx:      r.BidPx,
		AskPx:      r.AskPx,
		BidSz:      r.BidSz,
		AskSz:      r.AskSz,
		MidPrice:   r.MidPrice,
		Spread:     r.Spread,
		Imbalance:  r.Imbalance,
		WMP:        r.WMP,
		Volatility: r.Volatility,
		Target:     r.Target,
	}
}

// FromParquet converts a persisted record back to a feature row.
func FromParquet(rec FeatureParquetRecord) FeatureRow {
	return FeatureRow{
		Timestamp:  time.UnixMilli(rec.Timestamp).UTC(),
		Coin:       rec.Coin,
		BidPx:      rec.BidPx,
		AskPx:      rec.AskPx,
		BidSz:      rec.BidSz,
		AskSz:      rec.AskSz,
		MidPrice:   rec.MidPrice,
		Spread:     rec.Spread,
		Imbalance:  rec.Imbalance,
		WMP:        rec.WMP,
		Volatility: rec.Volatility,
		Target:     rec.Target,
		Labeled:    true,
		Valid:      !math.IsNaN(rec.MidPrice),
	}
}
