package decision

import (
	"math"

	"github.com/shopspring/decimal"
)

// Rounding precision of published fields
const (
	pctPlaces   int32 = 2 // returns, risks, prices
	probPlaces  int32 = 3 // probabilities, hit rates
	evPlaces    int32 = 3
	scorePlaces int32 = 1 // 0-100 scores
)

// round uses half-away-from-zero on the decimal representation so 0.125 -> 0.13
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func roundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	return ptr(round(*v, places))
}

func ptr(v float64) *float64 {
	return &v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
