package domain

import (
	"math"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

const (
	// PricePlaces is the precision of stored bar prices.
	PricePlaces int32 = 2
	// SamplePlaces is the precision of stored live samples.
	SamplePlaces int32 = 4
)

// Round rounds v half away from zero at the given number of decimal places,
// working on the shortest decimal representation of v so that 150.12345
// becomes 150.1235 at four places. NaN and infinities are returned unchanged.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundNull rounds a nullable value, mapping NaN to null.
func RoundNull(v null.Float, places int32) null.Float {
	if !v.Valid || math.IsNaN(v.Float64) {
		return null.Float{}
	}
	return null.FloatFrom(Round(v.Float64, places))
}
