package testing

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/aristath/frontier/internal/modules/marketdata"
)

// SyntheticPrices returns n daily closes following a geometric random walk.
// Drift and volatility are derived from the symbol, so the same symbol
// always yields the same series.
func SyntheticPrices(symbol string, from time.Time, n int) []marketdata.PricePoint {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	drift := 0.0002 + rng.Float64()*0.001
	vol := 0.01 + rng.Float64()*0.02

	points := make([]marketdata.PricePoint, n)
	price := 100.0
	for i := range points {
		price *= math.Exp(drift + vol*rng.NormFloat64())
		points[i] = marketdata.PricePoint{Date: from.AddDate(0, 0, i), Close: price}
	}
	return points
}
