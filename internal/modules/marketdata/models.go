// Package marketdata turns provider price histories into aligned series for the optimizer.
package marketdata

import (
	"context"
	"time"
)

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time `json:"date" msgpack:"d"`
	Close float64   `json:"close" msgpack:"c"`
}

// PriceProvider supplies daily closing prices, oldest first.
type PriceProvider interface {
	GetDailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
}

// History is the fetch outcome for one ticker. Exactly one of Points or Err is meaningful.
type History struct {
	Ticker string
	Points []PricePoint
	Err    error
}

// Closes returns the closing prices in date order.
func (h History) Closes() []float64 {
	closes := make([]float64, len(h.Points))
	for i, p := range h.Points {
		closes[i] = p.Close
	}
	return closes
}

// FetchFailure describes a ticker that could not be used.
type FetchFailure struct {
	Ticker string `json:"ticker"`
	Error  string `json:"error"`
}
