package optimization

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteFrontierCSV writes frontier points as CSV with one weight column per ticker.
// Undefined Sharpe ratios are written as empty cells.
func WriteFrontierCSV(w io.Writer, tickers []string, points []Portfolio) error {
	cw := csv.NewWriter(w)

	header := append([]string{"volatility", "expected_return", "sharpe_ratio"}, tickers...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, p := range points {
		if len(p.Weights) != len(tickers) {
			return fmt.Errorf("%w: point %d has %d weights for %d tickers", ErrDimensionMismatch, i, len(p.Weights), len(tickers))
		}
		row := make([]string, 0, 3+len(tickers))
		row = append(row, formatFloat(p.Volatility), formatFloat(p.ExpectedReturn))
		if p.SharpeRatio != nil {
			row = append(row, formatFloat(*p.SharpeRatio))
		} else {
			row = append(row, "")
		}
		for _, wt := range p.Weights {
			row = append(row, formatFloat(wt))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
