package optimization

import "errors"

// Error kinds returned by the optimization engine. Callers match them with errors.Is;
// the returned errors are wrapped with ticker or size context.
var (
	// ErrInsufficientData is returned when a price or return series is too short.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInsufficientTickers is returned when fewer than two assets are optimized together.
	ErrInsufficientTickers = errors.New("at least 2 tickers are required")
	// ErrDimensionMismatch indicates weights, returns and covariance disagree in size.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrSingularMatrix is returned when the covariance matrix cannot be inverted.
	ErrSingularMatrix = errors.New("covariance matrix is singular")
	// ErrInvalidPrice is returned for non-positive or non-finite prices.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidPortfolioCount is returned when fewer than one portfolio is requested.
	ErrInvalidPortfolioCount = errors.New("number of portfolios must be at least 1")
)

// IsInputError reports whether err was caused by bad caller input rather than an internal failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInsufficientTickers) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidPortfolioCount)
}
