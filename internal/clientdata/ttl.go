package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	TTLHistory = 12 * time.Hour     // daily closes change once per session
	TTLSearch  = 7 * 24 * time.Hour // symbol lookups rarely change
	TTLQuote   = time.Minute
)
