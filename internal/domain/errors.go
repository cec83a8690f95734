package domain

import "errors"

var (
	// ErrInvalidPeriod marks a year or month that is not an integer or lies
	// outside the accepted range.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrEmptyBatch is returned when an upload is attempted with no rows.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrRateLimitExceeded aborts a geocoding run after too many consecutive
	// OVER_QUERY_LIMIT responses.
	ErrRateLimitExceeded = errors.New("geocoding rate limit retries exceeded")

	// ErrInterrupted reports that a run stopped because its context was
	// cancelled, after persisting completed work.
	ErrInterrupted = errors.New("interrupted")

	// ErrDuplicateEntry is returned when a cache entry already exists for an address.
	ErrDuplicateEntry = errors.New("duplicate cache entry")
)
