package domain

import "context"

// Geocode statuses returned by the Google Geocoding API.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// Precision tiers (geometry.location_type) from best to worst.
const (
	PrecisionRooftop           = "ROOFTOP"
	PrecisionRangeInterpolated = "RANGE_INTERPOLATED"
	PrecisionGeometricCenter   = "GEOMETRIC_CENTER"
	PrecisionApproximate       = "APPROXIMATE"
)

// GeocodingResult is the outcome of a single provider lookup.
type GeocodingResult struct {
	Status       string
	Found        bool // at least one result was returned
	Lat          float64
	Lng          float64
	LocationType string
}

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	// Geocode issues exactly one provider request for address. Provider-level
	// statuses (ZERO_RESULTS, OVER_QUERY_LIMIT, ...) are reported in the result,
	// not as errors; errors are reserved for transport and decoding failures.
	Geocode(ctx context.Context, address string) (GeocodingResult, error)
}
