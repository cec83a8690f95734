package domain

// CacheEntry is one persisted geocoding outcome keyed by normalized address.
// Lat and Lng are nil unless the lookup returned at least one result.
type CacheEntry struct {
	Address      string
	Lat          *float64
	Lng          *float64
	Status       string
	LocationType string
}

// HasCoordinates reports whether the entry carries a coordinate pair.
func (e CacheEntry) HasCoordinates() bool {
	return e.Lat != nil && e.Lng != nil
}

// HighPrecision reports whether the entry is rooftop or range-interpolated.
func (e CacheEntry) HighPrecision() bool {
	return e.HasCoordinates() && IsHighPrecision(e.LocationType)
}

// IsHighPrecision reports whether a precision tier is good enough for
// firm-level analysis.
func IsHighPrecision(locationType string) bool {
	return locationType == PrecisionRooftop || locationType == PrecisionRangeInterpolated
}

// EntryFromResult converts a provider result into a cache entry. Successful
// lookups with results keep the first result's coordinates and precision tier;
// everything else is recorded with null coordinates and the returned status.
func EntryFromResult(address string, result GeocodingResult) CacheEntry {
	entry := CacheEntry{Address: address, Status: result.Status}
	if result.Status == StatusOK && result.Found {
		lat, lng := result.Lat, result.Lng
		entry.Lat = &lat
		entry.Lng = &lng
		entry.LocationType = result.LocationType
	}
	return entry
}
