// Package domain models the GDELT bilateral sentiment data and the firm address
// geocoding cache used by the pipeline commands.
//
// # Data Source
//
// Sentiment rows come from the public GDELT 1.0 events table in BigQuery
// (gdelt-bq.full.events), joined against a reference table of the 218 x 218
// country pairs we track. Each event carries a Goldstein score in [-10, 10]
// describing the theoretical impact of the event on the stability of the
// country pair. The pipeline stores the mean score per pair and period:
//
//	Actor1CountryCode,Actor2CountryCode,Year,Month,AvgGoldsteinScale
//	USA,ISR,2024,3,1.8421
//
// Daily rows add a Day column between Month and AvgGoldsteinScale.
//
// # Periods
//
// A [Period] is the unit of fetch granularity: a whole year (Month == 0) or a
// single year-month. Years outside [MinYear, MaxYear] are rejected before any
// warehouse query is issued. The bounds can be widened per run with
// [YearBounds].
//
// # Addresses
//
// Firm addresses arrive as a street line plus a "Municipality, UF" city field.
// [BuildFullAddress] joins them with the country code and [NormalizeAddress]
// canonicalizes the result (upper case, ASCII transliteration, single spaces)
// so the geocoding cache can be keyed by exact string match:
//
//	"Rua São João,  123" + "Campinas, SP" -> "RUA SAO JOAO, 123, CAMPINAS, SP, BR"
//
// # Geocode statuses
//
// Cache entries keep the provider status verbatim. Only OK entries carry
// coordinates; every other status is stored with null coordinates and is never
// retried, with the exception of OVER_QUERY_LIMIT which is not cached at all.
package domain
