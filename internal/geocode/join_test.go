package geocode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

type mapCache map[string]domain.CacheEntry

func (m mapCache) Get(a string) (domain.CacheEntry, bool) {
	e, ok := m[a]
	return e, ok
}

func TestJoin_LeftJoinAndHighPrecision(t *testing.T) {
	rows := []PanelRow{
		{FirmID: "1", Year: 2019, FullAddress: "A"},
		{FirmID: "2", Year: 2019, FullAddress: "B"},
		{FirmID: "3", Year: 2019, FullAddress: "C"},
		{FirmID: "1", Year: 2020, FullAddress: "A"},
	}
	cache := mapCache{
		"A": okEntry("A"),
		"B": {Address: "B", Lat: ptr(1), Lng: ptr(2), Status: domain.StatusOK, LocationType: domain.PrecisionApproximate},
	}

	joined := Join(rows, cache)
	require.Len(t, joined, 4)
	assert.Empty(t, joined[2].Entry.Status, "unmatched rows keep an empty entry")
	assert.Equal(t, "C", joined[2].Entry.Address)

	high := HighPrecision(joined)
	require.Len(t, high, 2)
	assert.Equal(t, "1", high[0].FirmID)
	assert.Equal(t, 2020, high[1].Year)
}

func TestWriteReadGeocoded(t *testing.T) {
	joined := Join([]PanelRow{
		{FirmID: "1", CityCode: "3509502", Street: "Rua A", City: "Campinas, SP", Year: 2019, FullAddress: "RUA A, CAMPINAS, SP, BR"},
		{FirmID: "2", FullAddress: "X"},
	}, mapCache{"RUA A, CAMPINAS, SP, BR": okEntry("RUA A, CAMPINAS, SP, BR")})

	var buf bytes.Buffer
	require.NoError(t, WriteGeocoded(&buf, joined))
	assert.Contains(t, buf.String(), "cnpj_cei,city_code,end_logradouro,city,year,full_address,lat,lng,status,location_type\n")

	got, err := ReadGeocoded(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Entry.HighPrecision())
	assert.InDelta(t, -23.5, *got[0].Entry.Lat, 0)
	assert.Equal(t, "Campinas, SP", got[0].City)
	assert.Nil(t, got[1].Entry.Lat)
	assert.Zero(t, got[1].Year)
}

func TestReadGeocoded_RejectsOtherHeaders(t *testing.T) {
	_, err := ReadGeocoded(strings.NewReader("cnpj_cei,city_code,end_logradouro,city,year\n1,2,RUA A,X,2020\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected geocoded panel header")

	_, err = ReadGeocoded(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadGeocoded_ShortRecord(t *testing.T) {
	in := strings.Join(GeocodedColumns, ",") + "\n1,2,RUA A,X,2020\n"
	_, err := ReadGeocoded(strings.NewReader(in))
	require.Error(t, err)
}
