// SPDX-License-Identifier: MIT

package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farewatch/farewatch/internal/flights"
)

func sampleOffers() []flights.Offer {
	return []flights.Offer{
		{
			Airline:        "Delta",
			Departure:      flights.NewClock(8, 0),
			Arrival:        flights.NewClock(10, 15),
			Duration:       2*time.Hour + 15*time.Minute,
			Stops:          0,
			Price:          210.5,
			Currency:       "USD",
			Emissions:      "96 kg CO2e",
			EmissionsDelta: "-8% emissions",
		},
		{
			Airline:          "United",
			Departure:        flights.NewClock(22, 30),
			Arrival:          flights.NewClock(6, 5),
			ArrivalDayOffset: 1,
			Duration:         7*time.Hour + 35*time.Minute,
			Stops:            1,
			Price:            150,
		},
	}
}

func TestRender(t *testing.T) {
	data, err := Render(sampleOffers())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{
		"Departure Time", "Arrival Time", "Airline Company", "Flight Duration",
		"Stops", "Price", "co2 emissions", "emissions variation",
	}, records[0])

	assert.Equal(t, []string{
		"08:00", "10:15", "Delta", "2h15m0s", "0", "210.5 USD", "96 kg CO2e", "-8% emissions",
	}, records[1])

	// Overnight arrivals keep their day offset.
	assert.Equal(t, "06:05+1", records[2][1])
	assert.Equal(t, "150", records[2][5])
}

func TestRender_HeaderOnly(t *testing.T) {
	data, err := Render(nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")

	require.NoError(t, WriteFile(path, sampleOffers()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Departure Time,"))

	// Second write replaces the first.
	require.NoError(t, WriteFile(path, sampleOffers()[:1]))
	records, err := csv.NewReader(strings.NewReader(mustRead(t, path))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
