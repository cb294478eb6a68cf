// SPDX-License-Identifier: MIT

package flights

import (
	"testing"
	"time"

	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in       string
		want     float64
		currency string
		wantErr  bool
	}{
		{"$98", 98, "USD", false},
		{"€1,234", 1234, "EUR", false},
		{"£76.50", 76.50, "GBP", false},
		{"450 TND", 450, "TND", false},
		{"1 450 TND", 1450, "TND", false},
		{"152", 152, "", false},
		{"", 0, "", true},
		{"Price unavailable", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, cur, err := parsePrice(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.currency, cur)
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		offset  int
		wantErr bool
	}{
		{"6:05 AM", NewClock(6, 5), 0, false},
		{"6:05 AM", NewClock(6, 5), 0, false},
		{"11:20 PM", NewClock(23, 20), 0, false},
		{"12:00 AM", NewClock(0, 0), 0, false},
		{"12:30 PM", NewClock(12, 30), 0, false},
		{"11:20 PM+1", NewClock(23, 20), 1, false},
		{"1:05 AM+2", NewClock(1, 5), 2, false},
		{"18:20", NewClock(18, 20), 0, false},
		{"", 0, 0, true},
		{"sometime", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, off, err := parseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.offset, off)
		})
	}
}

func TestParseStops(t *testing.T) {
	assert.Equal(t, 0, parseStops("Nonstop"))
	assert.Equal(t, 0, parseStops(""))
	assert.Equal(t, 1, parseStops("1 stop"))
	assert.Equal(t, 2, parseStops("2 stops"))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1 hr 30 min", 90 * time.Minute, false},
		{"2 hr", 2 * time.Hour, false},
		{"45 min", 45 * time.Minute, false},
		{"", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Air France", CleanText("Air France"))
	assert.Equal(t, "81 kg CO2e", CleanText("81Â kg CO2e"))
	assert.Equal(t, "a b", CleanText("  a   b  "))
}

func TestNormalize(t *testing.T) {
	raw := gflights.RawOffer{
		DepartureTime:  "9:10 PM+1",
		ArrivalTime:    "11:45 PM+1",
		Airline:        "United",
		Duration:       "2 hr 35 min",
		Stops:          "1 stop",
		Price:          "€152",
		Emissions:      "104 kg CO2e",
		EmissionsDelta: "+9% emissions",
	}

	o, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "United", o.Airline)
	assert.Equal(t, NewClock(21, 10), o.Departure)
	assert.Equal(t, 1, o.DepartureDayOffset)
	assert.Equal(t, NewClock(23, 45), o.Arrival)
	assert.Equal(t, 155*time.Minute, o.Duration)
	assert.Equal(t, 1, o.Stops)
	assert.False(t, o.Nonstop())
	assert.Equal(t, 152.0, o.Price)
	assert.Equal(t, "EUR", o.Currency)
}

func TestNormalize_RejectsUnparseable(t *testing.T) {
	_, err := Normalize(gflights.RawOffer{DepartureTime: "8:00 AM", Price: "call us"})
	assert.Error(t, err)

	_, err = Normalize(gflights.RawOffer{DepartureTime: "later", Price: "$98"})
	assert.Error(t, err)
}

func TestNormalizeAll_CountsDropped(t *testing.T) {
	raws := []gflights.RawOffer{
		{DepartureTime: "8:00 AM", Price: "$98"},
		{DepartureTime: "bogus", Price: "$98"},
		{DepartureTime: "9:00 AM", Price: "$120"},
	}
	offers, dropped := NormalizeAll(raws)
	assert.Len(t, offers, 2)
	assert.Equal(t, 1, dropped)
}
