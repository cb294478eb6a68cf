// SPDX-License-Identifier: MIT

package flights

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	c := NewClock(14, 5)
	assert.Equal(t, 14, c.Hour())
	assert.Equal(t, 5, c.Minute())
	assert.Equal(t, "14:05", c.String())
}

func TestClockJSON(t *testing.T) {
	b, err := json.Marshal(NewClock(9, 30))
	require.NoError(t, err)
	assert.Equal(t, `"09:30"`, string(b))

	var c Clock
	require.NoError(t, json.Unmarshal([]byte(`"21:10"`), &c))
	assert.Equal(t, NewClock(21, 10), c)

	assert.Error(t, json.Unmarshal([]byte(`"25:00"`), &c))
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &c))
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"", "morning", "afternoon", "evening"} {
		p, err := ParsePeriod(s)
		require.NoError(t, err)
		assert.Equal(t, Period(s), p)
	}
	p, err := ParsePeriod("Morning")
	require.NoError(t, err)
	assert.Equal(t, PeriodMorning, p)

	_, err = ParsePeriod("noonish")
	assert.Error(t, err)
}

func TestPeriodMatches(t *testing.T) {
	tests := []struct {
		period Period
		clock  Clock
		want   bool
	}{
		{PeriodMorning, NewClock(0, 0), true},
		{PeriodMorning, NewClock(11, 59), true},
		{PeriodMorning, NewClock(12, 0), false},
		{PeriodAfternoon, NewClock(12, 0), true},
		{PeriodAfternoon, NewClock(17, 59), true},
		{PeriodAfternoon, NewClock(18, 0), false},
		{PeriodEvening, NewClock(18, 0), true},
		{PeriodEvening, NewClock(23, 59), true},
		{PeriodEvening, NewClock(17, 59), false},
		{Period(""), NewClock(3, 0), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.period.matches(tt.clock), "%s %s", tt.period, tt.clock)
	}
}

func sampleOffers() []Offer {
	return []Offer{
		{Airline: "Delta", Departure: NewClock(8, 0), Price: 210, Stops: 0, Duration: 2 * time.Hour},
		{Airline: "United", Departure: NewClock(13, 30), Price: 150, Stops: 1, Duration: 4 * time.Hour},
		{Airline: "JetBlue", Departure: NewClock(19, 15), Price: 150, Stops: 0, Duration: 2*time.Hour + 10*time.Minute},
		{Airline: "Spirit", Departure: NewClock(6, 45), Price: 95, Stops: 2, Duration: 7 * time.Hour},
	}
}

func intp(n int) *int { return &n }

func TestFilter(t *testing.T) {
	offers := sampleOffers()

	got := Filter(offers, Criteria{MaxPrice: 160})
	assert.Len(t, got, 3)

	got = Filter(offers, Criteria{Period: PeriodMorning})
	require.Len(t, got, 2)
	assert.Equal(t, "Delta", got[0].Airline)

	got = Filter(offers, Criteria{MaxStops: intp(0)})
	assert.Len(t, got, 2)

	got = Filter(offers, Criteria{MaxPrice: 160, MaxStops: intp(0)})
	require.Len(t, got, 1)
	assert.Equal(t, "JetBlue", got[0].Airline)

	got = Filter(offers, Criteria{})
	assert.Len(t, got, len(offers))
}

func TestSort(t *testing.T) {
	offers := sampleOffers()
	Sort(offers)

	assert.Equal(t, "Spirit", offers[0].Airline)
	// Equal price ties break on earlier departure.
	assert.Equal(t, "United", offers[1].Airline)
	assert.Equal(t, "JetBlue", offers[2].Airline)
	assert.Equal(t, "Delta", offers[3].Airline)
}

func TestBest(t *testing.T) {
	offers := sampleOffers()

	best, ok := Best(offers, Criteria{})
	require.True(t, ok)
	assert.Equal(t, "Spirit", best.Airline)

	best, ok = Best(offers, Criteria{Period: PeriodEvening})
	require.True(t, ok)
	assert.Equal(t, "JetBlue", best.Airline)

	_, ok = Best(offers, Criteria{MaxPrice: 10})
	assert.False(t, ok)

	_, ok = Best(nil, Criteria{})
	assert.False(t, ok)
}
