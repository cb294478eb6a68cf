// SPDX-License-Identifier: MIT

// Package flights holds the normalized flight offer model and the
// filtering and ranking rules applied to it.
package flights

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Clock is a time of day with minute precision, independent of date and
// timezone. Offers carry clock times exactly as the result page shows them.
type Clock int // minutes since midnight

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// Hour returns the hour component (0-23).
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component (0-59).
func (c Clock) Minute() int { return int(c) % 60 }

// String formats the clock as 24h "15:04".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MarshalJSON encodes the clock as its string form.
func (c Clock) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON decodes "15:04".
func (c *Clock) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid clock %s", s)
	}
	t, err := time.Parse("15:04", s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("invalid clock %s: %w", s, err)
	}
	*c = NewClock(t.Hour(), t.Minute())
	return nil
}

// Offer is a normalized flight offer.
type Offer struct {
	Airline            string        `json:"airline"`
	Departure          Clock         `json:"departure"`
	DepartureDayOffset int           `json:"departure_day_offset,omitempty"`
	Arrival            Clock         `json:"arrival"`
	ArrivalDayOffset   int           `json:"arrival_day_offset,omitempty"`
	Duration           time.Duration `json:"duration"`
	Stops              int           `json:"stops"`
	Price              float64       `json:"price"`
	Currency           string        `json:"currency,omitempty"`
	Emissions          string        `json:"emissions,omitempty"`
	EmissionsDelta     string        `json:"emissions_delta,omitempty"`
}

// Nonstop reports whether the offer has no stopovers.
func (o Offer) Nonstop() bool { return o.Stops == 0 }

// Period is a coarse time-of-day bucket for departure filtering.
type Period string

const (
	PeriodAny       Period = ""
	PeriodMorning   Period = "morning"   // departure before 12:00
	PeriodAfternoon Period = "afternoon" // 12:00 to 17:59
	PeriodEvening   Period = "evening"   // 18:00 onward
)

// ParsePeriod validates a period string from user input.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch Period(s) {
	case PeriodAny, PeriodMorning, PeriodAfternoon, PeriodEvening:
		return Period(s), nil
	}
	return PeriodAny, fmt.Errorf("unknown period %q (want morning, afternoon or evening)", s)
}

func (p Period) matches(c Clock) bool {
	h := c.Hour()
	switch p {
	case PeriodMorning:
		return h < 12
	case PeriodAfternoon:
		return h >= 12 && h < 18
	case PeriodEvening:
		return h >= 18
	default:
		return true
	}
}

// Criteria filters offers. Zero values mean "no constraint".
type Criteria struct {
	MaxPrice float64 `json:"max_price,omitempty"`
	Period   Period  `json:"period,omitempty"`
	MaxStops *int    `json:"max_stops,omitempty"`
}

// Filter returns the offers matching the criteria, preserving order.
func Filter(offers []Offer, c Criteria) []Offer {
	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if c.MaxPrice > 0 && o.Price > c.MaxPrice {
			continue
		}
		if !c.Period.matches(o.Departure) {
			continue
		}
		if c.MaxStops != nil && o.Stops > *c.MaxStops {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Sort orders offers by price, then departure time. The sort is stable so
// equal offers keep their page order.
func Sort(offers []Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].Price != offers[j].Price {
			return offers[i].Price < offers[j].Price
		}
		return offers[i].Departure < offers[j].Departure
	})
}

// Best returns the cheapest offer matching the criteria, breaking price
// ties by earlier departure.
func Best(offers []Offer, c Criteria) (Offer, bool) {
	matched := Filter(offers, c)
	if len(matched) == 0 {
		return Offer{}, false
	}
	Sort(matched)
	return matched[0], true
}
