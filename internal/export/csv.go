// SPDX-License-Identifier: MIT

// Package export writes search results to CSV files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/google/renameio/v2"

	"github.com/farewatch/farewatch/internal/flights"
)

// Column order matches the spreadsheets users already build on.
var header = []string{
	"Departure Time",
	"Arrival Time",
	"Airline Company",
	"Flight Duration",
	"Stops",
	"Price",
	"co2 emissions",
	"emissions variation",
}

// Render encodes offers as CSV.
func Render(offers []flights.Offer) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, o := range offers {
		price := strconv.FormatFloat(o.Price, 'f', -1, 64)
		if o.Currency != "" {
			price += " " + o.Currency
		}
		rec := []string{
			clockField(o.Departure, o.DepartureDayOffset),
			clockField(o.Arrival, o.ArrivalDayOffset),
			o.Airline,
			o.Duration.String(),
			strconv.Itoa(o.Stops),
			price,
			o.Emissions,
			o.EmissionsDelta,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clockField(c flights.Clock, dayOffset int) string {
	if dayOffset > 0 {
		return fmt.Sprintf("%s+%d", c, dayOffset)
	}
	return c.String()
}

// WriteFile renders offers and writes them to path atomically, so a
// reader never observes a half-written file.
func WriteFile(path string, offers []flights.Offer) error {
	data, err := Render(offers)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write csv %s: %w", path, err)
	}
	return nil
}
