// SPDX-License-Identifier: MIT

package flights

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/farewatch/farewatch/internal/gflights"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts a scraped row into a typed Offer. Rows whose price or
// departure time cannot be parsed are rejected; those two fields drive
// every filter and ranking downstream.
func Normalize(raw gflights.RawOffer) (Offer, error) {
	price, currency, err := parsePrice(raw.Price)
	if err != nil {
		return Offer{}, fmt.Errorf("price %q: %w", raw.Price, err)
	}

	dep, depOff, err := parseClock(raw.DepartureTime)
	if err != nil {
		return Offer{}, fmt.Errorf("departure time %q: %w", raw.DepartureTime, err)
	}

	o := Offer{
		Airline:            CleanText(raw.Airline),
		Departure:          dep,
		DepartureDayOffset: depOff,
		Stops:              parseStops(raw.Stops),
		Price:              price,
		Currency:           currency,
		Emissions:          CleanText(raw.Emissions),
		EmissionsDelta:     CleanText(raw.EmissionsDelta),
	}

	// Arrival and duration are kept best effort; a missing value does not
	// invalidate the row.
	if arr, arrOff, err := parseClock(raw.ArrivalTime); err == nil {
		o.Arrival = arr
		o.ArrivalDayOffset = arrOff
	}
	if d, err := parseDuration(raw.Duration); err == nil {
		o.Duration = d
	}

	return o, nil
}

// NormalizeAll converts all rows, returning the offers plus the number of
// rows dropped as unparseable.
func NormalizeAll(raws []gflights.RawOffer) ([]Offer, int) {
	offers := make([]Offer, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		o, err := Normalize(raw)
		if err != nil {
			dropped++
			continue
		}
		offers = append(offers, o)
	}
	return offers, dropped
}

var (
	mojibakeReplacer = strings.NewReplacer("Â", "", "Ã", "", "¶", "")
	spaceReplacer    = strings.NewReplacer(" ", " ", " ", " ")
	multiSpaceRe     = regexp.MustCompile(`\s+`)
)

// CleanText strips the mojibake and exotic whitespace the result page
// carries (narrow no-break spaces, double-encoded UTF-8 artifacts) and
// NFC-normalizes the rest.
func CleanText(s string) string {
	s = spaceReplacer.Replace(s)
	s = mojibakeReplacer.Replace(s)
	s = norm.NFC.String(s)
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var priceNumRe = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

// parsePrice extracts the numeric amount and the currency marker from a
// price cell like "$98", "€1,234", "1 450 TND".
func parsePrice(s string) (float64, string, error) {
	s = CleanText(s)
	if s == "" {
		return 0, "", fmt.Errorf("empty")
	}

	num := priceNumRe.FindString(strings.ReplaceAll(s, " ", ""))
	if num == "" {
		return 0, "", fmt.Errorf("no numeric amount")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, "", err
	}

	currency := ""
	switch {
	case strings.ContainsRune(s, '€'):
		currency = "EUR"
	case strings.ContainsRune(s, '$'):
		currency = "USD"
	case strings.ContainsRune(s, '£'):
		currency = "GBP"
	case strings.Contains(strings.ToUpper(s), "TND"):
		currency = "TND"
	}
	return v, currency, nil
}

var dayOffsetRe = regexp.MustCompile(`\+(\d+)\s*$`)

// parseClock parses "6:05 AM", "6:05 AM+1" (next-day arrival) and 24h
// "18:20" cells into a Clock and a day offset.
func parseClock(s string) (Clock, int, error) {
	s = CleanText(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty")
	}

	offset := 0
	if m := dayOffsetRe.FindStringSubmatch(s); m != nil {
		offset, _ = strconv.Atoi(m[1])
		s = strings.TrimSpace(dayOffsetRe.ReplaceAllString(s, ""))
	}

	for _, layout := range []string{"3:04 PM", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClock(t.Hour(), t.Minute()), offset, nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognized time format")
}

// parseStops maps "Nonstop", "1 stop", "2 stops" to a stop count.
func parseStops(s string) int {
	s = strings.ToLower(CleanText(s))
	if s == "" || strings.Contains(s, "nonstop") || strings.Contains(s, "non-stop") || strings.Contains(s, "direct") {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		return n
	}
	return 0
}

var durRe = regexp.MustCompile(`(?:(\d+)\s*hr)?\s*(?:(\d+)\s*min)?`)

// parseDuration parses "1 hr 30 min", "2 hr" and "45 min" cells.
func parseDuration(s string) (time.Duration, error) {
	s = CleanText(s)
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	m := durRe.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("unrecognized duration format")
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h == 0 && min == 0 {
		return 0, fmt.Errorf("unrecognized duration format")
	}
	return time.Duration(h)*time.Hour + time.Duration(min)*time.Minute, nil
}
