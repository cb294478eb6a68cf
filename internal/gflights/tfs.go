// SPDX-License-Identifier: MIT

// Package gflights builds Google Flights search URLs and fetches and parses
// one-way search result pages.
package gflights

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Query describes a one-way flight search.
type Query struct {
	Origin      string // 3-letter IATA code
	Destination string // 3-letter IATA code
	Date        string // YYYY-MM-DD
}

var iataRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Normalize uppercases the airport codes and trims whitespace.
func (q Query) Normalize() Query {
	q.Origin = strings.ToUpper(strings.TrimSpace(q.Origin))
	q.Destination = strings.ToUpper(strings.TrimSpace(q.Destination))
	q.Date = strings.TrimSpace(q.Date)
	return q
}

// Validate checks the shape of the query. Past-date policy is enforced by
// the caller, which owns the clock.
func (q Query) Validate() error {
	if !iataRe.MatchString(q.Origin) {
		return fmt.Errorf("%w: origin %q is not a 3-letter IATA code", ErrInvalidQuery, q.Origin)
	}
	if !iataRe.MatchString(q.Destination) {
		return fmt.Errorf("%w: destination %q is not a 3-letter IATA code", ErrInvalidQuery, q.Destination)
	}
	if q.Origin == q.Destination {
		return fmt.Errorf("%w: origin and destination are identical", ErrInvalidQuery)
	}
	if _, err := time.Parse("2006-01-02", q.Date); err != nil {
		return fmt.Errorf("%w: invalid date %q (want YYYY-MM-DD)", ErrInvalidQuery, q.Date)
	}
	return nil
}

// tfs record framing. The results page identifies a one-way search by a
// length-prefixed binary record carried in the base64 "tfs" parameter:
// a fixed header, the date, then origin and destination fields, then a
// fixed trailer. The layout is byte-for-byte what the page itself emits.
var (
	tfsHeader      = []byte{0x08, 0x1c, 0x10, 0x02, 0x1a, 0x1e, 0x12, 0x0a}
	tfsOriginTag   = []byte{0x6a, 0x07, 0x08, 0x01, 0x12, 0x03}
	tfsDestTag     = []byte{0x72, 0x07, 0x08, 0x01, 0x12, 0x03}
	tfsTrailer     = []byte{0x40, 0x01, 0x48, 0x01, 0x70, 0x01, 0x82, 0x01, 0x0b, 0x08, 0xfc, 0x06, 0x60, 0x04, 0x08}
	tfsPadding     = "_______"
	tfsPaddingTail = 6
)

// BuildTFS encodes the query into the value of the "tfs" URL parameter.
func BuildTFS(q Query) (string, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return "", err
	}

	raw := make([]byte, 0, 64)
	raw = append(raw, tfsHeader...)
	raw = append(raw, q.Date...)
	raw = append(raw, tfsOriginTag...)
	raw = append(raw, q.Origin...)
	raw = append(raw, tfsDestTag...)
	raw = append(raw, q.Destination...)
	raw = append(raw, tfsTrailer...)

	enc := base64.StdEncoding.EncodeToString(raw)
	// The page inserts seven underscores six characters before the end.
	insert := len(enc) - tfsPaddingTail
	return enc[:insert] + tfsPadding + enc[insert:], nil
}

// SearchURL returns the full search URL for the query against base
// (normally https://www.google.com).
func SearchURL(base string, q Query) (string, error) {
	enc, err := BuildTFS(q)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + "/travel/flights/search?tfs=" + enc, nil
}
