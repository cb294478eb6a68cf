// SPDX-License-Identifier: MIT

package gflights

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrInvalidQuery        = errors.New("gflights: invalid query")
	ErrBlocked             = errors.New("gflights: request blocked by consent or captcha interstitial")
	ErrNoResults           = errors.New("gflights: result page contains no offers")
	ErrUpstreamUnavailable = errors.New("gflights: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("gflights: upstream error status")
	ErrTimeout             = errors.New("gflights: request timed out")
)

// FetchError wraps the sentinel errors with request context.
type FetchError struct {
	Sentinel error
	URL      string
	Status   int
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("gflights: fetch %s: %v", e.URL, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Sentinel
}
