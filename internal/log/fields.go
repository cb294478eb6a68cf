// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSearchID  = "search_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Flight search fields
	FieldOrigin      = "origin"
	FieldDestination = "destination"
	FieldDate        = "date"
	FieldOffers      = "offers"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
