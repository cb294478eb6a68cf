// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/recommend"
	"github.com/farewatch/farewatch/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeErrorMsg(w, http.StatusUnauthorized, "unauthorized")
}

// writeError maps domain errors onto HTTP status codes: bad input is
// 422, a missing search or empty result set is 404, a blocked or
// circuit-broken upstream is 429, any other upstream failure is 502.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, gflights.ErrInvalidQuery):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, gflights.ErrNoResults),
		errors.Is(err, recommend.ErrNoMatch):
		code = http.StatusNotFound
	case errors.Is(err, gflights.ErrBlocked),
		errors.Is(err, gflights.ErrCircuitOpen):
		code = http.StatusTooManyRequests
	case errors.Is(err, gflights.ErrTimeout),
		errors.Is(err, gflights.ErrUpstreamError),
		errors.Is(err, gflights.ErrUpstreamUnavailable):
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}

	if code >= 500 {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldPath, r.URL.Path).
			Msg("request failed")
	}
	writeErrorMsg(w, code, err.Error())
}
