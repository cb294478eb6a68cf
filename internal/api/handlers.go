// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/farewatch/farewatch/internal/export"
	"github.com/farewatch/farewatch/internal/flights"
	"github.com/farewatch/farewatch/internal/jobs"
	"github.com/farewatch/farewatch/internal/metrics"
	"github.com/farewatch/farewatch/internal/store"
)

const maxRequestBody = 1 << 16

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleSearch scrapes (or serves from cache) the offers for a route.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var p jobs.Params
	if !decodeBody(w, r, &p) {
		return
	}

	results, err := jobs.Run(r.Context(), s.deps.Jobs, p)
	if s.deps.Tracker != nil {
		if err != nil {
			s.deps.Tracker.RecordFailure(err)
		} else {
			s.deps.Tracker.RecordSuccess(results)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type recommendRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	FlexDays    int    `json:"flex_days,omitempty"`

	MaxPrice float64 `json:"max_price,omitempty"`
	Period   string  `json:"period,omitempty"`
	MaxStops *int    `json:"max_stops,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// handleRecommend runs the search pipeline, then has the recommender
// pick and phrase the best offer across all searched days.
func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	period, err := flights.ParsePeriod(req.Period)
	if err != nil {
		writeErrorMsg(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	criteria := flights.Criteria{
		MaxPrice: req.MaxPrice,
		Period:   period,
		MaxStops: req.MaxStops,
	}

	results, err := jobs.Run(r.Context(), s.deps.Jobs, jobs.Params{
		Origin:      req.Origin,
		Destination: req.Destination,
		Date:        req.Date,
		FlexDays:    req.FlexDays,
	})
	if s.deps.Tracker != nil {
		if err != nil {
			s.deps.Tracker.RecordFailure(err)
		} else {
			s.deps.Tracker.RecordSuccess(results)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var offers []flights.Offer
	dates := make(map[string]string, len(results))
	for _, res := range results {
		for _, o := range res.Offers {
			dates[offerKey(o)] = res.Date
		}
		offers = append(offers, res.Offers...)
	}

	rec, err := s.deps.Recommender.Recommend(r.Context(), offers, criteria, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recommendation": rec,
		"date":           dates[offerKey(rec.Offer)],
	})
}

func offerKey(o flights.Offer) string {
	return fmt.Sprintf("%s|%s|%.2f", o.Airline, o.Departure, o.Price)
}

// handleListSearches returns recent searches, newest first.
func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeErrorMsg(w, http.StatusUnprocessableEntity, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	searches, err := s.deps.Store.ListSearches(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if searches == nil {
		// Keep [] instead of null in the payload.
		searches = []store.Search{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": searches})
}

// handleListOffers returns the stored offers of one search, optionally
// filtered by price, period of day and stop count, with limit/offset
// pagination applied after filtering.
func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	search, err := s.deps.Store.GetSearch(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offers, err := s.deps.Store.ListOffers(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	qv := r.URL.Query()
	criteria := flights.Criteria{}
	if v := qv.Get("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 {
			writeErrorMsg(w, http.StatusUnprocessableEntity, "max_price must be a non-negative number")
			return
		}
		criteria.MaxPrice = p
	}
	if v := qv.Get("period"); v != "" {
		period, err := flights.ParsePeriod(v)
		if err != nil {
			writeErrorMsg(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		criteria.Period = period
	}
	if v := qv.Get("max_stops"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorMsg(w, http.StatusUnprocessableEntity, "max_stops must be a non-negative integer")
			return
		}
		criteria.MaxStops = &n
	}
	offers = flights.Filter(offers, criteria)
	total := len(offers)

	if v := qv.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorMsg(w, http.StatusUnprocessableEntity, "offset must be a non-negative integer")
			return
		}
		if n > len(offers) {
			n = len(offers)
		}
		offers = offers[n:]
	}
	if v := qv.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErrorMsg(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		if n < len(offers) {
			offers = offers[:n]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"search": search,
		"offers": offers,
		"total":  total,
	})
}

// handleExport streams a search's offers as a CSV download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("search_id")
	if id == "" {
		writeErrorMsg(w, http.StatusUnprocessableEntity, "search_id query parameter is required")
		return
	}

	offers, err := s.deps.Store.ListOffers(r.Context(), id)
	if err != nil {
		metrics.IncCSVExport("error")
		writeError(w, r, err)
		return
	}

	data, err := export.Render(offers)
	if err != nil {
		metrics.IncCSVExport("error")
		writeError(w, r, err)
		return
	}

	metrics.IncCSVExport("success")
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "flight_data_"+id+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleStatus reports the last run, the upstream breaker and cache
// statistics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"version": s.cfg.Version,
	}
	if s.deps.Tracker != nil {
		resp["last_search"] = s.deps.Tracker.Current()
		resp["runs"] = s.deps.Tracker.Runs()
	}
	if s.deps.Breaker != nil {
		resp["upstream"] = map[string]string{"circuit_breaker": s.deps.Breaker.State().String()}
	}
	if s.deps.Cache != nil {
		resp["cache"] = s.deps.Cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
