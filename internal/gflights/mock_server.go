// SPDX-License-Identifier: MIT

package gflights

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// MockServer serves result pages in the markup shape the parser expects.
// It backs the package tests and the integration tests of the packages
// above this one; production code never touches it.
type MockServer struct {
	srv      *httptest.Server
	offers   atomic.Value // []RawOffer
	mode     atomic.Value // string: ok|empty|blocked|error|slow
	hits     atomic.Int64
	failures atomic.Int64
}

// NewMockServer starts a mock upstream serving the given offers.
func NewMockServer(offers []RawOffer) *MockServer {
	m := &MockServer{}
	m.offers.Store(offers)
	m.mode.Store("ok")
	m.srv = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the base URL to point a Client at.
func (m *MockServer) URL() string { return m.srv.URL }

// Close shuts the server down.
func (m *MockServer) Close() { m.srv.Close() }

// Hits reports how many result page requests were served.
func (m *MockServer) Hits() int64 { return m.hits.Load() }

// SetOffers replaces the offers served.
func (m *MockServer) SetOffers(offers []RawOffer) { m.offers.Store(offers) }

// SetMode switches the server behavior: "ok", "empty" (page with no rows),
// "blocked" (consent interstitial), "error" (HTTP 503).
func (m *MockServer) SetMode(mode string) { m.mode.Store(mode) }

// FailNext answers the next n requests with HTTP 503 before the configured
// mode takes over again.
func (m *MockServer) FailNext(n int) { m.failures.Store(int64(n)) }

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/travel/flights/search") {
		http.NotFound(w, r)
		return
	}
	m.hits.Add(1)

	if m.failures.Load() > 0 {
		m.failures.Add(-1)
		http.Error(w, "backend error", http.StatusServiceUnavailable)
		return
	}

	switch m.mode.Load().(string) {
	case "error":
		http.Error(w, "backend error", http.StatusServiceUnavailable)
		return
	case "blocked":
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><body><h1>Before you continue</h1><a href="https://consent.google.com/x">Accept</a></body></html>`)
		return
	case "empty":
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><body><div class="results"></div></body></html>`)
		return
	}

	offers, _ := m.offers.Load().([]RawOffer)
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, RenderResultsPage(offers))
}

// RenderResultsPage produces a minimal result page containing the given
// offers in the markup shape ParseResults understands.
func RenderResultsPage(offers []RawOffer) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, o := range offers {
		b.WriteString(`<li class="pIav2d yR1fYc">`)
		fmt.Fprintf(&b, `<span aria-label="Departure time: %s.">%s</span>`, html.EscapeString(o.DepartureTime), html.EscapeString(o.DepartureTime))
		fmt.Fprintf(&b, `<span aria-label="Arrival time: %s.">%s</span>`, html.EscapeString(o.ArrivalTime), html.EscapeString(o.ArrivalTime))
		fmt.Fprintf(&b, `<div class="sSHqwe tPgKwe">%s</div>`, html.EscapeString(o.Airline))
		fmt.Fprintf(&b, `<div class="gvkrdb AdWm1c">%s</div>`, html.EscapeString(o.Duration))
		fmt.Fprintf(&b, `<div class="EfT7Ae"><span class="ogfYpf">%s</span></div>`, html.EscapeString(o.Stops))
		fmt.Fprintf(&b, `<div class="FpEdX jLMuyc"><span>%s</span></div>`, html.EscapeString(o.Price))
		fmt.Fprintf(&b, `<div class="O7CXue">%s</div>`, html.EscapeString(o.Emissions))
		fmt.Fprintf(&b, `<div class="N6PNV">%s</div>`, html.EscapeString(o.EmissionsDelta))
		b.WriteString("</li>")
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}
