// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farewatch/farewatch/internal/cache"
	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/flights"
	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/farewatch/farewatch/internal/health"
	"github.com/farewatch/farewatch/internal/jobs"
	"github.com/farewatch/farewatch/internal/recommend"
	"github.com/farewatch/farewatch/internal/store"
)

type stubFetcher struct {
	rows []gflights.RawOffer
	err  error
}

func (f *stubFetcher) FetchResults(context.Context, gflights.Query) ([]gflights.RawOffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) == 0 {
		return nil, gflights.ErrNoResults
	}
	return f.rows, nil
}

type stubRecommender struct {
	err error
}

func (s *stubRecommender) Recommend(_ context.Context, offers []flights.Offer, c flights.Criteria, _ string) (*recommend.Recommendation, error) {
	if s.err != nil {
		return nil, s.err
	}
	best, ok := flights.Best(offers, c)
	if !ok {
		return nil, recommend.ErrNoMatch
	}
	return &recommend.Recommendation{Offer: best, Summary: "take this one", LLMUsed: true}, nil
}

func sampleRows() []gflights.RawOffer {
	return []gflights.RawOffer{
		{DepartureTime: "8:00 AM", ArrivalTime: "10:15 AM", Airline: "Delta", Duration: "2 hr 15 min", Stops: "Nonstop", Price: "$210"},
		{DepartureTime: "1:30 PM", ArrivalTime: "5:45 PM", Airline: "United", Duration: "4 hr 15 min", Stops: "1 stop", Price: "$150"},
	}
}

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	cfg    config.AppConfig
}

func newTestEnv(t *testing.T, fetcher jobs.Fetcher, mutate func(*config.AppConfig)) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "farewatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Defaults()
	cfg.RateLimitEnabled = false
	cfg.Version = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	hm := health.NewManager(cfg.Version)
	hm.Register(health.NewStoreChecker(st))

	srv := New(cfg, Deps{
		Jobs: jobs.Deps{
			Fetcher:  fetcher,
			Store:    st,
			Cache:    cache.NewMemory(0),
			CacheTTL: time.Minute,
		},
		Store:       st,
		Recommender: &stubRecommender{},
		Tracker:     jobs.NewTracker(),
		Health:      hm,
		Breaker:     gflights.NewCircuitBreaker(5, time.Minute),
		Cache:       cache.NewMemory(0),
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, store: st, cfg: cfg}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/search", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results []jobs.Result `json:"results"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Results, 1)
	assert.Len(t, body.Results[0].Offers, 2)
	assert.Equal(t, "United", body.Results[0].Offers[0].Airline)
	assert.NotEmpty(t, body.Results[0].SearchID)
}

func TestHandleSearch_Errors(t *testing.T) {
	t.Run("invalid query", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)
		resp := env.post(t, "/api/v1/search", map[string]any{
			"origin": "NEWYORK", "destination": "LAX", "date": "2026-09-10",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)
		resp, err := http.Post(env.server.URL+"/api/v1/search", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("no results", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{}, nil)
		resp := env.post(t, "/api/v1/search", map[string]any{
			"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("blocked upstream", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{err: gflights.ErrBlocked}, nil)
		resp := env.post(t, "/api/v1/search", map[string]any{
			"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
		})
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("upstream error", func(t *testing.T) {
		env := newTestEnv(t, &stubFetcher{err: gflights.ErrUpstreamError}, nil)
		resp := env.post(t, "/api/v1/search", map[string]any{
			"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
		})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

		var body map[string]string
		decode(t, resp, &body)
		assert.NotEmpty(t, body["error"])
	})
}

func TestHandleRecommend(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/recommend", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
		"period": "afternoon",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Recommendation recommend.Recommendation `json:"recommendation"`
		Date           string                   `json:"date"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "United", body.Recommendation.Offer.Airline)
	assert.Equal(t, "take this one", body.Recommendation.Summary)
	assert.Equal(t, "2026-09-10", body.Date)
}

func TestHandleRecommend_NoMatch(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/recommend", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
		"max_price": 10,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandleRecommend_BadPeriod(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/recommend", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
		"period": "noonish",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandleListOffers(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/search", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
	})
	var searchBody struct {
		Results []jobs.Result `json:"results"`
	}
	decode(t, resp, &searchBody)
	id := searchBody.Results[0].SearchID

	resp = env.get(t, "/api/v1/searches/"+id+"/offers")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Search store.Search    `json:"search"`
		Offers []flights.Offer `json:"offers"`
	}
	decode(t, resp, &body)
	assert.Equal(t, id, body.Search.ID)
	assert.Len(t, body.Offers, 2)

	resp = env.get(t, "/api/v1/searches/nope/offers")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandleListOffers_Filters(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/search", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
	})
	var searchBody struct {
		Results []jobs.Result `json:"results"`
	}
	decode(t, resp, &searchBody)
	id := searchBody.Results[0].SearchID

	var body struct {
		Offers []flights.Offer `json:"offers"`
		Total  int             `json:"total"`
	}

	// Only the Delta flight departs in the morning.
	resp = env.get(t, "/api/v1/searches/"+id+"/offers?period=morning")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &body)
	require.Len(t, body.Offers, 1)
	assert.Equal(t, "Delta", body.Offers[0].Airline)
	assert.Equal(t, 1, body.Total)

	// Only the United flight fits the budget.
	resp = env.get(t, "/api/v1/searches/"+id+"/offers?max_price=200")
	decode(t, resp, &body)
	require.Len(t, body.Offers, 1)
	assert.Equal(t, "United", body.Offers[0].Airline)

	// Nonstop only.
	resp = env.get(t, "/api/v1/searches/"+id+"/offers?max_stops=0")
	decode(t, resp, &body)
	require.Len(t, body.Offers, 1)
	assert.Equal(t, "Delta", body.Offers[0].Airline)

	// Pagination applies after filtering.
	resp = env.get(t, "/api/v1/searches/"+id+"/offers?limit=1&offset=1")
	decode(t, resp, &body)
	require.Len(t, body.Offers, 1)
	assert.Equal(t, 2, body.Total)

	resp = env.get(t, "/api/v1/searches/"+id+"/offers?offset=10")
	decode(t, resp, &body)
	assert.Empty(t, body.Offers)

	for _, q := range []string{"max_price=abc", "period=noonish", "max_stops=-1", "limit=0", "offset=-1"} {
		resp = env.get(t, "/api/v1/searches/"+id+"/offers?"+q)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, q)
		_ = resp.Body.Close()
	}
}

func TestHandleListSearches(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.get(t, "/api/v1/searches")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Searches []store.Search `json:"searches"`
	}
	decode(t, resp, &body)
	assert.Empty(t, body.Searches)

	_ = env.post(t, "/api/v1/search", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
	}).Body.Close()

	resp = env.get(t, "/api/v1/searches?limit=5")
	decode(t, resp, &body)
	assert.Len(t, body.Searches, 1)

	resp = env.get(t, "/api/v1/searches?limit=0")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandleExport(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.post(t, "/api/v1/search", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
	})
	var searchBody struct {
		Results []jobs.Result `json:"results"`
	}
	decode(t, resp, &searchBody)
	id := searchBody.Results[0].SearchID

	resp = env.get(t, "/api/v1/export?search_id="+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, buf.String(), "Departure Time,Arrival Time,Airline Company")
	assert.Contains(t, buf.String(), "United")

	resp = env.get(t, "/api/v1/export")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.get(t, "/api/v1/export?search_id=missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	_ = env.post(t, "/api/v1/search", map[string]any{
		"origin": "JFK", "destination": "LAX", "date": "2026-09-10",
	}).Body.Close()

	resp := env.get(t, "/api/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 1, body["runs"])
	assert.Contains(t, body, "last_search")
	assert.Contains(t, body, "upstream")
	assert.Contains(t, body, "cache")
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, func(cfg *config.AppConfig) {
		cfg.APIToken = "sekrit"
	})

	// Probes stay open.
	resp := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.get(t, "/api/v1/status")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body health.Response
	decode(t, resp, &body)
	assert.Equal(t, health.StatusHealthy, body.Status)

	resp = env.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, nil)

	resp := env.get(t, "/api/v1/status")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
	_ = resp.Body.Close()
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{rows: sampleRows()}, func(cfg *config.AppConfig) {
		cfg.RateLimitEnabled = true
		cfg.RateLimitPerMin = 2
	})

	last := 0
	for i := 0; i < 4; i++ {
		resp := env.get(t, "/api/v1/status")
		last = resp.StatusCode
		_ = resp.Body.Close()
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
