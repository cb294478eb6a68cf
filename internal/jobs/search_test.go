// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farewatch/farewatch/internal/cache"
	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/farewatch/farewatch/internal/store"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls []gflights.Query
	rows  map[string][]gflights.RawOffer
	err   error
}

func (f *stubFetcher) FetchResults(_ context.Context, q gflights.Query) ([]gflights.RawOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, f.err
	}
	if rows, ok := f.rows[q.Date]; ok {
		return rows, nil
	}
	return nil, gflights.ErrNoResults
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func sampleRows() []gflights.RawOffer {
	return []gflights.RawOffer{
		{DepartureTime: "8:00 AM", ArrivalTime: "10:15 AM", Airline: "Delta", Duration: "2 hr 15 min", Stops: "Nonstop", Price: "$210"},
		{DepartureTime: "6:45 AM", ArrivalTime: "1:30 PM", Airline: "Spirit", Duration: "6 hr 45 min", Stops: "1 stop", Price: "$95"},
		{DepartureTime: "garbage", Price: "$100"},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "farewatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_FetchNormalizePersist(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{"2026-09-10": sampleRows()}}
	st := newTestStore(t)
	deps := Deps{Fetcher: fetcher, Store: st, Cache: cache.NewMemory(0), CacheTTL: time.Minute}

	results, err := Run(context.Background(), deps, Params{Origin: "jfk", Destination: "lax", Date: "2026-09-10"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "JFK", r.Origin)
	assert.NotEmpty(t, r.SearchID)
	assert.Equal(t, 1, r.Dropped)
	require.Len(t, r.Offers, 2)
	// Offers come back cheapest first.
	assert.Equal(t, "Spirit", r.Offers[0].Airline)

	saved, err := st.GetSearch(context.Background(), r.SearchID)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.OfferCount)
}

func TestRun_ServesFromCache(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{"2026-09-10": sampleRows()}}
	deps := Deps{Fetcher: fetcher, Store: newTestStore(t), Cache: cache.NewMemory(0), CacheTTL: time.Minute}
	p := Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"}

	_, err := Run(context.Background(), deps, p)
	require.NoError(t, err)

	results, err := Run(context.Background(), deps, p)
	require.NoError(t, err)
	assert.True(t, results[0].FromCache)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestRun_RefreshSkipsCache(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{"2026-09-10": sampleRows()}}
	deps := Deps{Fetcher: fetcher, Store: newTestStore(t), Cache: cache.NewMemory(0), CacheTTL: time.Minute}
	p := Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"}

	_, err := Run(context.Background(), deps, p)
	require.NoError(t, err)

	p.Refresh = true
	results, err := Run(context.Background(), deps, p)
	require.NoError(t, err)
	assert.False(t, results[0].FromCache)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestRun_ReusesFreshStoredSearch(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{"2026-09-10": sampleRows()}}
	st := newTestStore(t)
	// No cache wired; the store alone answers repeat searches.
	deps := Deps{Fetcher: fetcher, Store: st, CacheTTL: time.Minute}
	p := Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"}

	first, err := Run(context.Background(), deps, p)
	require.NoError(t, err)

	results, err := Run(context.Background(), deps, p)
	require.NoError(t, err)
	assert.True(t, results[0].FromCache)
	assert.Equal(t, first[0].SearchID, results[0].SearchID)
	require.Len(t, results[0].Offers, 2)
	assert.Equal(t, "Spirit", results[0].Offers[0].Airline)
	assert.Equal(t, 1, fetcher.callCount())

	p.Refresh = true
	_, err = Run(context.Background(), deps, p)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestRun_StaleStoredSearchIsRefetched(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{"2026-09-10": sampleRows()}}
	deps := Deps{Fetcher: fetcher, Store: newTestStore(t), CacheTTL: time.Nanosecond}
	p := Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"}

	_, err := Run(context.Background(), deps, p)
	require.NoError(t, err)

	results, err := Run(context.Background(), deps, p)
	require.NoError(t, err)
	assert.False(t, results[0].FromCache)
	assert.Equal(t, 2, fetcher.callCount())
}

func fetchDurationCount(t *testing.T) uint64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "farewatch_fetch_duration_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestRun_ObservesFetchDurationOncePerPage(t *testing.T) {
	mock := gflights.NewMockServer(sampleRows())
	defer mock.Close()
	client, err := gflights.New(mock.URL(), gflights.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	deps := Deps{Fetcher: client, Store: newTestStore(t)}

	before := fetchDurationCount(t)
	_, err = Run(context.Background(), deps, Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"})
	require.NoError(t, err)
	assert.Equal(t, before+1, fetchDurationCount(t))
}

func TestRun_InvalidQuery(t *testing.T) {
	deps := Deps{Fetcher: &stubFetcher{}}

	_, err := Run(context.Background(), deps, Params{Origin: "NEWYORK", Destination: "LAX", Date: "2026-09-10"})
	assert.ErrorIs(t, err, gflights.ErrInvalidQuery)

	_, err = Run(context.Background(), deps, Params{Origin: "JFK", Destination: "JFK", Date: "2026-09-10"})
	assert.ErrorIs(t, err, gflights.ErrInvalidQuery)
}

func TestRun_FetchErrorPropagates(t *testing.T) {
	deps := Deps{Fetcher: &stubFetcher{err: gflights.ErrBlocked}}

	_, err := Run(context.Background(), deps, Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"})
	assert.ErrorIs(t, err, gflights.ErrBlocked)
}

func TestRun_AllRowsUnparseable(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{
		"2026-09-10": {{DepartureTime: "x", Price: "y"}},
	}}
	deps := Deps{Fetcher: fetcher}

	_, err := Run(context.Background(), deps, Params{Origin: "JFK", Destination: "LAX", Date: "2026-09-10"})
	assert.ErrorIs(t, err, gflights.ErrNoResults)
}

func TestRun_FlexDays(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{
		"2026-09-10": sampleRows(),
		"2026-09-12": sampleRows()[:2],
		// 2026-09-11 has no results and is skipped.
	}}
	deps := Deps{Fetcher: fetcher, Store: newTestStore(t)}

	results, err := Run(context.Background(), deps, Params{
		Origin: "JFK", Destination: "LAX", Date: "2026-09-10", FlexDays: 2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2026-09-10", results[0].Date)
	assert.Equal(t, "2026-09-12", results[1].Date)
	assert.Equal(t, 3, fetcher.callCount())
}

func TestRun_FlexDaysCapped(t *testing.T) {
	fetcher := &stubFetcher{rows: map[string][]gflights.RawOffer{"2026-09-10": sampleRows()}}
	deps := Deps{Fetcher: fetcher}

	_, err := Run(context.Background(), deps, Params{
		Origin: "JFK", Destination: "LAX", Date: "2026-09-10", FlexDays: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, MaxFlexDays+1, fetcher.callCount())
}

func TestRun_FlexDaysAllEmpty(t *testing.T) {
	deps := Deps{Fetcher: &stubFetcher{}}

	_, err := Run(context.Background(), deps, Params{
		Origin: "JFK", Destination: "LAX", Date: "2026-09-10", FlexDays: 1,
	})
	assert.ErrorIs(t, err, gflights.ErrNoResults)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	assert.Zero(t, tr.Current().LastRun)

	tr.RecordSuccess([]Result{{
		SearchID: "abc", Origin: "JFK", Destination: "LAX", Date: "2026-09-10",
	}})
	s := tr.Current()
	assert.Equal(t, "abc", s.LastSearchID)
	assert.Equal(t, "JFK-LAX", s.Route)
	assert.Empty(t, s.Error)
	assert.Equal(t, int64(1), tr.Runs())

	tr.RecordFailure(errors.New("blocked"))
	s = tr.Current()
	assert.Equal(t, "blocked", s.Error)
	assert.Equal(t, int64(2), tr.Runs())
}
