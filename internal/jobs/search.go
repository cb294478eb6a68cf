// SPDX-License-Identifier: MIT

// Package jobs runs the scrape pipeline: fetch the results page,
// normalize the rows, persist the search and keep the cache warm.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/farewatch/farewatch/internal/cache"
	"github.com/farewatch/farewatch/internal/flights"
	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/metrics"
	"github.com/farewatch/farewatch/internal/store"
)

// MaxFlexDays caps how many extra days a flexible search may fan out to.
const MaxFlexDays = 3

// Fetcher fetches raw offers for a query. *gflights.Client implements it.
type Fetcher interface {
	FetchResults(ctx context.Context, q gflights.Query) ([]gflights.RawOffer, error)
}

// Searches persists completed searches and serves recent ones back.
// *store.Store implements it.
type Searches interface {
	SaveSearch(ctx context.Context, origin, destination, date string, offers []flights.Offer, dropped int) (string, error)
	LatestSearch(ctx context.Context, origin, destination, date string) (*store.Search, error)
	ListOffers(ctx context.Context, searchID string) ([]flights.Offer, error)
}

// Deps are the collaborators of a search run.
type Deps struct {
	Fetcher  Fetcher
	Store    Searches
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Params describe one search request. FlexDays > 0 fans the search out
// over the following days as well.
type Params struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	FlexDays    int    `json:"flex_days,omitempty"`
	// Refresh skips the cache and forces a fresh scrape.
	Refresh bool `json:"refresh,omitempty"`
}

// Result is the outcome of scraping one route and date.
type Result struct {
	SearchID    string          `json:"search_id"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Date        string          `json:"date"`
	Offers      []flights.Offer `json:"offers"`
	Dropped     int             `json:"dropped,omitempty"`
	FromCache   bool            `json:"from_cache,omitempty"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Run executes the search. With FlexDays set it scrapes each day
// concurrently and returns one result per day, in date order. A day
// that fails does not sink the others; days with no offers are skipped
// unless every day comes up empty.
func Run(ctx context.Context, deps Deps, p Params) ([]Result, error) {
	q := gflights.Query{Origin: p.Origin, Destination: p.Destination, Date: p.Date}
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		metrics.IncSearchFailure("validate")
		return nil, err
	}

	flex := p.FlexDays
	if flex < 0 {
		flex = 0
	}
	if flex > MaxFlexDays {
		flex = MaxFlexDays
	}

	base, err := time.Parse("2006-01-02", q.Date)
	if err != nil {
		metrics.IncSearchFailure("validate")
		return nil, fmt.Errorf("%w: bad date %q", gflights.ErrInvalidQuery, p.Date)
	}

	results := make([]*Result, flex+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxFlexDays)

	for i := 0; i <= flex; i++ {
		day := q
		day.Date = base.AddDate(0, 0, i).Format("2006-01-02")
		g.Go(func() error {
			r, err := runOne(gctx, deps, day, p.Refresh)
			if err != nil {
				// Empty flex days are expected; other failures only
				// matter when the whole fan-out fails.
				if flex > 0 {
					logger := log.WithComponentFromContext(gctx, "jobs")
					logger.Warn().
						Str("event", "search.day_failed").
						Str(log.FieldDate, day.Date).
						Err(err).
						Msg("flexible search day failed")
					return nil
				}
				return err
			}
			results[dayIndex(base, day.Date)] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		metrics.IncSearchFailure("fetch")
		return nil, gflights.ErrNoResults
	}

	metrics.IncSearch("success")
	return out, nil
}

func dayIndex(base time.Time, date string) int {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	return int(d.Sub(base).Hours() / 24)
}

func runOne(ctx context.Context, deps Deps, q gflights.Query, refresh bool) (*Result, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")
	route := q.Origin + "-" + q.Destination
	key := cache.Key(q.Origin, q.Destination, q.Date)

	if deps.Cache != nil && !refresh {
		if buf, ok := deps.Cache.Get(key); ok {
			var r Result
			if err := json.Unmarshal(buf, &r); err == nil {
				r.FromCache = true
				logger.Debug().
					Str("event", "search.cache_hit").
					Str(log.FieldOrigin, q.Origin).
					Str(log.FieldDestination, q.Destination).
					Str(log.FieldDate, q.Date).
					Msg("serving cached search")
				return &r, nil
			}
			deps.Cache.Delete(key)
		}
	}

	// A stored search younger than the cache TTL serves as well as a
	// cache entry; both are skipped on Refresh.
	if deps.Store != nil && deps.CacheTTL > 0 && !refresh {
		if sr, err := deps.Store.LatestSearch(ctx, q.Origin, q.Destination, q.Date); err == nil && time.Since(sr.FetchedAt) < deps.CacheTTL {
			if offers, err := deps.Store.ListOffers(ctx, sr.ID); err == nil && len(offers) > 0 {
				logger.Debug().
					Str("event", "search.store_hit").
					Str(log.FieldSearchID, sr.ID).
					Str(log.FieldOrigin, q.Origin).
					Str(log.FieldDestination, q.Destination).
					Str(log.FieldDate, q.Date).
					Msg("serving stored search")
				return &Result{
					SearchID:    sr.ID,
					Origin:      q.Origin,
					Destination: q.Destination,
					Date:        q.Date,
					Offers:      offers,
					Dropped:     sr.Dropped,
					FromCache:   true,
					FetchedAt:   sr.FetchedAt,
				}, nil
			}
		}
	}

	logger.Info().
		Str("event", "search.start").
		Str(log.FieldOrigin, q.Origin).
		Str(log.FieldDestination, q.Destination).
		Str(log.FieldDate, q.Date).
		Msg("starting scrape")

	// Fetch duration is observed inside the client, per page request.
	start := time.Now()
	raws, err := deps.Fetcher.FetchResults(ctx, q)
	if err != nil {
		metrics.IncSearchFailure("fetch")
		return nil, err
	}

	offers, dropped := flights.NormalizeAll(raws)
	if dropped > 0 {
		metrics.IncOffersDropped(dropped)
		logger.Warn().
			Str("event", "search.rows_dropped").
			Int("dropped", dropped).
			Msg("unparseable result rows dropped")
	}
	if len(offers) == 0 {
		metrics.IncSearchFailure("normalize")
		return nil, fmt.Errorf("%w: %d rows, none parseable", gflights.ErrNoResults, len(raws))
	}
	metrics.RecordOffers(route, len(offers))

	flights.Sort(offers)

	r := &Result{
		Origin:      q.Origin,
		Destination: q.Destination,
		Date:        q.Date,
		Offers:      offers,
		Dropped:     dropped,
		FetchedAt:   time.Now().UTC(),
	}

	if deps.Store != nil {
		id, err := deps.Store.SaveSearch(ctx, q.Origin, q.Destination, q.Date, offers, dropped)
		if err != nil {
			metrics.IncSearchFailure("store")
			return nil, fmt.Errorf("persist search: %w", err)
		}
		r.SearchID = id
	}

	if deps.Cache != nil && deps.CacheTTL > 0 {
		if buf, err := json.Marshal(r); err == nil {
			deps.Cache.Set(key, buf, deps.CacheTTL)
		}
	}

	logger.Info().
		Str("event", "search.done").
		Str(log.FieldSearchID, r.SearchID).
		Int(log.FieldOffers, len(offers)).
		Dur("duration", time.Since(start)).
		Msg("scrape finished")

	return r, nil
}
