// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/farewatch/farewatch/internal/api"
	"github.com/farewatch/farewatch/internal/cache"
	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/gflights"
	"github.com/farewatch/farewatch/internal/health"
	"github.com/farewatch/farewatch/internal/jobs"
	"github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/recommend"
	"github.com/farewatch/farewatch/internal/snapshot"
	"github.com/farewatch/farewatch/internal/store"
)

// app holds the wired components of a running instance.
type app struct {
	cfg config.AppConfig

	store     *store.Store
	snapshots *snapshot.Store
	cache     cache.Cache
	client    *gflights.Client
	tracker   *jobs.Tracker
	health    *health.Manager
	server    *api.Server
}

// buildApp wires the service from config. Call close on the returned
// app when done.
func buildApp(cfg config.AppConfig) (*app, error) {
	logger := log.WithComponent("app")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.New(filepath.Join(cfg.DataDir, "farewatch.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var snaps *snapshot.Store
	if cfg.Snapshot.Enabled {
		snaps, err = snapshot.Open(filepath.Join(cfg.DataDir, "snapshots"), cfg.Snapshot.TTL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
	}

	resultCache, err := cache.New(cfg.Cache, log.WithComponent("cache"))
	if err != nil {
		_ = st.Close()
		if snaps != nil {
			_ = snaps.Close()
		}
		return nil, fmt.Errorf("init cache: %w", err)
	}

	client, err := gflights.New(cfg.Upstream.BaseURL, gflights.Options{
		Timeout:          cfg.Upstream.Timeout,
		UserAgent:        cfg.Upstream.UserAgent,
		Retries:          cfg.Upstream.Retries,
		RatePerSecond:    cfg.Upstream.RatePerSecond,
		ProxyServer:      cfg.Upstream.ProxyServer,
		ProxyUsername:    cfg.Upstream.ProxyUsername,
		ProxyPassword:    cfg.Upstream.ProxyPassword,
		BreakerThreshold: cfg.Upstream.BreakerThreshold,
		BreakerReset:     cfg.Upstream.BreakerReset,
	})
	if err != nil {
		_ = st.Close()
		if snaps != nil {
			_ = snaps.Close()
		}
		return nil, fmt.Errorf("init upstream client: %w", err)
	}

	// Every fetched page lands in the snapshot store so a bad parse can
	// be replayed later.
	if snaps != nil {
		client.OnPage(func(q gflights.Query, url string, body []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			snap := snapshot.Snapshot{
				Origin:      q.Origin,
				Destination: q.Destination,
				Date:        q.Date,
				URL:         url,
				Body:        body,
				CapturedAt:  time.Now().UTC(),
			}
			if err := snaps.Put(ctx, snap); err != nil {
				logger.Warn().Err(err).Str("event", "snapshot.put_failed").Msg("failed to store page snapshot")
			}
		})
	}

	tracker := jobs.NewTracker()

	hm := health.NewManager(cfg.Version)
	hm.Register(health.NewStoreChecker(st))
	hm.Register(health.NewUpstreamChecker(client.Breaker()))
	hm.Register(health.NewLLMChecker(cfg.LLM.APIKey != ""))
	hm.Register(health.NewLastRunChecker(func() (time.Time, string) {
		s := tracker.Current()
		return s.LastRun, s.Error
	}))

	server := api.New(cfg, api.Deps{
		Jobs: jobs.Deps{
			Fetcher:  client,
			Store:    st,
			Cache:    resultCache,
			CacheTTL: cfg.Cache.TTL,
		},
		Store:       st,
		Recommender: recommend.New(recommend.NewClient(cfg.LLM)),
		Tracker:     tracker,
		Health:      hm,
		Breaker:     client.Breaker(),
		Cache:       resultCache,
	})

	return &app{
		cfg:       cfg,
		store:     st,
		snapshots: snaps,
		cache:     resultCache,
		client:    client,
		tracker:   tracker,
		health:    hm,
		server:    server,
	}, nil
}

func (a *app) jobsDeps() jobs.Deps {
	return jobs.Deps{
		Fetcher:  a.client,
		Store:    a.store,
		Cache:    a.cache,
		CacheTTL: a.cfg.Cache.TTL,
	}
}

func (a *app) close() {
	if a.snapshots != nil {
		_ = a.snapshots.Close()
	}
	_ = a.store.Close()
}

// warmup runs the configured startup search, if any. Failures are
// logged, not fatal; the next API request simply scrapes fresh.
func (a *app) warmup(ctx context.Context) {
	if a.cfg.WarmupSearch == "" {
		return
	}
	logger := log.WithComponent("app")

	origin, dest, date, err := config.ParseWarmupSearch(a.cfg.WarmupSearch)
	if err != nil {
		logger.Error().Err(err).Str("event", "warmup.invalid").Msg("invalid warmup search")
		return
	}

	results, err := jobs.Run(ctx, a.jobsDeps(), jobs.Params{Origin: origin, Destination: dest, Date: date})
	if err != nil {
		a.tracker.RecordFailure(err)
		logger.Warn().
			Err(err).
			Str("event", "warmup.failed").
			Str(log.FieldOrigin, origin).
			Str(log.FieldDestination, dest).
			Str(log.FieldDate, date).
			Msg("warmup search failed")
		return
	}
	a.tracker.RecordSuccess(results)
	logger.Info().
		Str("event", "warmup.done").
		Str(log.FieldSearchID, results[0].SearchID).
		Int(log.FieldOffers, len(results[0].Offers)).
		Msg("warmup search completed")
}
