// SPDX-License-Identifier: MIT
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/export"
	"github.com/farewatch/farewatch/internal/flights"
	"github.com/farewatch/farewatch/internal/gflights"
	fwlog "github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/snapshot"
)

// runReparseCmd re-parses the stored page snapshot of a route instead of
// fetching a fresh one. After a parser fix, the raw HTML is already on
// disk; this replays it through the current parser and normalizer.
func runReparseCmd(args []string) int {
	pos, rest := splitPositional(args, 3)

	fs := flag.NewFlagSet("reparse", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "write offers to a CSV file instead of stdout")
	configPath := fs.String("config", "", "path to config file (YAML)")
	logLevel := fs.String("log-level", "warn", "log level for the one-shot run")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: farewatch reparse ORIGIN DEST DATE [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if len(pos) != 3 {
		fs.Usage()
		return 2
	}

	fwlog.Configure(fwlog.Config{
		Level:   *logLevel,
		Service: "farewatch",
		Version: version,
	})
	logger := fwlog.WithComponent("reparse-cmd")

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
		return 1
	}

	snaps, err := snapshot.Open(filepath.Join(cfg.DataDir, "snapshots"), cfg.Snapshot.TTL)
	if err != nil {
		logger.Error().Err(err).Str("event", "snapshot.open_failed").Msg("failed to open snapshot store")
		return 1
	}
	defer func() { _ = snaps.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := gflights.Query{Origin: pos[0], Destination: pos[1], Date: pos[2]}.Normalize()
	snap, offers, dropped, err := reparseSnapshot(ctx, snaps, q)
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "reparse.failed").
			Str(fwlog.FieldOrigin, q.Origin).
			Str(fwlog.FieldDestination, q.Destination).
			Str(fwlog.FieldDate, q.Date).
			Msg("reparse failed")
		return 1
	}

	if *csvPath != "" {
		if err := export.WriteFile(*csvPath, offers); err != nil {
			logger.Error().Err(err).Str("event", "export.failed").Str("path", *csvPath).Msg("CSV export failed")
			return 1
		}
		fmt.Printf("wrote %d offers to %s\n", len(offers), *csvPath)
		return 0
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"origin":      q.Origin,
		"destination": q.Destination,
		"date":        q.Date,
		"captured_at": snap.CapturedAt,
		"url":         snap.URL,
		"offers":      offers,
		"dropped":     dropped,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to encode offers")
		return 1
	}
	return 0
}

// reparseSnapshot loads the latest capture for a route and runs it through
// the parser and normalizer again.
func reparseSnapshot(ctx context.Context, snaps *snapshot.Store, q gflights.Query) (*snapshot.Snapshot, []flights.Offer, int, error) {
	if err := q.Validate(); err != nil {
		return nil, nil, 0, err
	}
	snap, err := snaps.Latest(ctx, q.Origin, q.Destination, q.Date)
	if err != nil {
		return nil, nil, 0, err
	}
	raws, err := gflights.ParseResults(bytes.NewReader(snap.Body))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("parse snapshot: %w", err)
	}
	offers, dropped := flights.NormalizeAll(raws)
	flights.Sort(offers)
	return snap, offers, dropped, nil
}
