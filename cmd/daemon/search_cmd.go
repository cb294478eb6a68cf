// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/export"
	"github.com/farewatch/farewatch/internal/flights"
	"github.com/farewatch/farewatch/internal/jobs"
	fwlog "github.com/farewatch/farewatch/internal/log"
)

// splitPositional peels up to n leading non-flag arguments off args so
// subcommands can be invoked as "CMD ARG ARG [flags]".
func splitPositional(args []string, n int) (pos, rest []string) {
	for len(args) > 0 && len(pos) < n && !strings.HasPrefix(args[0], "-") {
		pos = append(pos, args[0])
		args = args[1:]
	}
	return pos, args
}

// runSearchCmd performs a one-shot scrape from the command line and
// prints the offers as JSON, or writes them to a CSV file.
func runSearchCmd(args []string) int {
	pos, rest := splitPositional(args, 3)

	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	flexDays := fs.Int("flex", 0, "also search up to N following days")
	refresh := fs.Bool("refresh", false, "bypass the result cache")
	csvPath := fs.String("csv", "", "write offers to a CSV file instead of stdout")
	configPath := fs.String("config", "", "path to config file (YAML)")
	logLevel := fs.String("log-level", "warn", "log level for the one-shot run")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: farewatch search ORIGIN DEST DATE [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if len(pos) != 3 {
		fs.Usage()
		return 2
	}
	origin, dest, date := pos[0], pos[1], pos[2]

	fwlog.Configure(fwlog.Config{
		Level:   *logLevel,
		Service: "farewatch",
		Version: version,
	})
	logger := fwlog.WithComponent("search-cmd")

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "startup.failed").Msg("failed to wire application")
		return 1
	}
	defer app.close()

	results, err := jobs.Run(ctx, app.jobsDeps(), jobs.Params{
		Origin:      origin,
		Destination: dest,
		Date:        date,
		FlexDays:    *flexDays,
		Refresh:     *refresh,
	})
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "search.failed").
			Str(fwlog.FieldOrigin, origin).
			Str(fwlog.FieldDestination, dest).
			Str(fwlog.FieldDate, date).
			Msg("search failed")
		return 1
	}

	if *csvPath != "" {
		offers := results[0].Offers
		if len(results) > 1 {
			offers = nil
			for _, r := range results {
				offers = append(offers, r.Offers...)
			}
			flights.Sort(offers)
		}
		if err := export.WriteFile(*csvPath, offers); err != nil {
			logger.Error().Err(err).Str("event", "export.failed").Str("path", *csvPath).Msg("CSV export failed")
			return 1
		}
		fmt.Printf("wrote %d offers to %s\n", len(offers), *csvPath)
		return 0
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		logger.Error().Err(err).Msg("failed to encode results")
		return 1
	}
	return 0
}
