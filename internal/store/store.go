// SPDX-License-Identifier: MIT

// Package store provides SQLite persistence for completed searches and
// their normalized offers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/farewatch/farewatch/internal/flights"
)

// ErrNotFound is returned when no search matches the given ID or route.
var ErrNotFound = errors.New("store: not found")

// Search is one persisted scrape run for a route and travel date.
type Search struct {
	ID          string    `json:"id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	FetchedAt   time.Time `json:"fetched_at"`
	OfferCount  int       `json:"offer_count"`
	Dropped     int       `json:"dropped,omitempty"`
}

// Store provides SQLite persistence for searches and offers.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// WAL mode plus busy_timeout keeps concurrent readers from seeing
// "database locked" errors.
func New(dbPath string) (*Store, error) {
	// modernc.org/sqlite takes pragmas as _pragma=name(value) DSN
	// parameters; the _journal_mode=... style is silently ignored.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS searches (
		id TEXT PRIMARY KEY,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		travel_date TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		offer_count INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS offers (
		search_id TEXT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		airline TEXT NOT NULL,
		departure TEXT NOT NULL,
		departure_day_offset INTEGER NOT NULL DEFAULT 0,
		arrival TEXT NOT NULL,
		arrival_day_offset INTEGER NOT NULL DEFAULT 0,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		stops INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		emissions TEXT NOT NULL DEFAULT '',
		emissions_delta TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (search_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_searches_route ON searches(origin, destination, travel_date, fetched_at);
	CREATE INDEX IF NOT EXISTS idx_offers_search ON offers(search_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSearch persists a search together with its offers in one
// transaction and returns the generated search ID.
func (s *Store) SaveSearch(ctx context.Context, origin, destination, date string, offers []flights.Offer, dropped int) (string, error) {
	id := uuid.NewString()
	fetchedAt := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO searches (id, origin, destination, travel_date, fetched_at, offer_count, dropped)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, origin, destination, date, fetchedAt.Format(time.RFC3339), len(offers), dropped)
	if err != nil {
		return "", fmt.Errorf("insert search: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO offers (search_id, position, airline, departure, departure_day_offset,
		arrival, arrival_day_offset, duration_minutes, stops, price, currency, emissions, emissions_delta)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare offers: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, o := range offers {
		_, err := stmt.ExecContext(ctx, id, i, o.Airline,
			o.Departure.String(), o.DepartureDayOffset,
			o.Arrival.String(), o.ArrivalDayOffset,
			int(o.Duration.Minutes()), o.Stops, o.Price, o.Currency,
			o.Emissions, o.EmissionsDelta)
		if err != nil {
			return "", fmt.Errorf("insert offer %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// GetSearch retrieves a search by ID.
func (s *Store) GetSearch(ctx context.Context, id string) (*Search, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, origin, destination, travel_date, fetched_at, offer_count, dropped
	FROM searches WHERE id = ?`, id)
	return scanSearch(row)
}

// LatestSearch retrieves the most recent search for a route and date.
func (s *Store) LatestSearch(ctx context.Context, origin, destination, date string) (*Search, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, origin, destination, travel_date, fetched_at, offer_count, dropped
	FROM searches
	WHERE origin = ? AND destination = ? AND travel_date = ?
	ORDER BY fetched_at DESC LIMIT 1`, origin, destination, date)
	return scanSearch(row)
}

func scanSearch(row *sql.Row) (*Search, error) {
	var sr Search
	var fetchedAt string
	err := row.Scan(&sr.ID, &sr.Origin, &sr.Destination, &sr.Date, &fetchedAt, &sr.OfferCount, &sr.Dropped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		sr.FetchedAt = t
	}
	return &sr, nil
}

// ListOffers returns all offers of a search in page order.
func (s *Store) ListOffers(ctx context.Context, searchID string) ([]flights.Offer, error) {
	if _, err := s.GetSearch(ctx, searchID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT airline, departure, departure_day_offset, arrival, arrival_day_offset,
		duration_minutes, stops, price, currency, emissions, emissions_delta
	FROM offers WHERE search_id = ? ORDER BY position`, searchID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var offers []flights.Offer
	for rows.Next() {
		var o flights.Offer
		var dep, arr string
		var durMin int
		if err := rows.Scan(&o.Airline, &dep, &o.DepartureDayOffset, &arr, &o.ArrivalDayOffset,
			&durMin, &o.Stops, &o.Price, &o.Currency, &o.Emissions, &o.EmissionsDelta); err != nil {
			return nil, err
		}
		o.Departure = parseClock(dep)
		o.Arrival = parseClock(arr)
		o.Duration = time.Duration(durMin) * time.Minute
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// ListSearches returns the most recent searches, newest first.
func (s *Store) ListSearches(ctx context.Context, limit int) ([]Search, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, origin, destination, travel_date, fetched_at, offer_count, dropped
	FROM searches ORDER BY fetched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var searches []Search
	for rows.Next() {
		var sr Search
		var fetchedAt string
		if err := rows.Scan(&sr.ID, &sr.Origin, &sr.Destination, &sr.Date, &fetchedAt, &sr.OfferCount, &sr.Dropped); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
			sr.FetchedAt = t
		}
		searches = append(searches, sr)
	}
	return searches, rows.Err()
}

func parseClock(s string) flights.Clock {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0
	}
	return flights.NewClock(h, m)
}
