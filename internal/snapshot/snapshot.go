// SPDX-License-Identifier: MIT

// Package snapshot stores gzipped copies of fetched result pages so a
// scrape can be replayed and debugged after the fact. Entries expire on
// their own via Badger TTLs.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no snapshot exists for the route.
var ErrNotFound = errors.New("snapshot: not found")

// Snapshot is one captured result page.
type Snapshot struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	URL         string    `json:"url"`
	CapturedAt  time.Time `json:"captured_at"`
	Body        []byte    `json:"-"`
}

// Store persists snapshots in a Badger database. Keys are
// "page:<ORG>:<DST>:<date>" for the latest body and "meta:<...>" for the
// capture metadata.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) the snapshot database at path. Entries live
// for ttl before Badger drops them.
func Open(path string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func pageKey(origin, destination, date string) []byte {
	return []byte("page:" + origin + ":" + destination + ":" + date)
}

func metaKey(origin, destination, date string) []byte {
	return []byte("meta:" + origin + ":" + destination + ":" + date)
}

// Put stores the page body for a route, replacing any previous capture.
// The body is gzipped before it hits disk; result pages compress to a
// small fraction of their raw size.
func (s *Store) Put(ctx context.Context, snap Snapshot) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(snap.Body); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}

	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		page := badger.NewEntry(pageKey(snap.Origin, snap.Destination, snap.Date), buf.Bytes())
		info := badger.NewEntry(metaKey(snap.Origin, snap.Destination, snap.Date), meta)
		if s.ttl > 0 {
			page = page.WithTTL(s.ttl)
			info = info.WithTTL(s.ttl)
		}
		if err := txn.SetEntry(page); err != nil {
			return err
		}
		return txn.SetEntry(info)
	})
}

// Latest returns the most recent capture for a route, body decompressed.
func (s *Store) Latest(ctx context.Context, origin, destination, date string) (*Snapshot, error) {
	var snap Snapshot
	var compressed []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(origin, destination, date))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		}); err != nil {
			return err
		}

		item, err = txn.Get(pageKey(origin, destination, date))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	defer func() { _ = zr.Close() }()

	snap.Body, err = io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	return &snap, nil
}
