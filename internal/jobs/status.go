// SPDX-License-Identifier: MIT

package jobs

import (
	"sync"
	"time"
)

// Status is the outcome of the most recent search run.
type Status struct {
	LastRun      time.Time `json:"last_run"`
	LastSearchID string    `json:"last_search_id,omitempty"`
	Route        string    `json:"route,omitempty"`
	Date         string    `json:"date,omitempty"`
	Offers       int       `json:"offers"`
	Error        string    `json:"error,omitempty"`
}

// Tracker records search outcomes for the status endpoint and the
// readiness probe.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	runs   int64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordSuccess stores the outcome of a completed run. For flexible
// searches the first result wins; it is the requested date.
func (t *Tracker) RecordSuccess(results []Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs++
	t.status = Status{LastRun: time.Now().UTC()}
	if len(results) == 0 {
		return
	}
	r := results[0]
	t.status.LastSearchID = r.SearchID
	t.status.Route = r.Origin + "-" + r.Destination
	t.status.Date = r.Date
	for _, res := range results {
		t.status.Offers += len(res.Offers)
	}
}

// RecordFailure stores a failed run, keeping the previous route info.
func (t *Tracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs++
	t.status.LastRun = time.Now().UTC()
	t.status.Error = err.Error()
}

// Current returns a copy of the latest status.
func (t *Tracker) Current() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Runs returns how many runs were recorded.
func (t *Tracker) Runs() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runs
}
