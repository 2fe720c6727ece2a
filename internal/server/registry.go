// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"sync"
	"time"

	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/internal/workflow"
)

// run is one registered workflow run.
type run struct {
	id       string
	req      workflow.Request
	bus      *progress.Bus
	created  time.Time
	finished time.Time
}

// registry keeps runs available for replay until their retention expires.
type registry struct {
	mu        sync.Mutex
	runs      map[string]*run
	retention time.Duration
	now       func() time.Time
}

func newRegistry(retention time.Duration) *registry {
	return &registry{runs: make(map[string]*run), retention: retention, now: time.Now}
}

// add registers a run. It reports false, and keeps the existing entry,
// when id is already registered.
func (r *registry) add(id string, req workflow.Request, bus *progress.Bus) (*run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	if _, exists := r.runs[id]; exists {
		return nil, false
	}
	entry := &run{id: id, req: req, bus: bus, created: r.now()}
	r.runs[id] = entry
	return entry, true
}

func (r *registry) get(id string) (*run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	entry, ok := r.runs[id]
	return entry, ok
}

func (r *registry) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.runs[id]; ok {
		entry.finished = r.now()
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// sweepLocked drops finished runs older than the retention. A zero
// retention keeps runs forever.
func (r *registry) sweepLocked() {
	if r.retention <= 0 {
		return
	}
	cutoff := r.now().Add(-r.retention)
	for id, entry := range r.runs {
		if !entry.finished.IsZero() && entry.finished.Before(cutoff) {
			delete(r.runs, id)
		}
	}
}
