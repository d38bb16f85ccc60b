// Package sink fans scored ticks out to their consumers: the CSV log, the
// session store and the MQTT publisher.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

// Sink consumes similarity scores
type Sink interface {
	Name() string
	Write(s scoring.Score) error
	Close() error
}

// SessionRecorder is implemented by sinks that also track episode
// boundaries. It receives every state change.
type SessionRecorder interface {
	RecordSession(snap session.Snapshot, at time.Time) error
}

// Status summarises one sink's delivery record
type Status struct {
	Written   int64     `json:"written"`
	Errors    int64     `json:"errors"`
	LastError string    `json:"last_error,omitempty"`
	LastWrite time.Time `json:"last_write,omitempty"`
	Healthy   bool      `json:"healthy"`
}

// Fanout delivers runner updates to every sink in order. A failing sink is
// logged and counted but never blocks the others.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger

	mu        sync.RWMutex
	status    map[string]*Status
	lastState session.State
	lastID    string

	done     chan struct{}
	doneOnce sync.Once
}

// NewFanout creates a fan-out over sinks
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	status := make(map[string]*Status, len(sinks))
	for _, s := range sinks {
		status[s.Name()] = &Status{Healthy: true}
	}
	return &Fanout{
		sinks:  sinks,
		logger: logger,
		status: status,
		done:   make(chan struct{}),
	}
}

// Len returns the number of sinks
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Names lists sink names in delivery order
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Run consumes updates until ctx is cancelled or the channel closes.
// Updates already buffered when the channel closes are still delivered.
func (f *Fanout) Run(ctx context.Context, updates <-chan session.Update) {
	defer f.doneOnce.Do(func() { close(f.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			f.Deliver(u)
		}
	}
}

// Deliver hands one update to every sink
func (f *Fanout) Deliver(u session.Update) {
	now := time.Now()

	if f.stateChanged(u.Snapshot) {
		for _, s := range f.sinks {
			rec, ok := s.(SessionRecorder)
			if !ok {
				continue
			}
			f.record(s.Name(), rec.RecordSession(u.Snapshot, now), now, false)
		}
	}

	if u.Score == nil {
		return
	}
	for _, s := range f.sinks {
		f.record(s.Name(), s.Write(*u.Score), now, true)
	}
}

func (f *Fanout) stateChanged(snap session.Snapshot) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := snap.State != f.lastState || snap.SessionID != f.lastID
	f.lastState = snap.State
	f.lastID = snap.SessionID
	return changed
}

func (f *Fanout) record(name string, err error, at time.Time, write bool) {
	f.mu.Lock()
	st, ok := f.status[name]
	if !ok {
		st = &Status{}
		f.status[name] = st
	}
	if err != nil {
		st.Errors++
		st.LastError = err.Error()
		st.Healthy = false
	} else {
		st.Healthy = true
		if write {
			st.Written++
			st.LastWrite = at
		}
	}
	errCount := st.Errors
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn("sink write failed", "sink", name, "error", err, "errors", errCount)
	}
}

// Status returns a copy of one sink's status
func (f *Fanout) Status(name string) (Status, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.status[name]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Statuses returns a copy of every sink's status
func (f *Fanout) Statuses() map[string]Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]Status, len(f.status))
	for k, v := range f.status {
		out[k] = *v
	}
	return out
}

// Wait blocks until Run has returned or ctx is done. Only call it once
// Run has been started.
func (f *Fanout) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes every sink and joins their errors. Call it after Wait so
// no delivery is still in flight.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
