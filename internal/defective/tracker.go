// Package defective tracks components whose transactions keep failing.
//
// A component is healthy until Threshold consecutive failures are recorded.
// It is then suspended for Backoff: the scheduler offers none of its tasks.
// When the backoff elapses its tasks are retried; one more failure suspends it
// again with a fresh backoff, one success makes it fully healthy.
package defective

import (
	"time"
)

const (
	DefaultThreshold = 3
	DefaultBackoff   = 5 * time.Second
)

// Config is the per-bus tracker configuration.
type Config struct {
	Threshold int
	Backoff   time.Duration
}

// State is a snapshot of one component's failure record.
type State struct {
	Failures       int
	Suspended      bool
	SuspendedUntil time.Time
	FailingSince   time.Time
	LastErr        error
}

type record struct {
	failures       int
	suspendedUntil time.Time
	failingSince   time.Time
	lastErr        error
}

// Tracker holds the failure records of one bus. It is owned by that bus's
// worker and not safe for concurrent use.
type Tracker struct {
	cfg     Config
	now     func() time.Time
	records map[string]*record
}

// New creates a tracker. Zero config values fall back to the defaults.
// now may be nil, in which case time.Now is used.
func New(cfg Config, now func() time.Time) *Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		cfg:     cfg,
		now:     now,
		records: make(map[string]*record),
	}
}

func (t *Tracker) Config() Config { return t.cfg }

// IsSuspended reports whether component's tasks must not be scheduled now.
func (t *Tracker) IsSuspended(component string) bool {
	r, ok := t.records[component]
	if !ok {
		return false
	}
	return t.now().Before(r.suspendedUntil)
}

// RecordResult records the outcome of one transaction. A nil err is a success.
// It returns true when this call suspended the component.
func (t *Tracker) RecordResult(component string, err error) bool {
	if err == nil {
		delete(t.records, component)
		return false
	}

	now := t.now()
	r, ok := t.records[component]
	if !ok {
		r = &record{failingSince: now}
		t.records[component] = r
	}
	r.failures++
	r.lastErr = err

	if r.failures >= t.cfg.Threshold && !now.Before(r.suspendedUntil) {
		r.suspendedUntil = now.Add(t.cfg.Backoff)
		return true
	}
	return false
}

// Forget drops the record of a removed component.
func (t *Tracker) Forget(component string) {
	delete(t.records, component)
}

// State returns the current record of component. Healthy components return
// the zero State.
func (t *Tracker) State(component string) State {
	r, ok := t.records[component]
	if !ok {
		return State{}
	}
	return State{
		Failures:       r.failures,
		Suspended:      t.now().Before(r.suspendedUntil),
		SuspendedUntil: r.suspendedUntil,
		FailingSince:   r.failingSince,
		LastErr:        r.lastErr,
	}
}

// Defective returns the components that currently have a failure record.
func (t *Tracker) Defective() []string {
	out := make([]string, 0, len(t.records))
	for c := range t.records {
		out = append(out, c)
	}
	return out
}
