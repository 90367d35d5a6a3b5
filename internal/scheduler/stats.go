package scheduler

import (
	"sort"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/task"
)

// Stats summarizes the last completed cycle of a worker.
type Stats struct {
	WritePhase time.Duration
	ReadPhase  time.Duration
	// Duration is measured from the start of the write phase to the end of
	// the read phase.
	Duration time.Duration

	Executed int // tasks that issued at least one transaction
	Failed   int
	Skipped  int // tasks of suspended components

	CycleTooShort bool
}

// ComponentState is the scheduling view of one registered component.
type ComponentState struct {
	Component string
	UnitID    uint8

	Suspended      bool
	SuspendedUntil time.Time
	Failures       int
	FailingSince   time.Time
	LastErr        error
	LastSuccess    time.Time

	// Tasks is the number of registered tasks; zero means the component has
	// nothing to poll.
	Tasks int
}

// publish copies the cycle results for readers on other goroutines.
func (w *Worker) publish() {
	health := make(map[string]ComponentState, w.registry.Len())
	for _, p := range w.registry.Protocols() {
		st := w.tracker.State(p.Component())
		health[p.Component()] = ComponentState{
			Component:      p.Component(),
			UnitID:         p.UnitID(),
			Suspended:      st.Suspended,
			SuspendedUntil: st.SuspendedUntil,
			Failures:       st.Failures,
			FailingSince:   st.FailingSince,
			LastErr:        st.LastErr,
			LastSuccess:    w.lastSuccess[p.Component()],
			Tasks:          p.Len(),
		}
	}

	w.mu.Lock()
	w.stats = w.current
	w.health = health
	w.mu.Unlock()
}

// Stats returns the statistics of the last completed cycle.
// Safe for concurrent use.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// CycleTooShort reports whether the last cycle took longer than CycleTime.
func (w *Worker) CycleTooShort() bool {
	return w.Stats().CycleTooShort
}

// Health returns the component states as of the last completed read phase,
// sorted by component. Safe for concurrent use.
func (w *Worker) Health() []ComponentState {
	w.mu.Lock()
	out := make([]ComponentState, 0, len(w.health))
	for _, st := range w.health {
		out = append(out, st)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// ComponentHealth returns the state of one component.
func (w *Worker) ComponentHealth(component string) (ComponentState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.health[component]
	return st, ok
}

// Tasks returns the registered tasks of kind in execution order. It must be
// called from the driving goroutine.
func (w *Worker) Tasks(kind task.Kind) []*task.Task {
	return w.registry.Tasks(kind)
}
