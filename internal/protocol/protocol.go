package protocol

import (
	"errors"
	"fmt"

	"github.com/tamzrod/modbus-bridge/internal/task"
)

var (
	// ErrOverlap rejects a task sharing addresses with a registered task of the same kind.
	ErrOverlap = errors.New("protocol: overlapping task")
	// ErrDuplicate rejects a task or protocol that is already registered.
	ErrDuplicate = errors.New("protocol: duplicate")
	// ErrForeignTask rejects a task that belongs to another component.
	ErrForeignTask = errors.New("protocol: task belongs to another component")
)

// Protocol is the ordered set of tasks of one component.
//
// It is not safe for concurrent use; it is mutated only from the goroutine
// that drives the owning worker.
type Protocol struct {
	component string
	unitID    uint8
	tasks     []*task.Task
}

// New creates a protocol and adds the given tasks in order. Rejected tasks are
// reported in the returned error; the protocol keeps the accepted ones and is
// always usable.
func New(component string, unitID uint8, tasks ...*task.Task) (*Protocol, error) {
	p := &Protocol{component: component, unitID: unitID}

	var errs []error
	for _, t := range tasks {
		if err := p.AddTask(t); err != nil {
			errs = append(errs, err)
		}
	}
	return p, errors.Join(errs...)
}

func (p *Protocol) Component() string { return p.component }

// UnitID is the device address on the bus.
func (p *Protocol) UnitID() uint8 { return p.unitID }

// AddTask appends a task. A task overlapping an existing task of the same kind
// is rejected; the existing task stays.
func (p *Protocol) AddTask(t *task.Task) error {
	if t == nil {
		return errors.New("protocol: nil task")
	}
	if t.Component() != p.component {
		return fmt.Errorf("%w: %s added to %s", ErrForeignTask, t, p.component)
	}
	for _, existing := range p.tasks {
		if existing == t {
			return fmt.Errorf("%w: %s", ErrDuplicate, t)
		}
		// inclusive ranges, same table and kind
		if existing.Overlaps(t) {
			return fmt.Errorf(
				"%w: %s range=%d-%d overlaps with %s range=%d-%d",
				ErrOverlap,
				t, t.Start(), t.End(),
				existing, existing.Start(), existing.End(),
			)
		}
	}
	p.tasks = append(p.tasks, t)
	return nil
}

// RemoveTask removes t and reports whether it was registered.
func (p *Protocol) RemoveTask(t *task.Task) bool {
	for i, existing := range p.tasks {
		if existing == t {
			p.tasks = append(p.tasks[:i:i], p.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Tasks returns the tasks of the given kind in registration order.
func (p *Protocol) Tasks(kind task.Kind) []*task.Task {
	var out []*task.Task
	for _, t := range p.tasks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// ReadTasks returns the read tasks of the given priority in registration order.
func (p *Protocol) ReadTasks(priority task.Priority) []*task.Task {
	var out []*task.Task
	for _, t := range p.tasks {
		if t.Kind() == task.Read && t.Priority() == priority {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of registered tasks.
func (p *Protocol) Len() int { return len(p.tasks) }
