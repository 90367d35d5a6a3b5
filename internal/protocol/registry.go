package protocol

import (
	"fmt"

	"github.com/tamzrod/modbus-bridge/internal/task"
)

// Registry keeps the protocols of one bus in registration order.
// Like Protocol, it is owned by a single goroutine.
type Registry struct {
	protocols []*Protocol
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers p after all previously registered protocols.
func (r *Registry) Add(p *Protocol) error {
	for _, existing := range r.protocols {
		if existing.component == p.component {
			return fmt.Errorf("%w: component %s already registered", ErrDuplicate, p.component)
		}
	}
	r.protocols = append(r.protocols, p)
	return nil
}

// Remove drops the protocol of component and returns it.
func (r *Registry) Remove(component string) (*Protocol, bool) {
	for i, p := range r.protocols {
		if p.component == component {
			r.protocols = append(r.protocols[:i:i], r.protocols[i+1:]...)
			return p, true
		}
	}
	return nil, false
}

// Replace swaps the protocol of p's component in place, keeping its position.
// If the component is not registered yet, p is appended.
func (r *Registry) Replace(p *Protocol) *Protocol {
	for i, existing := range r.protocols {
		if existing.component == p.component {
			r.protocols[i] = p
			return existing
		}
	}
	r.protocols = append(r.protocols, p)
	return nil
}

// Get returns the protocol of component.
func (r *Registry) Get(component string) (*Protocol, bool) {
	for _, p := range r.protocols {
		if p.component == component {
			return p, true
		}
	}
	return nil, false
}

// Protocols returns the registered protocols in registration order.
func (r *Registry) Protocols() []*Protocol {
	out := make([]*Protocol, len(r.protocols))
	copy(out, r.protocols)
	return out
}

// Tasks returns the tasks of kind across all protocols: protocol registration
// order first, then task order inside each protocol.
func (r *Registry) Tasks(kind task.Kind) []*task.Task {
	var out []*task.Task
	for _, p := range r.protocols {
		out = append(out, p.Tasks(kind)...)
	}
	return out
}

// ReadTasks is Tasks for read tasks of one priority.
func (r *Registry) ReadTasks(priority task.Priority) []*task.Task {
	var out []*task.Task
	for _, p := range r.protocols {
		out = append(out, p.ReadTasks(priority)...)
	}
	return out
}

// Len returns the number of registered protocols.
func (r *Registry) Len() int { return len(r.protocols) }
