package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tamzrod/modbus-bridge/internal/element"
)

// ErrInvalidLayout is returned when a task cannot be built from its elements.
var ErrInvalidLayout = errors.New("task: invalid layout")

// Kind separates read from write transactions.
type Kind uint8

const (
	Read Kind = iota + 1
	Write
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Priority is the scheduling class of a read task.
type Priority uint8

const (
	// High tasks run every read phase.
	High Priority = iota + 1
	// Low tasks share one rotating slot per read phase.
	Low
	// Once tasks run until they succeed a single time.
	Once
)

func (p Priority) String() string {
	switch p {
	case High:
		return "HIGH"
	case Low:
		return "LOW"
	case Once:
		return "ONCE"
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// ParsePriority accepts high, low and once (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High, nil
	case "low", "":
		return Low, nil
	case "once":
		return Once, nil
	}
	return 0, fmt.Errorf("task: unknown priority %q", s)
}

// Table is the device memory a function code addresses.
type Table uint8

const (
	Coils Table = iota + 1
	DiscreteInputs
	HoldingRegisters
	InputRegisters
)

// FunctionCode is the Modbus function executed by a task.
type FunctionCode uint8

const (
	ReadCoils              FunctionCode = 1
	ReadDiscreteInputs     FunctionCode = 2
	ReadHoldingRegisters   FunctionCode = 3
	ReadInputRegisters     FunctionCode = 4
	WriteSingleCoil        FunctionCode = 5
	WriteSingleRegister    FunctionCode = 6
	WriteMultipleCoils     FunctionCode = 15
	WriteMultipleRegisters FunctionCode = 16
)

type fcInfo struct {
	name  string
	kind  Kind
	table Table
	max   uint16
}

var functionCodes = map[FunctionCode]fcInfo{
	ReadCoils:              {"FC1ReadCoils", Read, Coils, 2000},
	ReadDiscreteInputs:     {"FC2ReadDiscreteInputs", Read, DiscreteInputs, 2000},
	ReadHoldingRegisters:   {"FC3ReadHoldingRegisters", Read, HoldingRegisters, 125},
	ReadInputRegisters:     {"FC4ReadInputRegisters", Read, InputRegisters, 125},
	WriteSingleCoil:        {"FC5WriteSingleCoil", Write, Coils, 1},
	WriteSingleRegister:    {"FC6WriteSingleRegister", Write, HoldingRegisters, 1},
	WriteMultipleCoils:     {"FC15WriteMultipleCoils", Write, Coils, 1968},
	WriteMultipleRegisters: {"FC16WriteMultipleRegisters", Write, HoldingRegisters, 123},
}

func (fc FunctionCode) String() string {
	if info, ok := functionCodes[fc]; ok {
		return info.name
	}
	return fmt.Sprintf("FC%d", uint8(fc))
}

// Valid reports whether fc is a supported function code.
func (fc FunctionCode) Valid() bool {
	_, ok := functionCodes[fc]
	return ok
}

// Kind returns whether fc reads or writes.
func (fc FunctionCode) Kind() Kind { return functionCodes[fc].kind }

// Table returns the device memory fc addresses.
func (fc FunctionCode) Table() Table { return functionCodes[fc].table }

// IsBits reports whether fc addresses coils or discrete inputs.
func (fc FunctionCode) IsBits() bool {
	t := fc.Table()
	return t == Coils || t == DiscreteInputs
}

// MaxQuantity returns the largest quantity fc may carry in one request.
func (fc FunctionCode) MaxQuantity() uint16 { return functionCodes[fc].max }

// Key identifies a task: one component, one start address, one kind.
type Key struct {
	Component string
	Start     uint16
	Kind      Kind
}

// Task is one atomic wire transaction over a contiguous address range.
// It is immutable once built.
type Task struct {
	component string
	fc        FunctionCode
	priority  Priority
	start     uint16
	length    uint16
	elements  []element.Element
}

// NewRead builds a read task. Elements are sorted by address and must cover a
// contiguous range; use Dummy elements for gaps.
func NewRead(component string, fc FunctionCode, priority Priority, elements ...element.Element) (*Task, error) {
	if fc.Kind() != Read {
		return nil, fmt.Errorf("%w: %s is not a read function", ErrInvalidLayout, fc)
	}
	switch priority {
	case High, Low, Once:
	default:
		return nil, fmt.Errorf("%w: unknown priority %d", ErrInvalidLayout, priority)
	}
	return build(component, fc, priority, elements)
}

// NewWrite builds a write task.
func NewWrite(component string, fc FunctionCode, elements ...element.Element) (*Task, error) {
	if fc.Kind() != Write {
		return nil, fmt.Errorf("%w: %s is not a write function", ErrInvalidLayout, fc)
	}
	return build(component, fc, 0, elements)
}

func build(component string, fc FunctionCode, priority Priority, elements []element.Element) (*Task, error) {
	if component == "" {
		return nil, fmt.Errorf("%w: component id required", ErrInvalidLayout)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one element", ErrInvalidLayout, fc)
	}

	els := make([]element.Element, len(elements))
	copy(els, elements)
	sort.SliceStable(els, func(i, j int) bool { return els[i].Address < els[j].Address })

	var errs []error
	next := els[0].Address
	for _, e := range els {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if e.IsCoil() != fc.IsBits() && !e.IsDummy() {
			errs = append(errs, fmt.Errorf("%s cannot carry %s", fc, e))
			continue
		}
		switch {
		case e.Address < next:
			errs = append(errs, fmt.Errorf("%s overlaps the previous element", e))
		case e.Address > next:
			errs = append(errs, fmt.Errorf("gap before %s, fill it with a dummy element", e))
		}
		next = e.Address + e.Width()
	}

	start := els[0].Address
	length := uint32(els[len(els)-1].End()) - uint32(start) + 1
	if length > uint32(fc.MaxQuantity()) {
		errs = append(errs, fmt.Errorf("%s spans %d, limit is %d", fc, length, fc.MaxQuantity()))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s %s@%d: %w", ErrInvalidLayout, component, fc, start, errors.Join(errs...))
	}

	return &Task{
		component: component,
		fc:        fc,
		priority:  priority,
		start:     start,
		length:    uint16(length),
		elements:  els,
	}, nil
}

func (t *Task) Component() string           { return t.component }
func (t *Task) Function() FunctionCode      { return t.fc }
func (t *Task) Kind() Kind                  { return t.fc.Kind() }
func (t *Task) Priority() Priority          { return t.priority }
func (t *Task) Start() uint16               { return t.start }
func (t *Task) Length() uint16              { return t.length }
func (t *Task) Elements() []element.Element { return t.elements }

// End returns the last address covered by the task (inclusive).
func (t *Task) End() uint16 { return t.start + t.length - 1 }

func (t *Task) Key() Key {
	return Key{Component: t.component, Start: t.start, Kind: t.Kind()}
}

// Overlaps reports whether both tasks share at least one address of the same
// kind in the same device table.
func (t *Task) Overlaps(o *Task) bool {
	if t.Kind() != o.Kind() || t.fc.Table() != o.fc.Table() {
		return false
	}
	return !(t.End() < o.start || t.start > o.End())
}

func (t *Task) String() string {
	if t.Kind() == Read {
		return fmt.Sprintf("%s[%s:%d;len=%d;%s]", t.fc, t.component, t.start, t.length, t.priority)
	}
	return fmt.Sprintf("%s[%s:%d;len=%d]", t.fc, t.component, t.start, t.length)
}
