package task

import (
	"fmt"

	"github.com/tamzrod/modbus-bridge/internal/element"
)

// Value is the decoded value of one element, or the reason it could not be decoded.
type Value struct {
	Element element.Element
	Value   any
	Err     error
}

// DecodeRegisters splits a register response into per-element values.
// Dummy elements are skipped. A short response fails the whole task.
func (t *Task) DecodeRegisters(words []uint16) ([]Value, error) {
	if t.fc.IsBits() {
		return nil, fmt.Errorf("task: %s does not return registers", t)
	}
	if len(words) < int(t.length) {
		return nil, fmt.Errorf("task: %s short response: got %d registers, want %d", t, len(words), t.length)
	}

	out := make([]Value, 0, len(t.elements))
	for _, e := range t.elements {
		if e.IsDummy() {
			continue
		}
		off := int(e.Address - t.start)
		v, err := e.Decode(words[off : off+int(e.Width())])
		out = append(out, Value{Element: e, Value: v, Err: err})
	}
	return out, nil
}

// DecodeBits splits a coil or discrete input response into per-element values.
func (t *Task) DecodeBits(bits []bool) ([]Value, error) {
	if !t.fc.IsBits() {
		return nil, fmt.Errorf("task: %s does not return bits", t)
	}
	if len(bits) < int(t.length) {
		return nil, fmt.Errorf("task: %s short response: got %d bits, want %d", t, len(bits), t.length)
	}

	out := make([]Value, 0, len(t.elements))
	for _, e := range t.elements {
		if e.IsDummy() {
			continue
		}
		v, err := e.DecodeCoil(bits[e.Address-t.start])
		out = append(out, Value{Element: e, Value: v, Err: err})
	}
	return out, nil
}

// Run is one contiguous write request.
type Run struct {
	Start     uint16
	Registers []uint16
	Coils     []bool
}

// Quantity returns the number of registers or coils in the run.
func (r Run) Quantity() uint16 {
	if r.Coils != nil {
		return uint16(len(r.Coils))
	}
	return uint16(len(r.Registers))
}

// EncodeWrites builds the write requests for all elements with a pending value.
// Consecutive pending elements share one request; dummies and elements without
// a value split runs. Elements whose value cannot be encoded are reported and
// left out.
func (t *Task) EncodeWrites(pending func(element.Element) (any, bool)) ([]Run, []error) {
	var (
		runs []Run
		errs []error
		cur  *Run
	)

	flush := func() {
		if cur != nil {
			runs = append(runs, *cur)
			cur = nil
		}
	}

	for _, e := range t.elements {
		if e.IsDummy() {
			flush()
			continue
		}
		v, ok := pending(e)
		if !ok {
			flush()
			continue
		}

		if cur != nil && cur.Start+cur.Quantity() != e.Address {
			flush()
		}

		if t.fc.IsBits() {
			bit, err := e.EncodeCoil(v)
			if err != nil {
				errs = append(errs, err)
				flush()
				continue
			}
			if cur == nil {
				cur = &Run{Start: e.Address, Coils: []bool{}}
			}
			cur.Coils = append(cur.Coils, bit)
			continue
		}

		words, err := e.Encode(v)
		if err != nil {
			errs = append(errs, err)
			flush()
			continue
		}
		if cur == nil {
			cur = &Run{Start: e.Address}
		}
		cur.Registers = append(cur.Registers, words...)
	}
	flush()

	return runs, errs
}
