package element

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfRange is returned when a value does not fit the wire type.
	ErrOutOfRange = errors.New("element: value out of range")
	// ErrType is returned when a value has a Go type the element cannot carry.
	ErrType = errors.New("element: unsupported value type")
	// ErrUndefined is returned when an undefined value is about to be written.
	ErrUndefined = errors.New("element: undefined value cannot be encoded")
	// ErrLayout is returned for element descriptors that cannot exist on the wire.
	ErrLayout = errors.New("element: invalid layout")
)

// Type is the wire type of one element.
type Type uint8

const (
	Uint16 Type = iota + 1
	Int16
	Uint32
	Int32
	Float32
	Uint64
	Int64
	Float64
	String
	Dummy
	Coil
)

var typeNames = map[Type]string{
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Float32: "float32",
	Uint64:  "uint64",
	Int64:   "int64",
	Float64: "float64",
	String:  "string",
	Dummy:   "dummy",
	Coil:    "coil",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType maps the configuration spelling of a type.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("element: unknown type %q", s)
}

// WordOrder is the order of 16-bit words for multi-register values.
type WordOrder uint8

const (
	MSWLSW WordOrder = iota // most significant word first
	LSWMSW
)

// ParseWordOrder accepts "", "msw_lsw" and "lsw_msw".
func ParseWordOrder(s string) (WordOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "msw_lsw", "mswlsw":
		return MSWLSW, nil
	case "lsw_msw", "lswmsw":
		return LSWMSW, nil
	}
	return 0, fmt.Errorf("element: unknown word order %q", s)
}

// ByteOrder is the order of the two bytes inside one register.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// ParseByteOrder accepts "", "big" and "little".
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "big", "big_endian":
		return BigEndian, nil
	case "little", "little_endian":
		return LittleEndian, nil
	}
	return 0, fmt.Errorf("element: unknown byte order %q", s)
}

// Element describes one fixed-width field inside a task's address range.
// It is immutable once handed to a task.
type Element struct {
	// Address is the absolute register or coil address.
	Address uint16
	Type    Type
	// Length is the width in registers for String and in registers or coils for Dummy.
	// Other types have a fixed width and ignore it.
	Length    uint16
	WordOrder WordOrder
	ByteOrder ByteOrder
	Converter Converter
	// Channel is the channel id inside the owning component. Empty for Dummy.
	Channel string
}

// Width returns the number of registers (or coils) the element covers.
func (e Element) Width() uint16 {
	switch e.Type {
	case Uint16, Int16, Coil:
		return 1
	case Uint32, Int32, Float32:
		return 2
	case Uint64, Int64, Float64:
		return 4
	case String, Dummy:
		if e.Length == 0 {
			return 1
		}
		return e.Length
	}
	return 0
}

// End returns the last address covered by the element (inclusive).
func (e Element) End() uint16 {
	return e.Address + e.Width() - 1
}

// IsCoil reports whether the element lives in a bit table.
func (e Element) IsCoil() bool { return e.Type == Coil }

// IsDummy reports whether the element only fills a gap.
func (e Element) IsDummy() bool { return e.Type == Dummy }

// Validate checks the descriptor on its own, without task context.
func (e Element) Validate() error {
	if e.Width() == 0 {
		return fmt.Errorf("%w: unknown type %s at address %d", ErrLayout, e.Type, e.Address)
	}
	if int(e.Address)+int(e.Width()) > 0x10000 {
		return fmt.Errorf("%w: %s at address %d exceeds the address space", ErrLayout, e.Type, e.Address)
	}
	if e.Type == Dummy && e.Channel != "" {
		return fmt.Errorf("%w: dummy at address %d must not map a channel", ErrLayout, e.Address)
	}
	if e.Type != Dummy && e.Channel == "" {
		return fmt.Errorf("%w: %s at address %d maps no channel", ErrLayout, e.Type, e.Address)
	}
	return nil
}

func (e Element) String() string {
	if e.Channel == "" {
		return fmt.Sprintf("%s@%d", e.Type, e.Address)
	}
	return fmt.Sprintf("%s@%d->%s", e.Type, e.Address, e.Channel)
}

// Decode turns the raw words covered by the element into a channel value.
// A nil value with a nil error means the device reported "no value".
func (e Element) Decode(words []uint16) (any, error) {
	if len(words) != int(e.Width()) {
		return nil, fmt.Errorf("%w: %s needs %d words, got %d", ErrLayout, e, e.Width(), len(words))
	}
	raw, err := e.decodeWords(words)
	if err != nil || raw == nil {
		return nil, err
	}
	return e.Converter.Decode(raw)
}

// DecodeCoil turns one coil or discrete input into a channel value.
func (e Element) DecodeCoil(bit bool) (any, error) {
	return e.Converter.Decode(bit)
}

// Encode turns a channel value into the raw words covered by the element.
func (e Element) Encode(v any) ([]uint16, error) {
	raw, err := e.Converter.Encode(v)
	if err != nil {
		return nil, err
	}
	if raw == nil && e.Type != Dummy {
		return nil, fmt.Errorf("%w: %s", ErrUndefined, e)
	}
	return e.encodeWords(raw)
}

// EncodeCoil turns a channel value into a coil state.
func (e Element) EncodeCoil(v any) (bool, error) {
	raw, err := e.Converter.Encode(v)
	if err != nil {
		return false, err
	}
	switch x := raw.(type) {
	case nil:
		return false, fmt.Errorf("%w: %s", ErrUndefined, e)
	case bool:
		return x, nil
	}
	n, ok := toInt(raw)
	if !ok {
		return false, fmt.Errorf("%w: %T for %s", ErrType, raw, e)
	}
	return n != 0, nil
}
