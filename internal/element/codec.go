package element

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// wireBytes lays the words out most significant byte first, applying word and byte order.
func (e Element) wireBytes(words []uint16) []byte {
	n := len(words)
	b := make([]byte, 2*n)
	for i, w := range words {
		idx := i
		if e.WordOrder == LSWMSW && e.Type != String {
			idx = n - 1 - i
		}
		if e.ByteOrder == LittleEndian {
			w = w<<8 | w>>8
		}
		binary.BigEndian.PutUint16(b[2*idx:], w)
	}
	return b
}

// wireWords is the inverse of wireBytes.
func (e Element) wireWords(b []byte) []uint16 {
	n := len(b) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		w := binary.BigEndian.Uint16(b[2*i:])
		if e.ByteOrder == LittleEndian {
			w = w<<8 | w>>8
		}
		idx := i
		if e.WordOrder == LSWMSW && e.Type != String {
			idx = n - 1 - i
		}
		out[idx] = w
	}
	return out
}

func (e Element) decodeWords(words []uint16) (any, error) {
	b := e.wireBytes(words)

	switch e.Type {
	case Uint16:
		return int64(binary.BigEndian.Uint16(b)), nil
	case Int16:
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case Uint32:
		return int64(binary.BigEndian.Uint32(b)), nil
	case Int32:
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case Float32:
		f := math.Float32frombits(binary.BigEndian.Uint32(b))
		if math.IsNaN(float64(f)) {
			return nil, nil
		}
		return float64(f), nil
	case Uint64:
		u := binary.BigEndian.Uint64(b)
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %s decoded %d", ErrOutOfRange, e, u)
		}
		return int64(u), nil
	case Int64:
		return int64(binary.BigEndian.Uint64(b)), nil
	case Float64:
		f := math.Float64frombits(binary.BigEndian.Uint64(b))
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case String:
		return strings.TrimRight(string(b), "\x00 "), nil
	case Dummy:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s cannot decode registers", ErrLayout, e)
}

// encodeWords converts a raw value to words. Integer types round fractional
// values to the nearest integer and reject values outside the wire range.
func (e Element) encodeWords(v any) ([]uint16, error) {
	b := make([]byte, 2*int(e.Width()))

	switch e.Type {
	case Uint16, Int16, Uint32, Int32, Uint64, Int64:
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T for %s", ErrType, v, e)
		}
		if err := e.checkIntRange(n); err != nil {
			return nil, err
		}
		switch e.Width() {
		case 1:
			binary.BigEndian.PutUint16(b, uint16(n))
		case 2:
			binary.BigEndian.PutUint32(b, uint32(n))
		default:
			binary.BigEndian.PutUint64(b, uint64(n))
		}
	case Float32:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T for %s", ErrType, v, e)
		}
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %g for %s", ErrOutOfRange, f, e)
		}
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(f)))
	case Float64:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T for %s", ErrType, v, e)
		}
		binary.BigEndian.PutUint64(b, math.Float64bits(f))
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T for %s", ErrType, v, e)
		}
		if len(s) > len(b) {
			return nil, fmt.Errorf("%w: %q longer than %d bytes for %s", ErrOutOfRange, s, len(b), e)
		}
		copy(b, s)
	case Dummy:
		// zeros
	default:
		return nil, fmt.Errorf("%w: %s cannot encode registers", ErrLayout, e)
	}

	return e.wireWords(b), nil
}

func (e Element) checkIntRange(n int64) error {
	var lo, hi int64
	switch e.Type {
	case Uint16:
		lo, hi = 0, math.MaxUint16
	case Int16:
		lo, hi = math.MinInt16, math.MaxInt16
	case Uint32:
		lo, hi = 0, math.MaxUint32
	case Int32:
		lo, hi = math.MinInt32, math.MaxInt32
	case Uint64:
		lo, hi = 0, math.MaxInt64
	default:
		return nil
	}
	if n < lo || n > hi {
		return fmt.Errorf("%w: %d for %s", ErrOutOfRange, n, e)
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		r := math.Round(x)
		if math.IsNaN(r) || r >= 0x1p63 || r < -0x1p63 {
			return 0, false
		}
		return int64(r), true
	case float32:
		return toInt(float64(x))
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case bool:
		return 0, false
	}
	n, ok := toInt(v)
	return float64(n), ok
}
