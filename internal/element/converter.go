package element

import (
	"fmt"
	"math"
	"strings"
)

// Converter is a bidirectional transform between the decoded wire value and the
// channel value. The zero Converter passes values through unchanged.
//
// Converters are pure: decoding the same input always yields the same output.
// A nil input means "undefined" and passes through every converter except NullIf,
// which turns its sentinel into nil on decode and nil back into the sentinel on encode.
type Converter struct {
	names  []string
	decode []func(any) (any, error)
	encode []func(any) (any, error)
}

func newConverter(name string, decode, encode func(any) (any, error)) Converter {
	return Converter{
		names:  []string{name},
		decode: []func(any) (any, error){decode},
		encode: []func(any) (any, error){encode},
	}
}

// Direct passes values through unchanged.
var Direct = Converter{}

// Chain composes converters. Decoding applies them left to right, encoding right
// to left, so Chain(a, b).Decode(x) == b.Decode(a.Decode(x)).
func Chain(cs ...Converter) Converter {
	var out Converter
	for _, c := range cs {
		out.names = append(out.names, c.names...)
		out.decode = append(out.decode, c.decode...)
		out.encode = append(out.encode, c.encode...)
	}
	return out
}

// Decode applies the chain in order.
func (c Converter) Decode(v any) (any, error) {
	var err error
	for _, fn := range c.decode {
		if v, err = fn(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Encode applies the chain in reverse order.
func (c Converter) Encode(v any) (any, error) {
	var err error
	for i := len(c.encode) - 1; i >= 0; i-- {
		if v, err = c.encode[i](v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (c Converter) String() string {
	if len(c.names) == 0 {
		return "direct"
	}
	return strings.Join(c.names, "+")
}

// ScaleFactor multiplies by 10^n on decode and divides on encode.
// Integers stay integers while the result is exact and fits in int64; otherwise
// the result is a float64.
func ScaleFactor(n int) Converter {
	if n == 0 {
		return Direct
	}
	return newConverter(
		fmt.Sprintf("scale:%d", n),
		numeric(func(v any) (any, error) { return scale(v, n) }),
		numeric(func(v any) (any, error) { return scale(v, -n) }),
	)
}

// Invert negates numbers and flips booleans. It is its own inverse.
var Invert = newConverter("invert", numeric(invert), numeric(invert))

// InvertIf returns Invert when flag is set and Direct otherwise.
func InvertIf(flag bool) Converter {
	if flag {
		return Invert
	}
	return Direct
}

// Multiply multiplies by f on decode and divides on encode. The result is float64.
func Multiply(f float64) Converter {
	return newConverter(
		fmt.Sprintf("multiply:%g", f),
		numeric(func(v any) (any, error) { return floatOp(v, func(x float64) float64 { return x * f }) }),
		numeric(func(v any) (any, error) { return floatOp(v, func(x float64) float64 { return x / f }) }),
	)
}

// Divide divides by f on decode and multiplies on encode. The result is float64.
func Divide(f float64) Converter {
	return newConverter(
		fmt.Sprintf("divide:%g", f),
		numeric(func(v any) (any, error) { return floatOp(v, func(x float64) float64 { return x / f }) }),
		numeric(func(v any) (any, error) { return floatOp(v, func(x float64) float64 { return x * f }) }),
	)
}

// Add adds f on decode and subtracts it on encode.
func Add(f float64) Converter {
	return newConverter(
		fmt.Sprintf("add:%g", f),
		numeric(func(v any) (any, error) { return offset(v, f) }),
		numeric(func(v any) (any, error) { return offset(v, -f) }),
	)
}

// Subtract subtracts f on decode and adds it on encode.
func Subtract(f float64) Converter {
	c := Add(-f)
	c.names = []string{fmt.Sprintf("subtract:%g", f)}
	return c
}

// NullIf maps the sentinel wire value to undefined. Encoding nil yields the sentinel.
func NullIf(sentinel int64) Converter {
	return newConverter(
		fmt.Sprintf("null_if:%d", sentinel),
		func(v any) (any, error) {
			switch x := v.(type) {
			case int64:
				if x == sentinel {
					return nil, nil
				}
			case float64:
				if x == float64(sentinel) {
					return nil, nil
				}
			}
			return v, nil
		},
		func(v any) (any, error) {
			if v == nil {
				return sentinel, nil
			}
			return v, nil
		},
	)
}

// KeepPositive decodes negative values as 0. Encoding a negative value is an error,
// since the device could never have reported it.
var KeepPositive = newConverter(
	"keep_positive",
	numeric(func(v any) (any, error) {
		switch x := v.(type) {
		case int64:
			if x < 0 {
				return int64(0), nil
			}
		case float64:
			if x < 0 {
				return float64(0), nil
			}
		}
		return v, nil
	}),
	numeric(func(v any) (any, error) {
		if f, ok := toFloat(v); ok && f < 0 {
			return nil, fmt.Errorf("%w: keep_positive cannot encode %v", ErrOutOfRange, v)
		}
		return v, nil
	}),
)

// numeric lets nil through and normalizes Go integer kinds to int64 before calling fn.
func numeric(fn func(any) (any, error)) func(any) (any, error) {
	return func(v any) (any, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case int64, float64, bool:
			return fn(v)
		case float32:
			return fn(float64(x))
		case string:
			return nil, fmt.Errorf("%w: %T in numeric converter", ErrType, v)
		}
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T in numeric converter", ErrType, v)
		}
		return fn(n)
	}
}

func invert(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		if x == math.MinInt64 {
			return nil, fmt.Errorf("%w: cannot invert %d", ErrOutOfRange, x)
		}
		return -x, nil
	case float64:
		return -x, nil
	case bool:
		return !x, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrType, v)
}

func scale(v any, n int) (any, error) {
	switch x := v.(type) {
	case int64:
		if n >= 0 && n <= 18 {
			p := int64(math.Pow10(n))
			if x <= math.MaxInt64/p && x >= math.MinInt64/p {
				return x * p, nil
			}
		}
		if n < 0 && n >= -18 {
			if p := int64(math.Pow10(-n)); x%p == 0 {
				return x / p, nil
			}
		}
		return scale(float64(x), n)
	case float64:
		if n >= 0 {
			return x * math.Pow10(n), nil
		}
		return x / math.Pow10(-n), nil
	}
	return nil, fmt.Errorf("%w: cannot scale %T", ErrType, v)
}

func offset(v any, f float64) (any, error) {
	switch x := v.(type) {
	case int64:
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return x + int64(f), nil
		}
		return float64(x) + f, nil
	case float64:
		return x + f, nil
	}
	return nil, fmt.Errorf("%w: cannot offset %T", ErrType, v)
}

func floatOp(v any, fn func(float64) float64) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrType, v)
	}
	return fn(f), nil
}
