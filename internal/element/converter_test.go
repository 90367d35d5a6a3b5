package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_DecodeLeftToRightEncodeRightToLeft(t *testing.T) {
	c := Chain(Add(1), ScaleFactor(1))

	// (5 + 1) * 10
	got, err := c.Decode(int64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(60), got)

	// 60 / 10 - 1
	back, err := c.Encode(int64(60))
	require.NoError(t, err)
	assert.Equal(t, int64(5), back)
}

func TestChain_Associative(t *testing.T) {
	a, b, c := Add(3), ScaleFactor(2), Invert

	left := Chain(Chain(a, b), c)
	right := Chain(a, Chain(b, c))

	for _, v := range []int64{-7, 0, 1, 42} {
		l, err := left.Decode(v)
		require.NoError(t, err)
		r, err := right.Decode(v)
		require.NoError(t, err)
		assert.Equal(t, l, r)
	}
	assert.Equal(t, left.String(), right.String())
}

func TestScaleFactor3AndInvert_RoundTrip(t *testing.T) {
	c := Chain(ScaleFactor(3), Invert)

	for v := int64(-50_000); v <= 50_000; v += 1000 {
		wire, err := c.Encode(v)
		require.NoError(t, err)

		got, err := c.Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestScaleFactor3AndInvert_ThroughElement(t *testing.T) {
	el := Element{Type: Int16, Converter: Chain(ScaleFactor(3), Invert), Channel: "ActivePower"}

	for v := int64(-32_000_000); v <= 32_000_000; v += 1_000_000 {
		words, err := el.Encode(v)
		require.NoError(t, err)

		got, err := el.Decode(words)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestScaleFactor_NegativeProducesFloatWhenInexact(t *testing.T) {
	got, err := ScaleFactor(-1).Decode(int64(123))
	require.NoError(t, err)
	assert.Equal(t, 12.3, got)

	got, err = ScaleFactor(-1).Decode(int64(120))
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)
}

func TestScaleFactor_ZeroIsDirect(t *testing.T) {
	assert.Equal(t, "direct", ScaleFactor(0).String())
}

func TestUndefinedPassesThrough(t *testing.T) {
	for _, c := range []Converter{Direct, ScaleFactor(2), Invert, Multiply(2), Divide(4), Add(1), Subtract(1), KeepPositive} {
		got, err := c.Decode(nil)
		require.NoError(t, err, c.String())
		assert.Nil(t, got, c.String())
	}
}

func TestNullIf(t *testing.T) {
	c := Chain(NullIf(-32768), ScaleFactor(1))

	got, err := c.Decode(int64(-32768))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Decode(int64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)

	wire, err := c.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-32768), wire)
}

func TestKeepPositive(t *testing.T) {
	got, err := KeepPositive.Decode(int64(-5))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = KeepPositive.Encode(int64(-5))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMultiplyDivide(t *testing.T) {
	got, err := Multiply(0.5).Decode(int64(7))
	require.NoError(t, err)
	assert.Equal(t, 3.5, got)

	back, err := Divide(4).Encode(2.5)
	require.NoError(t, err)
	assert.Equal(t, 10.0, back)
}

func TestInvert_Bool(t *testing.T) {
	got, err := Invert.Decode(true)
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestNumericConverterRejectsString(t *testing.T) {
	_, err := ScaleFactor(1).Decode("abc")
	assert.ErrorIs(t, err, ErrType)
}

func TestParseConverter(t *testing.T) {
	c, err := ParseConverter([]string{"null_if:0x8000", "scale:-2", "invert"})
	require.NoError(t, err)
	assert.Equal(t, "null_if:32768+scale:-2+invert", c.String())

	got, err := c.Decode(int64(250))
	require.NoError(t, err)
	assert.Equal(t, -2.5, got)

	c, err = ParseConverter(nil)
	require.NoError(t, err)
	assert.Equal(t, "direct", c.String())

	for _, bad := range []string{"scale", "scale:x", "invert:1", "multiply:0", "unknown", "null_if:abc"} {
		_, err := ParseConverter([]string{bad})
		assert.Error(t, err, bad)
	}
}
