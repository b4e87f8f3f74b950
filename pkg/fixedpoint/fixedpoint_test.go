package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsOutOfRangeDomain(t *testing.T) {
	t.Parallel()

	_, err := New(33, 0, true)
	require.Error(t, err)

	_, err = New(8, 1021, true)
	require.Error(t, err)

	_, err = New(8, -1021, true)
	require.Error(t, err)

	_, err = New(8, 1013, true)
	require.NoError(t, err)
}

func TestConverter_RoundTripSignedInteger(t *testing.T) {
	t.Parallel()

	c, err := New(8, 0, true)
	require.NoError(t, err)

	for _, cooked := range []float64{0, 1, -1, 127, -128, 50, -50} {
		raw, clamped := c.FromCookedFloat64(cooked)
		require.False(t, clamped, "cooked %v should not clamp", cooked)
		assert.Equal(t, cooked, c.ToCookedFloat64(raw), "round trip of %v", cooked)
	}
}

func TestConverter_RoundTripUnsignedInteger(t *testing.T) {
	t.Parallel()

	c, err := New(8, 0, false)
	require.NoError(t, err)

	for _, cooked := range []float64{0, 1, 255, 128} {
		raw, clamped := c.FromCookedFloat64(cooked)
		require.False(t, clamped)
		assert.Equal(t, cooked, c.ToCookedFloat64(raw))
	}
}

func TestConverter_RoundTripFractionalQ8_8(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8, true)
	require.NoError(t, err)

	for _, cooked := range []float64{0, 1, -1, 3.5, -3.5, 127.25, -128} {
		raw, clamped := c.FromCookedFloat64(cooked)
		require.False(t, clamped, "cooked %v should not clamp", cooked)
		assert.Equal(t, cooked, c.ToCookedFloat64(raw), "round trip of %v", cooked)
	}
}

func TestConverter_ClampsSignedOverflowSymmetrically(t *testing.T) {
	t.Parallel()

	c, err := New(8, 0, true)
	require.NoError(t, err)

	raw, clamped := c.FromCookedFloat64(200)
	assert.True(t, clamped)
	assert.Equal(t, float64(127), c.ToCookedFloat64(raw))

	raw, clamped = c.FromCookedFloat64(-200)
	assert.True(t, clamped)
	assert.Equal(t, float64(-128), c.ToCookedFloat64(raw))
}

func TestConverter_ClampsUnsignedBelowZero(t *testing.T) {
	t.Parallel()

	c, err := New(8, 0, false)
	require.NoError(t, err)

	raw, clamped := c.FromCookedFloat64(-1)
	assert.True(t, clamped)
	assert.Equal(t, float64(0), c.ToCookedFloat64(raw))
}

func TestConverter_NBitsZeroAlwaysZero(t *testing.T) {
	t.Parallel()

	c, err := New(0, 0, true)
	require.NoError(t, err)

	assert.Equal(t, float64(0), c.ToCookedFloat64(0xFFFFFFFF))
	raw, clamped := c.FromCookedFloat64(42)
	assert.Equal(t, uint32(0), raw)
	assert.False(t, clamped)
}

func TestConverter_SingleBitDegeneratesToBoolean(t *testing.T) {
	t.Parallel()

	c, err := New(1, 0, false)
	require.NoError(t, err)

	assert.Equal(t, float64(1), c.ToCookedFloat64(1))
	assert.Equal(t, float64(0), c.ToCookedFloat64(0))
	assert.True(t, bool(c.ToCookedBoolean(1)))
	assert.False(t, bool(c.ToCookedBoolean(0)))

	raw, clamped := c.FromCookedFloat64(1)
	assert.Equal(t, uint32(1), raw)
	assert.False(t, clamped)
}

func TestConverter_NaNCookedMapsToExtreme(t *testing.T) {
	t.Parallel()

	signed, err := New(8, 0, true)
	require.NoError(t, err)
	raw, clamped := signed.FromCookedFloat64(math.NaN())
	assert.True(t, clamped)
	assert.Equal(t, float64(-128), signed.ToCookedFloat64(raw))

	unsigned, err := New(8, 0, false)
	require.NoError(t, err)
	raw, clamped = unsigned.FromCookedFloat64(math.NaN())
	assert.True(t, clamped)
	assert.Equal(t, float64(255), unsigned.ToCookedFloat64(raw))
}

func TestRoundHalfToEven_TiesRoundToNearestEvenInteger(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(0), roundHalfToEven(0.5))
	assert.Equal(t, float64(2), roundHalfToEven(1.5))
	assert.Equal(t, float64(2), roundHalfToEven(2.5))
	assert.Equal(t, float64(0), roundHalfToEven(-0.5))
	assert.Equal(t, float64(-2), roundHalfToEven(-1.5))
	assert.Equal(t, float64(-2), roundHalfToEven(-2.5))
	assert.Equal(t, float64(3), roundHalfToEven(2.6))
	assert.Equal(t, float64(2), roundHalfToEven(2.4))
}

func TestConverter_TieBreakAffectsEncodedRaw(t *testing.T) {
	t.Parallel()

	// Q7.1: invScale=2, so cooked values at a quarter-unit land exactly on
	// a tie when scaled.
	c, err := New(8, 1, true)
	require.NoError(t, err)

	raw, clamped := c.FromCookedFloat64(0.25) // scaled 0.5, floor 0 even -> 0
	require.False(t, clamped)
	assert.Equal(t, float64(0), c.ToCookedFloat64(raw))

	raw, clamped = c.FromCookedFloat64(0.75) // scaled 1.5, floor 1 odd -> 2
	require.False(t, clamped)
	assert.Equal(t, float64(1), c.ToCookedFloat64(raw))
}

func TestConverter_ToCookedGenericRoutesThroughNumericConvert(t *testing.T) {
	t.Parallel()

	c, err := New(16, 0, true)
	require.NoError(t, err)

	raw, _ := c.FromCookedFloat64(1000)
	assert.Equal(t, int32(1000), ToCooked[int32](c, raw))
}

func TestConverter_FromCookedGenericRoutesThroughNumericConvert(t *testing.T) {
	t.Parallel()

	c, err := New(16, 0, true)
	require.NoError(t, err)

	raw, clamped := FromCooked[int32](c, 1000)
	require.False(t, clamped)
	assert.Equal(t, float64(1000), c.ToCookedFloat64(raw))
}

func TestConverter_ToStringAndFromStringRoundTrip(t *testing.T) {
	t.Parallel()

	integral, err := New(16, 0, true)
	require.NoError(t, err)
	raw, clamped, err := integral.FromString("-42")
	require.NoError(t, err)
	require.False(t, clamped)
	assert.Equal(t, "-42", integral.ToString(raw))

	fractional, err := New(16, 8, true)
	require.NoError(t, err)
	raw, clamped, err = fractional.FromString("3.5")
	require.NoError(t, err)
	require.False(t, clamped)
	assert.Equal(t, "3.5", fractional.ToString(raw))
}
