// Package fixedpoint implements the raw<->cooked numeric conversions used
// by numeric-addressed registers: a configurable-width fixed-point
// encoding (spec §4.3) and a 32-bit IEEE-754 single encoding (spec §4.4).
package fixedpoint

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ctkgo/deviceaccess/pkg/numeric"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Converter converts between a raw two's-complement (or unsigned) integer
// occupying the low NBits of a 32-bit container and a cooked floating
// value scaled by 2^-FractionalBits.
//
// NBits == 0 always produces/accepts 0. NBits == 1 with FractionalBits ==
// 0 behaves as a boolean: raw 0/1 <-> cooked false/true.
type Converter struct {
	NBits          uint
	FractionalBits int
	Signed         bool

	signBitMask uint32
	usedMask    uint32
	minRaw      int64
	maxRaw      int64
}

// New constructs a Converter, validating spec §4.3's domain: NBits in
// [0,32], FractionalBits in [-1021+w, 1021-w].
func New(nBits uint, fractionalBits int, signed bool) (*Converter, error) {
	if nBits > 32 {
		return nil, fmt.Errorf("fixedpoint: number of bits must be <= 32, got %d", nBits)
	}
	lo := -1021 + int(nBits)
	hi := 1021 - int(nBits)
	if fractionalBits < lo || fractionalBits > hi {
		return nil, fmt.Errorf("fixedpoint: fractional bits %d exceeds dynamic range [%d,%d]", fractionalBits, lo, hi)
	}

	c := &Converter{NBits: nBits, FractionalBits: fractionalBits, Signed: signed}
	c.reconfigure()
	return c, nil
}

func (c *Converter) reconfigure() {
	if c.NBits == 0 {
		c.signBitMask, c.usedMask, c.minRaw, c.maxRaw = 0, 0, 0, 0
		return
	}

	if c.Signed {
		c.signBitMask = 1 << (c.NBits - 1)
	} else {
		c.signBitMask = 0
	}
	c.usedMask = uint32(uint64(1)<<c.NBits - 1)
	c.maxRaw = int64(c.usedMask ^ c.signBitMask)
	c.minRaw = -int64(c.signBitMask)
}

// scale returns 2^-FractionalBits, the raw-to-cooked multiplier.
func (c *Converter) scale() float64 { return math.Pow(2, float64(-c.FractionalBits)) }

// invScale returns 2^FractionalBits, the cooked-to-raw multiplier.
func (c *Converter) invScale() float64 { return math.Pow(2, float64(c.FractionalBits)) }

// signExtend interprets the low NBits of raw as a two's-complement
// (Signed) or unsigned integer, sign- or zero-extending to int64.
func (c *Converter) signExtend(raw uint32) int64 {
	if c.NBits == 0 {
		return 0
	}
	masked := raw & c.usedMask
	if !c.Signed || masked&c.signBitMask == 0 {
		return int64(masked)
	}
	// negative: extend the upper bits
	return int64(masked) - int64(uint64(1)<<c.NBits)
}

// ToCookedFloat64 converts a raw register value to its cooked
// floating-point representation.
func (c *Converter) ToCookedFloat64(raw uint32) float64 {
	if c.NBits == 0 {
		return 0
	}
	if c.NBits == 1 && c.FractionalBits == 0 {
		if raw&1 != 0 {
			return 1
		}
		return 0
	}
	return float64(c.signExtend(raw)) * c.scale()
}

// ToCooked converts a raw register value into cooked type T, routing the
// float64 intermediate through numeric.Convert for the target's own
// rounding/clamping semantics (used when T is itself integral, e.g. a
// register declared with FractionalBits == 0).
func ToCooked[T numeric.Numeric](c *Converter, raw uint32) T {
	return numeric.Convert[T](c.ToCookedFloat64(raw))
}

// FromCookedFloat64 converts a cooked value to a raw register value,
// clamping to the configured encoding's representable range and applying
// round-half-to-even at exact ties (spec §9 Open Question, resolved in
// DESIGN.md OQ3).
func (c *Converter) FromCookedFloat64(cooked float64) (raw uint32, clamped bool) {
	if c.NBits == 0 {
		return 0, false
	}
	if c.NBits == 1 && c.FractionalBits == 0 {
		if cooked != 0 {
			return 1, false
		}
		return 0, false
	}

	if math.IsNaN(cooked) {
		if c.Signed {
			return uint32(c.minRaw) & c.usedMask, true
		}
		return uint32(c.maxRaw) & c.usedMask, true
	}

	scaled := cooked * c.invScale()
	rounded := roundHalfToEven(scaled)

	clampedVal := rounded
	if clampedVal > float64(c.maxRaw) {
		clampedVal = float64(c.maxRaw)
		clamped = true
	}
	if clampedVal < float64(c.minRaw) {
		clampedVal = float64(c.minRaw)
		clamped = true
	}

	raw = uint32(int64(clampedVal)) & c.usedMask
	return raw, clamped
}

// FromCooked is the generic counterpart of FromCookedFloat64.
func FromCooked[T numeric.Numeric](c *Converter, cooked T) (raw uint32, clamped bool) {
	return c.FromCookedFloat64(numeric.Convert[float64](cooked))
}

func roundHalfToEven(f float64) float64 {
	floor := math.Floor(f)
	diff := f - floor
	switch {
	case diff < 0.5:
		return floor
	case diff > 0.5:
		return floor + 1
	default:
		// exact tie: round to the nearest even integer
		if math.Mod(floor, 2) == 0 {
			return floor
		}
		return floor + 1
	}
}

// ToString renders a raw value in decimal, using integer formatting when
// FractionalBits == 0 and otherwise the platform float formatter.
func (c *Converter) ToString(raw uint32) string {
	if c.FractionalBits == 0 {
		if c.Signed {
			return strconv.FormatInt(c.signExtend(raw), 10)
		}
		return strconv.FormatUint(uint64(raw&c.usedMask), 10)
	}
	return strconv.FormatFloat(c.ToCookedFloat64(raw), 'g', -1, 64)
}

// FromString parses cooked from its decimal representation and converts
// it to raw, reporting clamping exactly as FromCookedFloat64 does.
func (c *Converter) FromString(cooked string) (raw uint32, clamped bool, err error) {
	if c.FractionalBits == 0 {
		if c.Signed {
			v, perr := strconv.ParseInt(cooked, 10, 64)
			if perr != nil {
				return 0, false, perr
			}
			raw, clamped = c.FromCookedFloat64(float64(v))
			return raw, clamped, nil
		}
		v, perr := strconv.ParseUint(cooked, 10, 64)
		if perr != nil {
			return 0, false, perr
		}
		raw, clamped = c.FromCookedFloat64(float64(v))
		return raw, clamped, nil
	}

	v, perr := strconv.ParseFloat(cooked, 64)
	if perr != nil {
		return 0, false, perr
	}
	raw, clamped = c.FromCookedFloat64(v)
	return raw, clamped, nil
}

// ToCookedBoolean interprets raw as a version.Boolean: any non-zero
// cooked value (after the configured scale) is true.
func (c *Converter) ToCookedBoolean(raw uint32) version.Boolean {
	return c.ToCookedFloat64(raw) != 0
}
