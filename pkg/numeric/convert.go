// Package numeric implements generic arithmetic conversion between the
// user-visible register types of the accessor framework: clamping on
// overflow, rounding on float-to-integer conversion, and the boolean
// coercion rules shared by every decorator that changes a register's
// cooked type.
package numeric

import (
	"math"
	"reflect"

	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Numeric is the set of types a register accessor may expose to callers.
// version.Boolean is included alongside the builtin numeric kinds because
// Go's bool does not support the arithmetic coercions this package defines.
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64 | version.Boolean
}

// Convert applies the numeric conversion rules of DataDescriptor-typed
// register access (spec §4.5):
//
//  1. identical types: returned unchanged.
//  2. float source, integral target: round half away from zero, then
//     clamp; NaN becomes the target's maximum (unsigned) or minimum
//     (signed).
//  3. signed source, unsigned target: negative values clamp to zero.
//  4. overflow at either end clamps to the target's representable range;
//     infinities survive only float-to-float.
//  5. boolean target: nonzero (after rounding) is true, zero is false,
//     NaN is true.
func Convert[TO, FROM Numeric](value FROM) TO {
	if reflect.TypeFor[TO]() == reflect.TypeFor[FROM]() {
		// Identical types round-trip exactly; routing this case through
		// toFloat64/clampRound would lose precision past 2^53 for
		// int64/uint64.
		return any(value).(TO)
	}
	if isBoolean[TO]() {
		return any(boolConvert(value)).(TO)
	}
	if isBoolean[FROM]() {
		// Boolean source behaves like an integer 0/1 for downstream purposes.
		if any(value).(version.Boolean) {
			return fromFloat64[TO](1)
		}
		return fromFloat64[TO](0)
	}

	f := toFloat64(value)
	return clampRound[TO](f)
}

func isBoolean[T Numeric]() bool {
	var zero T
	_, ok := any(zero).(version.Boolean)
	return ok
}

func boolConvert[FROM Numeric](value FROM) version.Boolean {
	if b, ok := any(value).(version.Boolean); ok {
		return b
	}
	f := toFloat64(value)
	if math.IsNaN(f) {
		return true
	}
	return f != 0
}

func toFloat64[FROM Numeric](value FROM) float64 {
	switch v := any(value).(type) {
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case uint:
		return float64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	case version.Boolean:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func fromFloat64[TO Numeric](f float64) TO {
	var to TO
	switch any(to).(type) {
	case int8:
		return any(int8(f)).(TO)
	case int16:
		return any(int16(f)).(TO)
	case int32:
		return any(int32(f)).(TO)
	case int64:
		return any(int64(f)).(TO)
	case int:
		return any(int(f)).(TO)
	case uint8:
		return any(uint8(f)).(TO)
	case uint16:
		return any(uint16(f)).(TO)
	case uint32:
		return any(uint32(f)).(TO)
	case uint64:
		return any(uint64(f)).(TO)
	case uint:
		return any(uint(f)).(TO)
	case float32:
		return any(float32(f)).(TO)
	case float64:
		return any(f).(TO)
	default:
		return to
	}
}

// bounds describes the representable range of a numeric kind, expressed in
// float64 (adequate for every target except the full int64/uint64 range,
// which is handled specially in clampRound).
type bounds struct {
	min, max float64
	floating bool
	signed   bool
	is64     bool
	unsigned bool
}

func boundsOf[T Numeric]() bounds {
	var zero T
	switch any(zero).(type) {
	case int8:
		return bounds{min: math.MinInt8, max: math.MaxInt8, signed: true}
	case int16:
		return bounds{min: math.MinInt16, max: math.MaxInt16, signed: true}
	case int32:
		return bounds{min: math.MinInt32, max: math.MaxInt32, signed: true}
	case int64:
		return bounds{min: math.MinInt64, max: math.MaxInt64, signed: true, is64: true}
	case int:
		return bounds{min: math.MinInt64, max: math.MaxInt64, signed: true, is64: true}
	case uint8:
		return bounds{min: 0, max: math.MaxUint8}
	case uint16:
		return bounds{min: 0, max: math.MaxUint16}
	case uint32:
		return bounds{min: 0, max: math.MaxUint32}
	case uint64:
		return bounds{min: 0, max: math.MaxUint64, unsigned: true}
	case uint:
		return bounds{min: 0, max: math.MaxUint64, unsigned: true}
	case float32:
		return bounds{min: -math.MaxFloat32, max: math.MaxFloat32, floating: true}
	case float64:
		return bounds{min: -math.MaxFloat64, max: math.MaxFloat64, floating: true, is64: true}
	default:
		return bounds{}
	}
}

func clampRound[TO Numeric](f float64) TO {
	b := boundsOf[TO]()

	if math.IsNaN(f) {
		if b.signed {
			return fromFloat64[TO](b.min)
		}
		f = b.max
	}

	if !b.floating {
		// round half away from zero
		if f >= 0 {
			f = math.Floor(f + 0.5)
		} else {
			f = math.Ceil(f - 0.5)
		}
	}

	if b.unsigned && f < 0 {
		return fromFloat64[TO](0)
	}

	// b.max is 2^63 or 2^64 here, one past the largest value of the type.
	if (b.is64 && !b.floating || b.unsigned) && f >= b.max {
		switch any(*new(TO)).(type) {
		case int64:
			return any(int64(math.MaxInt64)).(TO)
		case int:
			return any(int(math.MaxInt)).(TO)
		case uint64:
			return any(uint64(math.MaxUint64)).(TO)
		case uint:
			return any(uint(math.MaxUint)).(TO)
		}
	}

	if f > b.max {
		if b.floating && math.IsInf(f, 1) {
			return fromFloat64[TO](math.Inf(1))
		}
		return fromFloat64[TO](b.max)
	}
	if f < b.min {
		if b.floating && math.IsInf(f, -1) {
			return fromFloat64[TO](math.Inf(-1))
		}
		return fromFloat64[TO](b.min)
	}

	return fromFloat64[TO](f)
}
