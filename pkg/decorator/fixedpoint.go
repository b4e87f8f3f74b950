package decorator

import (
	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/fixedpoint"
	"github.com/ctkgo/deviceaccess/pkg/numeric"
)

// NewFixedPoint wraps a raw uint32-register target with fixed-point
// cooked conversion (spec §4.3), grounded on FixedPointConverter.cc.
// Writes that overflow the register's range are clamped rather than
// rejected, matching the original's raw/FromCooked behavior; callers that
// need to detect clamping should inspect fixedpoint.Converter directly.
func NewFixedPoint[T numeric.Numeric](target accessor.Accessor[uint32], conv *fixedpoint.Converter) *Base[T, uint32] {
	return NewBase[T, uint32](target,
		func(raw uint32) T { return fixedpoint.ToCooked[T](conv, raw) },
		func(cooked T) uint32 {
			raw, _ := fixedpoint.FromCooked(conv, cooked)
			return raw
		},
	)
}

// NewIEEE754 wraps a raw uint32-register target holding an IEEE-754
// single-precision bit pattern (spec §4.4).
func NewIEEE754[T numeric.Numeric](target accessor.Accessor[uint32]) *Base[T, uint32] {
	return NewBase[T, uint32](target,
		func(raw uint32) T { return fixedpoint.IEEE754ToCooked[T](raw) },
		func(cooked T) uint32 { return fixedpoint.IEEE754FromCooked(cooked) },
	)
}
