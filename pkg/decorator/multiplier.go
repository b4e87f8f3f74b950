package decorator

import (
	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/numeric"
)

// NewMultiplier scales every element of a target register by a constant
// factor on read and divides by it on write (spec §4.6
// "LNMMultiplierPlugin"), grounded on LNMMultiplierPlugin.cc. T and U may
// differ (e.g. an int32 raw register cooked as float64 engineering
// units).
func NewMultiplier[T, U numeric.Numeric](target accessor.Accessor[U], factor float64) *Base[T, U] {
	return NewBase[T, U](target,
		func(raw U) T {
			return numeric.Convert[T](numeric.Convert[float64](raw) * factor)
		},
		func(cooked T) U {
			return numeric.Convert[U](numeric.Convert[float64](cooked) / factor)
		},
	)
}
