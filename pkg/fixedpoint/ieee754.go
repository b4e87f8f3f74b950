package fixedpoint

import (
	"math"
	"strconv"

	"github.com/ctkgo/deviceaccess/pkg/numeric"
)

// IEEE754Single converts between a raw uint32 register value holding an
// IEEE-754 single-precision bit pattern and the various cooked types a
// register can expose it as (spec §4.4). The raw<->float32 step is a pure
// bit reinterpretation (no arithmetic), done via math.Float32frombits /
// math.Float32bits rather than an aliasing pointer cast.
type IEEE754Single struct{}

// ToFloat32 reinterprets raw's bits as a float32.
func (IEEE754Single) ToFloat32(raw uint32) float32 {
	return math.Float32frombits(raw)
}

// FromFloat32 reinterprets f's bits as a raw uint32.
func (IEEE754Single) FromFloat32(f float32) uint32 {
	return math.Float32bits(f)
}

// ToCooked returns raw's float32 value widened to float64.
func (c IEEE754Single) ToCooked(raw uint32) float64 {
	return float64(c.ToFloat32(raw))
}

// IEEE754ToCooked converts raw to cooked type T via numeric.Convert. For
// floating targets this is a plain widen/narrow; for integral targets it
// rounds half away from zero and clamps to T's range, with NaN mapping to
// T's maximum (or minimum for a signed target).
func IEEE754ToCooked[T numeric.Numeric](raw uint32) T {
	return numeric.Convert[T](float64(math.Float32frombits(raw)))
}

// IEEE754FromCooked converts cooked type T to a raw bit pattern, clamping
// overflow to +/-FLT_MAX rather than producing +/-Inf, per spec §4.4.
func IEEE754FromCooked[T numeric.Numeric](cooked T) uint32 {
	f := numeric.Convert[float64](cooked)
	f32 := numeric.Convert[float32](f)
	if math.IsInf(float64(f32), 1) {
		f32 = math.MaxFloat32
	} else if math.IsInf(float64(f32), -1) {
		f32 = -math.MaxFloat32
	}
	return math.Float32bits(f32)
}

// ToString and FromString delegate to the platform decimal parser/
// formatter, matching how the original handles strtod/operator<<.
func (c IEEE754Single) ToString(raw uint32) string {
	return strconv.FormatFloat(float64(c.ToFloat32(raw)), 'g', -1, 32)
}

func (c IEEE754Single) FromString(s string) (uint32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	f32 := float32(f)
	if math.IsInf(float64(f32), 1) {
		f32 = math.MaxFloat32
	} else if math.IsInf(float64(f32), -1) {
		f32 = -math.MaxFloat32
	}
	return c.FromFloat32(f32), nil
}
