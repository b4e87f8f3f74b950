package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func floatRegister(name string, initial float64, writeable bool) *accessor.Base[float64] {
	store := []float64{initial}
	var funcs accessor.TransferFuncs[float64]
	funcs.Read = func(_ context.Context, buf *accessor.Buffer[float64]) (bool, version.Validity, error) {
		buf.Channel(0)[0] = store[0]
		return true, version.OK, nil
	}
	if writeable {
		funcs.Write = func(_ context.Context, buf *accessor.Buffer[float64]) (bool, error) {
			store[0] = buf.Channel(0)[0]
			return false, nil
		}
	}
	return accessor.NewBase[float64](name, 1, 1, accessor.AccessMode{}, funcs, nil)
}

func TestMath_ReadEvaluatesFormulaWithParameter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := floatRegister("RAW", 3, false)
	gain := floatRegister("GAIN", 2, false)

	m, err := NewMath(target, "X * Params.gain", "", []Parameter{{Name: "gain", Accessor: gain}})
	require.NoError(t, err)

	require.NoError(t, m.Read(ctx))
	assert.InDelta(t, 6.0, m.Buffer().Channel(0)[0], 1e-9)
}

func TestMath_WriteUsesInverseFormula(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := floatRegister("RAW", 0, true)
	m, err := NewMath(target, "X * 2", "X / 2", nil)
	require.NoError(t, err)

	assert.True(t, m.IsWriteable())
	m.Buffer().Channel(0)[0] = 10
	_, err = m.Write(ctx, version.New())
	require.NoError(t, err)

	require.NoError(t, target.Read(ctx))
	assert.InDelta(t, 5.0, target.Buffer().Channel(0)[0], 1e-9)
}

func TestMath_WithoutInverseFormulaIsReadOnly(t *testing.T) {
	t.Parallel()

	target := floatRegister("RAW", 0, true)
	m, err := NewMath(target, "X * 2", "", nil)
	require.NoError(t, err)

	assert.False(t, m.IsWriteable())
}
