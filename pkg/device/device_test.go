package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

const deviceTargetMap = `
WORD 4 0 16 0 32 0 1 RW
`

const deviceLNMDoc = `<logicalNameMap>
  <redirectedRegister name="Plain">
    <targetDevice>target1</targetDevice>
    <targetRegister>WORD</targetRegister>
  </redirectedRegister>
</logicalNameMap>`

func TestOpen_DummyBackendRoundTripsThroughFixedPoint(t *testing.T) {
	NewRegistry(newMemMapFile(map[string]string{"target1.map": deviceTargetMap}))

	dev, err := Open(context.Background(), "(dummy?map=target1.map)")
	require.NoError(t, err)
	defer dev.Close()

	acc, err := GetAccessor[int32](dev, "WORD")
	require.NoError(t, err)
	acc.Buffer().Channel(0)[0] = 7
	_, err = acc.Write(context.Background(), version.New())
	require.NoError(t, err)

	other, err := GetAccessor[int32](dev, "WORD")
	require.NoError(t, err)
	require.NoError(t, other.Read(context.Background()))
	assert.Equal(t, int32(7), other.Buffer().Channel(0)[0])
}

func TestOpen_LogicalNameMapperDelegatesToLNMBackend(t *testing.T) {
	reg := NewRegistry(newMemMapFile(map[string]string{
		"target1.map": deviceTargetMap,
		"lnm.xml":     deviceLNMDoc,
	}))
	require.NoError(t, reg.Declare("target1", "(dummy?map=target1.map)"))

	lnmDev, err := Open(context.Background(), "(logicalNameMapper?map=lnm.xml)")
	require.NoError(t, err)
	defer lnmDev.Close()

	acc, err := GetAccessor[float64](lnmDev, "Plain")
	require.NoError(t, err)
	acc.Buffer().Channel(0)[0] = 3
	_, err = acc.Write(context.Background(), version.New())
	require.NoError(t, err)

	target, err := reg.Resolve("target1")
	require.NoError(t, err)
	directAcc, err := GetAccessor[float64](Wrap(target), "WORD")
	require.NoError(t, err)
	require.NoError(t, directAcc.Read(context.Background()))
	assert.InDelta(t, 3.0, directAcc.Buffer().Channel(0)[0], 1e-9)
}

func TestDevice_InterruptIDsReportsDeclaredVector(t *testing.T) {
	NewRegistry(newMemMapFile(map[string]string{
		"withint.map": "WORD 1 0 4 0 32 0 1 INTERRUPT 3 0 1\n",
	}))

	dev, err := Open(context.Background(), "(dummy?map=withint.map)")
	require.NoError(t, err)
	defer dev.Close()

	ids, err := dev.InterruptIDs("WORD")
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 0, 1}, ids)
}

func TestDevice_InterruptIDsOnPlainRegisterIsLogicError(t *testing.T) {
	NewRegistry(newMemMapFile(map[string]string{"target1.map": deviceTargetMap}))

	dev, err := Open(context.Background(), "(dummy?map=target1.map)")
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.InterruptIDs("WORD")
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}
