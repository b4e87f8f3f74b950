package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestNewFanOut_RejectsReadOnlyExtra(t *testing.T) {
	t.Parallel()

	main := memoryRegister("MAIN", 1, 1, true, true)
	readOnlyExtra := memoryRegister("EXTRA", 1, 1, true, false)

	_, err := NewFanOut[uint32](main, readOnlyExtra)
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestFanOut_WriteBroadcastsToAllTargets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	main := memoryRegister("MAIN", 1, 1, true, true)
	extraA := memoryRegister("EXTRA_A", 1, 1, true, true)
	extraB := memoryRegister("EXTRA_B", 1, 1, true, true)

	fo, err := NewFanOut[uint32](main, extraA, extraB)
	require.NoError(t, err)

	fo.Buffer().Channel(0)[0] = 99
	_, err = fo.Write(ctx, version.New())
	require.NoError(t, err)

	assert.Equal(t, uint32(99), main.Buffer().Channel(0)[0])
	assert.Equal(t, uint32(99), extraA.Buffer().Channel(0)[0])
	assert.Equal(t, uint32(99), extraB.Buffer().Channel(0)[0])
}

func TestFanOut_RejectsRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	main := memoryRegister("MAIN", 1, 1, true, true)
	fo, err := NewFanOut[uint32](main)
	require.NoError(t, err)

	assert.False(t, fo.IsReadable())
	err = fo.Read(ctx)
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}
