package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/shared"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestNewSubArray_RejectsOutOfRangeWindow(t *testing.T) {
	t.Parallel()

	target := memoryRegister("ARRAY", 1, 4, true, true)
	key := shared.TargetKey{Backend: t.Name(), Path: "ARRAY"}

	_, err := NewSubArray[uint32](target, key, 3, 2)
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestSubArray_ReadExtractsWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("ARRAY", 1, 4, true, true)
	copy(target.Buffer().Channel(0), []uint32{10, 20, 30, 40})
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)
	key := shared.TargetKey{Backend: t.Name(), Path: "ARRAY"}

	sub, err := NewSubArray[uint32](target, key, 2, 1)
	require.NoError(t, err)

	require.NoError(t, sub.Read(ctx))
	assert.Equal(t, []uint32{20, 30}, sub.Buffer().Channel(0))
}

func TestSubArray_WritePreservesOutsideWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("ARRAY", 1, 4, true, true)
	copy(target.Buffer().Channel(0), []uint32{10, 20, 30, 40})
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)
	key := shared.TargetKey{Backend: t.Name(), Path: "ARRAY"}

	sub, err := NewSubArray[uint32](target, key, 2, 1)
	require.NoError(t, err)

	copy(sub.Buffer().Channel(0), []uint32{99, 98})
	_, err = sub.Write(ctx, version.New())
	require.NoError(t, err)

	assert.Equal(t, []uint32{10, 99, 98, 40}, target.Buffer().Channel(0))
}
