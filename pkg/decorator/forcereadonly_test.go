package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestForceReadOnly_RejectsWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("RW_REG", 1, 1, true, true)
	fro := NewForceReadOnly(target)

	assert.False(t, fro.IsWriteable())
	_, err := fro.Write(ctx, version.New())
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestForceReadOnly_StillReadable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("RW_REG", 1, 1, true, true)
	target.Buffer().Channel(0)[0] = 42
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)
	fro := NewForceReadOnly(target)

	require.NoError(t, fro.Read(ctx))
	assert.Equal(t, uint32(42), fro.Buffer().Channel(0)[0])
}
