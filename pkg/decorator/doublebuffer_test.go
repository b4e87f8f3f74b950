package decorator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestDoubleBuffer_ReadsSecondaryWhenCurrentIsZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	primary := memoryRegister("BUF0", 1, 1, true, true)
	primary.Buffer().Channel(0)[0] = 111
	_, err := primary.Write(ctx, version.New())
	require.NoError(t, err)
	secondary := memoryRegister("BUF1", 1, 1, true, true)
	secondary.Buffer().Channel(0)[0] = 222
	_, err = secondary.Write(ctx, version.New())
	require.NoError(t, err)
	enable := memoryRegister("ENABLE", 1, 1, false, true)
	current := memoryRegister("CURRENT", 1, 1, true, false)
	current.Buffer().Channel(0)[0] = 0

	var readers atomic.Uint32
	db, err := NewDoubleBuffer[uint32](primary, secondary, enable, current, &readers)
	require.NoError(t, err)

	require.NoError(t, db.Read(ctx))
	assert.Equal(t, uint32(222), db.Buffer().Channel(0)[0])
	assert.Equal(t, uint32(0), readers.Load())
}

func TestDoubleBuffer_RejectsRawMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	primary := memoryRegister("BUF0", 1, 1, true, false)
	secondary := memoryRegister("BUF1", 1, 1, true, false)
	enable := memoryRegister("ENABLE", 1, 1, false, true)
	current := memoryRegister("CURRENT", 1, 1, true, false)

	var readers atomic.Uint32
	db, err := NewDoubleBuffer[uint32](primary, secondary, enable, current, &readers)
	require.NoError(t, err)

	err = db.PreRead(ctx, accessor.AccessMode{Raw: true})
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestDoubleBuffer_RejectsWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	primary := memoryRegister("BUF0", 1, 1, true, false)
	secondary := memoryRegister("BUF1", 1, 1, true, false)
	enable := memoryRegister("ENABLE", 1, 1, false, true)
	current := memoryRegister("CURRENT", 1, 1, true, false)

	var readers atomic.Uint32
	db, err := NewDoubleBuffer[uint32](primary, secondary, enable, current, &readers)
	require.NoError(t, err)

	assert.False(t, db.IsWriteable())
	err = db.Read(ctx)
	require.NoError(t, err)
	_, werr := db.Write(ctx, db.Version())
	require.Error(t, werr)
	assert.True(t, deverrs.IsLogic(werr))
}
