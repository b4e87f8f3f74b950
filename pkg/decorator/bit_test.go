package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/shared"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestBit_ReadExtractsSingleBit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("STATUS", 1, 1, true, true)
	target.Buffer().Channel(0)[0] = 0b0100
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)
	key := shared.TargetKey{Backend: t.Name(), Path: "STATUS"}

	bit, err := NewBit(target, 2, key)
	require.NoError(t, err)
	require.NoError(t, bit.Read(ctx))
	assert.True(t, bool(bit.Buffer().Channel(0)[0]))

	bit3, err := NewBit(target, 3, key)
	require.NoError(t, err)
	require.NoError(t, bit3.Read(ctx))
	assert.False(t, bool(bit3.Buffer().Channel(0)[0]))
}

func TestBit_WritePreservesOtherBits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("STATUS", 1, 1, true, true)
	target.Buffer().Channel(0)[0] = 0b1010
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)
	key := shared.TargetKey{Backend: t.Name(), Path: "STATUS"}

	bit, err := NewBit(target, 0, key)
	require.NoError(t, err)
	require.NoError(t, bit.Read(ctx)) // populate shared raw shadow
	bit.Buffer().Channel(0)[0] = true
	_, err = bit.Write(ctx, version.New())
	require.NoError(t, err)
	assert.Equal(t, uint32(0b1011), target.Buffer().Channel(0)[0])
}

func TestBitRange_ReadWriteRoundtrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("VALUE", 1, 1, true, true)
	target.Buffer().Channel(0)[0] = 0xFFFF_FFF0
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)
	key := shared.TargetKey{Backend: t.Name(), Path: "VALUE"}

	br, err := NewBitRange(target, 4, 4, key)
	require.NoError(t, err)
	require.NoError(t, br.Read(ctx))
	assert.Equal(t, uint32(0xF), br.Buffer().Channel(0)[0])

	br.Buffer().Channel(0)[0] = 0x3
	_, err = br.Write(ctx, version.New())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFF_FF30), target.Buffer().Channel(0)[0])
}

// TestBitRange_SiblingsOverOneRegisterShareRawState exercises spec §4.9
// scenario S3: two BitRange decorators over disjoint nibbles of the same
// physical register, constructed independently against the same
// shared.TargetKey. Writing through one must not clobber bits the other
// owns, which only holds if both share one raw-word shadow rather than
// each keeping an independently-zeroed shadow of its own.
func TestBitRange_SiblingsOverOneRegisterShareRawState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("PACKED", 1, 1, true, true)
	key := shared.TargetKey{Backend: t.Name(), Path: "PACKED"}

	low, err := NewBitRange(target, 0, 8, key)
	require.NoError(t, err)
	high, err := NewBitRange(target, 8, 8, key)
	require.NoError(t, err)

	low.Buffer().Channel(0)[0] = 0xAA
	_, err = low.Write(ctx, version.New())
	require.NoError(t, err)

	high.Buffer().Channel(0)[0] = 0xBB
	_, err = high.Write(ctx, version.New())
	require.NoError(t, err)

	assert.Equal(t, uint32(0xBBAA), target.Buffer().Channel(0)[0])

	require.NoError(t, low.Read(ctx))
	assert.Equal(t, uint32(0xAA), low.Buffer().Channel(0)[0])
}
