package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestMultiplier_ReadScalesUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("SCALED", 1, 1, true, true)
	target.Buffer().Channel(0)[0] = 100
	_, err := target.Write(ctx, version.New())
	require.NoError(t, err)

	m := NewMultiplier[float64, uint32](target, 0.5)
	require.NoError(t, m.Read(ctx))
	assert.InDelta(t, 50.0, m.Buffer().Channel(0)[0], 1e-9)
}

func TestMultiplier_WriteScalesDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("SCALED", 1, 1, true, true)
	m := NewMultiplier[float64, uint32](target, 0.5)
	m.Buffer().Channel(0)[0] = 50
	_, err := m.Write(ctx, version.New())
	require.NoError(t, err)
	assert.Equal(t, uint32(100), target.Buffer().Channel(0)[0])
}
