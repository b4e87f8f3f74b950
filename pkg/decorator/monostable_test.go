package decorator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func TestMonostable_PulsesActiveThenInactive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("PULSE", 1, 1, true, true)
	m := NewMonostable[uint32](target, 1, 0, 10*time.Millisecond)

	_, err := m.Write(ctx, version.New())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), target.Buffer().Channel(0)[0])
}

func TestMonostable_RejectsRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	target := memoryRegister("PULSE", 1, 1, true, true)
	m := NewMonostable[uint32](target, 1, 0, time.Millisecond)

	assert.False(t, m.IsReadable())
	err := m.Read(ctx)
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestMonostable_OverlappingWriteReportsDataLost(t *testing.T) {
	ctx := context.Background()

	target := memoryRegister("PULSE", 1, 1, true, true)
	m := NewMonostable[uint32](target, 1, 0, 30*time.Millisecond)

	done := make(chan bool, 1)
	go func() {
		done <- m.DoWriteTransfer(ctx, version.New())
	}()
	time.Sleep(5 * time.Millisecond)

	dataLost := m.DoWriteTransfer(ctx, version.New())
	assert.True(t, dataLost)
	<-done
}
