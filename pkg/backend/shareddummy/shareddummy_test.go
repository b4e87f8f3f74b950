package shareddummy

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMap = `
# path nElements address nBytes bar width fractionalBits signed access
APP/0/WORD_RW 1 0x0 4 0 32 0 1 RW
APP/0/WORD_RO 2 0x4 8 0 32 0 0 RO
APP/0/IRQ 1 0x20 4 0 32 0 0 INTERRUPT 3
`

func uniqueInstance(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestOpen_JoiningProcessesShareTheSameRegisterBank(t *testing.T) {
	instanceID := uniqueInstance(t)
	mapPath := "/fake/registers.map"
	ctx := context.Background()

	b1, err := Open(instanceID, mapPath, strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b1.Open(ctx))
	t.Cleanup(func() { _ = b1.Close() })

	b2, err := Open(instanceID, mapPath, strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b2.Open(ctx))
	t.Cleanup(func() { _ = b2.Close() })

	writer := b1.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, true)
	reader := b2.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, false)

	writer.Buffer().Channel(0)[0] = 0xBEEF
	_, err = writer.Write(ctx, writer.Version())
	require.NoError(t, err)

	require.NoError(t, reader.Read(ctx))
	assert.Equal(t, uint32(0xBEEF), reader.Buffer().Channel(0)[0])
}

func TestOpen_PopulatesCatalogueAndReadOnlyRanges(t *testing.T) {
	instanceID := uniqueInstance(t)
	b, err := Open(instanceID, "/fake/registers.map", strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	info, ok := b.Catalogue().GetRegister("APP/0/WORD_RO")
	require.True(t, ok)
	assert.True(t, info.Readable)
	assert.False(t, info.Writeable)
}

func TestRawRegisterAccessor_ReadOnlyRangeIsNotWritten(t *testing.T) {
	instanceID := uniqueInstance(t)
	ctx := context.Background()
	b, err := Open(instanceID, "/fake/registers.map", strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx))
	t.Cleanup(func() { _ = b.Close() })

	ro := b.RawRegisterAccessor("APP/0/WORD_RO", 0, 0x4, 2, false)
	require.NoError(t, ro.Read(ctx))
	assert.False(t, ro.IsWriteable())
}

func TestTriggerInterrupt_WakesTheRegisteredProcessViaItsFIFO(t *testing.T) {
	instanceID := uniqueInstance(t)
	ctx := context.Background()

	listener, err := Open(instanceID, "/fake/registers.map", strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, listener.Open(ctx))
	t.Cleanup(func() { _ = listener.Close() })

	ch, unsub := listener.domainFor(3).Subscribe()
	defer unsub()

	// A second handle attached to the same segment, standing in for a
	// sibling process that never opens its own dispatcher, only
	// triggers interrupts for whichever processes are registered.
	triggerer, err := Open(instanceID, "/fake/registers.map", strings.NewReader(testMap))
	require.NoError(t, err)

	_, err = triggerer.TriggerInterrupt(ctx, 3)
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not woken by TriggerInterrupt across the FIFO")
	}
}

func TestSetException_PropagatesToReadsAndDomains(t *testing.T) {
	instanceID := uniqueInstance(t)
	ctx := context.Background()
	b, err := Open(instanceID, "/fake/registers.map", strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx))
	t.Cleanup(func() { _ = b.Close() })

	ch, unsub := b.domainFor(3).Subscribe()
	defer unsub()

	b.SetException(assert.AnError)

	select {
	case <-ch:
	default:
		t.Fatal("domain should be woken on SetException")
	}

	acc := b.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, true)
	err = acc.Read(ctx)
	require.Error(t, err)
}

func TestClose_RemovesSegmentFilesOnceLastMemberLeaves(t *testing.T) {
	instanceID := uniqueInstance(t)
	ctx := context.Background()
	b, err := Open(instanceID, "/fake/registers.map", strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx))

	shmPath := b.shmPath
	require.NoError(t, b.Close())

	_, statErr := os.Stat(shmPath)
	assert.True(t, os.IsNotExist(statErr))
}
