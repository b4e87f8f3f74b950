package xdma

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
)

const testMap = `
# path nElements address nBytes bar width fractionalBits signed access interrupt
APP/0/WORD_RW 1 0x0 4 0 32 0 1 RW
APP/0/IRQ 1 0x20 4 0 32 0 0 INTERRUPT 3
`

// setupFakeDevice builds a directory standing in for an XDMA device
// node tree: bar0 is a plain file large enough for pread/pwrite, and
// events3 is a FIFO kept open for writing by the test so Backend.Open's
// read-only open of it never blocks waiting for a producer (the real
// kernel driver is always present as the writer).
func setupFakeDevice(t *testing.T) (devicePath string, triggerEvent func(n uint32)) {
	t.Helper()
	dir := t.TempDir()

	bar0, err := os.OpenFile(filepath.Join(dir, "bar0"), os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	require.NoError(t, bar0.Truncate(64))
	require.NoError(t, bar0.Close())

	eventsPath := filepath.Join(dir, "events3")
	require.NoError(t, unix.Mkfifo(eventsPath, 0o600))
	writer, err := os.OpenFile(eventsPath, os.O_RDWR, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	return dir, func(n uint32) {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], n)
		_, werr := writer.Write(buf[:])
		require.NoError(t, werr)
	}
}

func TestOpen_OpensBarAndEventFiles(t *testing.T) {
	dir, _ := setupFakeDevice(t)
	b, err := Open(dir, strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	assert.True(t, b.IsOpen())
	assert.Contains(t, b.bars, uint64(0))
	assert.Contains(t, b.events, uint32(3))
}

func TestRawRegisterAccessor_WriteThenReadRoundtrips(t *testing.T) {
	dir, _ := setupFakeDevice(t)
	ctx := context.Background()
	b, err := Open(dir, strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx))
	t.Cleanup(func() { _ = b.Close() })

	acc := b.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, true)
	acc.Buffer().Channel(0)[0] = 0xABCD1234
	_, err = acc.Write(ctx, acc.Version())
	require.NoError(t, err)

	require.NoError(t, acc.Read(ctx))
	assert.Equal(t, uint32(0xABCD1234), acc.Buffer().Channel(0)[0])
}

func TestEventFile_DistributesOneWakeupPerInterrupt(t *testing.T) {
	dir, trigger := setupFakeDevice(t)
	ctx := context.Background()
	b, err := Open(dir, strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx))
	t.Cleanup(func() { _ = b.Close() })

	ch, unsub := b.domains[3].Subscribe()
	defer unsub()

	trigger(2)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not woken by the event file")
	}
}

func TestTriggerInterrupt_AlwaysRejected(t *testing.T) {
	dir, _ := setupFakeDevice(t)
	b, err := Open(dir, strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	_, err = b.TriggerInterrupt(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}
