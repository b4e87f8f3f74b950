package dummy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMap = `
# path nElements address nBytes bar width fractionalBits signed access
APP/0/WORD_RW 1 0x0 4 0 32 0 1 RW
APP/0/WORD_RO 2 0x4 8 0 32 0 0 RO
APP/0/IRQ 1 0x20 4 0 32 0 0 INTERRUPT 3
`

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(strings.NewReader(testMap))
	require.NoError(t, err)
	require.NoError(t, b.Open(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestOpen_PopulatesCatalogueAndReadOnlyRanges(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)

	info, ok := b.Catalogue().GetRegister("APP/0/WORD_RO")
	require.True(t, ok)
	assert.True(t, info.Readable)
	assert.False(t, info.Writeable)
}

func TestRawRegisterAccessor_WriteThenReadRoundtrips(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	ctx := context.Background()

	acc := b.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, true)
	acc.Buffer().Channel(0)[0] = 0xCAFE
	_, err := acc.Write(ctx, acc.Version())
	require.NoError(t, err)

	require.NoError(t, acc.Read(ctx))
	assert.Equal(t, uint32(0xCAFE), acc.Buffer().Channel(0)[0])
}

func TestRawRegisterAccessor_ReadOnlyRangeRejectsWrite(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	ctx := context.Background()

	acc := b.RawRegisterAccessor("APP/0/WORD_RO", 0, 0x4, 2, false)
	require.NoError(t, acc.Read(ctx))
	assert.False(t, acc.IsWriteable())
}

func TestRawRegisterAccessor_SharesBackingStoreAcrossAccessors(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)
	ctx := context.Background()

	writer := b.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, true)
	reader := b.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, false)

	writer.Buffer().Channel(0)[0] = 123
	_, err := writer.Write(ctx, writer.Version())
	require.NoError(t, err)

	require.NoError(t, reader.Read(ctx))
	assert.Equal(t, uint32(123), reader.Buffer().Channel(0)[0])
}

func TestTriggerInterrupt_DistributesToSubscribers(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)

	ch, unsub := b.domainFor(3).Subscribe()
	defer unsub()

	_, err := b.TriggerInterrupt(context.Background(), 3)
	require.NoError(t, err)

	select {
	case <-ch:
	default:
		t.Fatal("subscriber was not woken by TriggerInterrupt")
	}
}

func TestSetException_PropagatesToReadsAndDomains(t *testing.T) {
	t.Parallel()
	b := openTestBackend(t)

	ch, unsub := b.domainFor(3).Subscribe()
	defer unsub()

	b.SetException(assert.AnError)

	select {
	case <-ch:
	default:
		t.Fatal("domain should be woken on SetException")
	}

	acc := b.RawRegisterAccessor("APP/0/WORD_RW", 0, 0x0, 1, true)
	err := acc.Read(context.Background())
	require.Error(t, err)
}
