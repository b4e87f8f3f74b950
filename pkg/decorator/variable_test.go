package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/lnm/variabletable"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func openTable(t *testing.T) *variabletable.Table {
	t.Helper()
	table, err := variabletable.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func TestVariable_ReadBeforeAnyWriteReportsNoNewData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	table := openTable(t)
	v := NewVariable[uint32](table, "/path/unset", 1, true)

	hasNewData, err := v.ReadNonBlocking(ctx)
	require.NoError(t, err)
	assert.False(t, hasNewData)
}

func TestVariable_WriteThenReadRoundtrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	table := openTable(t)
	v := NewVariable[uint32](table, "/path/counter", 1, true)

	v.Buffer().Channel(0)[0] = 123
	_, err := v.Write(ctx, version.New())
	require.NoError(t, err)

	reader := NewVariable[uint32](table, "/path/counter", 1, false)
	hasNewData, err := reader.ReadNonBlocking(ctx)
	require.NoError(t, err)
	assert.True(t, hasNewData)
	assert.Equal(t, uint32(123), reader.Buffer().Channel(0)[0])
}

func TestVariable_ConstantRejectsWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	table := openTable(t)
	require.NoError(t, variabletable.Set[uint32](table, "/path/constant", []uint32{7}, version.OK, version.New()))

	c := NewVariable[uint32](table, "/path/constant", 1, false)
	assert.False(t, c.IsWriteable())
	_, err := c.Write(ctx, version.New())
	require.Error(t, err)
}
