package transfergroup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/internal/obsmetrics"
	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

func memoryLeaf(name string, mergeKey any, store *uint32) *accessor.Base[uint32] {
	funcs := accessor.TransferFuncs[uint32]{
		Read: func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, version.Validity, error) {
			buf.Channel(0)[0] = *store
			return true, version.OK, nil
		},
		Write: func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, error) {
			*store = buf.Channel(0)[0]
			return false, nil
		},
	}
	return accessor.NewBase[uint32](name, 1, 1, accessor.AccessMode{}, funcs, mergeKey)
}

func TestGroup_AddRejectsDuplicateAccessor(t *testing.T) {
	t.Parallel()

	var v uint32
	g := New()
	elem := memoryLeaf("REG_A", nil, &v)

	require.NoError(t, g.Add(elem))
	err := g.Add(elem)
	require.Error(t, err)
	assert.True(t, deverrs.IsLogic(err))
}

func TestGroup_DistinctRegistersStayUnmerged(t *testing.T) {
	t.Parallel()

	var a, b uint32
	g := New()
	require.NoError(t, g.Add(memoryLeaf("REG_A", nil, &a)))
	require.NoError(t, g.Add(memoryLeaf("REG_B", nil, &b)))

	assert.Equal(t, 2, g.NumberOfHighLevelElements())
	assert.Equal(t, 2, g.NumberOfLowLevelElements())
}

func TestGroup_SharedMergeKeyCollapsesToOneLowLevelElement(t *testing.T) {
	t.Parallel()

	var store uint32
	g := New()
	require.NoError(t, g.Add(memoryLeaf("REG_A_VIEW1", "REG_A", &store)))
	require.NoError(t, g.Add(memoryLeaf("REG_A_VIEW2", "REG_A", &store)))

	assert.Equal(t, 2, g.NumberOfHighLevelElements())
	assert.Equal(t, 1, g.NumberOfLowLevelElements())
}

func TestGroup_ReadPopulatesEveryMember(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, b := uint32(10), uint32(20)
	elemA := memoryLeaf("REG_A", nil, &a)
	elemB := memoryLeaf("REG_B", nil, &b)

	g := New()
	require.NoError(t, g.Add(elemA))
	require.NoError(t, g.Add(elemB))

	require.NoError(t, g.Read(ctx))
	assert.Equal(t, uint32(10), elemA.Buffer().Channel(0)[0])
	assert.Equal(t, uint32(20), elemB.Buffer().Channel(0)[0])
}

func TestGroup_WriteAppliesToUnderlyingStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var a, b uint32
	elemA := memoryLeaf("REG_A", nil, &a)
	elemB := memoryLeaf("REG_B", nil, &b)

	g := New()
	require.NoError(t, g.Add(elemA))
	require.NoError(t, g.Add(elemB))

	elemA.Buffer().Channel(0)[0] = 111
	elemB.Buffer().Channel(0)[0] = 222
	require.NoError(t, g.Write(ctx, version.New()))

	assert.Equal(t, uint32(111), a)
	assert.Equal(t, uint32(222), b)
}

func TestGroup_IsReadableAndWriteableReflectMembers(t *testing.T) {
	t.Parallel()

	var store uint32
	writeOnly := accessor.NewBase[uint32]("WRITE_ONLY", 1, 1, accessor.AccessMode{}, accessor.TransferFuncs[uint32]{
		Write: func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, error) {
			store = buf.Channel(0)[0]
			return false, nil
		},
	}, nil)

	g := New()
	require.NoError(t, g.Add(writeOnly))

	assert.False(t, g.IsReadable())
	assert.True(t, g.IsWriteable())
}

func TestGroup_NamedGroupRecordsMetricsWithoutPanicking(t *testing.T) {
	// Metrics stay disabled for the rest of the suite (the default), so
	// this only exercises the no-op path; TestInit_EnabledServesMetrics in
	// internal/obsmetrics covers the collector values themselves.
	require.False(t, obsmetrics.IsEnabled())

	var a uint32
	g := NewNamed("(dummy?map=test.dmap)")
	require.NoError(t, g.Add(memoryLeaf("REG_A", nil, &a)))
	require.NoError(t, g.Read(context.Background()))
	g.Close()
}

func TestGroup_CloseReleasesLowLevelBookkeeping(t *testing.T) {
	t.Parallel()

	var v uint32
	g := New()
	elem := memoryLeaf("REG_A", nil, &v)
	require.NoError(t, g.Add(elem))
	require.Equal(t, 1, g.NumberOfLowLevelElements())

	g.Close()
	assert.Equal(t, 0, g.NumberOfLowLevelElements())
	assert.Equal(t, 0, g.NumberOfHighLevelElements())
}
