package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
)

func TestGetTargetSharedState_AllocatesOnceAndShares(t *testing.T) {
	t.Parallel()

	key := TargetKey{Backend: t, Path: "/APP.0/BYTE"}
	buf1, mutex1, err := GetTargetSharedState[int32](key, 1, 4)
	require.NoError(t, err)
	require.NotNil(t, buf1)

	buf2, mutex2, err := GetTargetSharedState[int32](key, 1, 4)
	require.NoError(t, err)
	assert.Same(t, buf1, buf2)
	assert.Same(t, mutex1, mutex2)
}

func TestGetTargetSharedState_TypeMismatchIsLogicError(t *testing.T) {
	t.Parallel()

	key := TargetKey{Backend: t, Path: "/APP.0/WORD"}
	_, _, err := GetTargetSharedState[int32](key, 1, 4)
	require.NoError(t, err)

	_, _, err = GetTargetSharedState[float64](key, 1, 4)
	require.Error(t, err)
}

func TestTransferSharedState_AddRemoveCombine(t *testing.T) {
	t.Parallel()

	id1 := accessor.NewID()
	id2 := accessor.NewID()

	AddTransferElement(id1)
	AddTransferElement(id2)
	assert.Equal(t, 1, InstanceCount(id1))
	assert.Equal(t, 1, InstanceCount(id2))

	CombineTransferSharedStates(id1, id2)
	assert.Equal(t, 0, InstanceCount(id1))
	assert.Equal(t, 2, InstanceCount(id2))

	RemoveTransferElement(id2)
	assert.Equal(t, 1, InstanceCount(id2))
	RemoveTransferElement(id2)
	assert.Equal(t, 0, InstanceCount(id2))
}
