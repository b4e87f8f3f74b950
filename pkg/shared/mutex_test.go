package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountedRecursiveMutex_ReentrantSameToken(t *testing.T) {
	t.Parallel()

	var m CountedRecursiveMutex
	token := NewLockToken()

	m.Lock(token)
	m.Lock(token)
	m.Lock(token)
	assert.Equal(t, 3, m.UseCount())

	m.Unlock(token)
	m.Unlock(token)
	assert.Equal(t, 1, m.UseCount())
	m.Unlock(token)
}

func TestCountedRecursiveMutex_TryLockBlocksOtherToken(t *testing.T) {
	t.Parallel()

	var m CountedRecursiveMutex
	a := NewLockToken()
	b := NewLockToken()

	m.Lock(a)
	assert.False(t, m.TryLock(b))
	m.Unlock(a)
	assert.True(t, m.TryLock(b))
	m.Unlock(b)
}

func TestCountedRecursiveMutex_UnlockByWrongTokenPanics(t *testing.T) {
	t.Parallel()

	var m CountedRecursiveMutex
	a := NewLockToken()
	b := NewLockToken()
	m.Lock(a)

	assert.Panics(t, func() { m.Unlock(b) })
	m.Unlock(a)
}

func TestNewLockToken_NeverZeroAndUnique(t *testing.T) {
	t.Parallel()

	a := NewLockToken()
	b := NewLockToken()
	require.NotEqual(t, a, b)
	assert.NotZero(t, a.id)
}
