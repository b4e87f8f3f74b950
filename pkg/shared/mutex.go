// Package shared holds process-wide state that multiple independently
// constructed accessors need to agree on: the recursive lock and data
// buffer of a register several decorators target concurrently (spec §4.9
// "shared target accessors", e.g. several BitAccessors over one
// register), and the live instance count of a TransferElement once it has
// been merged by a TransferGroup.
package shared

import (
	"context"
	"sync"
	"sync/atomic"
)

// LockToken identifies the logical caller across a chain of re-entrant
// Lock calls. The C++ original keys re-entrancy off the OS thread id;
// goroutines have no equivalent stable identity, so callers mint one
// LockToken per top-level Read/Write call and thread it down through the
// decorator chain explicitly (via context.Context) instead.
type LockToken struct{ id uint64 }

var tokenSeq atomic.Uint64

// NewLockToken mints a fresh, never-zero token.
func NewLockToken() LockToken {
	return LockToken{id: tokenSeq.Add(1)}
}

type lockTokenKey struct{}

// ContextWithLockToken attaches token to ctx, for a top-level Read/Write
// call to hand the same token down to every PreRead/PostRead/PreWrite/
// PostWrite it invokes — including across sibling decorators folded into
// one transfergroup.Group call, so they recognize each other's holds on
// a shared.CountedRecursiveMutex as re-entrant rather than blocking.
func ContextWithLockToken(ctx context.Context, token LockToken) context.Context {
	return context.WithValue(ctx, lockTokenKey{}, token)
}

// LockTokenFromContext returns the token a top-level call attached via
// ContextWithLockToken, or a fresh one if ctx carries none (a decorator's
// Pre/Post methods invoked directly, outside of Read/Write or a Group).
func LockTokenFromContext(ctx context.Context) LockToken {
	if token, ok := ctx.Value(lockTokenKey{}).(LockToken); ok {
		return token
	}
	return NewLockToken()
}

// CountedRecursiveMutex is a mutex that the same LockToken may lock
// repeatedly without deadlocking itself, paired with a use count that is
// only meaningful while the caller holds the lock (spec §4.9, grounded on
// CountedRecursiveMutex.h).
type CountedRecursiveMutex struct {
	mu    sync.Mutex
	owner uint64 // 0 when unlocked
	depth int
}

func (m *CountedRecursiveMutex) Lock(token LockToken) {
	if token.id != 0 && m.ownerIs(token) {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner = token.id
	m.depth = 1
}

func (m *CountedRecursiveMutex) TryLock(token LockToken) bool {
	if token.id != 0 && m.ownerIs(token) {
		m.depth++
		return true
	}
	if m.mu.TryLock() {
		m.owner = token.id
		m.depth = 1
		return true
	}
	return false
}

func (m *CountedRecursiveMutex) Unlock(token LockToken) {
	if !m.ownerIs(token) {
		panic("shared: Unlock called by a token that does not hold the lock")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.mu.Unlock()
	}
}

// UseCount reports the current re-entrancy depth. Only reliable while the
// caller holds the lock.
func (m *CountedRecursiveMutex) UseCount() int { return m.depth }

func (m *CountedRecursiveMutex) ownerIs(token LockToken) bool {
	return m.owner == token.id
}
