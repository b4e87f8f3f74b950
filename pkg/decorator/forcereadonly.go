package decorator

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// ForceReadOnly wraps a target that may itself be writeable and refuses
// every write attempt with a LogicError, regardless of the target's own
// capability (spec §4.9 "ForceReadOnly / ForcePollingRead: adjust
// capabilities; writes throw logic_error"), grounded on
// LNMForceReadOnlyPlugin.cc.
type ForceReadOnly[T any] struct {
	*Base[T, T]
}

func NewForceReadOnly[T any](target accessor.Accessor[T]) *ForceReadOnly[T] {
	return &ForceReadOnly[T]{Base: NewBase[T, T](target, identity[T], identity[T])}
}

func identity[T any](v T) T { return v }

func (f *ForceReadOnly[T]) IsWriteable() bool { return false }

func (f *ForceReadOnly[T]) PreWrite(context.Context, accessor.AccessMode, version.Number) error {
	return deverrs.NewLogicError("ForceReadOnly.PreWrite", "register %q is forced read-only", f.Name())
}

// Read, ReadNonBlocking, ReadLatest and Write are redeclared here rather
// than left to promotion from Base: Base's own versions run the transfer
// protocol against its own embedded receiver, which would bypass this
// type's PreWrite override entirely.
func (f *ForceReadOnly[T]) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, f, accessor.AccessMode{})
}

func (f *ForceReadOnly[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := f.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := f.DoReadTransfer(ctx)
	if err := f.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (f *ForceReadOnly[T]) ReadLatest(ctx context.Context) (bool, error) {
	return f.ReadNonBlocking(ctx)
}

func (f *ForceReadOnly[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, f, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*ForceReadOnly[int32])(nil)
