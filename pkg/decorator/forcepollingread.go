package decorator

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// ForcePollingRead strips the WaitForNewData capability from a target
// that may otherwise support push-type reads, forcing callers onto
// polling reads (spec §4.9), grounded on LNMForcePollingReadPlugin.cc.
type ForcePollingRead[T any] struct {
	*Base[T, T]
}

func NewForcePollingRead[T any](target accessor.Accessor[T]) *ForcePollingRead[T] {
	return &ForcePollingRead[T]{Base: NewBase[T, T](target, identity[T], identity[T])}
}

func (f *ForcePollingRead[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	if mode.WaitForNewData {
		return false
	}
	return f.Target.SupportsAccessMode(mode)
}

func (f *ForcePollingRead[T]) PreRead(ctx context.Context, mode accessor.AccessMode) error {
	if mode.WaitForNewData {
		return deverrs.NewLogicError("ForcePollingRead.PreRead", "register %q does not support wait_for_new_data", f.Name())
	}
	return f.Target.PreRead(ctx, mode)
}

// Read, ReadNonBlocking and ReadLatest are redeclared here rather than
// left to promotion from Base: Base's own versions run the transfer
// protocol against its own embedded receiver, which would bypass this
// type's PreRead override entirely.
func (f *ForcePollingRead[T]) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, f, accessor.AccessMode{})
}

func (f *ForcePollingRead[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := f.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := f.DoReadTransfer(ctx)
	if err := f.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (f *ForcePollingRead[T]) ReadLatest(ctx context.Context) (bool, error) {
	return f.ReadNonBlocking(ctx)
}

func (f *ForcePollingRead[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, f, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*ForcePollingRead[int32])(nil)
