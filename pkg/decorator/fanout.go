package decorator

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// FanOut broadcasts one write to a main target plus any number of extra
// writeable targets of identical shape (spec §4.9 "FanOut: write broadcast
// to N additional writeable targets; all preWrites attempted even if some
// throw; first exception re-thrown after all postWrites complete"),
// grounded on FanOutPlugin.cc. FanOut is write-only: reads are rejected
// with a LogicError.
type FanOut[T any] struct {
	target accessor.Accessor[T]
	extras []accessor.Accessor[T]

	buf       *accessor.Buffer[T]
	ver       version.Number
	activeErr *deverrs.RuntimeError
}

func NewFanOut[T any](target accessor.Accessor[T], extras ...accessor.Accessor[T]) (*FanOut[T], error) {
	if !target.IsWriteable() {
		return nil, deverrs.NewLogicError("NewFanOut", "main target %q is not writeable", target.Name())
	}
	for _, e := range extras {
		if e.Buffer().NumberOfChannels() != target.Buffer().NumberOfChannels() ||
			e.Buffer().NumberOfSamples() != target.Buffer().NumberOfSamples() {
			return nil, deverrs.NewLogicError("NewFanOut", "shape of target %q does not match main target %q", e.Name(), target.Name())
		}
		if !e.IsWriteable() {
			return nil, deverrs.NewLogicError("NewFanOut", "target %q is not writeable (main target: %s)", e.Name(), target.Name())
		}
	}
	return &FanOut[T]{
		target: target,
		extras: extras,
		buf:    accessor.NewBuffer[T](target.Buffer().NumberOfChannels(), target.Buffer().NumberOfSamples()),
	}, nil
}

func (f *FanOut[T]) ID() accessor.ID             { return f.target.ID() }
func (f *FanOut[T]) Name() string                { return f.target.Name() }
func (f *FanOut[T]) Buffer() *accessor.Buffer[T] { return f.buf }
func (f *FanOut[T]) IsReadable() bool            { return false }
func (f *FanOut[T]) IsWriteable() bool           { return true }

func (f *FanOut[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	if mode.Raw {
		return false
	}
	return f.target.SupportsAccessMode(mode)
}

func (f *FanOut[T]) Version() version.Number              { return f.ver }
func (f *FanOut[T]) Validity() version.Validity            { return f.target.Validity() }
func (f *FanOut[T]) ActiveException() *deverrs.RuntimeError { return f.activeErr }
func (f *FanOut[T]) SetActiveException(err *deverrs.RuntimeError) { f.activeErr = err }

func (f *FanOut[T]) HardwareAccessingElements() []accessor.TransferElement {
	elems := append([]accessor.TransferElement{}, f.target.HardwareAccessingElements()...)
	for _, e := range f.extras {
		elems = append(elems, e.HardwareAccessingElements()...)
	}
	return elems
}

func (f *FanOut[T]) MayReplaceOther(accessor.TransferElement) bool      { return false }
func (f *FanOut[T]) ReplaceTransferElement(accessor.TransferElement) {}

func (f *FanOut[T]) PreRead(context.Context, accessor.AccessMode) error {
	return deverrs.NewLogicError("FanOut.PreRead", "register %q is write-only", f.Name())
}

func (f *FanOut[T]) DoReadTransfer(context.Context) bool { return false }

func (f *FanOut[T]) PostRead(context.Context, bool) error {
	return deverrs.NewLogicError("FanOut.PostRead", "register %q is write-only", f.Name())
}

// PreWrite copies this accessor's buffer into every extra target and the
// main target, then calls preWrite on all of them. Every target is
// attempted even if an earlier one fails; the first error encountered is
// returned after all have been attempted.
func (f *FanOut[T]) PreWrite(ctx context.Context, mode accessor.AccessMode, v version.Number) error {
	var firstErr error
	for _, e := range f.extras {
		copy(e.Buffer().Channel(0), f.buf.Channel(0))
		for ch := 1; ch < f.buf.NumberOfChannels(); ch++ {
			copy(e.Buffer().Channel(ch), f.buf.Channel(ch))
		}
		if err := e.PreWrite(ctx, mode, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for ch := 0; ch < f.buf.NumberOfChannels(); ch++ {
		copy(f.target.Buffer().Channel(ch), f.buf.Channel(ch))
	}
	if err := f.target.PreWrite(ctx, mode, v); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (f *FanOut[T]) DoWriteTransfer(ctx context.Context, v version.Number) (dataLost bool) {
	for _, e := range f.extras {
		if e.DoWriteTransfer(ctx, v) {
			dataLost = true
		}
		if exc := e.ActiveException(); exc != nil && f.activeErr == nil {
			f.activeErr = exc
		}
	}
	if f.target.DoWriteTransfer(ctx, v) {
		dataLost = true
	}
	if exc := f.target.ActiveException(); exc != nil && f.activeErr == nil {
		f.activeErr = exc
	}
	if f.activeErr == nil {
		f.ver = version.Max(f.ver, v)
	}
	return dataLost
}

func (f *FanOut[T]) PostWrite(ctx context.Context, v version.Number) error {
	var firstErr error
	for _, e := range f.extras {
		if err := e.PostWrite(ctx, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := f.target.PostWrite(ctx, v); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr == nil && f.activeErr != nil {
		firstErr = f.activeErr
	}
	f.activeErr = nil
	return firstErr
}

func (f *FanOut[T]) Read(ctx context.Context) error {
	return f.PreRead(ctx, accessor.AccessMode{})
}

func (f *FanOut[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	return false, f.PreRead(ctx, accessor.AccessMode{})
}

func (f *FanOut[T]) ReadLatest(ctx context.Context) (bool, error) {
	return false, f.PreRead(ctx, accessor.AccessMode{})
}

func (f *FanOut[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, f, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*FanOut[int32])(nil)
