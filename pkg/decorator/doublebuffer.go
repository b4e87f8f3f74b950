package decorator

import (
	"context"
	"sync/atomic"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// ReaderCount is the reader-in-flight tally a firmware double-buffer pair
// shares across every DoubleBuffer decorator reading it: the buffer swap
// stays disabled as long as the count is above zero. One ReaderCount is
// constructed per firmware instance and passed to every DoubleBuffer
// built against it.
type ReaderCount = atomic.Uint32

// DoubleBuffer arbitrates a firmware-managed double buffer (spec §4.9
// "DoubleBuffer": read-only, disables firmware buffer swap for the
// duration of a read, reads the currently-inactive buffer, re-enables
// swap once the last concurrent reader finishes), grounded on
// LNMDoubleBufferPlugin.cc. Per OQ1, the raw access mode is not
// supported and is rejected with a LogicError.
type DoubleBuffer[T any] struct {
	primary     accessor.Accessor[T]
	secondary   accessor.Accessor[T]
	enable      accessor.Accessor[uint32]
	current     accessor.Accessor[uint32]
	readerCount *ReaderCount

	buf          *accessor.Buffer[T]
	ver          version.Number
	validity     version.Validity
	activeErr    *deverrs.RuntimeError
	activeTarget accessor.Accessor[T]
}

// NewDoubleBuffer builds a DoubleBuffer over primary (buffer 0) and
// secondary (buffer 1), using enable to gate the firmware swap and
// current to learn which buffer the firmware is presently writing to.
func NewDoubleBuffer[T any](
	primary, secondary accessor.Accessor[T],
	enable, current accessor.Accessor[uint32],
	readerCount *ReaderCount,
) (*DoubleBuffer[T], error) {
	if primary.Buffer().NumberOfChannels() != secondary.Buffer().NumberOfChannels() ||
		primary.Buffer().NumberOfSamples() != secondary.Buffer().NumberOfSamples() {
		return nil, deverrs.NewLogicError("NewDoubleBuffer", "shapes of first and second buffer do not match")
	}
	return &DoubleBuffer[T]{
		primary:     primary,
		secondary:   secondary,
		enable:      enable,
		current:     current,
		readerCount: readerCount,
		buf:         accessor.NewBuffer[T](primary.Buffer().NumberOfChannels(), primary.Buffer().NumberOfSamples()),
	}, nil
}

func (d *DoubleBuffer[T]) ID() accessor.ID             { return d.primary.ID() }
func (d *DoubleBuffer[T]) Name() string                { return d.primary.Name() }
func (d *DoubleBuffer[T]) Buffer() *accessor.Buffer[T] { return d.buf }
func (d *DoubleBuffer[T]) IsReadable() bool            { return true }
func (d *DoubleBuffer[T]) IsWriteable() bool           { return false }

func (d *DoubleBuffer[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	if mode.Raw {
		return false
	}
	return d.primary.SupportsAccessMode(mode) && d.secondary.SupportsAccessMode(mode)
}

func (d *DoubleBuffer[T]) Version() version.Number               { return d.ver }
func (d *DoubleBuffer[T]) Validity() version.Validity             { return d.validity }
func (d *DoubleBuffer[T]) ActiveException() *deverrs.RuntimeError { return d.activeErr }
func (d *DoubleBuffer[T]) SetActiveException(err *deverrs.RuntimeError) { d.activeErr = err }

func (d *DoubleBuffer[T]) HardwareAccessingElements() []accessor.TransferElement {
	elems := append([]accessor.TransferElement{}, d.primary.HardwareAccessingElements()...)
	elems = append(elems, d.secondary.HardwareAccessingElements()...)
	return elems
}

func (d *DoubleBuffer[T]) MayReplaceOther(accessor.TransferElement) bool { return false }
func (d *DoubleBuffer[T]) ReplaceTransferElement(accessor.TransferElement) {}

// PreRead disables the firmware swap, learns which buffer is currently
// inactive (safe to read), and forwards to that buffer's target.
func (d *DoubleBuffer[T]) PreRead(ctx context.Context, mode accessor.AccessMode) error {
	if mode.Raw {
		return deverrs.NewLogicError("DoubleBuffer.PreRead", "register %q does not support the raw access mode", d.Name())
	}
	d.readerCount.Add(1)

	d.activeErr = deverrs.HandleTransferException("DoubleBuffer.PreRead", func() error {
		d.enable.Buffer().Channel(0)[0] = 0
		if _, err := d.enable.Write(ctx, version.New()); err != nil {
			return err
		}
		if _, err := d.current.Read(ctx); err != nil {
			return err
		}
		return nil
	})
	if d.activeErr != nil {
		d.activeTarget = nil
		return nil
	}

	if d.current.Buffer().Channel(0)[0] != 0 {
		d.activeTarget = d.primary
	} else {
		d.activeTarget = d.secondary
	}
	return d.activeTarget.PreRead(ctx, mode)
}

func (d *DoubleBuffer[T]) DoReadTransfer(ctx context.Context) (hasNewData bool) {
	if d.activeTarget == nil {
		return false
	}
	hasNewData = d.activeTarget.DoReadTransfer(ctx)
	if exc := d.activeTarget.ActiveException(); exc != nil {
		d.activeErr = exc
		return false
	}
	return hasNewData
}

// PostRead finishes the chosen target's read, releases this reader's
// share of the lock, and re-enables the firmware swap once the last
// concurrent reader has released it.
func (d *DoubleBuffer[T]) PostRead(ctx context.Context, hasNewData bool) error {
	var targetErr error
	if d.activeTarget != nil {
		targetErr = d.activeTarget.PostRead(ctx, hasNewData)
	}

	if d.readerCount.Add(^uint32(0)) == 0 {
		d.enable.Buffer().Channel(0)[0] = 1
		if _, err := d.enable.Write(ctx, version.New()); err != nil && d.activeErr == nil {
			d.activeErr = deverrs.WrapRuntime("DoubleBuffer.PostRead", err)
		}
	}

	if hasNewData && d.activeTarget != nil {
		d.validity = d.activeTarget.Validity()
		d.ver = version.New()
		for ch := 0; ch < d.buf.NumberOfChannels(); ch++ {
			copy(d.buf.Channel(ch), d.activeTarget.Buffer().Channel(ch))
		}
	}

	if d.activeErr != nil {
		exc := d.activeErr
		d.activeErr = nil
		return exc
	}
	return targetErr
}

func (d *DoubleBuffer[T]) PreWrite(context.Context, accessor.AccessMode, version.Number) error {
	return deverrs.NewLogicError("DoubleBuffer.PreWrite", "register %q is read-only", d.Name())
}

func (d *DoubleBuffer[T]) DoWriteTransfer(context.Context, version.Number) bool { return false }

func (d *DoubleBuffer[T]) PostWrite(context.Context, version.Number) error {
	return deverrs.NewLogicError("DoubleBuffer.PostWrite", "register %q is read-only", d.Name())
}

func (d *DoubleBuffer[T]) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, d, accessor.AccessMode{})
}

func (d *DoubleBuffer[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := d.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := d.DoReadTransfer(ctx)
	if err := d.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (d *DoubleBuffer[T]) ReadLatest(ctx context.Context) (bool, error) {
	return d.ReadNonBlocking(ctx)
}

func (d *DoubleBuffer[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, d, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*DoubleBuffer[int32])(nil)
