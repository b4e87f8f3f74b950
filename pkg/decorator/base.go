// Package decorator implements the composable transformations applied on
// top of a raw accessor (spec §1.1, §4.2, §4.6, §4.7): fixed-point/IEEE-754
// conversion, bit extraction, sub-array windowing, forced read-only/
// polling, monostable triggers, double-buffering, fan-out and the LNM
// plugin set. Some decorators implement accessor.Accessor[T] directly
// around a target accessor.Accessor[U]; others embed Base and override the
// phases that differ, and then also redeclare Read/ReadNonBlocking/
// ReadLatest/Write, because Base's promoted versions would run the
// transfer protocol on the embedded Base and skip those overrides. Either
// way every decorator calls down to its target explicitly.
package decorator

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Base wraps a target Accessor[U] and performs a pure, stateless
// element-wise conversion between the target's UserType U and this
// decorator's cooked type T on every transfer. It is the common plumbing
// for FixedPoint, IEEE754, Multiplier and similar decorators (spec
// §4.2/§4.3/§4.4/§4.6); decorators with extra behavior (shared buffers,
// write suppression, capability stripping) embed Base and override only
// the methods that differ.
type Base[T, U any] struct {
	Target accessor.Accessor[U]
	buf    *accessor.Buffer[T]

	// ToCooked/FromCooked convert one element each way. Either may be nil
	// if the decorator is one-directional (e.g. a read-only conversion).
	ToCooked   func(U) T
	FromCooked func(T) U
}

// NewBase constructs a Base with a buffer shaped like target's.
func NewBase[T, U any](target accessor.Accessor[U], toCooked func(U) T, fromCooked func(T) U) *Base[T, U] {
	tbuf := target.Buffer()
	return &Base[T, U]{
		Target:     target,
		buf:        accessor.NewBuffer[T](tbuf.NumberOfChannels(), tbuf.NumberOfSamples()),
		ToCooked:   toCooked,
		FromCooked: fromCooked,
	}
}

func (b *Base[T, U]) ID() accessor.ID             { return b.Target.ID() }
func (b *Base[T, U]) Name() string                { return b.Target.Name() }
func (b *Base[T, U]) Buffer() *accessor.Buffer[T] { return b.buf }
func (b *Base[T, U]) IsReadable() bool            { return b.Target.IsReadable() }
func (b *Base[T, U]) IsWriteable() bool           { return b.Target.IsWriteable() }

func (b *Base[T, U]) SupportsAccessMode(mode accessor.AccessMode) bool {
	return b.Target.SupportsAccessMode(mode)
}

func (b *Base[T, U]) Version() version.Number   { return b.Target.Version() }
func (b *Base[T, U]) Validity() version.Validity { return b.Target.Validity() }

func (b *Base[T, U]) ActiveException() *deverrs.RuntimeError { return b.Target.ActiveException() }

func (b *Base[T, U]) SetActiveException(err *deverrs.RuntimeError) {
	b.Target.SetActiveException(err)
}

func (b *Base[T, U]) HardwareAccessingElements() []accessor.TransferElement {
	return b.Target.HardwareAccessingElements()
}

func (b *Base[T, U]) MayReplaceOther(other accessor.TransferElement) bool {
	return b.Target.MayReplaceOther(other)
}

func (b *Base[T, U]) ReplaceTransferElement(other accessor.TransferElement) {
	b.Target.ReplaceTransferElement(other)
}

func (b *Base[T, U]) PreRead(ctx context.Context, mode accessor.AccessMode) error {
	return b.Target.PreRead(ctx, mode)
}

func (b *Base[T, U]) DoReadTransfer(ctx context.Context) bool {
	return b.Target.DoReadTransfer(ctx)
}

// PostRead runs the target's PostRead and, on success with new data,
// converts every element of the target buffer into this decorator's
// cooked buffer.
func (b *Base[T, U]) PostRead(ctx context.Context, hasNewData bool) error {
	err := b.Target.PostRead(ctx, hasNewData)
	if hasNewData && b.ToCooked != nil {
		b.convertFromTarget()
	}
	return err
}

func (b *Base[T, U]) convertFromTarget() {
	tbuf := b.Target.Buffer()
	for ch := 0; ch < b.buf.NumberOfChannels(); ch++ {
		dst := b.buf.Channel(ch)
		src := tbuf.Channel(ch)
		for i := range dst {
			dst[i] = b.ToCooked(src[i])
		}
	}
}

func (b *Base[T, U]) convertToTarget() {
	tbuf := b.Target.Buffer()
	for ch := 0; ch < b.buf.NumberOfChannels(); ch++ {
		src := b.buf.Channel(ch)
		dst := tbuf.Channel(ch)
		for i := range src {
			dst[i] = b.FromCooked(src[i])
		}
	}
}

// PreWrite converts this decorator's cooked buffer into the target buffer
// before delegating to the target's PreWrite.
func (b *Base[T, U]) PreWrite(ctx context.Context, mode accessor.AccessMode, v version.Number) error {
	if b.FromCooked != nil {
		b.convertToTarget()
	}
	return b.Target.PreWrite(ctx, mode, v)
}

func (b *Base[T, U]) DoWriteTransfer(ctx context.Context, v version.Number) bool {
	return b.Target.DoWriteTransfer(ctx, v)
}

func (b *Base[T, U]) PostWrite(ctx context.Context, v version.Number) error {
	return b.Target.PostWrite(ctx, v)
}

func (b *Base[T, U]) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, b, accessor.AccessMode{})
}

func (b *Base[T, U]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := b.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := b.DoReadTransfer(ctx)
	if err := b.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (b *Base[T, U]) ReadLatest(ctx context.Context) (bool, error) {
	return b.ReadNonBlocking(ctx)
}

func (b *Base[T, U]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, b, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*Base[int32, uint32])(nil)
