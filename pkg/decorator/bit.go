package decorator

import (
	"context"
	"fmt"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/shared"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// BitField decorates a single-word target register, exposing a cooked
// view of a fixed bit or bit span (spec §4.9's BitRange, Bit as its
// width=1 degenerate case), grounded on LNMBitRangeAccessPlugin.cc. Every
// BitField sharing the same shared.TargetKey serializes on the same
// CountedRecursiveMutex and reads/writes through the same shared raw
// word, so that a write through one bit field never clobbers bits a
// sibling field owns — the same shared-target pattern SubArray uses,
// just over a single word instead of an array window.
type BitField[T any] struct {
	target    accessor.Accessor[uint32]
	mutex     *shared.CountedRecursiveMutex
	sharedRaw *accessor.Buffer[uint32]
	toCooked  func(raw uint32) T
	toRaw     func(cooked T, raw uint32) uint32
	writeable bool

	buf            *accessor.Buffer[T]
	ver            version.Number
	validity       version.Validity
	pendingVersion version.Number
}

// NewBitField constructs a BitField over target, sharing target's raw
// word and lock with any sibling BitField constructed against the same
// key. toCooked extracts the cooked value from a freshly read raw word;
// toRaw splices a cooked value back into the most recently observed raw
// word on write.
func NewBitField[T any](target accessor.Accessor[uint32], key shared.TargetKey,
	toCooked func(raw uint32) T, toRaw func(cooked T, raw uint32) uint32) (*BitField[T], error) {
	sharedRaw, mutex, err := shared.GetTargetSharedState[uint32](key, 1, 1)
	if err != nil {
		return nil, err
	}
	return &BitField[T]{
		target:    target,
		mutex:     mutex,
		sharedRaw: sharedRaw,
		toCooked:  toCooked,
		toRaw:     toRaw,
		writeable: target.IsWriteable(),
		buf:       accessor.NewBuffer[T](1, 1),
	}, nil
}

// NewBit extracts a single bit of target as a version.Boolean (spec
// §4.9's BitRange with width=1 degenerates to this case; grounded on
// LNMBitRangeAccessPlugin.cc). key identifies target's physical word so
// that every Bit or BitRange decorating the same word shares one raw
// shadow and one lock, matching spec scenario S3.
func NewBit(target accessor.Accessor[uint32], bitIndex uint, key shared.TargetKey) (*BitField[version.Boolean], error) {
	mask := uint32(1) << bitIndex
	return NewBitField[version.Boolean](target, key,
		func(raw uint32) version.Boolean { return version.Boolean(raw&mask != 0) },
		func(cooked version.Boolean, raw uint32) uint32 {
			if cooked {
				return raw | mask
			}
			return raw &^ mask
		},
	)
}

// NewBitRange extracts a contiguous span of bits [offset, offset+width)
// from target as an unsigned integer, grounded on
// LNMBitRangeAccessPlugin.cc. key identifies target's physical word, as
// in NewBit.
func NewBitRange(target accessor.Accessor[uint32], offset, width uint, key shared.TargetKey) (*BitField[uint32], error) {
	mask := uint32(1)<<width - 1
	return NewBitField[uint32](target, key,
		func(raw uint32) uint32 { return (raw >> offset) & mask },
		func(cooked uint32, raw uint32) uint32 {
			return (raw &^ (mask << offset)) | ((cooked & mask) << offset)
		},
	)
}

func (b *BitField[T]) ID() accessor.ID             { return b.target.ID() }
func (b *BitField[T]) Name() string                { return b.target.Name() }
func (b *BitField[T]) Buffer() *accessor.Buffer[T] { return b.buf }
func (b *BitField[T]) IsReadable() bool            { return b.target.IsReadable() }
func (b *BitField[T]) IsWriteable() bool           { return b.writeable }

func (b *BitField[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	return b.target.SupportsAccessMode(mode)
}

func (b *BitField[T]) Version() version.Number    { return b.ver }
func (b *BitField[T]) Validity() version.Validity { return b.validity }

func (b *BitField[T]) ActiveException() *deverrs.RuntimeError { return b.target.ActiveException() }
func (b *BitField[T]) SetActiveException(err *deverrs.RuntimeError) {
	b.target.SetActiveException(err)
}

func (b *BitField[T]) HardwareAccessingElements() []accessor.TransferElement {
	return b.target.HardwareAccessingElements()
}

func (b *BitField[T]) MayReplaceOther(accessor.TransferElement) bool   { return false }
func (b *BitField[T]) ReplaceTransferElement(accessor.TransferElement) {}

func (b *BitField[T]) PreRead(ctx context.Context, mode accessor.AccessMode) error {
	token := shared.LockTokenFromContext(ctx)
	b.mutex.Lock(token)
	b.target.Buffer().Channel(0)[0] = b.sharedRaw.Channel(0)[0]
	if err := b.target.PreRead(ctx, mode); err != nil {
		b.mutex.Unlock(token)
		return err
	}
	return nil
}

func (b *BitField[T]) DoReadTransfer(ctx context.Context) bool {
	return b.target.DoReadTransfer(ctx)
}

func (b *BitField[T]) PostRead(ctx context.Context, hasNewData bool) error {
	defer b.mutex.Unlock(shared.LockTokenFromContext(ctx))
	err := b.target.PostRead(ctx, hasNewData)
	b.sharedRaw.Channel(0)[0] = b.target.Buffer().Channel(0)[0]
	if !hasNewData {
		return err
	}
	b.buf.Channel(0)[0] = b.toCooked(b.sharedRaw.Channel(0)[0])
	b.ver = version.Max(b.ver, b.target.Version())
	b.validity = b.target.Validity()
	return err
}

// PreWrite performs a read-remember-modify-write of the shared raw word:
// it re-reads target if readable to refresh the shadow, splices this
// field's new bits into it, and forwards the merged word to target's
// PreWrite.
func (b *BitField[T]) PreWrite(ctx context.Context, mode accessor.AccessMode, v version.Number) error {
	token := shared.LockTokenFromContext(ctx)
	b.mutex.Lock(token)
	if !b.writeable {
		b.mutex.Unlock(token)
		return deverrs.NewLogicError("BitField.PreWrite", "register %q is not writeable", b.Name())
	}

	if b.target.IsReadable() {
		b.target.Buffer().Channel(0)[0] = b.sharedRaw.Channel(0)[0]
		if err := b.target.Read(ctx); err != nil {
			b.mutex.Unlock(token)
			return err
		}
		b.sharedRaw.Channel(0)[0] = b.target.Buffer().Channel(0)[0]
	}

	b.sharedRaw.Channel(0)[0] = b.toRaw(b.buf.Channel(0)[0], b.sharedRaw.Channel(0)[0])
	b.target.Buffer().Channel(0)[0] = b.sharedRaw.Channel(0)[0]
	b.pendingVersion = version.Max(v, b.ver)

	if err := b.target.PreWrite(ctx, mode, b.pendingVersion); err != nil {
		b.mutex.Unlock(token)
		return err
	}
	return nil
}

func (b *BitField[T]) DoWriteTransfer(ctx context.Context, _ version.Number) (dataLost bool) {
	return b.target.DoWriteTransfer(ctx, b.pendingVersion)
}

func (b *BitField[T]) PostWrite(ctx context.Context, _ version.Number) error {
	defer b.mutex.Unlock(shared.LockTokenFromContext(ctx))
	err := b.target.PostWrite(ctx, b.pendingVersion)
	b.sharedRaw.Channel(0)[0] = b.target.Buffer().Channel(0)[0]
	if err == nil {
		b.ver = b.pendingVersion
	}
	return err
}

// Read is a top-level call: it mints a fresh LockToken for this one
// invocation so PreRead and PostRead agree on who holds the lock.
func (b *BitField[T]) Read(ctx context.Context) error {
	ctx = shared.ContextWithLockToken(ctx, shared.NewLockToken())
	return accessor.RunRead(ctx, b, accessor.AccessMode{})
}

func (b *BitField[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	ctx = shared.ContextWithLockToken(ctx, shared.NewLockToken())
	if err := b.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := b.DoReadTransfer(ctx)
	if err := b.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (b *BitField[T]) ReadLatest(ctx context.Context) (bool, error) {
	return b.ReadNonBlocking(ctx)
}

// Write is a top-level call: it mints a fresh LockToken for this one
// invocation so PreWrite and PostWrite agree on who holds the lock.
func (b *BitField[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	ctx = shared.ContextWithLockToken(ctx, shared.NewLockToken())
	return accessor.RunWrite(ctx, b, accessor.AccessMode{}, v)
}

// BitTargetKey builds the shared.TargetKey identifying a physical
// register word addressed by (backend, bar, address): the identity Bit
// and BitRange decorators over the same word must agree on, which is the
// physical address rather than any one XML entry's logical path, since
// several logical BIT entries can alias one physical register.
func BitTargetKey(backend any, bar uint64, address uint64) shared.TargetKey {
	return shared.TargetKey{Backend: backend, Path: fmt.Sprintf("bitfield@bar%d:0x%x", bar, address)}
}

var _ accessor.Accessor[uint32] = (*BitField[uint32])(nil)
