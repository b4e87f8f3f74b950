package accessor

import (
	"context"
	"sync"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// TransferFuncs supplies the hardware-facing half of a leaf accessor
// (spec §2 "Backend.makeAccessor" raw accessor, before any decorator is
// applied). Backends construct a Base[T] with the appropriate funcs
// instead of hand-rolling the transfer protocol for every register kind.
type TransferFuncs[T any] struct {
	// Read performs one hardware read into buf, reporting whether it
	// produced new data and what validity the data carries. Nil means the
	// accessor is not readable.
	Read func(ctx context.Context, buf *Buffer[T]) (hasNewData bool, validity version.Validity, err error)
	// Write performs one hardware write from buf, reporting whether data
	// was lost. Nil means the accessor is not writeable.
	Write func(ctx context.Context, buf *Buffer[T]) (dataLost bool, err error)
}

// Base is the leaf implementation of Accessor[T]: it owns the user
// buffer directly and delegates the actual I/O to TransferFuncs. Backends
// (DummyBackend, SharedDummyBackend, SubdeviceBackend, the LNM target
// accessors) construct Base values rather than reimplementing the
// transfer protocol per register kind.
type Base[T any] struct {
	id   ID
	name string
	buf  *Buffer[T]

	capability AccessMode
	funcs      TransferFuncs[T]

	// mergeKey identifies the hardware target this element performs I/O
	// against; two Base elements with equal, non-nil mergeKeys may be
	// merged by TransferGroup (MayReplaceOther).
	mergeKey any

	mu        sync.Mutex
	ver       version.Number
	validity  version.Validity
	activeErr *deverrs.RuntimeError
}

// NewBase constructs a leaf accessor. mergeKey should be comparable and
// unique per (backend, register, window); pass nil to opt the element out
// of TransferGroup merging.
func NewBase[T any](name string, numChannels, numSamples int, capability AccessMode, funcs TransferFuncs[T], mergeKey any) *Base[T] {
	return &Base[T]{
		id:         NewID(),
		name:       name,
		buf:        NewBuffer[T](numChannels, numSamples),
		capability: capability,
		funcs:      funcs,
		mergeKey:   mergeKey,
		validity:   version.OK,
	}
}

func (b *Base[T]) ID() ID             { return b.id }
func (b *Base[T]) Name() string       { return b.name }
func (b *Base[T]) Buffer() *Buffer[T] { return b.buf }
func (b *Base[T]) IsReadable() bool   { return b.funcs.Read != nil }
func (b *Base[T]) IsWriteable() bool  { return b.funcs.Write != nil }

func (b *Base[T]) SupportsAccessMode(mode AccessMode) bool {
	return mode.Subset(b.capability)
}

func (b *Base[T]) Version() version.Number {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ver
}

func (b *Base[T]) Validity() version.Validity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validity
}

func (b *Base[T]) ActiveException() *deverrs.RuntimeError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeErr
}

func (b *Base[T]) SetActiveException(err *deverrs.RuntimeError) {
	b.mu.Lock()
	b.activeErr = err
	b.mu.Unlock()
}

func (b *Base[T]) HardwareAccessingElements() []TransferElement { return []TransferElement{b} }

func (b *Base[T]) MayReplaceOther(other TransferElement) bool {
	if b.mergeKey == nil {
		return false
	}
	ob, ok := other.(*Base[T])
	if !ok {
		return false
	}
	return ob.mergeKey == b.mergeKey
}

// ReplaceTransferElement is a no-op on a leaf: there is nothing below it
// to substitute. TransferGroup instead keeps whichever of the two equal
// leaves it saw first and drops the duplicate from lowLevelElements.
func (b *Base[T]) ReplaceTransferElement(TransferElement) {}

func (b *Base[T]) PreRead(_ context.Context, mode AccessMode) error {
	if !b.IsReadable() {
		return deverrs.NewLogicError("PreRead", "register %q is not readable", b.name)
	}
	if !mode.Subset(b.capability) {
		return deverrs.NewLogicError("PreRead", "register %q does not support the requested access mode", b.name)
	}
	return nil
}

func (b *Base[T]) DoReadTransfer(ctx context.Context) (hasNewData bool) {
	var validity version.Validity
	runtimeErr := deverrs.HandleTransferException("DoReadTransfer", func() error {
		var err error
		hasNewData, validity, err = b.funcs.Read(ctx, b.buf)
		return err
	})
	b.SetActiveException(runtimeErr)
	if runtimeErr != nil {
		return false
	}
	if hasNewData {
		b.mu.Lock()
		b.ver = version.New()
		b.validity = validity
		b.mu.Unlock()
	}
	return hasNewData
}

func (b *Base[T]) PostRead(_ context.Context, _ bool) error {
	if exc := b.ActiveException(); exc != nil {
		return exc
	}
	return nil
}

func (b *Base[T]) PreWrite(_ context.Context, mode AccessMode, _ version.Number) error {
	if !b.IsWriteable() {
		return deverrs.NewLogicError("PreWrite", "register %q is not writeable", b.name)
	}
	if !mode.Subset(b.capability) {
		return deverrs.NewLogicError("PreWrite", "register %q does not support the requested access mode", b.name)
	}
	return nil
}

func (b *Base[T]) DoWriteTransfer(ctx context.Context, versionNumber version.Number) (dataLost bool) {
	runtimeErr := deverrs.HandleTransferException("DoWriteTransfer", func() error {
		var err error
		dataLost, err = b.funcs.Write(ctx, b.buf)
		return err
	})
	b.SetActiveException(runtimeErr)
	if runtimeErr == nil {
		b.mu.Lock()
		b.ver = version.Max(b.ver, versionNumber)
		b.mu.Unlock()
	}
	return dataLost
}

func (b *Base[T]) PostWrite(_ context.Context, _ version.Number) error {
	if exc := b.ActiveException(); exc != nil {
		return exc
	}
	return nil
}

func (b *Base[T]) Read(ctx context.Context) error {
	return RunRead(ctx, b, AccessMode{})
}

func (b *Base[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := b.PreRead(ctx, AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := b.DoReadTransfer(ctx)
	if err := b.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (b *Base[T]) ReadLatest(ctx context.Context) (bool, error) {
	return b.ReadNonBlocking(ctx)
}

func (b *Base[T]) Write(ctx context.Context, versionNumber version.Number) (bool, error) {
	return RunWrite(ctx, b, AccessMode{}, versionNumber)
}

// ForceValidity combines v into the validity recorded by the last
// successful read or write (a faulty v marks it faulty; an OK v leaves it
// as it was), used by decorators that detect degradation after the fact
// (e.g. a fixed-point conversion that had to clamp).
func (b *Base[T]) ForceValidity(v version.Validity) {
	b.mu.Lock()
	b.validity = version.Combine(b.validity, v)
	b.mu.Unlock()
}

var _ Accessor[int32] = (*Base[int32])(nil)
