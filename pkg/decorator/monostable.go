package decorator

import (
	"context"
	"sync"
	"time"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Monostable is a write-only pulse decorator: writing any value emits
// activeValue to the target, holds it for duration, then emits
// inactiveValue (spec §4.9 "MonostableTrigger: writing any value emits
// active, sleeps milliseconds, then emits inactive. Not readable."),
// grounded on LNMMonostableTriggerPlugin.cc. A write that arrives while a
// previous pulse is still in flight does not wait for that pulse to
// finish; it reports dataLost=true, since its own activation edge was
// absorbed by the pulse already running.
type Monostable[T any] struct {
	target        accessor.Accessor[T]
	activeValue   T
	inactiveValue T
	duration      time.Duration
	buf           *accessor.Buffer[T]

	mu       sync.Mutex
	inFlight bool
}

func NewMonostable[T any](target accessor.Accessor[T], activeValue, inactiveValue T, duration time.Duration) *Monostable[T] {
	return &Monostable[T]{
		target:        target,
		activeValue:   activeValue,
		inactiveValue: inactiveValue,
		duration:      duration,
		buf:           accessor.NewBuffer[T](1, 1),
	}
}

func (m *Monostable[T]) ID() accessor.ID          { return m.target.ID() }
func (m *Monostable[T]) Name() string             { return m.target.Name() }
func (m *Monostable[T]) Buffer() *accessor.Buffer[T] { return m.buf }
func (m *Monostable[T]) IsReadable() bool         { return false }
func (m *Monostable[T]) IsWriteable() bool        { return m.target.IsWriteable() }

func (m *Monostable[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	return !mode.WaitForNewData && m.target.SupportsAccessMode(mode)
}

func (m *Monostable[T]) Version() version.Number              { return m.target.Version() }
func (m *Monostable[T]) Validity() version.Validity            { return m.target.Validity() }
func (m *Monostable[T]) ActiveException() *deverrs.RuntimeError { return m.target.ActiveException() }

func (m *Monostable[T]) SetActiveException(err *deverrs.RuntimeError) {
	m.target.SetActiveException(err)
}

func (m *Monostable[T]) HardwareAccessingElements() []accessor.TransferElement {
	return m.target.HardwareAccessingElements()
}

func (m *Monostable[T]) MayReplaceOther(accessor.TransferElement) bool { return false }
func (m *Monostable[T]) ReplaceTransferElement(accessor.TransferElement) {}

func (m *Monostable[T]) PreRead(context.Context, accessor.AccessMode) error {
	return deverrs.NewLogicError("Monostable.PreRead", "register %q is write-only", m.Name())
}

func (m *Monostable[T]) DoReadTransfer(context.Context) bool { return false }

func (m *Monostable[T]) PostRead(context.Context, bool) error {
	return deverrs.NewLogicError("Monostable.PostRead", "register %q is write-only", m.Name())
}

func (m *Monostable[T]) PreWrite(_ context.Context, _ accessor.AccessMode, _ version.Number) error {
	if !m.target.IsWriteable() {
		return deverrs.NewLogicError("Monostable.PreWrite", "target of %q is not writeable", m.Name())
	}
	return nil
}

// DoWriteTransfer runs the full active-hold-inactive pulse against the
// target, each half a complete nested write transfer on the target
// accessor.
func (m *Monostable[T]) DoWriteTransfer(ctx context.Context, v version.Number) (dataLost bool) {
	m.mu.Lock()
	dataLost = m.inFlight
	m.inFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	m.target.Buffer().Channel(0)[0] = m.activeValue
	if _, err := m.target.Write(ctx, v); err != nil {
		m.SetActiveException(deverrs.WrapRuntime("Monostable.DoWriteTransfer", err))
		return dataLost
	}

	select {
	case <-time.After(m.duration):
	case <-ctx.Done():
	}

	m.target.Buffer().Channel(0)[0] = m.inactiveValue
	if _, err := m.target.Write(ctx, version.New()); err != nil {
		m.SetActiveException(deverrs.WrapRuntime("Monostable.DoWriteTransfer", err))
	}
	return dataLost
}

func (m *Monostable[T]) PostWrite(context.Context, version.Number) error {
	if exc := m.ActiveException(); exc != nil {
		return exc
	}
	return nil
}

func (m *Monostable[T]) Read(ctx context.Context) error {
	return m.PreRead(ctx, accessor.AccessMode{})
}

func (m *Monostable[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	return false, m.PreRead(ctx, accessor.AccessMode{})
}

func (m *Monostable[T]) ReadLatest(ctx context.Context) (bool, error) {
	return false, m.PreRead(ctx, accessor.AccessMode{})
}

func (m *Monostable[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, m, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*Monostable[int32])(nil)
