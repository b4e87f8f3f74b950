package decorator

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/lnm/variabletable"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Variable is a leaf accessor backed by variabletable.Table rather than
// any backend's hardware, used for the LNM VARIABLE and CONSTANT register
// types (spec §4.9 "Variable: constant/in-memory-backed accessor"),
// grounded on LNMVariable.h / LNMBackendVariableAccessor.h. A CONSTANT is
// simply a Variable constructed writeable=false with its value Set once
// up front by the plugin host.
type Variable[T any] struct {
	id        accessor.ID
	name      string
	table     *variabletable.Table
	path      string
	writeable bool

	buf         *accessor.Buffer[T]
	ver         version.Number
	validity    version.Validity
	activeErr   *deverrs.RuntimeError
	pendingMode accessor.AccessMode
	waitCh      <-chan struct{}
	unsubscribe func()
}

func NewVariable[T any](table *variabletable.Table, path string, numElements int, writeable bool) *Variable[T] {
	return &Variable[T]{
		id:        accessor.NewID(),
		name:      path,
		table:     table,
		path:      path,
		writeable: writeable,
		buf:       accessor.NewBuffer[T](1, numElements),
	}
}

func (v *Variable[T]) ID() accessor.ID             { return v.id }
func (v *Variable[T]) Name() string                { return v.name }
func (v *Variable[T]) Buffer() *accessor.Buffer[T] { return v.buf }
func (v *Variable[T]) IsReadable() bool            { return true }
func (v *Variable[T]) IsWriteable() bool           { return v.writeable }

func (v *Variable[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	return !mode.Raw
}

func (v *Variable[T]) Version() version.Number              { return v.ver }
func (v *Variable[T]) Validity() version.Validity            { return v.validity }
func (v *Variable[T]) ActiveException() *deverrs.RuntimeError { return v.activeErr }
func (v *Variable[T]) SetActiveException(err *deverrs.RuntimeError) { v.activeErr = err }

func (v *Variable[T]) HardwareAccessingElements() []accessor.TransferElement {
	return []accessor.TransferElement{v}
}

func (v *Variable[T]) MayReplaceOther(other accessor.TransferElement) bool {
	ov, ok := other.(*Variable[T])
	if !ok {
		return false
	}
	return ov.table == v.table && ov.path == v.path
}

func (v *Variable[T]) ReplaceTransferElement(accessor.TransferElement) {}

func (v *Variable[T]) PreRead(_ context.Context, mode accessor.AccessMode) error {
	if mode.Raw {
		return deverrs.NewLogicError("Variable.PreRead", "register %q has no raw representation", v.name)
	}
	v.pendingMode = mode
	if mode.WaitForNewData && v.waitCh == nil {
		v.waitCh, v.unsubscribe = v.table.WaitChanged(v.path)
	}
	return nil
}

func (v *Variable[T]) DoReadTransfer(ctx context.Context) (hasNewData bool) {
	if v.pendingMode.WaitForNewData {
		select {
		case <-v.waitCh:
		case <-ctx.Done():
			v.activeErr = deverrs.WrapRuntime("Variable.DoReadTransfer", ctx.Err())
			return false
		}
	}

	value, validity, ver, err := variabletable.Get[T](v.table, v.path)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			v.activeErr = nil
			return false
		}
		v.activeErr = deverrs.WrapRuntime("Variable.DoReadTransfer", err)
		return false
	}
	v.activeErr = nil

	hasNewData = v.ver.IsNil() || ver.After(v.ver)
	if hasNewData {
		copy(v.buf.Channel(0), value)
		v.ver = version.Max(v.ver, ver)
		v.validity = validity
	}
	return hasNewData
}

func (v *Variable[T]) PostRead(context.Context, bool) error {
	if v.activeErr != nil {
		return v.activeErr
	}
	return nil
}

func (v *Variable[T]) PreWrite(_ context.Context, _ accessor.AccessMode, _ version.Number) error {
	if !v.writeable {
		return deverrs.NewLogicError("Variable.PreWrite", "register %q is not writeable", v.name)
	}
	return nil
}

func (v *Variable[T]) DoWriteTransfer(_ context.Context, versionNumber version.Number) (dataLost bool) {
	if err := variabletable.Set[T](v.table, v.path, v.buf.Channel(0), version.OK, versionNumber); err != nil {
		v.activeErr = deverrs.WrapRuntime("Variable.DoWriteTransfer", err)
		return false
	}
	v.activeErr = nil
	v.ver = version.Max(v.ver, versionNumber)
	return false
}

func (v *Variable[T]) PostWrite(context.Context, version.Number) error {
	if v.activeErr != nil {
		return v.activeErr
	}
	return nil
}

func (v *Variable[T]) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, v, accessor.AccessMode{})
}

func (v *Variable[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := v.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := v.DoReadTransfer(ctx)
	if err := v.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (v *Variable[T]) ReadLatest(ctx context.Context) (bool, error) {
	return v.ReadNonBlocking(ctx)
}

func (v *Variable[T]) Write(ctx context.Context, ver version.Number) (bool, error) {
	return accessor.RunWrite(ctx, v, accessor.AccessMode{}, ver)
}

var _ accessor.Accessor[int32] = (*Variable[int32])(nil)
