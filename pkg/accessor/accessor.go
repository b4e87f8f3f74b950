package accessor

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Accessor is the typed half of the transfer protocol: TransferElement
// plus access to the 2-D user buffer of UserType T (spec §3
// NDRegisterAccessor<UserType>).
type Accessor[T any] interface {
	TransferElement

	Buffer() *Buffer[T]

	// Read runs the full preRead/doReadTransfer/postRead sequence for
	// single-accessor use outside of a TransferGroup.
	Read(ctx context.Context) error
	// ReadNonBlocking is Read but never blocks for wait_for_new_data; it
	// reports hasNewData=false instead of waiting when none is pending.
	ReadNonBlocking(ctx context.Context) (hasNewData bool, err error)
	// ReadLatest drains any backlog of pending pushed values and returns
	// only the most recent one.
	ReadLatest(ctx context.Context) (hasNewData bool, err error)
	// Write runs the full preWrite/doWriteTransfer/postWrite sequence.
	Write(ctx context.Context, versionNumber version.Number) (dataLost bool, err error)
}

// RunRead executes the three-phase read protocol against any
// TransferElement plus its typed buffer access, shared by Accessor.Read
// implementations and by TransferGroup for ungrouped single-element
// reads. mode carries the access-mode flags under which the accessor was
// obtained.
func RunRead(ctx context.Context, e TransferElement, mode AccessMode) error {
	if err := e.PreRead(ctx, mode); err != nil {
		return err
	}
	hasNewData := e.DoReadTransfer(ctx)
	if exc := e.ActiveException(); exc != nil {
		hasNewData = false
	}
	return e.PostRead(ctx, hasNewData)
}

// RunWrite executes the three-phase write protocol.
func RunWrite(ctx context.Context, e TransferElement, mode AccessMode, v version.Number) (dataLost bool, err error) {
	if err := e.PreWrite(ctx, mode, v); err != nil {
		return false, err
	}
	dataLost = e.DoWriteTransfer(ctx, v)
	if err := e.PostWrite(ctx, v); err != nil {
		return dataLost, err
	}
	return dataLost, nil
}
