// Package accessor defines the transfer-protocol contract every register
// accessor obeys (spec §4.1) and the generic typed accessor interface
// decorators and backends build on.
package accessor

import (
	"context"

	"github.com/google/uuid"

	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// ID uniquely identifies a concrete transfer-performing accessor; used as
// the key to the per-target instance count maintained by
// shared.AddTransferElement/InstanceCount and to the TransferGroup's
// merged low-level element set (spec §3 TransferElementID).
type ID struct{ v uuid.UUID }

// NewID allocates a fresh accessor identity.
func NewID() ID { return ID{v: uuid.New()} }

func (id ID) String() string { return id.v.String() }
func (id ID) IsZero() bool   { return id.v == uuid.Nil }
func (a ID) Equal(b ID) bool { return a.v == b.v }

// AccessMode is the set of optional behaviors drawn from {Raw,
// WaitForNewData} a caller may request on an accessor (spec §3
// AccessModeFlags). A backend or decorator that cannot honour a
// requested flag rejects the request with a *deverrs.LogicError.
type AccessMode struct {
	Raw            bool
	WaitForNewData bool
}

// Subset reports whether every flag set in m is also set in capable.
func (m AccessMode) Subset(capable AccessMode) bool {
	if m.Raw && !capable.Raw {
		return false
	}
	if m.WaitForNewData && !capable.WaitForNewData {
		return false
	}
	return true
}

// TransferElement is the type-erased half of the transfer protocol:
// every concrete accessor (decorator or leaf) implements it regardless of
// its UserType, which is what lets TransferGroup hold a heterogeneous set
// of accessors and what lets SharedAccessors key its instance-count map
// by ID alone.
//
// Contract (spec §4.1, §7):
//   - PreRead/PreWrite may return a *deverrs.LogicError (propagates to the
//     caller synchronously) but once a transfer has actually started
//     somewhere in the stack must not return a RuntimeError; transient
//     failure from that point on is carried via DoReadTransfer/
//     DoWriteTransfer's internal capture, never returned here as an error.
//   - DoReadTransfer/DoWriteTransfer never return an error value to the
//     caller: a transient failure is captured into the element's active
//     exception slot (SetActiveException) and surfaces only when PostRead/
//     PostWrite consult it.
//   - PostRead/PostWrite must run whenever PreRead/PreWrite ran, even if
//     an error was captured; they release locks, restore any swapped
//     buffer, and either consume or re-return the captured exception.
type TransferElement interface {
	ID() ID
	Name() string

	IsReadable() bool
	IsWriteable() bool
	SupportsAccessMode(AccessMode) bool

	Version() version.Number
	Validity() version.Validity

	// ActiveException returns the captured runtime error, if any, left by
	// the most recent DoReadTransfer/DoWriteTransfer call.
	ActiveException() *deverrs.RuntimeError
	SetActiveException(*deverrs.RuntimeError)

	// HardwareAccessingElements returns the set of low-level elements
	// that actually touch hardware, descended to from this element's
	// target chain. A leaf accessor returns itself.
	HardwareAccessingElements() []TransferElement

	// MayReplaceOther reports whether other can be substituted as this
	// element's low-level target because it performs an equivalent
	// transfer (same backend, same register, compatible window). Used by
	// TransferGroup merging (spec §4.10).
	MayReplaceOther(other TransferElement) bool

	// ReplaceTransferElement asks this element to adopt other as its
	// target, recursively, wherever MayReplaceOther says it can. No-op if
	// it cannot.
	ReplaceTransferElement(other TransferElement)

	PreRead(ctx context.Context, mode AccessMode) error
	// DoReadTransfer performs exactly one hardware read and reports
	// whether it produced new data; any transient failure is captured via
	// SetActiveException rather than returned.
	DoReadTransfer(ctx context.Context) (hasNewData bool)
	PostRead(ctx context.Context, hasNewData bool) error

	PreWrite(ctx context.Context, mode AccessMode, versionNumber version.Number) error
	// DoWriteTransfer performs exactly one hardware write and reports
	// whether data was lost (e.g. a pending monostable write overwritten
	// before the previous one completed); failures are captured via
	// SetActiveException.
	DoWriteTransfer(ctx context.Context, versionNumber version.Number) (dataLost bool)
	PostWrite(ctx context.Context, versionNumber version.Number) error
}
