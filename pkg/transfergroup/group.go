// Package transfergroup merges several accessors' low-level transfers into
// one read()/write() call, so registers backed by the same hardware
// transaction are only actually touched once (spec §4.10), grounded on
// original_source/src/TransferGroup.cc.
package transfergroup

import (
	"context"
	"sync"
	"time"

	"github.com/ctkgo/deviceaccess/internal/obsmetrics"
	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/shared"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Group merges a set of non-wait_for_new_data-capable accessors so their
// read/write calls share the hardware transactions their low-level
// elements have in common. Unlike the original, which replaces internal
// elements in place via TransferElementAbstractor::replaceTransferElement,
// this port only deduplicates low-level (hardware-accessing) elements
// across high-level accessors added to the same Group; it does not try to
// splice a shared low-level element into the middle of an unrelated
// decorator chain that was never offered to Add.
type Group struct {
	name      string
	mu        sync.Mutex
	highLevel []accessor.TransferElement
	lowLevel  []accessor.TransferElement
}

// New returns an empty, unnamed Group. Its merge-ratio metric (if metrics
// are enabled) is published under the empty group label; use NewNamed to
// distinguish several groups in the same process.
func New() *Group {
	return &Group{}
}

// NewNamed returns an empty Group whose merge-ratio and transfer metrics
// are published under name (typically the owning device's CDD address).
func NewNamed(name string) *Group {
	return &Group{name: name}
}

// Add registers elem with the group, merging its hardware-accessing
// elements into the group's deduplicated low-level set. An accessor
// already added to this group is rejected with a LogicError. Accessors
// using wait_for_new_data are not detected and are not rejected.
func (g *Group) Add(elem accessor.TransferElement) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// The original rejects an accessor that was opened with
	// wait_for_new_data, since polling it inline during Read would block
	// the whole group. Accessor[T] does not expose the AccessMode it was
	// originally opened with (only SupportsAccessMode, a capability
	// check), so that rejection is the caller's responsibility here:
	// don't Add a push-type accessor to a Group.
	for _, hl := range g.highLevel {
		if hl.ID().Equal(elem.ID()) {
			return deverrs.NewLogicError("transfergroup.Add", "accessor %q is already in this TransferGroup", elem.Name())
		}
	}

	for _, le := range elem.HardwareAccessingElements() {
		g.mergeLowLevelLocked(le)
	}
	g.highLevel = append(g.highLevel, elem)
	obsmetrics.RecordMerge(g.name, len(g.highLevel), len(g.lowLevel))
	return nil
}

// mergeLowLevelLocked folds le into the group's low-level set: if an
// already-registered low-level element may replace le (same
// backend register, compatible window), le adopts it as its own target so
// the redundant transfer is never issued; otherwise le is registered as a
// new low-level element.
func (g *Group) mergeLowLevelLocked(le accessor.TransferElement) {
	for _, existing := range g.lowLevel {
		if existing.ID().Equal(le.ID()) {
			return
		}
		if existing.MayReplaceOther(le) {
			le.ReplaceTransferElement(existing)
			shared.CombineTransferSharedStates(le.ID(), existing.ID())
			return
		}
	}
	shared.AddTransferElement(le.ID())
	g.lowLevel = append(g.lowLevel, le)
}

// NumberOfLowLevelElements reports how many distinct hardware transactions
// this group's merge collapsed its high-level accessors down to; used by
// the merge-ratio metric (spec §3 "per-TransferGroup merge ratio").
func (g *Group) NumberOfLowLevelElements() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lowLevel)
}

// NumberOfHighLevelElements reports how many accessors were added to the
// group.
func (g *Group) NumberOfHighLevelElements() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.highLevel)
}

// Close releases this group's claim on its low-level elements' shared
// instance-count bookkeeping.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, le := range g.lowLevel {
		shared.RemoveTransferElement(le.ID())
	}
	g.lowLevel = nil
	g.highLevel = nil
	obsmetrics.RecordMerge(g.name, 0, 0)
}

// Read runs preRead on every high-level accessor, then doReadTransfer on
// every distinct low-level element, then postRead on every high-level
// accessor — in that order, regardless of where a failure occurs, mirror-
// ing TransferGroup::read's "always run every postRead" guarantee. The
// first LogicError encountered during preRead aborts the whole group
// immediately, since a LogicError can never have started a transfer
// anywhere. The first RuntimeError captured during the transfer phase is
// what every high-level accessor's postRead observes and is also this
// call's return value.
func (g *Group) Read(ctx context.Context) error {
	start := time.Now()
	g.mu.Lock()
	highLevel := append([]accessor.TransferElement{}, g.highLevel...)
	lowLevel := append([]accessor.TransferElement{}, g.lowLevel...)
	g.mu.Unlock()

	var firstErr error
	for _, elem := range highLevel {
		if err := elem.PreRead(ctx, accessor.AccessMode{}); err != nil {
			if deverrs.IsLogic(err) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr == nil {
		for _, le := range lowLevel {
			if exc := deverrs.HandleTransferException("transfergroup.Read", func() error {
				le.DoReadTransfer(ctx)
				return nil
			}); exc != nil {
				le.SetActiveException(exc)
				if firstErr == nil {
					firstErr = exc
				}
			}
		}
	}

	hasNewData := firstErr == nil
	for _, elem := range highLevel {
		if err := elem.PostRead(ctx, hasNewData); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	obsmetrics.RecordTransfer(g.name, "read", time.Since(start), firstErr)
	return firstErr
}

// Write runs preWrite on every high-level accessor, doWriteTransfer on
// every distinct low-level element, then postWrite on every high-level
// accessor, mirroring TransferGroup::write.
func (g *Group) Write(ctx context.Context, v version.Number) error {
	start := time.Now()
	g.mu.Lock()
	highLevel := append([]accessor.TransferElement{}, g.highLevel...)
	lowLevel := append([]accessor.TransferElement{}, g.lowLevel...)
	g.mu.Unlock()

	var firstErr error
	for _, elem := range highLevel {
		if err := elem.PreWrite(ctx, accessor.AccessMode{}, v); err != nil {
			if deverrs.IsLogic(err) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr == nil {
		for _, le := range lowLevel {
			if exc := deverrs.HandleTransferException("transfergroup.Write", func() error {
				le.DoWriteTransfer(ctx, v)
				return nil
			}); exc != nil {
				le.SetActiveException(exc)
				if firstErr == nil {
					firstErr = exc
				}
			}
		}
	}

	for _, elem := range highLevel {
		if err := elem.PostWrite(ctx, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	obsmetrics.RecordTransfer(g.name, "write", time.Since(start), firstErr)
	return firstErr
}

// IsReadable reports whether every accessor in the group is readable.
func (g *Group) IsReadable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, elem := range g.highLevel {
		if !elem.IsReadable() {
			return false
		}
	}
	return true
}

// IsWriteable reports whether every accessor in the group is writeable.
func (g *Group) IsWriteable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, elem := range g.highLevel {
		if !elem.IsWriteable() {
			return false
		}
	}
	return true
}
