package shared

import (
	"reflect"
	"sync"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
)

// TargetKey identifies a hardware register that several independently
// constructed decorators may need to share a single buffer and lock for
// (spec §4.9). Backend should be a stable, comparable identity for the
// owning backend instance (typically the backend's own pointer).
type TargetKey struct {
	Backend any
	Path    string
}

type targetSharedState struct {
	Mutex  CountedRecursiveMutex
	typ    reflect.Type
	buffer any
}

var (
	targetMu     sync.Mutex
	targetStates = map[TargetKey]*targetSharedState{}
)

// GetTargetSharedState returns the process-wide buffer and recursive
// mutex for key, allocating it on first use with the given shape. Later
// callers requesting a different UserType T for the same key get a
// *deverrs.LogicError, matching the original's variant type-mismatch
// check.
func GetTargetSharedState[T any](key TargetKey, numChannels, numSamples int) (*accessor.Buffer[T], *CountedRecursiveMutex, error) {
	targetMu.Lock()
	defer targetMu.Unlock()

	want := reflect.TypeFor[T]()
	state, ok := targetStates[key]
	if !ok {
		state = &targetSharedState{typ: want, buffer: accessor.NewBuffer[T](numChannels, numSamples)}
		targetStates[key] = state
		return state.buffer.(*accessor.Buffer[T]), &state.Mutex, nil
	}
	if state.typ != want {
		return nil, nil, deverrs.NewLogicError("GetTargetSharedState",
			"register %q: requested shared-buffer type %s does not match existing type %s", key.Path, want, state.typ)
	}
	return state.buffer.(*accessor.Buffer[T]), &state.Mutex, nil
}

// transferSharedState tracks how many live accessor instances currently
// reference one TransferElement after TransferGroup merging folded
// several logical accessors onto it (spec §4.10).
type transferSharedState struct {
	instanceCount int
}

var (
	transferMu     sync.Mutex
	transferStates = map[accessor.ID]*transferSharedState{}
)

// AddTransferElement registers a freshly constructed element with an
// instance count of one.
func AddTransferElement(id accessor.ID) {
	transferMu.Lock()
	defer transferMu.Unlock()
	if _, ok := transferStates[id]; ok {
		panic("shared: AddTransferElement called twice for the same id")
	}
	transferStates[id] = &transferSharedState{instanceCount: 1}
}

// RemoveTransferElement decrements id's instance count, removing its
// entry once it reaches zero.
func RemoveTransferElement(id accessor.ID) {
	transferMu.Lock()
	defer transferMu.Unlock()
	state, ok := transferStates[id]
	if !ok {
		return
	}
	state.instanceCount--
	if state.instanceCount <= 0 {
		delete(transferStates, id)
	}
}

// InstanceCount reports how many live references id has, or 0 if it is
// not registered.
func InstanceCount(id accessor.ID) int {
	transferMu.Lock()
	defer transferMu.Unlock()
	state, ok := transferStates[id]
	if !ok {
		return 0
	}
	return state.instanceCount
}

// CombineTransferSharedStates folds oldID's instance count into newID's
// after TransferGroup decides newID's element replaces oldID's, then
// drops oldID.
func CombineTransferSharedStates(oldID, newID accessor.ID) {
	transferMu.Lock()
	defer transferMu.Unlock()
	oldState, ok := transferStates[oldID]
	if !ok {
		return
	}
	newState, ok := transferStates[newID]
	if !ok {
		panic("shared: CombineTransferSharedStates called with an unregistered newID")
	}
	newState.instanceCount += oldState.instanceCount
	delete(transferStates, oldID)
}
