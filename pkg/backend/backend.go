// Package backend defines the Backend contract every concrete hardware
// (or hardware-simulating) backend implements, the CDD device-descriptor
// parser, and the type-name registry Device uses to turn a descriptor
// string into a live Backend (spec §6, grounded on BackendFactory.h /
// DummyBackend.cc's createInstance pattern).
package backend

import (
	"context"
	"sync"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Backend is the device-facing half of the framework: it owns a register
// catalogue, serves raw accessors for a register (via whatever
// construction method is natural for the concrete backend — there is no
// single generic "GetRegisterAccessor" here because the raw accessor's
// UserType varies per call site; see backend/dummy and backend/subdevice
// for their concrete accessor constructors), and propagates its
// open/exception state the way every backend in the original does.
type Backend interface {
	// Open prepares the backend for use, clearing any prior exception
	// state (spec §4.8 "Open: ... allocate a versionOnOpen").
	Open(ctx context.Context) error
	// Close releases whatever resources Open acquired. Close on an
	// already-closed backend is a no-op.
	Close() error
	IsOpen() bool

	// Catalogue returns the backend's register catalogue, populated by
	// Open from whatever map file or static definition the backend uses.
	Catalogue() *catalogue.RegisterCatalogue

	// SetException moves the backend into exception state: every
	// subsequent transfer fails until the next successful Open (spec §7
	// "moves the backend to exception state until the next open()").
	SetException(err error)
	// ActiveException returns the error passed to the most recent
	// SetException, or nil if the backend has been opened since.
	ActiveException() error

	// TriggerInterrupt simulates or forwards interrupt number id,
	// returning the VersionNumber stamped on the event. Backends that
	// cannot originate an interrupt in software (xdma, subdevice,
	// logicalNameMapper) return a LogicError.
	TriggerInterrupt(ctx context.Context, id uint32) (version.Number, error)
}

// Factory constructs a Backend from a CDD's address and parameters.
type Factory func(address string, parameters map[string]string) (Backend, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// RegisterType adds factory under name to the process-wide backend-type
// registry, mirroring BackendFactory::registerBackendType. Registering
// the same name twice overwrites the previous factory, matching the
// original's "last registration wins" plugin-loading behaviour.
func RegisterType(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create parses descriptor and constructs the named backend type,
// matching BackendFactory::createBackend.
func Create(descriptor string) (Backend, error) {
	d, err := ParseCDD(descriptor)
	if err != nil {
		return nil, err
	}
	registryMu.Lock()
	factory, ok := registry[d.Type]
	registryMu.Unlock()
	if !ok {
		return nil, deverrs.NewLogicError("backend.Create", "unregistered backend type %q", d.Type)
	}
	return factory(d.Address, d.Parameters)
}
