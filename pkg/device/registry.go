// Package device is the public facade of the framework: Registry turns a
// named alias (as referenced by a "target" CDD parameter, an LNM
// `<targetDevice>`, or a subdevice "device" parameter) into an already-
// open backend.Backend, and Device wraps one opened backend with the
// typed GetAccessor entry point client code actually uses.
//
// The original resolves such aliases through a process-wide
// BackendFactory singleton keyed by a globally-set dmap-file path; per
// spec design note "Global dmap path and backend factory singletons ->
// process-wide registry with explicit init/teardown", this port makes
// that registry an explicit, constructed value instead — callers own
// exactly one Registry for the lifetime of their process (or test) and
// pass it to every backend factory that needs cross-device resolution.
package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/backend"
	"github.com/ctkgo/deviceaccess/pkg/backend/dummy"
	"github.com/ctkgo/deviceaccess/pkg/backend/shareddummy"
	"github.com/ctkgo/deviceaccess/pkg/backend/subdevice"
	"github.com/ctkgo/deviceaccess/pkg/backend/xdma"
	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/lnm"
)

// Registry is the alias->CDD table a dmap file (or programmatic
// Declare calls) populates, plus the cache of backends opened while
// resolving those aliases on demand. One Registry instance is normally
// shared by every Device a process opens, so a "target" alias named by
// more than one CDD resolves to the same open backend instance.
type Registry struct {
	mu          sync.Mutex
	aliases     map[string]string
	open        map[string]backend.Backend
	openMapFile func(path string) (io.ReadCloser, error)
}

// NewRegistry builds an empty Registry. openMapFile resolves a map-file
// path named in a CDD's "map" parameter to a readable stream; passing
// nil defaults to os.Open, relative to the process's working directory.
func NewRegistry(openMapFile func(path string) (io.ReadCloser, error)) *Registry {
	if openMapFile == nil {
		openMapFile = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	r := &Registry{
		aliases:     map[string]string{},
		open:        map[string]backend.Backend{},
		openMapFile: openMapFile,
	}
	r.registerBuiltins()
	return r
}

// Declare associates alias with a device-descriptor string, the
// programmatic equivalent of one dmap-file line. Declaring the same
// alias twice overwrites the previous descriptor as long as that alias
// has not already been resolved.
func (r *Registry) Declare(alias, cdd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, open := r.open[alias]; open {
		return deverrs.NewLogicError("device.Registry.Declare", "alias %q is already open", alias)
	}
	r.aliases[alias] = cdd
	return nil
}

// LoadDMap reads a minimal dmap file: one "alias descriptor" pair per
// non-blank, non-"#"-comment line, e.g.:
//
//	target1   (dummy?map=target1.map)
//	lnm       (logicalNameMapper?map=lnm.xml&target=target1)
//
// This is the "thin dmap plumbing" the core framework itself stays out
// of (spec's non-goals); Registry implements just enough of it to give
// backend factories a way to resolve a sibling alias.
func (r *Registry) LoadDMap(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return fmt.Errorf("device: dmap line %d: expected \"alias descriptor\"", lineNo)
		}
		if err := r.Declare(fields[0], strings.TrimSpace(fields[1])); err != nil {
			return fmt.Errorf("device: dmap line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// Resolve returns alias's backend, opening (and caching) it on first
// use. It matches the `func(alias string) (backend.Backend, error)`
// shape lnm.RegisterFactory expects.
func (r *Registry) Resolve(alias string) (backend.Backend, error) {
	r.mu.Lock()
	if dev, ok := r.open[alias]; ok {
		r.mu.Unlock()
		return dev, nil
	}
	cdd, ok := r.aliases[alias]
	r.mu.Unlock()
	if !ok {
		return nil, deverrs.NewLogicError("device.Registry.Resolve", "alias %q was not declared", alias)
	}

	dev, err := backend.Create(cdd)
	if err != nil {
		return nil, fmt.Errorf("device: resolving alias %q: %w", alias, err)
	}
	if err := dev.Open(context.Background()); err != nil {
		return nil, fmt.Errorf("device: opening alias %q: %w", alias, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.open[alias]; ok {
		// Lost a race with a concurrent resolver; keep the winner, let
		// the loser's freshly opened backend be garbage collected.
		return existing, nil
	}
	r.open[alias] = dev
	return dev, nil
}

// resolveWindow resolves device's alias and, provided it exposes raw
// register access, returns a word accessor over its named area register
// — the shape subdevice.RegisterFactory needs to build an "area"-type
// Subdevice backend's target.
func (r *Registry) resolveWindow(device, area string) (accessor.Accessor[uint32], error) {
	dev, err := r.Resolve(device)
	if err != nil {
		return nil, err
	}
	nab, ok := dev.(backend.NumericAddressedBackend)
	if !ok {
		return nil, deverrs.NewLogicError("device.Registry", "device %q does not expose raw register access", device)
	}
	info, ok := nab.Catalogue().GetRegister(catalogue.NewPath(area))
	if !ok {
		return nil, deverrs.NewLogicError("device.Registry", "device %q has no register %q", device, area)
	}
	return nab.RawRegisterAccessor(area, info.NumericAddressedTarget.Bar, info.NumericAddressedTarget.Address, info.NumberOfElements, info.Writeable), nil
}

// registerBuiltins wires every backend type this port ships under its
// CDD name (spec §6 "known backend-types: logicalNameMapper, dummy,
// sharedDummy, subdevice"), injecting this Registry wherever a backend
// needs to resolve a sibling alias.
func (r *Registry) registerBuiltins() {
	backend.RegisterType("dummy", func(address string, parameters map[string]string) (backend.Backend, error) {
		mapPath := parameters["map"]
		if mapPath == "" {
			mapPath = address
		}
		f, err := r.openMapFile(mapPath)
		if err != nil {
			return nil, fmt.Errorf("dummy: opening map file: %w", err)
		}
		defer f.Close()
		return dummy.Open(f)
	})

	backend.RegisterType("sharedDummy", func(address string, parameters map[string]string) (backend.Backend, error) {
		instanceID := parameters["instance"]
		if instanceID == "" {
			instanceID = address
		}
		mapPath := parameters["map"]
		f, err := r.openMapFile(mapPath)
		if err != nil {
			return nil, fmt.Errorf("sharedDummy: opening map file: %w", err)
		}
		defer f.Close()
		return shareddummy.Open(instanceID, mapPath, f)
	})

	backend.RegisterType("xdma", func(address string, parameters map[string]string) (backend.Backend, error) {
		devicePath := parameters["dev"]
		if devicePath == "" {
			devicePath = address
		}
		f, err := r.openMapFile(parameters["map"])
		if err != nil {
			return nil, fmt.Errorf("xdma: opening map file: %w", err)
		}
		defer f.Close()
		return xdma.Open(devicePath, f)
	})

	subdevice.RegisterFactory(r.resolveWindow, r.openMapFile)
	lnm.RegisterFactory(r.Resolve, r.openMapFile)
}
