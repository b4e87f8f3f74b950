// Package lnm implements the logical-name-mapping backend: a device
// whose registers are not hardware at all, but redirections into the
// registers of other, already-open backends, plus in-memory variables and
// constants (spec §4.9 "LogicalNameMappingBackend"), grounded on
// LogicalNameMappingBackend.h/.cc. The XML map itself is parsed by
// pkg/lnm/xmlmap; the catalogue-level effect of each plugin is computed
// by pkg/lnm/plugins; this package ties both together with the live
// accessor chain, which needs the cooked UserType as a type parameter and
// so cannot live in a non-generic interface method the way
// AccessorPlugin::decorateAccessor is a template member of
// LNMAccessorPlugin.h.
//
// Every REGISTER/CHANNEL/BIT target is first converted straight to its
// final cooked type with a single FixedPoint decorator; plugins then
// compose on top of that one Accessor[T] chain. The original instead lets
// each plugin request its own intermediate UserType via
// AccessorPlugin::getTargetDataType, changing the target type a later
// plugin sees — a capability Go's generics cannot express without a
// disjoint decorateAccessor per instantiation. Collapsing the pipeline to
// one T trades that flexibility for a chain every plugin can operate on
// uniformly; Math's hard float64 requirement is the one place this shows
// through, handled with a runtime type assertion (see applyPlugin).
package lnm

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ctkgo/deviceaccess/internal/obslog"
	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/backend"
	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/decorator"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/fixedpoint"
	"github.com/ctkgo/deviceaccess/pkg/lnm/plugins"
	"github.com/ctkgo/deviceaccess/pkg/lnm/variabletable"
	"github.com/ctkgo/deviceaccess/pkg/lnm/xmlmap"
	"github.com/ctkgo/deviceaccess/pkg/numeric"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// wordSize is the element stride of every numeric-addressed backend this
// package can target: one 32-bit word per element (backend/dummy,
// backend/shareddummy, backend/xdma all agree on this).
const wordSize = 4

// Backend is a logical-name-mapping device. Its own registers never
// touch hardware directly: REGISTER/CHANNEL/BIT entries forward into a
// target backend.NumericAddressedBackend resolved once at construction
// time (see backend.NumericAddressedBackend's doc comment for why
// backend/subdevice is deliberately excluded from this resolution), and
// VARIABLE/CONSTANT entries live in a variabletable.Table private to this
// Backend instance.
type Backend struct {
	resolveDevice func(alias string) (backend.Backend, error)

	cat         *catalogue.RegisterCatalogue
	descriptors map[string]xmlmap.Entry
	devices     map[string]backend.NumericAddressedBackend
	vartab      *variabletable.Table

	readerCountsMu sync.Mutex
	readerCounts   map[string]*decorator.ReaderCount

	mu        sync.Mutex
	open      bool
	activeErr error
}

// New parses mapFile (spec §6 "LNM XML schema"), substituting
// cddParameters into every `<par>` node, resolves every distinct target
// device alias exactly once via resolveDevice, and populates the
// resulting Backend's catalogue and variable table.
func New(mapFile io.Reader, cddParameters map[string]string, resolveDevice func(alias string) (backend.Backend, error)) (*Backend, error) {
	entries, err := xmlmap.Decode(mapFile, cddParameters)
	if err != nil {
		return nil, err
	}

	vartab, err := variabletable.Open()
	if err != nil {
		return nil, err
	}

	b := &Backend{
		resolveDevice: resolveDevice,
		cat:           catalogue.New(),
		descriptors:   make(map[string]xmlmap.Entry, len(entries)),
		devices:       map[string]backend.NumericAddressedBackend{},
		vartab:        vartab,
		readerCounts:  map[string]*decorator.ReaderCount{},
	}

	for _, e := range entries {
		if needsTargetDevice(e.Kind) {
			if err := b.resolveOnce(e.TargetDevice); err != nil {
				return nil, err
			}
		}
		b.descriptors[e.Path] = e
	}

	for _, e := range entries {
		info, err := b.buildCatalogueEntry(e)
		if err != nil {
			return nil, fmt.Errorf("lnm: register %q: %w", e.Path, err)
		}
		b.cat.AddRegister(info)

		if e.Kind == xmlmap.Variable || e.Kind == xmlmap.Constant {
			if err := seedValues(vartab, e.Path, e.ValueType, e.NumberOfElements, e.Values); err != nil {
				return nil, fmt.Errorf("lnm: seeding %q: %w", e.Path, err)
			}
		}
	}

	return b, nil
}

func needsTargetDevice(k xmlmap.Kind) bool {
	return k == xmlmap.Register || k == xmlmap.Channel || k == xmlmap.Bit
}

func (b *Backend) resolveOnce(alias string) error {
	if _, ok := b.devices[alias]; ok {
		return nil
	}
	dev, err := b.resolveDevice(alias)
	if err != nil {
		return fmt.Errorf("lnm: resolving target device %q: %w", alias, err)
	}
	nab, ok := dev.(backend.NumericAddressedBackend)
	if !ok {
		return deverrs.NewLogicError("lnm", "target device %q does not expose raw register access", alias)
	}
	b.devices[alias] = nab
	return nil
}

func (b *Backend) resolveTarget(entry xmlmap.Entry) (backend.NumericAddressedBackend, catalogue.RegisterInfo, error) {
	dev, ok := b.devices[entry.TargetDevice]
	if !ok {
		return nil, catalogue.RegisterInfo{}, deverrs.NewLogicError("lnm",
			"register %q: target device %q was not resolved", entry.Path, entry.TargetDevice)
	}
	info, ok := dev.Catalogue().GetRegister(catalogue.NewPath(entry.TargetRegister))
	if !ok {
		return nil, catalogue.RegisterInfo{}, deverrs.NewLogicError("lnm",
			"register %q: target register %q not found on device %q", entry.Path, entry.TargetRegister, entry.TargetDevice)
	}
	return dev, info, nil
}

func lnmTargetType(k xmlmap.Kind) catalogue.LNMTargetType {
	switch k {
	case xmlmap.Channel:
		return catalogue.LNMChannel
	case xmlmap.Bit:
		return catalogue.LNMBit
	case xmlmap.Variable:
		return catalogue.LNMVariable
	case xmlmap.Constant:
		return catalogue.LNMConstant
	default:
		return catalogue.LNMRegister
	}
}

func toSpec(p xmlmap.Plugin) plugins.Spec { return plugins.Spec{Name: p.Name, Parameters: p.Parameters} }

// buildCatalogueEntry computes path's RegisterInfo from its xmlmap.Entry,
// inheriting shape and DataDescriptor from the resolved target register
// for REGISTER/CHANNEL/BIT kinds, then applying every attached plugin's
// catalogue-level effect (plugins.UpdateRegisterInfo).
func (b *Backend) buildCatalogueEntry(entry xmlmap.Entry) (catalogue.RegisterInfo, error) {
	info := catalogue.RegisterInfo{
		Path:                     catalogue.NewPath(entry.Path),
		NumberOfChannels:         1,
		TargetKind:               catalogue.TargetLogicalNameMapping,
		LogicalNameMappingTarget: catalogue.LogicalNameMappingTarget{Type: lnmTargetType(entry.Kind), Parameters: map[string]string{}},
	}

	switch entry.Kind {
	case xmlmap.Register, xmlmap.Channel:
		_, target, err := b.resolveTarget(entry)
		if err != nil {
			return catalogue.RegisterInfo{}, err
		}
		nElements := entry.NumberOfElements
		if nElements == 0 {
			nElements = target.NumberOfElements - entry.FirstIndex
		}
		info.NumberOfElements = nElements
		info.Readable = target.Readable
		info.Writeable = target.Writeable
		info.SupportedAccessModes = target.SupportedAccessModes
		info.DataDescriptor = target.DataDescriptor
		if entry.Kind == xmlmap.Channel {
			// A Channel decorator only ever reads; it has no write path
			// and no meaningful raw representation of its own.
			info.Writeable = false
			info.SupportedAccessModes.Raw = false
		}

	case xmlmap.Bit:
		_, target, err := b.resolveTarget(entry)
		if err != nil {
			return catalogue.RegisterInfo{}, err
		}
		info.NumberOfElements = 1
		info.Readable = true
		info.Writeable = target.Writeable
		info.DataDescriptor = catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalBoolean, IsIntegral: true, NDigits: 1}

	case xmlmap.Variable, xmlmap.Constant:
		info.NumberOfElements = entry.NumberOfElements
		info.Readable = true
		info.Writeable = entry.Kind == xmlmap.Variable
		dd, err := plugins.DataDescriptorForValueType(entry.ValueType)
		if err != nil {
			return catalogue.RegisterInfo{}, err
		}
		info.DataDescriptor = dd

	default:
		return catalogue.RegisterInfo{}, deverrs.NewLogicError("lnm", "register %q: unknown target kind", entry.Path)
	}

	specs := make([]plugins.Spec, len(entry.Plugins))
	for i, p := range entry.Plugins {
		specs[i] = toSpec(p)
	}
	if err := plugins.UpdateRegisterInfo(&info, specs); err != nil {
		return catalogue.RegisterInfo{}, err
	}
	return info, nil
}

// GetAccessor resolves path against b's catalogue and constructs a live
// accessor of cooked type T: the target conversion chain for
// REGISTER/CHANNEL/BIT kinds, or a variabletable.Table-backed Variable
// for VARIABLE/CONSTANT, then every attached plugin's accessor-level
// effect in map-file order.
func GetAccessor[T numeric.Numeric](b *Backend, path string) (accessor.Accessor[T], error) {
	b.mu.Lock()
	entry, ok := b.descriptors[path]
	b.mu.Unlock()
	if !ok {
		return nil, deverrs.NewLogicError("lnm.GetAccessor", "unknown register %q", path)
	}

	var acc accessor.Accessor[T]

	switch entry.Kind {
	case xmlmap.Register, xmlmap.Channel:
		dev, target, err := b.resolveTarget(entry)
		if err != nil {
			return nil, err
		}
		nElements := entry.NumberOfElements
		if nElements == 0 {
			nElements = target.NumberOfElements - entry.FirstIndex
		}
		address := target.NumericAddressedTarget.Address + uint64(entry.FirstIndex)*wordSize
		raw := dev.RawRegisterAccessor(path, target.NumericAddressedTarget.Bar, address, nElements, target.Writeable)
		conv, err := fixedpoint.New(uint(target.NumericAddressedTarget.Width), int(target.NumericAddressedTarget.FractionalBits), target.NumericAddressedTarget.Signed)
		if err != nil {
			return nil, fmt.Errorf("lnm: register %q: %w", path, err)
		}
		cooked := decorator.NewFixedPoint[T](raw, conv)

		if entry.Kind == xmlmap.Channel {
			chAcc, err := decorator.NewChannel[T](cooked, entry.TargetChannel)
			if err != nil {
				return nil, err
			}
			acc = chAcc
		} else {
			acc = cooked
		}

	case xmlmap.Bit:
		dev, target, err := b.resolveTarget(entry)
		if err != nil {
			return nil, err
		}
		rawWord := dev.RawRegisterAccessor(path, target.NumericAddressedTarget.Bar, target.NumericAddressedTarget.Address, 1, target.Writeable)
		key := decorator.BitTargetKey(dev, target.NumericAddressedTarget.Bar, target.NumericAddressedTarget.Address)
		bitAcc, err := decorator.NewBit(rawWord, uint(entry.TargetBit), key)
		if err != nil {
			return nil, err
		}
		if converted, ok := any(bitAcc).(accessor.Accessor[T]); ok {
			acc = converted
		} else {
			acc = decorator.NewBase[T, version.Boolean](bitAcc,
				func(v version.Boolean) T { return numeric.Convert[T, version.Boolean](v) },
				func(c T) version.Boolean { return numeric.Convert[version.Boolean, T](c) },
			)
		}

	case xmlmap.Variable:
		acc = decorator.NewVariable[T](b.vartab, path, entry.NumberOfElements, true)

	case xmlmap.Constant:
		acc = decorator.NewVariable[T](b.vartab, path, entry.NumberOfElements, false)

	default:
		return nil, deverrs.NewLogicError("lnm.GetAccessor", "register %q: unknown target kind", path)
	}

	for _, p := range entry.Plugins {
		var err error
		acc, err = applyPlugin[T](b, path, toSpec(p), acc)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// applyPlugin wraps acc with plugin spec's live-accessor effect. Most
// plugins operate uniformly on Accessor[T]; Math is the exception,
// requiring T to concretely be float64 (spec §4.9 "Math ... formula is
// evaluated in double precision"), checked here with a type assertion
// since Go cannot otherwise specialize a generic function body per
// instantiation. typeHintModifier has no live-accessor effect: it only
// changes how the catalogue describes the register, already applied by
// buildCatalogueEntry.
func applyPlugin[T numeric.Numeric](b *Backend, path string, spec plugins.Spec, acc accessor.Accessor[T]) (accessor.Accessor[T], error) {
	switch spec.Name {
	case plugins.Multiply:
		factor, err := strconv.ParseFloat(spec.Parameters["factor"], 64)
		if err != nil {
			return nil, deverrs.NewLogicError("lnm.multiply", "register %q: invalid factor: %v", path, err)
		}
		return decorator.NewMultiplier[T, T](acc, factor), nil

	case plugins.Math:
		target, ok := any(acc).(accessor.Accessor[float64])
		if !ok {
			return nil, deverrs.NewLogicError("lnm.math", "register %q: math plugin requires a float64 register type", path)
		}
		var params []decorator.Parameter
		for name, ref := range spec.Parameters {
			if name == "formula" || name == "invFormula" {
				continue
			}
			pAcc, err := GetAccessor[float64](b, ref)
			if err != nil {
				return nil, fmt.Errorf("lnm.math: register %q: resolving parameter %q: %w", path, name, err)
			}
			params = append(params, decorator.Parameter{Name: name, Accessor: pAcc})
		}
		m, err := decorator.NewMath(target, spec.Parameters["formula"], spec.Parameters["invFormula"], params)
		if err != nil {
			return nil, fmt.Errorf("lnm.math: register %q: %w", path, err)
		}
		return any(m).(accessor.Accessor[T]), nil

	case plugins.MonostableTrigger:
		ms, err := strconv.ParseFloat(spec.Parameters["milliseconds"], 64)
		if err != nil {
			return nil, deverrs.NewLogicError("lnm.monostableTrigger", "register %q: invalid milliseconds: %v", path, err)
		}
		active := numeric.Convert[T, float64](1)
		inactive := numeric.Convert[T, float64](0)
		return decorator.NewMonostable[T](acc, active, inactive, time.Duration(ms*float64(time.Millisecond))), nil

	case plugins.ForceReadOnly:
		return decorator.NewForceReadOnly[T](acc), nil

	case plugins.ForcePollingRead:
		return decorator.NewForcePollingRead[T](acc), nil

	case plugins.TypeHintModifier:
		return acc, nil

	case plugins.FanOut:
		var extras []accessor.Accessor[T]
		for _, n := range sortedTargetIndices(spec.Parameters) {
			ref := spec.Parameters[fmt.Sprintf("target%d", n)]
			eAcc, err := GetAccessor[T](b, ref)
			if err != nil {
				return nil, fmt.Errorf("lnm.fanOut: register %q: resolving %q: %w", path, ref, err)
			}
			extras = append(extras, eAcc)
		}
		return decorator.NewFanOut[T](acc, extras...)

	case plugins.DoubleBuffer:
		enableAcc, err := GetAccessor[uint32](b, spec.Parameters["enableDoubleBuffering"])
		if err != nil {
			return nil, fmt.Errorf("lnm.doubleBuffer: register %q: resolving enableDoubleBuffering: %w", path, err)
		}
		currentAcc, err := GetAccessor[uint32](b, spec.Parameters["currentBufferNumber"])
		if err != nil {
			return nil, fmt.Errorf("lnm.doubleBuffer: register %q: resolving currentBufferNumber: %w", path, err)
		}
		secondAcc, err := GetAccessor[T](b, spec.Parameters["secondBuffer"])
		if err != nil {
			return nil, fmt.Errorf("lnm.doubleBuffer: register %q: resolving secondBuffer: %w", path, err)
		}
		rc := b.readerCount(spec.Parameters["enableDoubleBuffering"])
		return decorator.NewDoubleBuffer[T](acc, secondAcc, enableAcc, currentAcc, rc)

	default:
		return nil, deverrs.NewLogicError("lnm", "register %q: unknown plugin %q", path, spec.Name)
	}
}

func sortedTargetIndices(params map[string]string) []int {
	var idx []int
	for name := range params {
		if !strings.HasPrefix(name, "target") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "target"))
		if err != nil {
			continue
		}
		idx = append(idx, n)
	}
	sort.Ints(idx)
	return idx
}

func (b *Backend) readerCount(key string) *decorator.ReaderCount {
	b.readerCountsMu.Lock()
	defer b.readerCountsMu.Unlock()
	rc, ok := b.readerCounts[key]
	if !ok {
		rc = new(decorator.ReaderCount)
		b.readerCounts[key] = rc
	}
	return rc
}

// seedValues parses entry's declared <value> children into the Go type
// named by valueType and writes the resulting array into table, matching
// LNMVariable's construction-time initial value.
func seedValues(table *variabletable.Table, path, valueType string, n int, values []xmlmap.Value) error {
	switch valueType {
	case "int8":
		return seedTyped(table, path, n, values, func(s string) (int8, error) { v, err := strconv.ParseInt(s, 10, 8); return int8(v), err })
	case "uint8":
		return seedTyped(table, path, n, values, func(s string) (uint8, error) { v, err := strconv.ParseUint(s, 10, 8); return uint8(v), err })
	case "int16":
		return seedTyped(table, path, n, values, func(s string) (int16, error) { v, err := strconv.ParseInt(s, 10, 16); return int16(v), err })
	case "uint16":
		return seedTyped(table, path, n, values, func(s string) (uint16, error) { v, err := strconv.ParseUint(s, 10, 16); return uint16(v), err })
	case "int32":
		return seedTyped(table, path, n, values, func(s string) (int32, error) { v, err := strconv.ParseInt(s, 10, 32); return int32(v), err })
	case "uint32":
		return seedTyped(table, path, n, values, func(s string) (uint32, error) { v, err := strconv.ParseUint(s, 10, 32); return uint32(v), err })
	case "int64":
		return seedTyped(table, path, n, values, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
	case "uint64":
		return seedTyped(table, path, n, values, func(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) })
	case "float32":
		return seedTyped(table, path, n, values, func(s string) (float32, error) { v, err := strconv.ParseFloat(s, 32); return float32(v), err })
	case "float64":
		return seedTyped(table, path, n, values, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
	case "boolean":
		return seedTyped(table, path, n, values, func(s string) (version.Boolean, error) { return version.ParseBoolean(s) })
	case "string":
		return seedTyped(table, path, n, values, func(s string) (string, error) { return s, nil })
	default:
		return deverrs.NewLogicError("lnm", "register %q: unknown value type %q", path, valueType)
	}
}

func seedTyped[T any](table *variabletable.Table, path string, n int, values []xmlmap.Value, parse func(string) (T, error)) error {
	arr := make([]T, n)
	for _, v := range values {
		if v.Index < 0 || v.Index >= n {
			return deverrs.NewLogicError("lnm", "register %q: value index %d out of range [0,%d)", path, v.Index, n)
		}
		parsed, err := parse(v.Text)
		if err != nil {
			return fmt.Errorf("register %q: parsing value %d: %w", path, v.Index, err)
		}
		arr[v.Index] = parsed
	}
	return variabletable.Set[T](table, path, arr, version.OK, version.New())
}

func (b *Backend) Open(ctx context.Context) error {
	b.mu.Lock()
	devices := make([]backend.NumericAddressedBackend, 0, len(b.devices))
	for _, d := range b.devices {
		devices = append(devices, d)
	}
	b.mu.Unlock()

	for _, d := range devices {
		if d.IsOpen() {
			continue
		}
		if err := d.Open(ctx); err != nil {
			return fmt.Errorf("lnm: opening target device: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.activeErr = nil
	obslog.Debug("backend opened", obslog.BackendType("logicalNameMapper"))
	return nil
}

// Close marks this Backend closed. Target devices are left open: they
// may be shared with other consumers (another LogicalNameMapping
// instance, or Device itself) this Backend does not own exclusively.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	obslog.Debug("backend closed", obslog.BackendType("logicalNameMapper"))
	return nil
}

func (b *Backend) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Backend) Catalogue() *catalogue.RegisterCatalogue { return b.cat }

func (b *Backend) SetException(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeErr = err
	obslog.Warn("backend exception set", obslog.BackendType("logicalNameMapper"), obslog.Err(err))
}

func (b *Backend) ActiveException() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeErr
}

// TriggerInterrupt always fails: a logical-name-mapping backend never
// originates interrupts of its own, matching subdevice.Backend.
func (b *Backend) TriggerInterrupt(context.Context, uint32) (version.Number, error) {
	return version.Number{}, deverrs.NewLogicError("lnm.TriggerInterrupt", "logical name mapping backends do not originate interrupts")
}

// RegisterFactory registers the "logicalNameMapper" backend type (spec §6
// CDD "known backend-types ... logicalNameMapper"), mirroring
// subdevice.RegisterFactory's shape. resolveDevice turns a `<targetDevice>`
// alias into its already-registered backend; openMapFile opens the `map`
// parameter's path (or the CDD address string when that parameter is
// empty) relative to whatever directory convention Device uses.
func RegisterFactory(resolveDevice func(alias string) (backend.Backend, error), openMapFile func(path string) (io.ReadCloser, error)) {
	backend.RegisterType("logicalNameMapper", func(address string, parameters map[string]string) (backend.Backend, error) {
		mapPath := parameters["map"]
		if mapPath == "" && address != "" {
			mapPath = address
		}
		if mapPath == "" {
			return nil, deverrs.NewLogicError("lnm", "map file must be specified")
		}
		f, err := openMapFile(mapPath)
		if err != nil {
			return nil, fmt.Errorf("lnm: opening map file: %w", err)
		}
		defer f.Close()
		return New(f, parameters, resolveDevice)
	})
}

var _ backend.Backend = (*Backend)(nil)
