// Package plugins holds the catalogue-level half of the LNM plugin host
// (spec §4.9 "doRegisterInfoUpdate() to mutate the catalogue entry"):
// parsing a plugin's parameters and applying its effect on a
// catalogue.RegisterInfo. The other half — wrapping the live accessor
// chain, which needs the cooked UserType as a generic parameter — lives
// in pkg/lnm itself (decorateAccessor can't be expressed as a method on a
// non-generic interface in Go the way AccessorPlugin::decorateAccessor is
// a template member in LNMAccessorPlugin.h).
package plugins

import (
	"fmt"
	"strconv"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
)

// Spec is one `<plugin name="...">` entry attached to a logical register,
// already stripped of its XML shape (xmlmap.Plugin) but not yet
// type-checked against a concrete plugin implementation.
type Spec struct {
	Name       string
	Parameters map[string]string
}

// Known plugin names (spec §4.9 "Concrete plugins").
const (
	Multiply         = "multiply"
	Math             = "math"
	MonostableTrigger = "monostableTrigger"
	ForceReadOnly    = "forceReadOnly"
	ForcePollingRead = "forcePollingRead"
	TypeHintModifier = "typeHintModifier"
	DoubleBuffer     = "doubleBuffer"
	FanOut           = "fanOut"
)

// UpdateRegisterInfo runs every plugin's catalogue-level effect on info,
// in chain order, matching AccessorPluginBase::updateRegisterInfo being
// called once per plugin after the target register has been resolved.
func UpdateRegisterInfo(info *catalogue.RegisterInfo, specs []Spec) error {
	for _, s := range specs {
		if err := updateOne(info, s); err != nil {
			return err
		}
	}
	return nil
}

func updateOne(info *catalogue.RegisterInfo, s Spec) error {
	switch s.Name {
	case Multiply:
		if _, err := floatParam(s, "factor"); err != nil {
			return err
		}
		info.DataDescriptor = catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNumeric, IsSigned: true, NDigits: 15, NFractionalDigits: 8}
		info.SupportedAccessModes.Raw = false

	case Math:
		if _, ok := s.Parameters["formula"]; !ok {
			return deverrs.NewLogicError("lnm.Math", "missing parameter 'formula'")
		}
		info.DataDescriptor = catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNumeric, IsSigned: true, NDigits: 15, NFractionalDigits: 8}
		info.SupportedAccessModes.Raw = false
		if _, ok := s.Parameters["invFormula"]; !ok {
			info.Writeable = false
		}

	case MonostableTrigger:
		if _, err := floatParam(s, "milliseconds"); err != nil {
			return err
		}
		info.Readable = false
		info.DataDescriptor = catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNoData}
		info.SupportedAccessModes.Raw = false

	case ForceReadOnly:
		info.Writeable = false

	case ForcePollingRead:
		info.SupportedAccessModes.WaitForNewData = false

	case TypeHintModifier:
		typeName, ok := s.Parameters["type"]
		if !ok {
			return deverrs.NewLogicError("lnm.TypeHintModifier", "missing parameter 'type'")
		}
		if typeName == "integer" {
			typeName = "int32"
		}
		fundamental, integral, signed, digits, err := parseTypeHint(typeName)
		if err != nil {
			return err
		}
		info.DataDescriptor.FundamentalType = fundamental
		info.DataDescriptor.IsIntegral = integral
		info.DataDescriptor.IsSigned = signed
		info.DataDescriptor.NDigits = digits
		if integral {
			info.DataDescriptor.NFractionalDigits = 0
		}

	case DoubleBuffer:
		for _, required := range []string{"enableDoubleBuffering", "currentBufferNumber", "secondBuffer"} {
			if _, ok := s.Parameters[required]; !ok {
				return deverrs.NewLogicError("lnm.DoubleBuffer", "missing parameter %q", required)
			}
		}
		info.Writeable = false
		info.SupportedAccessModes.Raw = false

	case FanOut:
		if !info.Writeable {
			return deverrs.NewLogicError("lnm.FanOut", "register %q: FanOut requires a writeable target register", info.Path)
		}
		hasTarget := false
		for name := range s.Parameters {
			if len(name) >= len("target") && name[:len("target")] == "target" {
				hasTarget = true
			}
		}
		if !hasTarget {
			return deverrs.NewLogicError("lnm.FanOut", "register %q: FanOut requires at least one 'targetN' parameter", info.Path)
		}
		info.Readable = false
		info.SupportedAccessModes.Raw = false

	default:
		return deverrs.NewLogicError("lnm.UpdateRegisterInfo", "unknown plugin type %q", s.Name)
	}
	return nil
}

func floatParam(s Spec, name string) (float64, error) {
	raw, ok := s.Parameters[name]
	if !ok {
		return 0, deverrs.NewLogicError(fmt.Sprintf("lnm.%s", s.Name), "missing parameter %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, deverrs.NewLogicError(fmt.Sprintf("lnm.%s", s.Name), "parameter %q must be numeric: %v", name, err)
	}
	return v, nil
}

// DataDescriptorForValueType builds the DataDescriptor a VARIABLE or
// CONSTANT entry's declared <type> produces, reusing the same type-name
// vocabulary as the typeHintModifier plugin.
func DataDescriptorForValueType(name string) (catalogue.DataDescriptor, error) {
	if name == "integer" {
		name = "int32"
	}
	fundamental, integral, signed, digits, err := parseTypeHint(name)
	if err != nil {
		return catalogue.DataDescriptor{}, err
	}
	dd := catalogue.DataDescriptor{FundamentalType: fundamental, IsIntegral: integral, IsSigned: signed, NDigits: digits}
	if !integral && fundamental == catalogue.FundamentalNumeric {
		dd.NFractionalDigits = 15
	}
	return dd, nil
}

// parseTypeHint maps a map-file type name (spec's DataType strings, e.g.
// "int32", "float64", "boolean", "string") onto a DataDescriptor's
// fields, grounded on DataType's handful of named kinds.
func parseTypeHint(name string) (fundamental catalogue.FundamentalType, integral, signed bool, digits int, err error) {
	switch name {
	case "int8":
		return catalogue.FundamentalNumeric, true, true, 3, nil
	case "uint8":
		return catalogue.FundamentalNumeric, true, false, 3, nil
	case "int16":
		return catalogue.FundamentalNumeric, true, true, 5, nil
	case "uint16":
		return catalogue.FundamentalNumeric, true, false, 5, nil
	case "int32":
		return catalogue.FundamentalNumeric, true, true, 10, nil
	case "uint32":
		return catalogue.FundamentalNumeric, true, false, 10, nil
	case "int64":
		return catalogue.FundamentalNumeric, true, true, 19, nil
	case "uint64":
		return catalogue.FundamentalNumeric, true, false, 19, nil
	case "float32":
		return catalogue.FundamentalNumeric, false, true, 15, nil
	case "float64":
		return catalogue.FundamentalNumeric, false, true, 15, nil
	case "boolean":
		return catalogue.FundamentalBoolean, true, false, 1, nil
	case "string":
		return catalogue.FundamentalString, false, false, 0, nil
	default:
		return 0, false, false, 0, deverrs.NewLogicError("lnm.TypeHintModifier", "unknown type %q", name)
	}
}
