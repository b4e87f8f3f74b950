package catalogue

import "github.com/ctkgo/deviceaccess/pkg/accessor"

// AccessModeFlags is the set of access modes a register supports; it is
// the same {raw, wait_for_new_data} vocabulary an accessor request is
// checked against (accessor.AccessMode), just attached here to a
// catalogue entry instead of a live request.
type AccessModeFlags = accessor.AccessMode

// FundamentalType classifies what a register's cooked values represent,
// independent of the concrete Go type used to hold them (spec: "...
// fundamental-type in {numeric, boolean, string, nodata}").
type FundamentalType int

const (
	FundamentalNumeric FundamentalType = iota
	FundamentalBoolean
	FundamentalString
	FundamentalNoData
)

func (t FundamentalType) String() string {
	switch t {
	case FundamentalNumeric:
		return "numeric"
	case FundamentalBoolean:
		return "boolean"
	case FundamentalString:
		return "string"
	case FundamentalNoData:
		return "nodata"
	default:
		return "unknown"
	}
}

// RawDataType names the wire-level integer width backing a register,
// when the backend exposes one (numeric-addressed registers do; LNM
// VARIABLE/CONSTANT entries do not).
type RawDataType int

const (
	RawNone RawDataType = iota
	RawInt8
	RawInt16
	RawInt32
	RawInt64
)

func (t RawDataType) String() string {
	switch t {
	case RawInt8:
		return "int8"
	case RawInt16:
		return "int16"
	case RawInt32:
		return "int32"
	case RawInt64:
		return "int64"
	default:
		return "none"
	}
}

// DataDescriptor tells a caller what cooked representation to expect from
// a register without requiring it to know the backend's wire format
// (spec: "DataDescriptor (fundamental-type ..., integral?, signed?,
// nDigits, nFractionalDigits, rawDataType)"), grounded on
// NumericAddressedRegisterCatalogue::computeDataDescriptor.
type DataDescriptor struct {
	FundamentalType   FundamentalType
	IsIntegral        bool
	IsSigned          bool
	NDigits           int
	NFractionalDigits int
	RawType           RawDataType
}
