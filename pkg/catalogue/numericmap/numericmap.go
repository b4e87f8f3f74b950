// Package numericmap decodes the numeric-address register map format
// (spec §7 "Numeric-address map") into a catalogue.RegisterCatalogue.
// Each non-comment, non-blank line describes one register:
//
//	<path> <nElements> <address> <nBytes> <bar> <width> <fractionalBits> <signed 0|1> <access> [interruptID...]
//
// access is one of RO, WO, RW, INTERRUPT. Lines starting with "#" are
// comments. This text format, and its line-oriented scanning, is the
// in-pack closest analog to the original .map file; no third-party
// library in the retrieval pack offers a better fit than the standard
// library's bufio.Scanner for a line-record format this simple (see
// DESIGN.md).
package numericmap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
)

// Decode reads a numeric-address map from r and populates cat with one
// RegisterInfo per line.
func Decode(r io.Reader, cat *catalogue.RegisterCatalogue) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		info, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("numericmap: line %d: %w", lineNo, err)
		}
		cat.AddRegister(info)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("numericmap: %w", err)
	}
	return nil
}

func parseLine(line string) (catalogue.RegisterInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return catalogue.RegisterInfo{}, fmt.Errorf("expected at least 9 fields, got %d", len(fields))
	}

	nElements, err := strconv.Atoi(fields[1])
	if err != nil {
		return catalogue.RegisterInfo{}, fmt.Errorf("nElements: %w", err)
	}
	address, err := strconv.ParseUint(fields[2], 0, 64)
	if err != nil {
		return catalogue.RegisterInfo{}, fmt.Errorf("address: %w", err)
	}
	nBytes, err := strconv.ParseUint(fields[3], 0, 32)
	if err != nil {
		return catalogue.RegisterInfo{}, fmt.Errorf("nBytes: %w", err)
	}
	bar, err := strconv.ParseUint(fields[4], 0, 64)
	if err != nil {
		return catalogue.RegisterInfo{}, fmt.Errorf("bar: %w", err)
	}
	width, err := strconv.ParseUint(fields[5], 0, 32)
	if err != nil {
		return catalogue.RegisterInfo{}, fmt.Errorf("width: %w", err)
	}
	fractionalBits, err := strconv.ParseInt(fields[6], 0, 32)
	if err != nil {
		return catalogue.RegisterInfo{}, fmt.Errorf("fractionalBits: %w", err)
	}
	signedFlag := fields[7] == "1"

	access := strings.ToUpper(fields[8])
	readable := access == "RO" || access == "RW"
	writeable := access == "WO" || access == "RW"

	var interruptID []uint32
	if access == "INTERRUPT" {
		for _, f := range fields[9:] {
			id, err := strconv.ParseUint(f, 0, 32)
			if err != nil {
				return catalogue.RegisterInfo{}, fmt.Errorf("interruptID: %w", err)
			}
			interruptID = append(interruptID, uint32(id))
		}
		if len(interruptID) == 0 {
			return catalogue.RegisterInfo{}, fmt.Errorf("INTERRUPT access requires at least one interrupt id")
		}
	}

	descriptor := numericDataDescriptor(uint32(width), int32(fractionalBits), signedFlag)

	return catalogue.RegisterInfo{
		Path:             catalogue.NewPath(fields[0]),
		NumberOfElements: nElements,
		NumberOfChannels: 1,
		Readable:         readable,
		Writeable:        writeable,
		SupportedAccessModes: catalogue.AccessModeFlags{
			Raw: true,
		},
		DataDescriptor: descriptor,
		TargetKind:     catalogue.TargetNumericAddressed,
		NumericAddressedTarget: catalogue.NumericAddressedTarget{
			Bar:            bar,
			Address:        address,
			NBytes:         uint32(nBytes),
			Width:          uint32(width),
			FractionalBits: int32(fractionalBits),
			Signed:         signedFlag,
			InterruptID:    interruptID,
		},
	}, nil
}

// numericDataDescriptor mirrors
// NumericAddressedRegisterInfo::computeDataDescriptor's FIXED_POINT
// branch: width==1 is boolean, width==0 is nodata, otherwise numeric with
// a decimal-digit estimate derived from the bit width.
func numericDataDescriptor(width uint32, fractionalBits int32, signedFlag bool) catalogue.DataDescriptor {
	switch {
	case width == 0:
		return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNoData}
	case width == 1:
		return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalBoolean, IsIntegral: true, NDigits: 1}
	default:
		bitsForDigits := int(width)
		nDigits := decimalDigitsForBits(bitsForDigits)
		if signedFlag {
			nDigits++
		}
		isIntegral := fractionalBits <= 0
		nFractionalDigits := 0
		if !isIntegral {
			nFractionalDigits = decimalDigitsForBits(int(fractionalBits))
			nDigits++
		}
		return catalogue.DataDescriptor{
			FundamentalType:   catalogue.FundamentalNumeric,
			IsIntegral:        isIntegral,
			IsSigned:          signedFlag,
			NDigits:           nDigits,
			NFractionalDigits: nFractionalDigits,
		}
	}
}

// decimalDigitsForBits estimates ceil(log10(2^bits)) without invoking
// math.Log10 on the variable end of a clamp (bits is always small here).
func decimalDigitsForBits(bits int) int {
	if bits <= 0 {
		return 0
	}
	// log10(2) ~= 0.30103; ceil via integer arithmetic on a fixed-point
	// approximation avoids floating point rounding surprises at exact
	// powers of ten.
	return (bits*30103)/100000 + 1
}
