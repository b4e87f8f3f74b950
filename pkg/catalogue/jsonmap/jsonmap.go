// Package jsonmap decodes the JSON register map format (spec §7 "JSON
// map — equivalent information with explicit multi-channel support...
// and explicit interrupt path metadata ![a,b,c]") into a
// catalogue.RegisterCatalogue. No third-party JSON library in the
// retrieval pack (gabriel-vasile/mimetype, flatbuffers, protobuf) offers
// anything encoding/json doesn't already for decoding a static document
// shape like this one; see DESIGN.md.
package jsonmap

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ctkgo/deviceaccess/pkg/catalogue"
)

type document struct {
	Registers []registerEntry `json:"registers"`
}

type registerEntry struct {
	Path      string         `json:"path"`
	Access    string         `json:"access"`
	Interrupt []uint32       `json:"interrupt,omitempty"`
	Channels  []channelEntry `json:"channels"`
}

type channelEntry struct {
	NumberOfElements int    `json:"nElements"`
	Width            uint32 `json:"width"`
	FractionalBits   int32  `json:"fractionalBits"`
	Signed           bool   `json:"signed"`
	DataType         string `json:"dataType,omitempty"` // "fixed_point" (default), "ieee754", "ascii", "void"
}

// Decode reads a JSON map document from r and populates cat.
func Decode(r io.Reader, cat *catalogue.RegisterCatalogue) error {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("jsonmap: %w", err)
	}

	for _, reg := range doc.Registers {
		if len(reg.Channels) == 0 {
			return fmt.Errorf("jsonmap: register %q has no channels", reg.Path)
		}
		readable := reg.Access == "RO" || reg.Access == "RW"
		writeable := reg.Access == "WO" || reg.Access == "RW"

		widest := reg.Channels[0]
		for _, c := range reg.Channels[1:] {
			if int(c.Width)+int(c.FractionalBits) > int(widest.Width)+int(widest.FractionalBits) {
				widest = c
			}
		}

		cat.AddRegister(catalogue.RegisterInfo{
			Path:             catalogue.NewPath(reg.Path),
			NumberOfElements: widest.NumberOfElements,
			NumberOfChannels: len(reg.Channels),
			Readable:         readable,
			Writeable:        writeable,
			SupportedAccessModes: catalogue.AccessModeFlags{
				Raw: true,
			},
			DataDescriptor: channelDataDescriptor(widest),
			TargetKind:     catalogue.TargetNumericAddressed,
			NumericAddressedTarget: catalogue.NumericAddressedTarget{
				Width:          widest.Width,
				FractionalBits: widest.FractionalBits,
				Signed:         widest.Signed,
				InterruptID:    reg.Interrupt,
			},
		})
	}
	return nil
}

func channelDataDescriptor(c channelEntry) catalogue.DataDescriptor {
	switch c.DataType {
	case "ascii":
		return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalString}
	case "void":
		return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNoData}
	case "ieee754":
		if c.Width == 64 {
			return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNumeric, IsSigned: true, NDigits: 3 + 325, NFractionalDigits: 325}
		}
		return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNumeric, IsSigned: true, NDigits: 3 + 45, NFractionalDigits: 45}
	default: // fixed_point
		if c.Width == 1 {
			return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalBoolean, IsIntegral: true, NDigits: 1}
		}
		if c.Width == 0 {
			return catalogue.DataDescriptor{FundamentalType: catalogue.FundamentalNoData}
		}
		isIntegral := c.FractionalBits <= 0
		return catalogue.DataDescriptor{
			FundamentalType: catalogue.FundamentalNumeric,
			IsIntegral:      isIntegral,
			IsSigned:        c.Signed,
		}
	}
}
