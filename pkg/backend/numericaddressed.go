package backend

import "github.com/ctkgo/deviceaccess/pkg/accessor"

// NumericAddressedBackend is the subset of Backend that exposes a raw
// word at a given BAR+byte-address directly, rather than through the
// backend-specific accessor constructors subdevice.Backend needs
// (windowed sub-arrays of a parent accessor rather than a fixed address).
// backend/dummy, backend/shareddummy and backend/xdma all satisfy this
// structurally; pkg/lnm uses it to resolve a REGISTER/CHANNEL/BIT target
// by consulting the target backend's own catalogue for the raw
// BAR/address/width and then calling RawRegisterAccessor (spec §4.8
// "look up the logical register ... build one of {target-backend
// accessor, ...}").
type NumericAddressedBackend interface {
	Backend
	RawRegisterAccessor(name string, bar, address uint64, nElements int, writeable bool) *accessor.Base[uint32]
}
