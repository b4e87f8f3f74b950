package decorator

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// memoryRegister is a minimal hardware-free leaf used across this
// package's tests, grounded on the teacher's pattern of small in-memory
// fakes for table-driven tests rather than a full dummy backend.
func memoryRegister(name string, numChannels, numSamples int, readable, writeable bool) *accessor.Base[uint32] {
	store := make([][]uint32, numChannels)
	for i := range store {
		store[i] = make([]uint32, numSamples)
	}

	var funcs accessor.TransferFuncs[uint32]
	if readable {
		funcs.Read = func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, version.Validity, error) {
			for ch := 0; ch < numChannels; ch++ {
				copy(buf.Channel(ch), store[ch])
			}
			return true, version.OK, nil
		}
	}
	if writeable {
		funcs.Write = func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, error) {
			for ch := 0; ch < numChannels; ch++ {
				copy(store[ch], buf.Channel(ch))
			}
			return false, nil
		}
	}
	return accessor.NewBase[uint32](name, numChannels, numSamples, accessor.AccessMode{}, funcs, nil)
}
