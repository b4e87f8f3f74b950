// Package dummy implements an in-process register bank: every BAR is a
// plain []int32 slice, reads and writes are plain slice accesses guarded
// by a mutex, and interrupts are simulated by calling TriggerInterrupt
// directly rather than waiting on any real hardware event source (spec
// §2 "DummyBackend (in-process register bank)"), grounded on
// device_backends/DummyBackend/src/DummyBackend.cc.
package dummy

import (
	"context"
	"io"
	"sync"

	"github.com/ctkgo/deviceaccess/internal/obslog"
	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/async"
	"github.com/ctkgo/deviceaccess/pkg/backend"
	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/catalogue/numericmap"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

const wordSize = 4

// Backend is a register bank entirely backed by process memory, sized
// and laid out from a numeric-address map file. Every register it hands
// out raw access to is a sequence of int32 words at bar/address,
// mirroring DummyBackend's _barContents.
type Backend struct {
	mu sync.Mutex

	cat  *catalogue.RegisterCatalogue
	bars map[uint64][]int32

	readOnly map[addr]bool

	open      bool
	activeErr error

	domainsMu sync.Mutex
	domains   map[uint32]*async.Domain
}

type addr struct {
	bar     uint64
	address uint64
}

// Open parses mapFile (in the numeric-address map format, spec §6) and
// allocates one backing slice per BAR, sized to the highest
// address+nBytes any register in that BAR declares.
func Open(mapFile io.Reader) (*Backend, error) {
	cat := catalogue.New()
	if err := numericmap.Decode(mapFile, cat); err != nil {
		return nil, err
	}

	b := &Backend{
		cat:      cat,
		bars:     map[uint64][]int32{},
		readOnly: map[addr]bool{},
		domains:  map[uint32]*async.Domain{},
	}

	barSizeWords := map[uint64]uint64{}
	for _, info := range cat.List() {
		t := info.NumericAddressedTarget
		endWord := (t.Address + uint64(t.NBytes) + wordSize - 1) / wordSize
		if endWord > barSizeWords[t.Bar] {
			barSizeWords[t.Bar] = endWord
		}
		if !info.Writeable {
			nWords := uint64(info.NumberOfElements)
			baseWord := t.Address / wordSize
			for i := uint64(0); i < nWords; i++ {
				b.readOnly[addr{bar: t.Bar, address: (baseWord + i) * wordSize}] = true
			}
		}
	}
	for bar, nWords := range barSizeWords {
		b.bars[bar] = make([]int32, nWords)
	}

	return b, nil
}

func (b *Backend) Open(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = true
	b.activeErr = nil
	obslog.Debug("backend opened", obslog.BackendType("dummy"))
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	obslog.Debug("backend closed", obslog.BackendType("dummy"))
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
	b.activeErr = err
	b.mu.Unlock()
	obslog.Warn("backend exception set", obslog.BackendType("dummy"), obslog.Err(err))

	b.domainsMu.Lock()
	defer b.domainsMu.Unlock()
	for _, d := range b.domains {
		d.SetException()
	}
}

func (b *Backend) ActiveException() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeErr
}

// TriggerInterrupt distributes interrupt id to every accessor that has
// subscribed to it via wait_for_new_data.
func (b *Backend) TriggerInterrupt(_ context.Context, id uint32) (version.Number, error) {
	v := version.New()
	b.domainFor(id).Distribute()
	return v, nil
}

func (b *Backend) domainFor(id uint32) *async.Domain {
	b.domainsMu.Lock()
	defer b.domainsMu.Unlock()
	d, ok := b.domains[id]
	if !ok {
		d = async.NewDomain()
		b.domains[id] = d
	}
	return d
}

// mergeKey identifies a dummy register's hardware target for
// TransferGroup merging: two raw accessors over the same bar/address
// range on the same Backend instance share one low-level transfer.
type mergeKey struct {
	backend *Backend
	bar     uint64
	address uint64
}

// RawRegisterAccessor returns a raw uint32[nElements] accessor over the
// word range starting at address in bar, suitable for wrapping with a
// decorator.NewFixedPoint/NewIEEE754 conversion. writeable controls
// whether the accessor honours write attempts at all (a caller should
// pass the catalogue entry's Writeable flag); per-word read-only ranges
// established at Open are additionally enforced on every write.
func (b *Backend) RawRegisterAccessor(name string, bar, address uint64, nElements int, writeable bool) *accessor.Base[uint32] {
	funcs := accessor.TransferFuncs[uint32]{
		Read: func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, version.Validity, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if !b.open {
				return false, version.OK, deverrs.NewRuntimeError("dummy.Read", "backend is not open")
			}
			if b.activeErr != nil {
				return false, version.OK, b.activeErr
			}
			words := b.bars[bar]
			baseWord := address / wordSize
			out := buf.Channel(0)
			for i := 0; i < nElements; i++ {
				out[i] = uint32(words[baseWord+uint64(i)])
			}
			return true, version.OK, nil
		},
	}
	if writeable {
		funcs.Write = func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if !b.open {
				return false, deverrs.NewRuntimeError("dummy.Write", "backend is not open")
			}
			if b.activeErr != nil {
				return false, b.activeErr
			}
			words := b.bars[bar]
			baseWord := address / wordSize
			in := buf.Channel(0)
			for i := 0; i < nElements; i++ {
				wordAddr := (baseWord + uint64(i)) * wordSize
				if b.readOnly[addr{bar: bar, address: wordAddr}] {
					continue
				}
				words[baseWord+uint64(i)] = int32(in[i])
			}
			return false, nil
		}
	}

	return accessor.NewBase[uint32](name, 1, nElements, accessor.AccessMode{Raw: true},
		funcs, mergeKey{backend: b, bar: bar, address: address})
}

var _ backend.Backend = (*Backend)(nil)
