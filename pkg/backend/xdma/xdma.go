// Package xdma implements the backend for a Linux XDMA-driven PCIe
// device: raw register transfers are pread/pwrite against one device
// file per BAR, and each interrupt number the map file declares gets
// its own /events<idx> character-device reader whose wakeups feed a
// pkg/async.Domain (spec §2 "XdmaBackend (real hardware, event-file
// interrupts)"), grounded on
// device_backends/xdma/src/DeviceFile.cc and .../EventFile.cc.
package xdma

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/async"
	"github.com/ctkgo/deviceaccess/pkg/backend"
	"github.com/ctkgo/deviceaccess/pkg/catalogue"
	"github.com/ctkgo/deviceaccess/pkg/catalogue/numericmap"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

const (
	eventReadPollPeriod = 200 * time.Millisecond
)

// HealthPollPeriod is how often pollHealth re-checks every open BAR's
// device node for disappearance (device unplugged / driver unloaded).
// internal/config's XDMAPollInterval overrides this at process startup;
// it is a package variable rather than a per-Backend field because
// Open's signature is fixed by backend.Factory and every xdma.Backend
// in a process should share one operator-tuned cadence.
var HealthPollPeriod = 500 * time.Millisecond

// deviceFile wraps one opened device node along with the
// fstat-nlink liveness check DeviceFile::goodState uses to notice the
// node was removed (device unplugged / driver unloaded) out from
// under an already-open fd.
type deviceFile struct {
	path string
	f    *os.File
}

func openDeviceFile(path string, flag int) (*deviceFile, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("xdma: opening device file %s: %w", path, err)
	}
	return &deviceFile{path: path, f: f}, nil
}

func (d *deviceFile) goodState() bool {
	var st unix.Stat_t
	if err := unix.Fstat(int(d.f.Fd()), &st); err != nil {
		return false
	}
	return st.Nlink > 0
}

func (d *deviceFile) Close() error { return d.f.Close() }

// eventFile reads one /events<idx> node in a loop: each read returns a
// single little-endian uint32 giving how many interrupts fired since
// the last read, and callback is invoked once per interrupt exactly
// like EventThread::handleEvent's `while(numInterrupts--) _callback()`.
type eventFile struct {
	*deviceFile
	callback func()
	stop     chan struct{}
	done     chan struct{}
}

func openEventFile(devicePath string, interruptIdx uint32, callback func()) (*eventFile, error) {
	path := filepath.Join(devicePath, fmt.Sprintf("events%d", interruptIdx))
	df, err := openDeviceFile(path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	ef := &eventFile{deviceFile: df, callback: callback, stop: make(chan struct{}), done: make(chan struct{})}
	go ef.run()
	return ef, nil
}

func (e *eventFile) run() {
	defer close(e.done)
	buf := make([]byte, 4)
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		_ = e.f.SetReadDeadline(time.Now().Add(eventReadPollPeriod))
		n, err := io.ReadFull(e.f, buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return
		}
		if n != 4 {
			continue
		}
		numInterrupts := binary.LittleEndian.Uint32(buf)
		for i := uint32(0); i < numInterrupts; i++ {
			e.callback()
		}
	}
}

func (e *eventFile) close() {
	close(e.stop)
	<-e.done
	_ = e.deviceFile.Close()
}

// Backend implements backend.Backend against a directory of XDMA
// device nodes: one "bar<N>" file per BAR the map file references and
// one "events<idx>" file per distinct interrupt number.
type Backend struct {
	devicePath string

	mu      sync.Mutex
	cat     *catalogue.RegisterCatalogue
	bars    map[uint64]*deviceFile
	events  map[uint32]*eventFile
	domains map[uint32]*async.Domain

	open      bool
	activeErr error

	healthStop chan struct{}
	healthDone chan struct{}
}

// Open parses mapFile (numeric-address map format, spec §6) to learn
// which BARs and interrupt numbers the register set needs; the actual
// device nodes are opened by the Open(ctx) method.
func Open(devicePath string, mapFile io.Reader) (*Backend, error) {
	cat := catalogue.New()
	if err := numericmap.Decode(mapFile, cat); err != nil {
		return nil, err
	}
	return &Backend{
		devicePath: devicePath,
		cat:        cat,
		bars:       map[uint64]*deviceFile{},
		events:     map[uint32]*eventFile{},
		domains:    map[uint32]*async.Domain{},
	}, nil
}

func (b *Backend) Open(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil
	}

	for _, info := range b.cat.List() {
		t := info.NumericAddressedTarget
		if _, ok := b.bars[t.Bar]; !ok {
			df, err := openDeviceFile(filepath.Join(b.devicePath, fmt.Sprintf("bar%d", t.Bar)), os.O_RDWR)
			if err != nil {
				b.closeAllLocked()
				return err
			}
			b.bars[t.Bar] = df
		}
		for _, id := range t.InterruptID {
			if _, ok := b.events[id]; ok {
				continue
			}
			dom := async.NewDomain()
			b.domains[id] = dom
			ef, err := openEventFile(b.devicePath, id, dom.Distribute)
			if err != nil {
				b.closeAllLocked()
				return err
			}
			b.events[id] = ef
		}
	}

	b.healthStop = make(chan struct{})
	b.healthDone = make(chan struct{})
	go b.pollHealth()

	b.open = true
	b.activeErr = nil
	return nil
}

func (b *Backend) pollHealth() {
	defer close(b.healthDone)
	ticker := time.NewTicker(HealthPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-b.healthStop:
			return
		case <-ticker.C:
			if !b.allFilesGood() {
				b.SetException(deverrs.NewRuntimeError("xdma", "device file for %q disappeared", b.devicePath))
			}
		}
	}
}

func (b *Backend) allFilesGood() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, df := range b.bars {
		if !df.goodState() {
			return false
		}
	}
	for _, ef := range b.events {
		if !ef.goodState() {
			return false
		}
	}
	return true
}

func (b *Backend) Close() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	stop, done := b.healthStop, b.healthDone
	b.mu.Unlock()

	close(stop)
	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeAllLocked()
	return nil
}

func (b *Backend) closeAllLocked() {
	for _, ef := range b.events {
		ef.close()
	}
	b.events = map[uint32]*eventFile{}
	for _, df := range b.bars {
		_ = df.Close()
	}
	b.bars = map[uint64]*deviceFile{}
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
	domains := make([]*async.Domain, 0, len(b.domains))
	for _, d := range b.domains {
		domains = append(domains, d)
	}
	b.mu.Unlock()
	for _, d := range domains {
		d.SetException()
	}
}

func (b *Backend) ActiveException() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeErr
}

// TriggerInterrupt always fails: on real hardware, interrupts
// originate from the device itself via the kernel driver's
// /events<idx> node, never from software asking the backend to
// pretend one happened.
func (b *Backend) TriggerInterrupt(context.Context, uint32) (version.Number, error) {
	return version.Number{}, deverrs.NewLogicError("xdma.TriggerInterrupt", "xdma backends cannot originate interrupts in software")
}

// mergeKey identifies an xdma register's hardware target for
// TransferGroup merging.
type mergeKey struct {
	backend *Backend
	bar     uint64
	address uint64
}

// RawRegisterAccessor returns a raw uint32[nElements] accessor that
// pread/pwrites bar's device file at byte offset address.
func (b *Backend) RawRegisterAccessor(name string, bar, address uint64, nElements int, writeable bool) *accessor.Base[uint32] {
	funcs := accessor.TransferFuncs[uint32]{
		Read: func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, version.Validity, error) {
			b.mu.Lock()
			open, activeErr, df := b.open, b.activeErr, b.bars[bar]
			b.mu.Unlock()
			if !open {
				return false, version.OK, deverrs.NewRuntimeError("xdma.Read", "backend is not open")
			}
			if activeErr != nil {
				return false, version.OK, activeErr
			}
			raw := make([]byte, nElements*4)
			if _, err := df.f.ReadAt(raw, int64(address)); err != nil {
				return false, version.OK, deverrs.NewRuntimeError("xdma.Read", "register %q: %v", name, err)
			}
			out := buf.Channel(0)
			for i := 0; i < nElements; i++ {
				out[i] = binary.LittleEndian.Uint32(raw[i*4:])
			}
			return true, version.OK, nil
		},
	}
	if writeable {
		funcs.Write = func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, error) {
			b.mu.Lock()
			open, activeErr, df := b.open, b.activeErr, b.bars[bar]
			b.mu.Unlock()
			if !open {
				return false, deverrs.NewRuntimeError("xdma.Write", "backend is not open")
			}
			if activeErr != nil {
				return false, activeErr
			}
			in := buf.Channel(0)
			raw := make([]byte, nElements*4)
			for i := 0; i < nElements; i++ {
				binary.LittleEndian.PutUint32(raw[i*4:], in[i])
			}
			if _, err := df.f.WriteAt(raw, int64(address)); err != nil {
				return false, deverrs.NewRuntimeError("xdma.Write", "register %q: %v", name, err)
			}
			return false, nil
		}
	}

	return accessor.NewBase[uint32](name, 1, nElements, accessor.AccessMode{Raw: true},
		funcs, mergeKey{backend: b, bar: bar, address: address})
}

var _ backend.Backend = (*Backend)(nil)
