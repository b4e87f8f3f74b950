// Package shareddummy implements the cross-process sibling of
// backend/dummy: several independent processes that agree on an
// instance id, a map file path, and the running user attach the same
// memory-mapped register bank instead of each getting their own copy,
// so one process can stimulate registers that another observes (spec
// §2 "SharedDummyBackend (cross-process register bank)"), grounded on
// backends/SharedDummy/src/SharedDummyBackend.cc.
//
// The original keys a boost::interprocess managed_shared_memory
// segment and a named_mutex off hash(instanceId)|hash(mapFile)|
// hash(username), tracks joined PIDs in a shared vector, and runs one
// dispatcher thread per process that blocks on a process-specific
// boost::interprocess_semaphore stored alongside the bar contents, woken
// by any process that calls triggerInterrupt. This port keeps that
// shape but trades the named boost primitives for ones golang.org/x/sys/
// unix exposes directly: the segment is a regular file under os.TempDir
// opened with unix.Mmap (POSIX shared memory is itself file-backed, so
// this is the same mechanism boost::interprocess uses under Linux, not
// a substitute for it), mutual exclusion is unix.Flock on a sibling
// lock file, and each process's semaphore is a named FIFO
// (unix.Mkfifo) that other processes write a byte into to wake the
// dispatcher goroutine blocked reading it.
package shareddummy

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

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
	wordSize             = 4
	maxMembers           = 10
	maxInterruptEntries  = 1000
	dispatcherPollPeriod = 200 * time.Millisecond
)

// pidSlot is one entry of the shared process-id set (PidSet in the
// original); used is a plain flag rather than a sentinel pid value so
// pid 0 (never assigned by any real kernel) doesn't need special
// casing.
type pidSlot struct {
	pid  int32
	used int32
}

// interruptSlot is one entry of ShmForSems.interruptEntries: the
// controllerId field the original keeps for on-disk compatibility is
// not modeled since nothing in this port ever writes shm from an
// instance predating it.
type interruptSlot struct {
	intNumber int32
	counter   uint32
	used      int32
	_         int32
}

// header is the fixed-size part of the mapped segment. It contains no
// pointers or slices, only fixed arrays of fixed-size integers, so its
// Go memory layout can safely be aliased onto the mmap'd bytes shared
// with other processes.
type header struct {
	requiredVersion uint32
	_               uint32
	pids            [maxMembers]pidSlot
	interrupts      [maxInterruptEntries]interruptSlot
}

var headerSize = int(unsafe.Sizeof(header{}))

// ShmRootDir is the directory new segments, lock files, and fifo
// directories are created under. internal/config's SharedDummyShmRoot
// overrides this at process startup so every sharedDummy backend in a
// deployment agrees on where to rendezvous, independent of $TMPDIR.
var ShmRootDir = os.TempDir()

type addr struct {
	bar     uint64
	address uint64
}

// Backend is a shared-memory register bank joined by instance id, map
// file path, and user identity the same way the original's shared
// memory segment name is built.
type Backend struct {
	instanceID string
	mapPath    string

	shmPath  string
	lockPath string
	fifoDir  string

	shmFile  *os.File
	lockFile *os.File
	mapped   []byte
	hdr      *header
	words    []int32

	cat           *catalogue.RegisterCatalogue
	readOnly      map[addr]bool
	barWordOffset map[uint64]int

	pid int32

	mu        sync.Mutex
	open      bool
	activeErr error

	domainsMu sync.Mutex
	domains   map[uint32]*async.Domain

	seenCounters map[int32]uint32

	stop chan struct{}
	done chan struct{}
}

// Open joins (creating if necessary) the shared segment identified by
// instanceID, mapPath (used only as a stable name component; it need
// not exist as a file since mapFile supplies the actual content) and
// the current OS user, sizing bars from mapFile the same way
// backend/dummy does.
func Open(instanceID, mapPath string, mapFile io.Reader) (*Backend, error) {
	cat := catalogue.New()
	if err := numericmap.Decode(mapFile, cat); err != nil {
		return nil, err
	}

	b := &Backend{
		instanceID:    instanceID,
		mapPath:       mapPath,
		cat:           cat,
		readOnly:      map[addr]bool{},
		barWordOffset: map[uint64]int{},
		domains:       map[uint32]*async.Domain{},
		seenCounters:  map[int32]uint32{},
	}

	barSizeWords := map[uint64]int{}
	for _, info := range cat.List() {
		t := info.NumericAddressedTarget
		endWord := int((t.Address + uint64(t.NBytes) + wordSize - 1) / wordSize)
		if endWord > barSizeWords[t.Bar] {
			barSizeWords[t.Bar] = endWord
		}
		if !info.Writeable {
			nWords := info.NumberOfElements
			baseWord := int(t.Address / wordSize)
			for i := 0; i < nWords; i++ {
				b.readOnly[addr{bar: t.Bar, address: uint64((baseWord + i) * wordSize)}] = true
			}
		}
	}

	offset := 0
	for bar, nWords := range barSizeWords {
		b.barWordOffset[bar] = offset
		offset += nWords
	}
	totalWords := offset

	name := segmentName(instanceID, mapPath, currentUsername())
	dir := ShmRootDir
	b.shmPath = filepath.Join(dir, name+".shm")
	b.lockPath = filepath.Join(dir, name+".lock")
	b.fifoDir = filepath.Join(dir, name+".fifos")
	if err := os.MkdirAll(b.fifoDir, 0o700); err != nil {
		return nil, fmt.Errorf("shareddummy: creating fifo directory: %w", err)
	}

	lockFile, err := os.OpenFile(b.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shareddummy: opening lock file: %w", err)
	}
	b.lockFile = lockFile

	size := headerSize + totalWords*wordSize
	shmFile, mapped, err := attachSegment(b.shmPath, size, b.lockFile)
	if err != nil {
		lockFile.Close()
		return nil, err
	}
	b.shmFile = shmFile
	b.mapped = mapped
	b.hdr = (*header)(unsafe.Pointer(&mapped[0]))
	if totalWords > 0 {
		b.words = unsafe.Slice((*int32)(unsafe.Pointer(&mapped[headerSize])), totalWords)
	}

	return b, nil
}

func segmentName(instanceID, mapPath, username string) string {
	h := fnv.New64a()
	io.WriteString(h, instanceID)
	io.WriteString(h, "|")
	io.WriteString(h, mapPath)
	io.WriteString(h, "|")
	io.WriteString(h, username)
	return fmt.Sprintf("chimeratk-shareddummy-%016x", h.Sum64())
}

func currentUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return fmt.Sprintf("uid%d", os.Getuid())
}

// attachSegment opens (creating and sizing if necessary) the backing
// file at path and mmaps it MAP_SHARED. lockFile guards the
// create-and-truncate race between simultaneously starting processes.
func attachSegment(path string, size int, lockFile *os.File) (*os.File, []byte, error) {
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return nil, nil, fmt.Errorf("shareddummy: locking segment: %w", err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("shareddummy: opening segment: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if int(st.Size()) < size {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("shareddummy: sizing segment: %w", err)
		}
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("shareddummy: mapping segment: %w", err)
	}
	return f, mapped, nil
}

// Open joins the PID set, publishes our own FIFO semaphore and starts
// the dispatcher goroutine that turns wakeups on it into
// async.Domain.Distribute calls, mirroring open() constructing the
// InterruptDispatcherInterface.
func (b *Backend) Open(context.Context) error {
	b.mu.Lock()
	if b.open {
		b.mu.Unlock()
		return nil
	}
	b.pid = int32(os.Getpid())
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.mu.Unlock()

	if err := b.withLock(func() error {
		b.cleanupDeadPidsLocked()
		return b.joinPidSetLocked()
	}); err != nil {
		return err
	}

	fifoPath := b.fifoPath(b.pid)
	_ = os.Remove(fifoPath)
	if err := unix.Mkfifo(fifoPath, 0o600); err != nil {
		return fmt.Errorf("shareddummy: creating semaphore fifo: %w", err)
	}
	// Open O_RDWR so the read end never observes EOF while no writer is
	// currently connected.
	fifo, err := os.OpenFile(fifoPath, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("shareddummy: opening semaphore fifo: %w", err)
	}

	b.mu.Lock()
	b.open = true
	b.activeErr = nil
	b.mu.Unlock()

	go b.runDispatcher(fifo)
	return nil
}

func (b *Backend) joinPidSetLocked() error {
	for i := range b.hdr.pids {
		if b.hdr.pids[i].used != 0 && b.hdr.pids[i].pid == b.pid {
			return nil
		}
	}
	for i := range b.hdr.pids {
		if b.hdr.pids[i].used == 0 {
			b.hdr.pids[i] = pidSlot{pid: b.pid, used: 1}
			return nil
		}
	}
	return deverrs.NewRuntimeError("shareddummy.Open", "shared memory segment already has %d member processes", maxMembers)
}

// cleanupDeadPidsLocked drops pid-set entries whose process no longer
// exists, so a crashed peer doesn't permanently occupy a slot (spec
// §4.11 "checkPidSetConsistency").
func (b *Backend) cleanupDeadPidsLocked() {
	for i := range b.hdr.pids {
		slot := &b.hdr.pids[i]
		if slot.used == 0 {
			continue
		}
		if err := unix.Kill(int(slot.pid), 0); errors.Is(err, unix.ESRCH) {
			*slot = pidSlot{}
		}
	}
}

func (b *Backend) fifoPath(pid int32) string {
	return filepath.Join(b.fifoDir, fmt.Sprintf("sem-%d", pid))
}

func (b *Backend) withLock(fn func() error) error {
	if err := unix.Flock(int(b.lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("shareddummy: locking segment: %w", err)
	}
	defer unix.Flock(int(b.lockFile.Fd()), unix.LOCK_UN)
	return fn()
}

func (b *Backend) runDispatcher(fifo *os.File) {
	defer close(b.done)
	defer fifo.Close()

	buf := make([]byte, 64)
	for {
		select {
		case <-b.stop:
			return
		default:
		}
		_ = fifo.SetReadDeadline(time.Now().Add(dispatcherPollPeriod))
		n, err := fifo.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return
		}
		if n > 0 {
			b.scanInterrupts()
		}
	}
}

func (b *Backend) scanInterrupts() {
	var changed []int32
	_ = b.withLock(func() error {
		for i := range b.hdr.interrupts {
			slot := &b.hdr.interrupts[i]
			if slot.used == 0 {
				continue
			}
			if b.seenCounters[slot.intNumber] != slot.counter {
				b.seenCounters[slot.intNumber] = slot.counter
				changed = append(changed, slot.intNumber)
			}
		}
		return nil
	})
	for _, id := range changed {
		b.domainFor(uint32(id)).Distribute()
	}
}

// Close stops the dispatcher goroutine, leaves the PID set, and — if
// we were the last member — removes the segment and lock files.
func (b *Backend) Close() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	stop := b.stop
	done := b.done
	b.mu.Unlock()

	close(stop)
	<-done
	_ = os.Remove(b.fifoPath(b.pid))

	lastMember := false
	_ = b.withLock(func() error {
		for i := range b.hdr.pids {
			if b.hdr.pids[i].used != 0 && b.hdr.pids[i].pid == b.pid {
				b.hdr.pids[i] = pidSlot{}
			}
		}
		lastMember = true
		for i := range b.hdr.pids {
			if b.hdr.pids[i].used != 0 {
				lastMember = false
				break
			}
		}
		return nil
	})

	if b.mapped != nil {
		_ = unix.Munmap(b.mapped)
	}
	if b.shmFile != nil {
		b.shmFile.Close()
	}
	if lastMember {
		_ = os.Remove(b.shmPath)
		_ = os.Remove(b.lockPath)
		_ = os.RemoveAll(b.fifoDir)
	}
	if b.lockFile != nil {
		b.lockFile.Close()
	}
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

// TriggerInterrupt bumps the shared counter for id and wakes every
// live member process's dispatcher via its FIFO, the same way
// InterruptDispatcherInterface::triggerInterrupt posts every
// registered process's semaphore.
func (b *Backend) TriggerInterrupt(_ context.Context, id uint32) (version.Number, error) {
	var pids []int32
	err := b.withLock(func() error {
		slot, err := b.findOrCreateInterruptSlotLocked(id)
		if err != nil {
			return err
		}
		slot.counter++
		for i := range b.hdr.pids {
			if b.hdr.pids[i].used != 0 {
				pids = append(pids, b.hdr.pids[i].pid)
			}
		}
		return nil
	})
	if err != nil {
		return version.Number{}, err
	}
	for _, pid := range pids {
		b.wake(pid)
	}
	return version.New(), nil
}

func (b *Backend) findOrCreateInterruptSlotLocked(id uint32) (*interruptSlot, error) {
	var free *interruptSlot
	for i := range b.hdr.interrupts {
		slot := &b.hdr.interrupts[i]
		if slot.used != 0 && slot.intNumber == int32(id) {
			return slot, nil
		}
		if slot.used == 0 && free == nil {
			free = slot
		}
	}
	if free == nil {
		return nil, deverrs.NewRuntimeError("shareddummy.TriggerInterrupt", "interrupt entry table is full (max %d)", maxInterruptEntries)
	}
	*free = interruptSlot{intNumber: int32(id), used: 1}
	return free, nil
}

func (b *Backend) wake(pid int32) {
	f, err := os.OpenFile(b.fifoPath(pid), os.O_WRONLY|os.O_NONBLOCK, 0)
	if err != nil {
		// Peer has no reader currently attached (crashed, or hasn't
		// called Open yet); nothing to wake.
		return
	}
	_, _ = f.Write([]byte{1})
	f.Close()
}

// mergeKey identifies a shareddummy register's hardware target for
// TransferGroup merging, same role as backend/dummy's mergeKey.
type mergeKey struct {
	backend *Backend
	bar     uint64
	address uint64
}

// RawRegisterAccessor returns a raw uint32[nElements] accessor over the
// word range starting at address in bar, backed by the shared mapping
// rather than process-local memory.
func (b *Backend) RawRegisterAccessor(name string, bar, address uint64, nElements int, writeable bool) *accessor.Base[uint32] {
	funcs := accessor.TransferFuncs[uint32]{
		Read: func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, version.Validity, error) {
			b.mu.Lock()
			open, activeErr := b.open, b.activeErr
			b.mu.Unlock()
			if !open {
				return false, version.OK, deverrs.NewRuntimeError("shareddummy.Read", "backend is not open")
			}
			if activeErr != nil {
				return false, version.OK, activeErr
			}
			out := buf.Channel(0)
			_ = b.withLock(func() error {
				baseWord := b.barWordOffset[bar] + int(address/wordSize)
				for i := 0; i < nElements; i++ {
					out[i] = uint32(b.words[baseWord+i])
				}
				return nil
			})
			return true, version.OK, nil
		},
	}
	if writeable {
		funcs.Write = func(_ context.Context, buf *accessor.Buffer[uint32]) (bool, error) {
			b.mu.Lock()
			open, activeErr := b.open, b.activeErr
			b.mu.Unlock()
			if !open {
				return false, deverrs.NewRuntimeError("shareddummy.Write", "backend is not open")
			}
			if activeErr != nil {
				return false, activeErr
			}
			in := buf.Channel(0)
			_ = b.withLock(func() error {
				baseWord := b.barWordOffset[bar] + int(address/wordSize)
				for i := 0; i < nElements; i++ {
					if b.readOnly[addr{bar: bar, address: address + uint64(i*wordSize)}] {
						continue
					}
					b.words[baseWord+i] = int32(in[i])
				}
				return nil
			})
			return false, nil
		}
	}

	return accessor.NewBase[uint32](name, 1, nElements, accessor.AccessMode{Raw: true},
		funcs, mergeKey{backend: b, bar: bar, address: address})
}

var _ backend.Backend = (*Backend)(nil)
