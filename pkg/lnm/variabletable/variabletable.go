// Package variabletable holds the live value of every LNM VARIABLE and
// CONSTANT register (original_source's LNMVariable::ValueTable), keyed by
// logical register path. Values never touch disk: the non-goal "no
// durable persistence" (spec §6) is why the backing badger.DB is opened
// WithInMemory(true) rather than as a file-backed store.
package variabletable

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Table is the shared store backing every VARIABLE/CONSTANT accessor of
// one LogicalNameMappingBackend instance.
type Table struct {
	db *badger.DB

	mu          sync.Mutex
	subscribers map[string][]chan struct{}
}

// Open creates a fresh, empty in-memory table.
func Open() (*Table, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("variabletable: open: %w", err)
	}
	return &Table{db: db, subscribers: make(map[string][]chan struct{})}, nil
}

func (t *Table) Close() error { return t.db.Close() }

// entry is the gob-encoded record stored per path.
type entry[T any] struct {
	Value    []T
	Validity version.Validity
	Version  version.Number
}

// Set stores value under path, bumps the stored validity/version, and
// wakes any goroutine blocked in WaitChanged(path).
func Set[T any](t *Table, path string, value []T, validity version.Validity, v version.Number) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry[T]{Value: value, Validity: validity, Version: v}); err != nil {
		return fmt.Errorf("variabletable: encode %q: %w", path, err)
	}
	if err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), buf.Bytes())
	}); err != nil {
		return fmt.Errorf("variabletable: set %q: %w", path, err)
	}
	t.notify(path)
	return nil
}

// Get returns the current value, validity and version stored for path.
// badger.ErrKeyNotFound is returned verbatim if nothing was ever Set for
// path (the caller, typically a CONSTANT accessor seeded at construction
// or a VARIABLE accessor not yet written, translates this to its own
// zero state).
func Get[T any](t *Table, path string) ([]T, version.Validity, version.Number, error) {
	var e entry[T]
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&e)
		})
	})
	if err != nil {
		return nil, version.OK, version.Number{}, err
	}
	return e.Value, e.Validity, e.Version, nil
}

// WaitChanged returns a channel that receives one value every time Set is
// called for path. The returned unsubscribe func must be called when the
// caller stops watching, to release the channel from the subscriber list.
func (t *Table) WaitChanged(path string) (ch <-chan struct{}, unsubscribe func()) {
	c := make(chan struct{}, 1)
	t.mu.Lock()
	t.subscribers[path] = append(t.subscribers[path], c)
	t.mu.Unlock()

	return c, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs := t.subscribers[path]
		for i, sub := range subs {
			if sub == c {
				t.subscribers[path] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

func (t *Table) notify(path string) {
	t.mu.Lock()
	subs := append([]chan struct{}{}, t.subscribers[path]...)
	t.mu.Unlock()
	for _, c := range subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}
