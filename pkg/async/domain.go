// Package async implements the interrupt/async distribution fan-out that
// sits between a backend's hardware event source (XDMA event file,
// SharedDummy's cross-process semaphore) and every accessor that has
// subscribed to it via wait_for_new_data (spec §4.11, §4.12: "... invokes
// asyncDomain.distribute(nullptr) ..."). A Domain carries no payload:
// subscribers wake up and re-read whatever register they care about
// themselves, same as the original's distribute(nullptr) contract.
package async

import "sync"

// Domain fans a single interrupt source out to any number of
// subscribers. Distribute is safe to call from the backend's dispatcher
// goroutine while subscribers come and go concurrently.
type Domain struct {
	mu          sync.Mutex
	subscribers map[int]chan struct{}
	nextID      int
	broken      bool
}

// NewDomain returns an empty Domain.
func NewDomain() *Domain {
	return &Domain{subscribers: make(map[int]chan struct{})}
}

// Subscribe registers a new listener and returns its wake channel plus an
// unsubscribe func the caller must invoke once it stops listening.
// Distribute sends are non-blocking and coalesce: a subscriber that
// hasn't drained the channel since the last wakeup simply doesn't get a
// second pending notification (spec §4.12 "surplus interrupts are
// intentionally coalesced").
func (d *Domain) Subscribe() (ch <-chan struct{}, unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	c := make(chan struct{}, 1)
	d.subscribers[id] = c
	if d.broken {
		c <- struct{}{}
	}

	return c, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subscribers, id)
	}
}

// Distribute wakes every current subscriber exactly once.
func (d *Domain) Distribute() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.subscribers {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// SetException marks the domain broken and wakes every subscriber (and
// any subscriber that joins afterwards gets woken immediately), so a
// blocked wait_for_new_data read observes the backend's exception state
// instead of hanging forever (spec §4.8 "setException: ... deactivate
// async-read").
func (d *Domain) SetException() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broken = true
	for _, c := range d.subscribers {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// ClearException resets the broken flag, called once a backend's next
// open() succeeds.
func (d *Domain) ClearException() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broken = false
}

// Broken reports whether SetException was called without a matching
// ClearException since.
func (d *Domain) Broken() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.broken
}

// SubscriberCount reports how many live subscriptions the domain has,
// used by tests and by DoubleBuffer-style readers that need to know
// whether they are the last reader.
func (d *Domain) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}
