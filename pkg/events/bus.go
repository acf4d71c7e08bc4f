// Package events provides the in-process "cart changed" notification channel.
//
// A Bus is an explicit object: the process context builds one at startup,
// hands it to whoever mutates or observes carts, and closes it at shutdown.
package events

import (
	"sync"
	"sync/atomic"
)

// Change describes a cart mutation. Observers may ignore the payload and treat
// every emission as "re-read the cart".
type Change struct {
	CartKey string
	Op      Op
}

// Op names the mutation that produced a Change.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
	OpLogin  Op = "login"
	OpLogout Op = "logout"
)

// Handler receives emitted changes. It runs on the emitter's goroutine.
type Handler func(Change)

type listener struct {
	fn     Handler
	active atomic.Bool
}

// Bus fans a Change out to every subscribed handler.
//
// The listener slice is copy-on-write: Emit iterates an immutable snapshot, so
// handlers may subscribe or unsubscribe (themselves or others) while an
// emission is in flight. A listener removed before its turn is skipped; all
// other listeners still receive the change exactly once.
type Bus struct {
	mu        sync.Mutex
	listeners []*listener
	closed    bool
}

// NewBus returns an open bus with no listeners.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns its unsubscribe function. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	l := &listener{fn: fn}
	l.active.Store(true)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	next := make([]*listener, len(b.listeners), len(b.listeners)+1)
	copy(next, b.listeners)
	b.listeners = append(next, l)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(l) })
	}
}

func (b *Bus) remove(target *listener) {
	target.active.Store(false)

	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		if l != target {
			next = append(next, l)
		}
	}
	b.listeners = next
}

// Emit delivers change to the current listeners and returns how many handlers ran.
func (b *Bus) Emit(change Change) int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	snapshot := b.listeners
	b.mu.Unlock()

	delivered := 0
	for _, l := range snapshot {
		if !l.active.Load() {
			continue
		}
		l.fn(change)
		delivered++
	}
	return delivered
}

// Len returns the number of live listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Close drops every listener. Later Emit calls are no-ops and later
// Subscribe calls return a no-op unsubscribe.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.listeners {
		l.active.Store(false)
	}
	b.listeners = nil
	b.closed = true
}
