// Package transport is the boundary with the USB-boot driver: stage events,
// the Source a watch adapter listens on, and an in-memory Emitter.
package transport

import (
	"sync"
)

// Listener receives events in the order the source observed them.
type Listener func(Event)

// Source is a process-wide handle on a boot driver's event stream.
type Source interface {
	// AddListener attaches l and returns a function that detaches exactly that
	// registration. The returned function is idempotent.
	AddListener(l Listener) (remove func())

	// RemoveAllListeners detaches every listener. It is idempotent.
	RemoveAllListeners()
}

var _ Source = (*Emitter)(nil)

// Emitter is an in-memory Source. Emit delivers synchronously on the caller's
// goroutine, to listeners in registration order.
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []registration
}

type registration struct {
	id uint64
	fn Listener
}

// NewEmitter returns an Emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) AddListener(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, registration{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.listeners {
		if r.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

func (e *Emitter) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}

// ListenerCount returns the number of attached listeners.
func (e *Emitter) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Emit delivers ev to every listener attached at the time of the call.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, r := range e.listeners {
		listeners = append(listeners, r.fn)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
