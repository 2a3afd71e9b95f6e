// Package bus is the in-process publish/subscribe channel between the
// speech bridge and the application. Payloads travel as JSON so listeners
// see exactly what a webview client would.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrEncode is returned by Emit when the payload cannot be marshalled.
var ErrEncode = errors.New("bus: encode payload")

// Event is a single delivery to a listener.
type Event struct {
	ID      string
	Name    string
	Payload json.RawMessage
}

// Handler receives events synchronously on the emitting goroutine.
type Handler func(Event)

type listener struct {
	id uint64
	fn Handler
}

type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]listener
}

func New() *Bus {
	return &Bus{listeners: make(map[string][]listener)}
}

// Listen registers h for events named name. The returned function removes
// the registration and is safe to call more than once.
func (b *Bus) Listen(name string, h Handler) (unlisten func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], listener{id: id, fn: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[name]
	for i, l := range ls {
		if l.id == id {
			// copy so in-flight snapshots are not mutated
			next := make([]listener, 0, len(ls)-1)
			next = append(next, ls[:i]...)
			next = append(next, ls[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, name)
			} else {
				b.listeners[name] = next
			}
			return
		}
	}
}

// Emit marshals payload and delivers it to every listener of name, in
// registration order. A nil payload is delivered as JSON null.
func (b *Bus) Emit(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncode, name, err)
	}
	b.mu.RLock()
	ls := b.listeners[name]
	b.mu.RUnlock()

	ev := Event{ID: uuid.NewString(), Name: name, Payload: raw}
	for _, l := range ls {
		l.fn(ev)
	}
	return nil
}

// Listeners reports how many handlers are registered for name.
func (b *Bus) Listeners(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}
