//go:build !phonics_native

package native

import (
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Default simulator (no cgo) so the project builds and runs without the
// native library. It reports events from its own goroutines, like the real
// engine does from its recognition threads.
type simEngine struct {
	results bool
	delay   time.Duration

	mu   sync.Mutex
	cb   Callback
	stop chan struct{} // closed when the active session ends; nil when idle
}

type simEvent struct {
	Type       string `json:"type"`
	Status     string `json:"status,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Message    string `json:"message,omitempty"`
}

func NewEngine(opts Options) (Engine, error) {
	delay := opts.SimulateDelay
	if delay <= 0 {
		delay = 400 * time.Millisecond
	}
	log.Info().Bool("results", opts.SimulateResults).Dur("delay", delay).Msg("native: using simulated speech engine")
	return &simEngine{results: opts.SimulateResults, delay: delay}, nil
}

func (e *simEngine) RegisterCallback(cb Callback) {
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

func (e *simEngine) StartListening(expected unsafe.Pointer) {
	// the buffer is only ours until we return
	raw := CopyCString(expected)
	var utterances []string
	if err := json.Unmarshal(raw, &utterances); err != nil || len(utterances) == 0 {
		log.Warn().Err(err).Msg("native: simulator got unusable targets")
		go e.fire(simEvent{Type: "error", Message: "Recognizer targets could not be read."})
		return
	}

	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
	}
	stop := make(chan struct{})
	e.stop = stop
	e.mu.Unlock()

	go e.run(stop, utterances)
}

func (e *simEngine) StopListening() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	go e.fire(simEvent{Type: "status", Status: "idle"})
}

func (e *simEngine) run(stop chan struct{}, utterances []string) {
	steps := []simEvent{{Type: "status", Status: "listening"}}
	if e.results {
		target := utterances[0]
		if r := []rune(target); len(r) > 1 {
			steps = append(steps, simEvent{Type: "partial", Transcript: string(r[:(len(r)+1)/2])})
		}
		steps = append(steps, simEvent{Type: "final", Transcript: target})
	}

	for i, ev := range steps {
		if i > 0 {
			select {
			case <-stop:
				return
			case <-time.After(e.delay):
			}
		}
		select {
		case <-stop:
			return
		default:
		}
		e.fire(ev)
	}

	select {
	case <-stop:
		return
	case <-time.After(e.delay):
	}
	e.mu.Lock()
	if e.stop != stop {
		e.mu.Unlock()
		return
	}
	e.stop = nil
	e.mu.Unlock()
	e.fire(simEvent{Type: "status", Status: "idle"})
}

// fire hands the callback a NUL-terminated buffer that stays valid only for
// the duration of the call.
func (e *simEngine) fire(ev simEvent) {
	e.mu.Lock()
	cb := e.cb
	e.mu.Unlock()
	if cb == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("native: simulator encode failed")
		return
	}
	buf := append(b, 0)
	cb(unsafe.Pointer(&buf[0]))
	runtime.KeepAlive(buf)
}
