package native

import (
	"time"
	"unsafe"
)

// Callback receives a NUL-terminated JSON buffer owned by the engine. The
// pointer is only valid until the callback returns; copy before retaining.
// The engine may call it from any thread, concurrently, at any time.
type Callback func(payload unsafe.Pointer)

// Engine is the three-entry-point ABI of the native recognizer.
// Implementations are cgo-backed (build tag: phonics_native) or a simulator.
type Engine interface {
	// RegisterCallback installs cb as the engine's event handler. nil clears it.
	RegisterCallback(cb Callback)
	// StartListening hands the engine a NUL-terminated JSON array of
	// expected utterances. The caller owns the buffer; the engine must not
	// keep the pointer after returning.
	StartListening(expected unsafe.Pointer)
	// StopListening ends the current session, if any.
	StopListening()
}

type Options struct {
	// SimulateResults makes the simulator report partial and final
	// transcripts for the first expected utterance.
	SimulateResults bool
	SimulateDelay   time.Duration
}
