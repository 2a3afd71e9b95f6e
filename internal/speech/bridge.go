// Package speech connects the native recognizer to the application bus.
//
// The engine reports results through a single registered callback which may
// run on any thread at any time, including after StopListening. Everything
// it needs is read from a write-once registry on each call.
package speech

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"
	"unsafe"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/obiente/phonics/gospeech/internal/native"
	"github.com/obiente/phonics/gospeech/internal/registry"
)

const (
	EventChannel = "phonics://speech"
	StartChannel = "phonics://speech:start"
	StopChannel  = "phonics://speech:stop"
)

const msgNoUtterances = "No utterances provided for recognizer."

// Emitter is the live application handle events are published through.
type Emitter interface {
	Emit(event string, payload any) error
}

type Bridge struct {
	engine   native.Engine
	app      *registry.Cell[Emitter]
	register sync.Once
}

// New builds a bridge around engine, publishing through the handle stored
// in app. The cell is usually fresh; it is taken as a parameter so the
// owner decides its lifetime.
func New(engine native.Engine, app *registry.Cell[Emitter]) *Bridge {
	if app == nil {
		app = &registry.Cell[Emitter]{}
	}
	return &Bridge{engine: engine, app: app}
}

// Initialize seeds the registry with app unless it already holds a handle,
// then registers the callback with the engine once. The registry may have
// been seeded by its owner before; registration still happens here.
func (b *Bridge) Initialize(app Emitter) {
	if !b.app.Initialize(app) {
		log.Debug().Msg("speech: application handle already set")
	}
	if _, ok := b.app.Current(); !ok {
		return
	}
	b.register.Do(func() {
		b.engine.RegisterCallback(b.HandleNativeEvent)
		log.Info().Msg("speech: native callback registered")
	})
}

// HandleNativeEvent is the engine's callback. payload is a NUL-terminated
// JSON buffer owned by the engine and only valid during this call. Bad
// input and a missing application handle are dropped, never surfaced.
func (b *Bridge) HandleNativeEvent(payload unsafe.Pointer) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("speech: recovered in native callback")
		}
	}()
	value, err := decodePayload(payload)
	if err != nil {
		log.Debug().Err(err).Msg("speech: dropping native event")
		return
	}
	app, ok := b.app.Current()
	if !ok {
		log.Debug().Msg("speech: dropping native event, no application handle yet")
		return
	}
	if err := app.Emit(EventChannel, value); err != nil {
		log.Error().Err(fmt.Errorf("%w: %v", ErrPublish, err)).Msg("speech: failed to emit speech event")
	}
}

func decodePayload(payload unsafe.Pointer) (any, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil pointer", ErrMalformedPayload)
	}
	raw := native.CopyCString(payload)
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrMalformedPayload)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return value, nil
}

// Start asks the engine to listen for expected. The JSON buffer handed to
// the engine is owned here and released once the call returns.
func (b *Bridge) Start(expected []string) error {
	if len(expected) == 0 {
		return &CommandError{Kind: ErrInvalidArgument, Message: msgNoUtterances}
	}
	// the encoder would escape or replace these silently
	for i, u := range expected {
		if strings.IndexByte(u, 0) >= 0 {
			return &CommandError{Kind: ErrEncoding, Message: fmt.Sprintf("utterance %d contains a nul byte", i)}
		}
		if !utf8.ValidString(u) {
			return &CommandError{Kind: ErrEncoding, Message: fmt.Sprintf("utterance %d is not valid utf-8", i)}
		}
	}
	encoded, err := json.Marshal(expected)
	if err != nil {
		return &CommandError{Kind: ErrEncoding, Message: err.Error()}
	}
	buf, err := native.NewCString(encoded)
	if err != nil {
		return &CommandError{Kind: ErrEncoding, Message: err.Error()}
	}

	log.Debug().Strs("expected", expected).Msg("speech: start listening")
	b.engine.StartListening(unsafe.Pointer(&buf[0]))
	runtime.KeepAlive(buf)
	return nil
}

// Stop asks the engine to stop listening. The engine may still deliver
// events that were already in flight.
func (b *Bridge) Stop() {
	log.Debug().Msg("speech: stop listening")
	b.engine.StopListening()
}
