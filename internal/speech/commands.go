package speech

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/obiente/phonics/gospeech/internal/bus"
)

const msgInvalidPayload = "Invalid speech payload"

var errMissingUtterances = errors.New("missing field expectedUtterances")

// StartPayload is carried by StartChannel.
type StartPayload struct {
	ExpectedUtterances []string `json:"expectedUtterances"`
}

// Listeners keeps the command subscriptions alive until Close.
type Listeners struct {
	start func()
	stop  func()
}

// Attach wires the start/stop command channels of b to bridge. Failures of
// a start command are published on EventChannel as {type:"error"} events.
func Attach(b *bus.Bus, bridge *Bridge) *Listeners {
	start := b.Listen(StartChannel, func(ev bus.Event) {
		expected, err := decodeStart(ev.Payload)
		if err != nil {
			log.Error().Err(err).Msg("speech: failed to parse speech payload")
			emitError(b, msgInvalidPayload)
			return
		}
		if err := bridge.Start(expected); err != nil {
			log.Warn().Err(err).Int("utterances", len(expected)).Msg("speech: start rejected")
			emitError(b, err.Error())
		}
	})
	stop := b.Listen(StopChannel, func(bus.Event) {
		bridge.Stop()
	})
	return &Listeners{start: start, stop: stop}
}

// decodeStart requires the expectedUtterances field to be present, spelled
// exactly, and an array; an empty array is left for Start to reject. The
// decoder's struct matching is case-insensitive, so the key is looked up by
// hand.
func decodeStart(raw []byte) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	field, ok := fields["expectedUtterances"]
	if !ok {
		return nil, errMissingUtterances
	}
	var expected []string
	if err := json.Unmarshal(field, &expected); err != nil {
		return nil, err
	}
	if expected == nil {
		return nil, errMissingUtterances
	}
	return expected, nil
}

func emitError(b *bus.Bus, msg string) {
	if err := b.Emit(EventChannel, newErrorEvent(msg)); err != nil {
		log.Error().Err(err).Msg("speech: failed to emit error event")
	}
}

// Close unregisters both command listeners.
func (l *Listeners) Close() {
	l.start()
	l.stop()
}
