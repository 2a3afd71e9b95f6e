package ws

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/phonics/gospeech/internal/bus"
	"github.com/obiente/phonics/gospeech/internal/config"
	"github.com/obiente/phonics/gospeech/internal/native"
	"github.com/obiente/phonics/gospeech/internal/speech"
)

// scriptEngine answers every start with a fixed transcript from its own
// goroutine, the way the native recognizer reports from its threads.
type scriptEngine struct {
	mu         sync.Mutex
	cb         native.Callback
	transcript string
	stops      int
}

func (e *scriptEngine) RegisterCallback(cb native.Callback) {
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

func (e *scriptEngine) StartListening(unsafe.Pointer) {
	go func() {
		e.fire(`{"type":"status","status":"listening"}`)
		e.fire(`{"type":"final","transcript":"` + e.transcript + `"}`)
	}()
}

func (e *scriptEngine) StopListening() {
	e.mu.Lock()
	e.stops++
	e.mu.Unlock()
}

func (e *scriptEngine) stopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *scriptEngine) fire(s string) {
	e.mu.Lock()
	cb := e.cb
	e.mu.Unlock()
	buf := append([]byte(s), 0)
	cb(unsafe.Pointer(&buf[0]))
	runtime.KeepAlive(buf)
}

// newRelay starts a relay over a scripted engine and returns a dialer for
// connecting clients to it.
func newRelay(t *testing.T, transcript string) (func() *websocket.Conn, *scriptEngine) {
	t.Helper()
	b := bus.New()
	eng := &scriptEngine{transcript: transcript}
	br := speech.New(eng, nil)
	br.Initialize(b)
	l := speech.Attach(b, br)
	t.Cleanup(l.Close)

	srv := httptest.NewServer(http.HandlerFunc(NewServer(config.Config{WSReadTimeoutSec: 5}, b).Handle))
	t.Cleanup(srv.Close)

	dial := func() *websocket.Conn {
		c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}
	return dial, eng
}

func newTestServer(t *testing.T, transcript string) (*websocket.Conn, *scriptEngine) {
	t.Helper()
	dial, eng := newRelay(t, transcript)
	return dial(), eng
}

func readMsg(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestRelaySession(t *testing.T) {
	c, _ := newTestServer(t, "bee")

	require.NoError(t, c.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"emit","event":"phonics://speech:start","payload":{"expectedUtterances":["b"]}}`)))

	m := readMsg(t, c)
	assert.Equal(t, "event", m["type"])
	assert.Equal(t, "phonics://speech", m["event"])
	assert.NotEmpty(t, m["id"])
	assert.Equal(t, map[string]any{"type": "status", "status": "listening"}, m["payload"])

	m = readMsg(t, c)
	assert.Equal(t, map[string]any{"type": "final", "transcript": "bee"}, m["payload"])

	m = readMsg(t, c)
	assert.Equal(t, "match", m["type"])
	assert.Equal(t, "match", m["status"])
	assert.Equal(t, "bee", m["transcript"])
	assert.Equal(t, true, m["final"])
}

func TestRelayStartErrors(t *testing.T) {
	c, _ := newTestServer(t, "red")

	require.NoError(t, c.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"emit","event":"phonics://speech:start","payload":{"expectedUtterances":[]}}`)))

	m := readMsg(t, c)
	assert.Equal(t, map[string]any{"type": "error", "message": "No utterances provided for recognizer."}, m["payload"])

	require.NoError(t, c.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"emit","event":"phonics://speech:start"}`)))

	m = readMsg(t, c)
	assert.Equal(t, map[string]any{"type": "error", "message": "Invalid speech payload"}, m["payload"])
}

func TestRelayRejectsOtherMessages(t *testing.T) {
	c, _ := newTestServer(t, "red")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"emit","event":"phonics://speech"}`)))
	assert.Equal(t, map[string]any{"type": "error", "detail": "unsupported event"}, readMsg(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))
	assert.Equal(t, map[string]any{"type": "error", "detail": "unknown message type"}, readMsg(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, map[string]any{"type": "error", "detail": "invalid json"}, readMsg(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","ts":12}`)))
	assert.Equal(t, map[string]any{"type": "pong", "ts": float64(12)}, readMsg(t, c))
}

func TestRelayStopCommand(t *testing.T) {
	c, eng := newTestServer(t, "red")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"emit","event":"phonics://speech:stop"}`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	readMsg(t, c)

	assert.Equal(t, 1, eng.stopCount())
}

func TestRelayStopsOnDisconnect(t *testing.T) {
	c, eng := newTestServer(t, "red")

	require.NoError(t, c.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"emit","event":"phonics://speech:start","payload":{"expectedUtterances":["red"]}}`)))
	readMsg(t, c)
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool { return eng.stopCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// roundTrip waits until the relay has handled everything c sent so far;
// messages from one client are processed in order.
func roundTrip(t *testing.T, c *websocket.Conn) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	for m := readMsg(t, c); m["type"] != "pong"; m = readMsg(t, c) {
	}
}

func TestRelayDisconnectOnlyStopsOwnSession(t *testing.T) {
	dial, eng := newRelay(t, "red")
	first := dial()
	second := dial()
	start := []byte(`{"type":"emit","event":"phonics://speech:start","payload":{"expectedUtterances":["red"]}}`)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, start))
	roundTrip(t, first)
	require.NoError(t, second.WriteMessage(websocket.TextMessage, start))
	roundTrip(t, second)

	// second's start replaced first's session, so first leaving must not end it
	require.NoError(t, first.Close())
	assert.Never(t, func() bool { return eng.stopCount() != 0 }, 150*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool { return eng.stopCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelayNoStopAfterExplicitStop(t *testing.T) {
	c, eng := newTestServer(t, "red")

	require.NoError(t, c.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"emit","event":"phonics://speech:start","payload":{"expectedUtterances":["red"]}}`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"emit","event":"phonics://speech:stop"}`)))
	roundTrip(t, c)
	require.NoError(t, c.Close())

	assert.Never(t, func() bool { return eng.stopCount() != 1 }, 150*time.Millisecond, 10*time.Millisecond)
}
