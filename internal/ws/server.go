package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/phonics/gospeech/internal/bus"
	"github.com/obiente/phonics/gospeech/internal/config"
	"github.com/obiente/phonics/gospeech/internal/phonics"
	"github.com/obiente/phonics/gospeech/internal/speech"
)

// Server relays the speech bus to WebSocket clients. Clients send the
// start/stop commands and receive everything published on the speech
// channel, plus a match verdict for each transcript.
type Server struct {
	cfg      config.Config
	bus      *bus.Bus
	upgrader websocket.Upgrader

	// owner is the client whose start command is current. The engine runs
	// one session for the whole process, so only it may end the session
	// by disconnecting.
	ownerMu sync.Mutex
	owner   *conn
}

type clientMsg struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	TS      any             `json:"ts"`
}

type transcriptPayload struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// conn serializes writes; bus events arrive on engine goroutines.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex

	expectedMu sync.Mutex
	expected   []string
}

func (c *conn) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *conn) setExpected(expected []string) {
	c.expectedMu.Lock()
	c.expected = expected
	c.expectedMu.Unlock()
}

func (c *conn) snapshot() []string {
	c.expectedMu.Lock()
	defer c.expectedMu.Unlock()
	return c.expected
}

func (s *Server) setOwner(c *conn) {
	s.ownerMu.Lock()
	s.owner = c
	s.ownerMu.Unlock()
}

// release clears ownership if c holds it and reports whether it did.
func (s *Server) release(c *conn) bool {
	s.ownerMu.Lock()
	defer s.ownerMu.Unlock()
	if s.owner != c {
		return false
	}
	s.owner = nil
	return true
}

func NewServer(cfg config.Config, b *bus.Bus) *Server {
	return &Server{
		cfg: cfg,
		bus: b,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 4,
		},
	}
}

func (s *Server) readTimeout() time.Duration {
	if s.cfg.WSReadTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.cfg.WSReadTimeoutSec) * time.Second
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	timeout := s.readTimeout()
	_ = ws.SetReadDeadline(time.Now().Add(timeout))
	ws.SetPongHandler(func(string) error { _ = ws.SetReadDeadline(time.Now().Add(timeout)); return nil })

	c := &conn{ws: ws}
	unlisten := s.bus.Listen(speech.EventChannel, func(ev bus.Event) { s.forward(c, ev) })
	defer unlisten()

	log.Info().Str("remote", r.RemoteAddr).Msg("speech client connected")
	defer log.Info().Str("remote", r.RemoteAddr).Msg("speech client disconnected")

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("ws read error")
			}
			// the recognizer should not keep listening for a page that is gone
			if s.release(c) {
				s.emit(speech.StopChannel, nil)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(timeout))
		if mt != websocket.TextMessage {
			continue
		}
		var msg clientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.send(map[string]any{"type": "error", "detail": "invalid json"})
			continue
		}
		switch msg.Type {
		case "ping":
			_ = c.send(map[string]any{"type": "pong", "ts": msg.TS})
		case "emit":
			switch msg.Event {
			case speech.StartChannel:
				var p speech.StartPayload
				if err := json.Unmarshal(msg.Payload, &p); err == nil {
					c.setExpected(p.ExpectedUtterances)
				}
				s.setOwner(c)
			case speech.StopChannel:
				// an explicit stop ends the session whoever started it
				s.setOwner(nil)
			default:
				_ = c.send(map[string]any{"type": "error", "detail": "unsupported event"})
				continue
			}
			var payload any
			if len(msg.Payload) > 0 {
				payload = msg.Payload
			}
			s.emit(msg.Event, payload)
		default:
			_ = c.send(map[string]any{"type": "error", "detail": "unknown message type"})
		}
	}
}

func (s *Server) emit(event string, payload any) {
	if err := s.bus.Emit(event, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("ws: bus emit failed")
	}
}

func (s *Server) forward(c *conn, ev bus.Event) {
	if err := c.send(map[string]any{
		"type":    "event",
		"event":   ev.Name,
		"id":      ev.ID,
		"payload": ev.Payload,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to send speech event")
		return
	}

	var tp transcriptPayload
	if err := json.Unmarshal(ev.Payload, &tp); err != nil {
		return
	}
	if tp.Type != "partial" && tp.Type != "final" {
		return
	}
	expected := c.snapshot()
	status := phonics.Evaluate(tp.Transcript, expected)
	log.Debug().Str("transcript", tp.Transcript).Str("status", string(status)).Msg("match evaluated")
	_ = c.send(map[string]any{
		"type":       "match",
		"status":     status,
		"transcript": tp.Transcript,
		"final":      tp.Type == "final",
	})
}
