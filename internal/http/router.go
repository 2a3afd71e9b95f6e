package http

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/obiente/phonics/gospeech/internal/bus"
	"github.com/obiente/phonics/gospeech/internal/config"
	"github.com/obiente/phonics/gospeech/internal/ws"
)

func NewRouter(cfg config.Config, b *bus.Bus) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	// Speech command/event relay
	wss := ws.NewServer(cfg, b)
	mux.HandleFunc("/ws/speech", wss.Handle)
	return mux
}
