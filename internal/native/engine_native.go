//go:build phonics_native

package native

/*
#cgo LDFLAGS: -lphonics_speech
typedef void (*phonics_event_handler)(const char *json);
extern void phonics_set_callback(phonics_event_handler handler);
extern void phonics_start_listening(const char *expected_json);
extern void phonics_stop_listening(void);
extern void phonicsHandleNativeEvent(char *json);
*/
import "C"

import (
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
)

// handler is the only process-wide slot: the C callback signature carries
// no user-data pointer, so the exported trampoline has to find it here.
var handler atomic.Pointer[Callback]

// EngineNative forwards to the linked phonics_* symbols.
type EngineNative struct{}

func NewEngine(Options) (Engine, error) {
	log.Info().Msg("native: using linked phonics speech engine")
	return EngineNative{}, nil
}

func (EngineNative) RegisterCallback(cb Callback) {
	if cb == nil {
		handler.Store(nil)
		C.phonics_set_callback(nil)
		return
	}
	handler.Store(&cb)
	C.phonics_set_callback(C.phonics_event_handler(C.phonicsHandleNativeEvent))
}

// StartListening passes expected straight through. It must point at
// pointer-free Go memory (a byte slice) which cgo pins for the call.
func (EngineNative) StartListening(expected unsafe.Pointer) {
	C.phonics_start_listening((*C.char)(expected))
}

func (EngineNative) StopListening() {
	C.phonics_stop_listening()
}

//export phonicsHandleNativeEvent
func phonicsHandleNativeEvent(payload *C.char) {
	if cb := handler.Load(); cb != nil {
		(*cb)(unsafe.Pointer(payload))
	}
}
