package speech

import "errors"

var (
	ErrInvalidArgument  = errors.New("speech: invalid argument")
	ErrEncoding         = errors.New("speech: encoding error")
	ErrMalformedPayload = errors.New("speech: malformed native payload")
	ErrPublish          = errors.New("speech: bus publish failure")
)

// CommandError is returned by Start. Message is what the application shows
// the user; Kind is one of the sentinel errors above.
type CommandError struct {
	Kind    error
	Message string
}

func (e *CommandError) Error() string { return e.Message }
func (e *CommandError) Unwrap() error { return e.Kind }

// ErrorEvent is published on EventChannel when a command fails.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: msg}
}
