package record

import (
	"errors"
	"fmt"

	"github.com/driftstream/driftstream-go/message"
)

// Error codes raised by the record core. Wire-level event codes that also
// appear as error codes are aliased from the message package so callers can
// match either surface with one constant.
const (
	CodeConnectionError    = message.EventConnectionError
	CodeAckTimeout         = message.EventAckTimeout
	CodeResponseTimeout    = message.EventResponseTimeout
	CodeDeleteTimeout      = message.EventDeleteTimeout
	CodeVersionExists      = message.EventVersionExists
	CodeListenerExists     = message.EventListenerExists
	CodeNotListening       = message.EventNotListening
	CodeUnsolicitedMessage = message.EventUnsolicitedMessage

	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeRecordDestroyed = "RECORD_DESTROYED"
	CodeNotInitialized  = "NOT_INITIALIZED"
	CodeWriteError      = "WRITE_ERROR"
)

// Error is the structured error returned by record operations and passed to
// write and response callbacks.
type Error struct {
	Topic   message.Topic
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, format string, args ...any) *Error {
	return &Error{
		Topic:   message.TopicRecord,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func errDestroyed(op, name string) *Error {
	return newError(CodeRecordDestroyed, "cannot %s: record %q has been destroyed", op, name)
}

// IsCode reports whether err is a record Error carrying the given code.
func IsCode(err error, code string) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == code
}
