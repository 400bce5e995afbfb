package imgdb

import "fmt"

// Kind classifies errors crossing the imgdb boundary. Simple kinds are
// client-visible and recoverable; fatal kinds mean server state may be
// compromised and are logged with a backtrace at the handler boundary.
type Kind string

const (
	// Simple.
	KindInvalidParameter Kind = "InvalidParameter"
	KindImageDecode      Kind = "ImageDecode"
	KindNotFound         Kind = "NotFound"

	// Fatal.
	KindIO             Kind = "IoError"
	KindDataCorruption Kind = "DataCorruption"
	KindInternal       Kind = "Internal"
)

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error indicates possibly compromised server
// state.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindIO, KindDataCorruption, KindInternal:
		return true
	}
	return false
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
