// Package errs classifies widget failures. Auth and config failures are
// fatal for the widget instance; everything else is local and recoverable.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the failure class.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindConfig
	KindUpload
	KindStreamTransport
	KindProtocolFrame
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConfig:
		return "config"
	case KindUpload:
		return "upload"
	case KindStreamTransport:
		return "stream_transport"
	case KindProtocolFrame:
		return "protocol_frame"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Msg is the user-facing text.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Notice returns the text shown to the user.
func (e *Error) Notice() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// New builds an Error of kind k.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap classifies err as kind k with a user-facing message.
func Wrap(k Kind, err error, msg string) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

func Auth(msg string) *Error              { return New(KindAuth, msg) }
func Config(err error, msg string) *Error { return Wrap(KindConfig, err, msg) }
func Upload(err error, msg string) *Error { return Wrap(KindUpload, err, msg) }
func Validation(msg string) *Error        { return New(KindValidation, msg) }

func StreamTransport(err error, msg string) *Error {
	return Wrap(KindStreamTransport, err, msg)
}

func ProtocolFrame(err error, msg string) *Error {
	return Wrap(KindProtocolFrame, err, msg)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsFatal reports whether err should replace the widget with an error
// affordance.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindConfig:
		return true
	default:
		return false
	}
}

// NoticeOf extracts user-facing text from any error.
func NoticeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Notice()
	}
	return err.Error()
}
