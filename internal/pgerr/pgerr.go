// Package pgerr defines the layered error taxonomy shared across the driver:
// DSN parsing errors, message-read errors, fetch errors, and the top-level
// ConnectionError that wraps all of them.
package pgerr

import (
	"errors"
	"fmt"
)

// DsnErrorKind distinguishes the ways a connection string can fail to parse.
type DsnErrorKind int

const (
	DsnInvalidDriver DsnErrorKind = iota
	DsnMissingUser
	DsnMissingNetloc
	DsnMissingUserAndNetloc
	DsnParseError
)

func (k DsnErrorKind) String() string {
	switch k {
	case DsnInvalidDriver:
		return "invalid driver"
	case DsnMissingUser:
		return "missing user"
	case DsnMissingNetloc:
		return "missing netloc"
	case DsnMissingUserAndNetloc:
		return "missing user and netloc"
	case DsnParseError:
		return "parse error"
	default:
		return "unknown"
	}
}

// InvalidDsnError reports a malformed connection string.
type InvalidDsnError struct {
	Kind   DsnErrorKind
	Detail string
}

func (e *InvalidDsnError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid dsn: %s", e.Kind)
	}
	return fmt.Sprintf("invalid dsn: %s: %s", e.Kind, e.Detail)
}

// UnrecognizedMessageError is returned when the message codec sees a
// backend message type (or SASL auth sub-code) it does not recognize.
type UnrecognizedMessageError struct {
	Type byte
	Body []byte
}

func (e *UnrecognizedMessageError) Error() string {
	return fmt.Sprintf("unrecognized backend message type %q (%d bytes)", e.Type, len(e.Body))
}

// MessageReadError wraps failures that occur while reading and identifying
// a backend message: either an I/O failure from the framer, or an
// unrecognized message type/sub-code.
type MessageReadError struct {
	Unrecognized *UnrecognizedMessageError
	IOErr        error
}

func (e *MessageReadError) Error() string {
	if e.Unrecognized != nil {
		return e.Unrecognized.Error()
	}
	return fmt.Sprintf("message read: %s", e.IOErr)
}

func (e *MessageReadError) Unwrap() error {
	if e.Unrecognized != nil {
		return e.Unrecognized
	}
	return e.IOErr
}

// NewIOReadError wraps a raw I/O error as a MessageReadError.
func NewIOReadError(err error) *MessageReadError {
	return &MessageReadError{IOErr: err}
}

// NewUnrecognizedError wraps an unrecognized backend message as a MessageReadError.
func NewUnrecognizedError(msgType byte, body []byte) *MessageReadError {
	return &MessageReadError{Unrecognized: &UnrecognizedMessageError{Type: msgType, Body: body}}
}

// UnexpectedMessageError is returned by the fetch engine when a backend
// message arrives that is protocol-legal but not expected at that point
// in the simple/extended query flow.
type UnexpectedMessageError struct {
	Context string
	Got     string
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("unexpected message during %s: got %s", e.Context, e.Got)
}

// FetchError wraps the two ways a fetch can fail short of a server error:
// a message-read failure, or an unexpected message in the query flow.
type FetchError struct {
	ReadErr       *MessageReadError
	UnexpectedErr *UnexpectedMessageError
}

func (e *FetchError) Error() string {
	if e.ReadErr != nil {
		return fmt.Sprintf("fetch: %s", e.ReadErr)
	}
	return fmt.Sprintf("fetch: %s", e.UnexpectedErr)
}

func (e *FetchError) Unwrap() error {
	if e.ReadErr != nil {
		return e.ReadErr
	}
	return e.UnexpectedErr
}

func NewFetchReadError(err error) *FetchError {
	if mre, ok := err.(*MessageReadError); ok {
		return &FetchError{ReadErr: mre}
	}
	return &FetchError{ReadErr: NewIOReadError(err)}
}

func NewFetchUnexpectedError(context, got string) *FetchError {
	return &FetchError{UnexpectedErr: &UnexpectedMessageError{Context: context, Got: got}}
}

// ServerError is constructed from a backend ErrorResponse message.
type ServerError struct {
	Severity string
	Code     string
	Message  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s %s: %s", e.Severity, e.Code, e.Message)
}

// ConnectionError is the top-level error type surfaced by connect and fetch.
type ConnectionError struct {
	Dsn    *InvalidDsnError
	Fetch  *FetchError
	Server *ServerError
	other  error // auth failures, unsupported features, transport setup, etc.
}

func (e *ConnectionError) Error() string {
	switch {
	case e.Dsn != nil:
		return e.Dsn.Error()
	case e.Fetch != nil:
		return e.Fetch.Error()
	case e.Server != nil:
		return e.Server.Error()
	case e.other != nil:
		return e.other.Error()
	default:
		return "connection error"
	}
}

func (e *ConnectionError) Unwrap() error {
	switch {
	case e.Dsn != nil:
		return e.Dsn
	case e.Fetch != nil:
		return e.Fetch
	case e.Server != nil:
		return e.Server
	default:
		return e.other
	}
}

func FromDsn(err *InvalidDsnError) *ConnectionError       { return &ConnectionError{Dsn: err} }
func FromFetch(err *FetchError) *ConnectionError          { return &ConnectionError{Fetch: err} }
func FromServer(err *ServerError) *ConnectionError        { return &ConnectionError{Server: err} }
func FromOther(err error) *ConnectionError                { return &ConnectionError{other: err} }
func Wrap(context string, err error) *ConnectionError {
	return &ConnectionError{other: fmt.Errorf("%s: %w", context, err)}
}

// IsServerError reports whether err (or one it wraps) is a *ServerError.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
