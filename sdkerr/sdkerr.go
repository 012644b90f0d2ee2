// Package sdkerr is the typed error taxonomy shared by every component of
// the plugin SDK. Errors raised inside an endpoint body, the session engine,
// the frame codec, or the multiplexer are all values of the kinds declared
// here, so the session boundary can uniformly convert any of them into a
// single UNSPECIFIED error frame (see package session).
package sdkerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors matching spec.md's non-parametric error kinds. Compare
// with errors.Is, or with errors.Cause for the parametric kinds below.
var (
	// ErrInvalidState is raised on an UNSPECIFIED frame, a stuck chunking
	// loop, or a request with the wrong key cardinality.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnexpectedSubmit is raised when a SUBMIT_* frame arrives while a
	// RESPONSE logical message is being reassembled.
	ErrUnexpectedSubmit = errors.New("unexpected submit frame")
	// ErrUnexpectedReply is raised when a REPLY_* frame arrives while a
	// REQUEST logical message is being reassembled, or when a frame with an
	// unrecognized session id arrives that isn't a SUBMIT_* frame.
	ErrUnexpectedReply = errors.New("unexpected reply frame")
	// ErrInvalidJSONInKey is raised when a reassembled key entry (or, under
	// rfd9_compat, the concatenation of all key entries) does not parse as
	// JSON.
	ErrInvalidJSONInKey = errors.New("invalid JSON in query key")
	// ErrInvalidJSONInOutput is the output-field analogue of
	// ErrInvalidJSONInKey.
	ErrInvalidJSONInOutput = errors.New("invalid JSON in query output")
	// ErrInvalidTargetFormat is raised by target-string parsing when the
	// string contains no '/'.
	ErrInvalidTargetFormat = errors.New("invalid target format")
	// ErrUnknownEndpoint is raised when a target or endpoint name has no
	// registered (or mocked) handler.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrSendFailure is raised when a frame could not be written to the
	// outbound stream.
	ErrSendFailure = errors.New("send failure")
)

// MoreAfterComplete is raised when a frame is received for a session id
// after that session's logical message has already reached a *_COMPLETE
// state.
type MoreAfterComplete struct {
	ID int32
}

func (e *MoreAfterComplete) Error() string {
	return fmt.Sprintf("more frames received after completion for session %d", e.ID)
}

// ConfigError is the category of errors raised from a plugin's Configure
// hook. SetConfiguration catches ConfigError at the RPC boundary and maps it
// to a structured SetConfigurationResponse status (see package queryserver).
type ConfigError interface {
	error
	isConfigError()
}

// InvalidValue reports that a configuration field held a recognized name but
// an unacceptable value.
type InvalidValue struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidValue) Error() string {
	return fmt.Sprintf("invalid value %q for field %q: %s", e.Value, e.Field, e.Reason)
}
func (*InvalidValue) isConfigError() {}

// MissingRequired reports that a required configuration field was absent.
type MissingRequired struct {
	Field      string
	Type       string
	Candidates []string
}

func (e *MissingRequired) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("missing required config item %q of type %q", e.Field, e.Type)
	}
	return fmt.Sprintf("missing required config item %q of type %q; possible values: %v",
		e.Field, e.Type, e.Candidates)
}
func (*MissingRequired) isConfigError() {}

// Unrecognized reports that a configuration field name was not recognized.
type Unrecognized struct {
	Field       string
	Value       string
	Confusables []string
}

func (e *Unrecognized) Error() string {
	if len(e.Confusables) == 0 {
		return fmt.Sprintf("unrecognized field %q with value %q", e.Field, e.Value)
	}
	return fmt.Sprintf("unrecognized field %q with value %q; possible field names: %v",
		e.Field, e.Value, e.Confusables)
}
func (*Unrecognized) isConfigError() {}

// UnspecifiedConfig wraps a ConfigError that carries no more specific
// structure than a message.
type UnspecifiedConfig struct {
	Message string
}

func (e *UnspecifiedConfig) Error() string { return e.Message }
func (*UnspecifiedConfig) isConfigError()  {}
