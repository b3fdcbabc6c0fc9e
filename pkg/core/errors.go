package core

import (
	"errors"
	"fmt"
)

// Error represents a classified client error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	// Code carries the device error kind for ErrDevice (see DeviceKind).
	Code  string `json:"code,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrTransport      ErrorType = "transport_error"
	ErrDevice         ErrorType = "device_error"
	ErrProtocol       ErrorType = "protocol_error"
	ErrUserAbort      ErrorType = "user_abort"
	ErrNotConnected   ErrorType = "not_connected"
	ErrAlreadyActive  ErrorType = "already_active"
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrBusy           ErrorType = "busy"
	ErrServer         ErrorType = "server_error"
)

// DeviceKind is the speech recognition failure kind reported by a device.
type DeviceKind string

const (
	DeviceNoSpeech     DeviceKind = "no-speech"
	DeviceAborted      DeviceKind = "aborted"
	DeviceNotAllowed   DeviceKind = "not-allowed"
	DeviceNetwork      DeviceKind = "network"
	DeviceAudioCapture DeviceKind = "audio-capture"
)

// ConnectionLostMessage is shown when the conversation socket closes abnormally.
const ConnectionLostMessage = "Connection lost. Please refresh the page."

// NewTransportError creates a transport error.
func NewTransportError(message string, cause error) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: message,
		Cause:   cause,
	}
}

// NewDeviceError creates a device error of the given kind.
func NewDeviceError(kind DeviceKind, cause error) *Error {
	msg := string(kind)
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Type:    ErrDevice,
		Message: msg,
		Code:    string(kind),
		Cause:   cause,
	}
}

// NewProtocolError creates a protocol error for an undecodable payload.
func NewProtocolError(message string, cause error) *Error {
	return &Error{
		Type:    ErrProtocol,
		Message: message,
		Cause:   cause,
	}
}

// NewServerError creates an error carrying a server-reported message.
func NewServerError(message string) *Error {
	return &Error{
		Type:    ErrServer,
		Message: message,
	}
}

// NewNotConnectedError creates a not connected error.
func NewNotConnectedError(message string) *Error {
	return &Error{
		Type:    ErrNotConnected,
		Message: message,
	}
}

// NewAlreadyActiveError creates an already active error.
func NewAlreadyActiveError(message string) *Error {
	return &Error{
		Type:    ErrAlreadyActive,
		Message: message,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewBusyError creates a busy error.
func NewBusyError(message string) *Error {
	return &Error{
		Type:    ErrBusy,
		Message: message,
	}
}

// NewUserAbortError creates a user abort error.
func NewUserAbortError(message string) *Error {
	return &Error{
		Type:    ErrUserAbort,
		Message: message,
	}
}

// Kind returns the device kind for device errors and "" otherwise.
func (e *Error) Kind() DeviceKind {
	if e == nil || e.Type != ErrDevice {
		return ""
	}
	return DeviceKind(e.Code)
}

// IsBenign reports whether the error should be handled silently.
func (e *Error) IsBenign() bool {
	if e == nil {
		return true
	}
	switch e.Type {
	case ErrUserAbort:
		return true
	case ErrDevice:
		switch e.Kind() {
		case DeviceNoSpeech, DeviceAborted:
			return true
		}
	}
	return false
}

// IsRetryable returns true if the user can reasonably try the same action again.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrTransport, ErrBusy:
		return true
	case ErrDevice:
		switch e.Kind() {
		case DeviceNetwork, DeviceAudioCapture:
			return true
		}
	}
	return false
}

// UserMessage returns the text a UI shows for this error.
func (e *Error) UserMessage() string {
	if e == nil {
		return ""
	}
	switch e.Type {
	case ErrDevice:
		switch e.Kind() {
		case DeviceNotAllowed:
			return "Microphone access denied. Please enable microphone permissions and try again."
		case DeviceNetwork:
			return "Network error occurred. Please check your internet connection."
		case DeviceAudioCapture:
			return "No microphone found. Please check your microphone connection."
		case DeviceNoSpeech, DeviceAborted:
			return ""
		default:
			return fmt.Sprintf("Speech recognition error: %s. Please try again.", e.Code)
		}
	case ErrTransport:
		return "Connection error occurred"
	case ErrProtocol:
		return "Received an unreadable message from the server"
	default:
		return e.Message
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError extracts a *Error from err, or wraps err as a generic transport error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return NewTransportError(err.Error(), err)
}

// IsType reports whether err is a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Type == t
}
