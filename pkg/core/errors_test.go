package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "message must not be empty",
	}

	expected := "invalid_request_error: message must not be empty"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := NewDeviceError(DeviceNotAllowed, nil)

	expected := "device_error: not-allowed (code: not-allowed)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewDeviceError_Kind(t *testing.T) {
	err := NewDeviceError(DeviceNetwork, errors.New("dial failed"))
	if err.Type != ErrDevice {
		t.Errorf("Type = %v, want %v", err.Type, ErrDevice)
	}
	if err.Kind() != DeviceNetwork {
		t.Errorf("Kind() = %q, want %q", err.Kind(), DeviceNetwork)
	}
	if err.Message != "dial failed" {
		t.Errorf("Message = %q, want %q", err.Message, "dial failed")
	}
	if NewTransportError("x", nil).Kind() != "" {
		t.Error("non-device error should have no kind")
	}
}

func TestError_IsBenign(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{NewDeviceError(DeviceNoSpeech, nil), true},
		{NewDeviceError(DeviceAborted, nil), true},
		{NewUserAbortError("ended"), true},
		{NewDeviceError(DeviceNotAllowed, nil), false},
		{NewDeviceError(DeviceNetwork, nil), false},
		{NewDeviceError("bad-grammar", nil), false},
		{NewTransportError("reset", nil), false},
		{NewProtocolError("bad json", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := tt.err.IsBenign(); got != tt.want {
				t.Errorf("IsBenign() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{NewDeviceError(DeviceNetwork, nil), true},
		{NewDeviceError(DeviceAudioCapture, nil), true},
		{NewTransportError("reset", nil), true},
		{NewDeviceError(DeviceNotAllowed, nil), false},
		{NewInvalidRequestError("empty"), false},
		{NewProtocolError("bad json", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_UserMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{NewDeviceError(DeviceNotAllowed, nil), "Microphone access denied. Please enable microphone permissions and try again."},
		{NewDeviceError(DeviceNetwork, nil), "Network error occurred. Please check your internet connection."},
		{NewDeviceError(DeviceAudioCapture, nil), "No microphone found. Please check your microphone connection."},
		{NewDeviceError("service-not-allowed", nil), "Speech recognition error: service-not-allowed. Please try again."},
		{NewDeviceError(DeviceNoSpeech, nil), ""},
		{NewTransportError("reset", nil), "Connection error occurred"},
		{NewServerError("Agent not found"), "Agent not found"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := tt.err.UserMessage(); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("broken pipe")
	err := NewTransportError("write failed", underlying)

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the cause")
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}

	wrapped := fmt.Errorf("send: %w", NewNotConnectedError("socket closed"))
	ce := AsError(wrapped)
	if ce.Type != ErrNotConnected {
		t.Errorf("Type = %v, want %v", ce.Type, ErrNotConnected)
	}

	plain := AsError(errors.New("eof"))
	if plain.Type != ErrTransport {
		t.Errorf("Type = %v, want %v", plain.Type, ErrTransport)
	}
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("start: %w", NewAlreadyActiveError("capture already running"))
	if !IsType(err, ErrAlreadyActive) {
		t.Error("IsType should match wrapped already_active error")
	}
	if IsType(err, ErrBusy) {
		t.Error("IsType should not match busy")
	}
	if IsType(errors.New("x"), ErrBusy) {
		t.Error("IsType should not match plain errors")
	}
}
