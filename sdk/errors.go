package converse

import (
	"fmt"
	"net/url"

	"github.com/vango-go/vai-converse/pkg/core"
)

// SDK-level error type that wraps core errors
type Error = core.Error

// Error types
const (
	ErrTransport      = core.ErrTransport
	ErrDevice         = core.ErrDevice
	ErrProtocol       = core.ErrProtocol
	ErrUserAbort      = core.ErrUserAbort
	ErrNotConnected   = core.ErrNotConnected
	ErrAlreadyActive  = core.ErrAlreadyActive
	ErrInvalidRequest = core.ErrInvalidRequest
	ErrBusy           = core.ErrBusy
	ErrServer         = core.ErrServer
)

// Error constructors
var (
	NewInvalidRequestError = core.NewInvalidRequestError
	NewNotConnectedError   = core.NewNotConnectedError
	NewDeviceError         = core.NewDeviceError
)

// TransportError represents websocket or HTTP transport-level failures (DNS,
// timeouts, connection reset, TLS handshake, etc.) while talking to the
// conversation server.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from classified client errors (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
