package converse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/types"
	"github.com/vango-go/vai-converse/pkg/protocol"
)

const (
	// CloseNormal is the only close code treated as a clean shutdown.
	CloseNormal = websocket.CloseNormalClosure
	// CloseAbnormal is reported when the socket drops without a close frame.
	CloseAbnormal = websocket.CloseAbnormalClosure

	// UserEndedReason is sent when the participant ends the conversation.
	UserEndedReason = "User ended conversation"

	closeWriteTimeout = 2 * time.Second
)

// SessionsService opens conversation websockets.
type SessionsService struct {
	client *Client
}

// ConnOpenedEvent is emitted once the websocket handshake completes.
type ConnOpenedEvent struct {
	SessionID string
}

func (e ConnOpenedEvent) EventType() string { return "conn.opened" }

// ConnMessageEvent carries one decoded inbound frame. Err is set, and Frame
// is nil, when the payload could not be decoded.
type ConnMessageEvent struct {
	Frame protocol.ServerFrame
	Err   error
}

func (e ConnMessageEvent) EventType() string { return "conn.message" }

// ConnErrorEvent reports a transport failure. A ConnClosedEvent follows.
type ConnErrorEvent struct {
	Err error
}

func (e ConnErrorEvent) EventType() string { return "conn.error" }

// ConnClosedEvent is emitted exactly once per connection.
type ConnClosedEvent struct {
	Code   int
	Reason string
	Local  bool
}

func (e ConnClosedEvent) EventType() string { return "conn.closed" }

// Normal reports whether the close code is 1000.
func (e ConnClosedEvent) Normal() bool { return e.Code == CloseNormal }

// Connection is one conversation websocket.
type Connection struct {
	conn      *websocket.Conn
	url       string
	sessionID string
	sink      live.EventSink
	logger    *slog.Logger

	done chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu          sync.Mutex
	status      types.ConnectionStatus
	localClose  bool
	localCode   int
	localReason string
}

// Open dials the conversation websocket for sessionID. Events are posted to
// sink from the connection's read goroutine; sink must not block.
func (s *SessionsService) Open(ctx context.Context, sessionID string, sink live.EventSink) (*Connection, error) {
	if s == nil || s.client == nil {
		return nil, core.NewInvalidRequestError("sessions service is not initialized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("session id must not be empty", "session_id")
	}
	if sink == nil {
		return nil, core.NewInvalidRequestError("event sink must not be nil")
	}

	wsURL, err := s.client.webSocketEndpoint("/conversations/ws/" + url.PathEscape(sessionID))
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.client.dialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, s.client.dialTimeout)
		defer cancel()
	}

	conn, resp, err := s.client.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	c := &Connection{
		conn:      conn,
		url:       wsURL,
		sessionID: sessionID,
		sink:      sink,
		logger:    s.client.logger,
		done:      make(chan struct{}),
		status:    types.StatusOpen,
	}
	c.sink.Post(ConnOpenedEvent{SessionID: sessionID})
	go c.readLoop()
	return c, nil
}

// Status returns the connection status.
func (c *Connection) Status() types.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Done is closed after the read loop exits and ConnClosedEvent was posted.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send writes one outbound message. It fails with not_connected unless the
// connection is open.
func (c *Connection) Send(msg protocol.ClientMessage) error {
	if c == nil {
		return core.NewNotConnectedError("connection must not be nil")
	}
	if c.Status() != types.StatusOpen {
		return core.NewNotConnectedError("conversation is not connected")
	}
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", URL: c.url, Err: err}
	}
	return nil
}

// Close sends a close frame with code and reason, closes the socket and
// waits for the read loop to exit. It is idempotent.
func (c *Connection) Close(code int, reason string) error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		alreadyClosed := c.status == types.StatusClosed
		if !alreadyClosed {
			c.localClose = true
			c.localCode = code
			c.localReason = reason
		}
		c.status = types.StatusClosed
		c.mu.Unlock()

		if !alreadyClosed {
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteTimeout))
			c.writeMu.Unlock()
		}
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *Connection) readLoop() {
	defer close(c.done)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			frame, frameErr := protocol.DecodeServerFrame(data)
			if frameErr != nil {
				c.logger.Warn("conversation: undecodable frame", "session_id", c.sessionID, "error", frameErr)
			}
			c.sink.Post(ConnMessageEvent{Frame: frame, Err: frameErr})
		default:
			c.logger.Debug("conversation: ignoring non-text frame", "session_id", c.sessionID, "type", messageType)
		}
	}
}

func (c *Connection) finish(readErr error) {
	c.mu.Lock()
	local := c.localClose
	code, reason := c.localCode, c.localReason
	c.status = types.StatusClosed
	c.mu.Unlock()

	if !local {
		var ce *websocket.CloseError
		if errors.As(readErr, &ce) && ce.Code != CloseAbnormal {
			code, reason = ce.Code, ce.Text
		} else {
			c.sink.Post(ConnErrorEvent{Err: &TransportError{Op: "read", URL: c.url, Err: readErr}})
			code = CloseAbnormal
		}
	}

	c.logger.Debug("conversation: connection closed", "session_id", c.sessionID, "code", code, "reason", reason, "local", local)
	c.sink.Post(ConnClosedEvent{Code: code, Reason: reason, Local: local})
}
