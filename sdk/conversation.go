package converse

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/transcript"
	"github.com/vango-go/vai-converse/pkg/core/types"
	"github.com/vango-go/vai-converse/pkg/protocol"
)

const notificationBuffer = 64

// Severity ranks a notification for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a user-facing message produced by the conversation.
type Notification struct {
	Severity Severity
	Message  string
	Err      error
}

// Devices are the speech collaborators. Either may be nil, which disables
// that direction.
type Devices struct {
	Recognizer  live.Recognizer
	Synthesizer live.Synthesizer
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithVoiceOutput sets whether agent turns are spoken (default true).
func WithVoiceOutput(enabled bool) ConversationOption {
	return func(c *Conversation) { c.voiceEnabled = enabled }
}

// WithRecognition overrides the speech recognition configuration.
func WithRecognition(cfg types.RecognitionConfig) ConversationOption {
	return func(c *Conversation) { c.recognition = cfg }
}

// WithUtterance overrides rate, pitch and volume for spoken agent turns.
func WithUtterance(p types.UtteranceParams) ConversationOption {
	return func(c *Conversation) { c.utterance = p }
}

// WithLevelInterval sets the microphone level sampling period.
func WithLevelInterval(d time.Duration) ConversationOption {
	return func(c *Conversation) { c.levelInterval = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

// Snapshot is a read-only view of the conversation for rendering.
type Snapshot struct {
	State        live.ConversationState
	Session      types.Session
	Turns        []types.Turn
	Capture      live.CaptureState
	Playback     live.PlaybackState
	Level        float64
	Busy         bool
	Interim      string
	VoiceEnabled bool
}

// Conversation orchestrates one session: the websocket, the transcript,
// speech capture and playback. Every asynchronous source posts into one
// mailbox drained by Run, so inbound traffic is handled in arrival order on
// a single goroutine.
type Conversation struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time

	recognition   types.RecognitionConfig
	utterance     types.UtteranceParams
	levelInterval time.Duration

	box        *live.Mailbox[live.Event]
	transcript *transcript.Store
	level      *live.LevelMonitor
	capture    *live.CaptureController
	speech     *live.SpeechController

	mu           sync.Mutex
	state        live.ConversationState
	session      types.Session
	conn         *Connection
	busy         bool
	interim      string
	voiceEnabled bool
	summary      *types.Summary

	notes   chan Notification
	changes chan struct{}

	endOnce sync.Once
	ended   chan struct{}
}

// NewConversation prepares a conversation for sessionID. agentName is the
// display name known before the server reports one; it may be empty.
func (c *Client) NewConversation(sessionID, agentName string, devices Devices, opts ...ConversationOption) *Conversation {
	conv := &Conversation{
		client:        c,
		logger:        c.logger.With("session_id", sessionID),
		now:           time.Now,
		recognition:   types.DefaultRecognitionConfig(),
		utterance:     types.DefaultUtteranceParams(),
		levelInterval: types.DefaultLevelInterval,
		box:           live.NewMailbox[live.Event](),
		transcript:    transcript.New(),
		state:         live.ConversationConnecting,
		voiceEnabled:  true,
		notes:         make(chan Notification, notificationBuffer),
		changes:       make(chan struct{}, 1),
		ended:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(conv)
	}
	conv.session = types.NewSession(sessionID, agentName, conv.now())

	sink := live.EventSinkFunc(conv.box.Post)
	conv.level = live.NewLevelMonitor(conv.levelInterval, conv.logger)
	if devices.Recognizer != nil {
		conv.capture = live.NewCaptureController(devices.Recognizer, conv.level, sink,
			live.WithRecognitionConfig(conv.recognition),
			live.WithCaptureLogger(conv.logger),
		)
	}
	if devices.Synthesizer != nil {
		conv.speech = live.NewSpeechController(devices.Synthesizer, sink,
			live.WithUtteranceParams(conv.utterance),
			live.WithSpeechEnabled(conv.voiceEnabled),
			live.WithSpeechLogger(conv.logger),
		)
	}
	return conv
}

// Notifications delivers user-facing messages. Slow readers miss messages
// rather than stall the conversation.
func (c *Conversation) Notifications() <-chan Notification { return c.notes }

// Changes is signalled whenever the snapshot may have changed.
func (c *Conversation) Changes() <-chan struct{} { return c.changes }

// Ended is closed once the conversation reaches the ended state.
func (c *Conversation) Ended() <-chan struct{} { return c.ended }

// Run connects and dispatches events until the conversation ends or ctx is
// cancelled. Cancelling ctx ends the conversation.
func (c *Conversation) Run(ctx context.Context) error {
	conn, err := c.client.Sessions.Open(ctx, c.session.ID, live.EventSinkFunc(c.box.Post))
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			c.End()
			return err
		}
		c.logger.Warn("conversation: connect failed", "error", err)
		c.notify(SeverityError, "Failed to connect to conversation", err)
		c.box.Post(ConnErrorEvent{Err: err})
		c.box.Post(ConnClosedEvent{Code: CloseAbnormal, Reason: err.Error()})
	} else {
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			c.End()
			return ctx.Err()
		case <-c.ended:
			return nil
		case <-c.box.Ready():
			for _, ev := range c.box.Drain() {
				c.dispatch(ev)
			}
		}
	}
}

// dispatch is the single consumer of asynchronous events.
func (c *Conversation) dispatch(ev live.Event) {
	if c.State() == live.ConversationEnded {
		return
	}
	c.logger.Debug("conversation: event", "type", ev.EventType())

	switch e := ev.(type) {
	case ConnOpenedEvent:
		c.onOpened()
	case ConnMessageEvent:
		c.onMessage(e)
	case ConnErrorEvent:
		c.onTransportError(e)
	case ConnClosedEvent:
		c.onClosed(e)
	case live.CaptureStartedEvent:
		c.setInterim("")
	case live.CaptureInterimEvent:
		c.setInterim(e.Text)
	case live.CaptureFinalEvent:
		c.setInterim("")
		if err := c.submit(e.Text, types.ModalityVoice); err != nil {
			c.notify(SeverityWarning, core.AsError(err).UserMessage(), err)
		}
	case live.CaptureErrorEvent:
		if !e.Err.IsBenign() {
			c.notify(SeverityError, e.Err.UserMessage(), e.Err)
		}
	case live.CaptureEndedEvent:
		c.setInterim("")
	case live.SpeechStartedEvent, live.SpeechEndedEvent:
	default:
		c.logger.Debug("conversation: unhandled event", "type", ev.EventType())
	}
	c.signalChange()
}

func (c *Conversation) onOpened() {
	c.mu.Lock()
	next, err := live.NextConversationState(c.state, live.TriggerOpened)
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("conversation: rejected transition", "error", err)
		return
	}
	c.state = next
	c.session.Status = types.StatusOpen
	c.mu.Unlock()
	c.notify(SeverityInfo, "Connected to conversation", nil)
}

func (c *Conversation) onMessage(e ConnMessageEvent) {
	c.mu.Lock()
	c.busy = false

	if e.Err != nil {
		c.mu.Unlock()
		c.notify(SeverityWarning, core.AsError(e.Err).UserMessage(), e.Err)
		return
	}

	var speak string
	switch f := e.Frame.(type) {
	case protocol.ServerError:
		c.mu.Unlock()
		c.notify(SeverityError, f.Error, core.NewServerError(f.Error))
		return
	case protocol.ServerConnectionInfo:
		c.session.SetNames(f.AgentName, f.ParticipantName)
		if f.AgentPurpose != "" {
			c.session.AgentPurpose = f.AgentPurpose
		}
		if f.ConversationID != "" {
			c.session.ConversationID = f.ConversationID
		}
	case protocol.ServerMessage:
		kind := types.TurnNormal
		if f.IsWelcome() {
			kind = types.TurnWelcome
		}
		if c.transcript.Append(types.NewAgentTurn(f.Message, kind, c.now())) && c.voiceEnabled {
			speak = f.Message
		}
		c.session.ApplyNames(f.AgentName, f.ParticipantName)
	case protocol.ServerUnknown:
		c.logger.Debug("conversation: ignoring frame", "type", f.Type)
	}
	c.mu.Unlock()

	if speak != "" && c.speech != nil {
		if err := c.speech.Speak(speak); err != nil {
			c.logger.Warn("conversation: speak failed", "error", err)
		}
	}
}

func (c *Conversation) onTransportError(e ConnErrorEvent) {
	c.mu.Lock()
	c.busy = false
	c.session.Status = types.StatusClosed
	c.mu.Unlock()
	c.logger.Warn("conversation: transport error", "error", e.Err)
	c.notify(SeverityError, "Connection error occurred", e.Err)
}

func (c *Conversation) onClosed(e ConnClosedEvent) {
	c.mu.Lock()
	c.busy = false
	c.session.Status = types.StatusClosed
	c.mu.Unlock()

	if e.Normal() {
		c.logger.Info("conversation: server closed connection", "reason", e.Reason)
		return
	}
	c.logger.Warn("conversation: connection lost", "code", e.Code, "reason", e.Reason)
	c.notify(SeverityError, core.ConnectionLostMessage, core.NewTransportError(core.ConnectionLostMessage, nil))
	c.terminate(live.TriggerAbnormalClose)
}

// SubmitText sends typed text. It requires non-empty text, an open
// connection and no outstanding reply.
func (c *Conversation) SubmitText(text string) error {
	err := c.submit(text, types.ModalityText)
	c.signalChange()
	return err
}

func (c *Conversation) submit(text string, modality types.Modality) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestErrorWithParam("message must not be empty", "message")
	}

	c.mu.Lock()
	if c.state != live.ConversationActive || c.conn == nil || c.session.Status != types.StatusOpen {
		c.mu.Unlock()
		return core.NewNotConnectedError("conversation is not connected")
	}
	if c.busy {
		c.mu.Unlock()
		return core.NewBusyError("waiting for the agent to reply")
	}
	c.transcript.Append(types.NewParticipantTurn(text, modality, c.now()))
	c.busy = true
	conn := c.conn
	c.mu.Unlock()

	msg := protocol.NewTextMessage(text)
	if modality == types.ModalityVoice {
		msg = protocol.NewVoiceMessage(text)
	}
	if err := conn.Send(msg); err != nil {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
		c.logger.Warn("conversation: send failed", "error", err)
		return err
	}
	return nil
}

// StartListening begins one speech capture cycle.
func (c *Conversation) StartListening() error {
	if c.capture == nil {
		return core.NewDeviceError(core.DeviceAudioCapture, errors.New("speech recognition is not available"))
	}
	if c.State() == live.ConversationEnded {
		return core.NewNotConnectedError("conversation has ended")
	}
	if err := c.capture.Start(); err != nil {
		return err
	}
	c.notify(SeverityInfo, "Listening...", nil)
	c.signalChange()
	return nil
}

// StopListening ends the capture cycle early. A pending final result is
// still sent.
func (c *Conversation) StopListening() {
	if c.capture == nil || c.capture.State() != live.CaptureListening {
		return
	}
	c.capture.Stop()
	c.notify(SeverityInfo, "Recording stopped", nil)
	c.signalChange()
}

// SetVoiceEnabled toggles spoken agent turns. Disabling stops current
// playback.
func (c *Conversation) SetVoiceEnabled(enabled bool) {
	c.mu.Lock()
	c.voiceEnabled = enabled
	c.mu.Unlock()
	if c.speech != nil {
		c.speech.SetEnabled(enabled)
	}
	if enabled {
		c.notify(SeverityInfo, "Voice enabled", nil)
	} else {
		c.notify(SeverityInfo, "Voice disabled", nil)
	}
	c.signalChange()
}

// End computes the summary, closes the connection normally and releases
// every device. It is idempotent and returns the summary.
func (c *Conversation) End() types.Summary {
	c.terminate(live.TriggerUserEnd)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return Summarize(c.session, c.transcript.Turns(), c.now())
	}
	return *c.summary
}

func (c *Conversation) terminate(trigger live.ConversationTrigger) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		next, err := live.NextConversationState(c.state, trigger)
		if err != nil {
			c.logger.Warn("conversation: rejected transition", "error", err)
			next = live.ConversationEnded
		}
		c.state = next
		summary := Summarize(c.session, c.transcript.Turns(), c.now())
		c.summary = &summary
		c.busy = false
		c.interim = ""
		conn := c.conn
		c.session.Status = types.StatusClosed
		c.mu.Unlock()

		if conn != nil {
			if err := conn.Close(CloseNormal, UserEndedReason); err != nil {
				c.logger.Debug("conversation: close failed", "error", err)
			}
		}
		if c.capture != nil {
			c.capture.Shutdown()
		}
		c.level.Detach()
		if c.speech != nil {
			c.speech.Shutdown()
		}
		c.box.Close()

		if trigger == live.TriggerUserEnd {
			c.notify(SeverityInfo, "Conversation ended. Generating summary...", nil)
		}
		c.logger.Info("conversation: ended", "trigger", string(trigger), "turns", summary.TotalTurns)
		close(c.ended)
		c.signalChange()
	})
}

// Summary returns the end-of-session summary once the conversation has ended.
func (c *Conversation) Summary() (types.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return types.Summary{}, false
	}
	return *c.summary, true
}

// State returns the conversation state.
func (c *Conversation) State() live.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a consistent copy of everything a UI renders.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:        c.state,
		Session:      c.session,
		Turns:        c.transcript.Turns(),
		Busy:         c.busy,
		Interim:      c.interim,
		VoiceEnabled: c.voiceEnabled,
	}
	c.mu.Unlock()

	if c.capture != nil {
		snap.Capture = c.capture.State()
	}
	if c.speech != nil {
		snap.Playback = c.speech.State()
	}
	snap.Level = c.level.Level()
	return snap
}

func (c *Conversation) setInterim(text string) {
	c.mu.Lock()
	c.interim = text
	c.mu.Unlock()
}

func (c *Conversation) notify(sev Severity, msg string, err error) {
	if msg == "" {
		return
	}
	select {
	case c.notes <- Notification{Severity: sev, Message: msg, Err: err}:
	default:
		// Avoid blocking the dispatcher if the UI stops consuming.
		c.logger.Debug("conversation: dropped notification", "message", msg)
	}
}

func (c *Conversation) signalChange() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
