package live

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/types"
)

// UtteranceCallbacks are invoked by a Synthesizer as an utterance plays.
// They may be called from any goroutine, including after cancellation.
type UtteranceCallbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(error)
}

// Synthesizer speaks text on an output device.
type Synthesizer interface {
	// Speak queues text and returns without waiting for playback.
	Speak(ctx context.Context, text string, params types.UtteranceParams, cb UtteranceCallbacks) error
	// CancelAll stops and discards every queued or playing utterance.
	CancelAll()
}

// SpeechController keeps at most one utterance active. Each Speak
// supersedes the previous one; callbacks from superseded utterances are
// ignored by generation number.
type SpeechController struct {
	synth  Synthesizer
	sink   EventSink
	params types.UtteranceParams
	logger *slog.Logger

	speakMu sync.Mutex

	mu       sync.Mutex
	state    PlaybackState
	gen      uint64
	enabled  bool
	shutdown bool
	cancel   context.CancelFunc
}

// SpeechOption configures a SpeechController.
type SpeechOption func(*SpeechController)

// WithUtteranceParams overrides the default rate, pitch and volume.
func WithUtteranceParams(p types.UtteranceParams) SpeechOption {
	return func(c *SpeechController) { c.params = p }
}

// WithSpeechLogger sets the controller logger.
func WithSpeechLogger(logger *slog.Logger) SpeechOption {
	return func(c *SpeechController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSpeechEnabled sets the initial enabled flag (default true).
func WithSpeechEnabled(enabled bool) SpeechOption {
	return func(c *SpeechController) { c.enabled = enabled }
}

// NewSpeechController creates an idle, enabled controller.
func NewSpeechController(synth Synthesizer, sink EventSink, opts ...SpeechOption) *SpeechController {
	c := &SpeechController{
		synth:   synth,
		sink:    sink,
		params:  types.DefaultUtteranceParams(),
		logger:  slog.Default(),
		enabled: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current playback state.
func (c *SpeechController) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Speak cancels the active utterance and starts text. It does nothing
// while disabled or for blank text.
func (c *SpeechController) Speak(text string) error {
	text = strings.TrimSpace(text)

	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return core.NewUserAbortError("speech output has been shut down")
	}
	if !c.enabled || text == "" {
		c.mu.Unlock()
		return nil
	}
	prevCancel := c.supersedeLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	g := c.gen
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	c.synth.CancelAll()

	err := c.synth.Speak(ctx, text, c.params, UtteranceCallbacks{
		OnStart: func() { c.onStart(g, text) },
		OnEnd:   func() { c.onEnd(g, nil) },
		OnError: func(err error) { c.onEnd(g, err) },
	})
	if err != nil {
		c.logger.Warn("speech: synthesis failed", "error", err)
		c.onEnd(g, err)
		return err
	}
	return nil
}

// SetEnabled toggles speech output. Disabling cancels the active utterance.
func (c *SpeechController) SetEnabled(enabled bool) {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.mu.Lock()
	c.enabled = enabled
	if enabled {
		c.mu.Unlock()
		return
	}
	prevCancel := c.supersedeLocked()
	c.cancel = nil
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	c.synth.CancelAll()
}

// Shutdown cancels playback and rejects further Speak calls. It is idempotent.
func (c *SpeechController) Shutdown() {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	prevCancel := c.supersedeLocked()
	c.cancel = nil
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	c.synth.CancelAll()
}

// supersedeLocked invalidates outstanding callbacks and, if speaking,
// returns to idle with a SpeechEndedEvent.
func (c *SpeechController) supersedeLocked() context.CancelFunc {
	prev := c.gen
	c.gen++
	if c.state == PlaybackSpeaking {
		next, err := NextPlaybackState(c.state, TriggerCancel)
		if err != nil {
			c.logger.Warn("speech: rejected transition", "error", err)
		} else {
			c.state = next
			c.sink.Post(SpeechEndedEvent{Generation: prev})
		}
	}
	return c.cancel
}

func (c *SpeechController) onStart(g uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g != c.gen || c.shutdown || !c.enabled {
		return
	}
	next, err := NextPlaybackState(c.state, TriggerUtteranceStart)
	if err != nil {
		c.logger.Warn("speech: rejected transition", "error", err)
		return
	}
	wasSpeaking := c.state == PlaybackSpeaking
	c.state = next
	if !wasSpeaking {
		c.sink.Post(SpeechStartedEvent{Generation: g, Text: text})
	}
}

func (c *SpeechController) onEnd(g uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g != c.gen || c.state != PlaybackSpeaking {
		if cause != nil {
			c.logger.Debug("speech: ignoring utterance error", "generation", g, "error", cause)
		}
		return
	}
	trigger := TriggerUtteranceEnd
	if cause != nil {
		trigger = TriggerUtteranceError
	}
	next, err := NextPlaybackState(c.state, trigger)
	if err != nil {
		c.logger.Warn("speech: rejected transition", "error", err)
		return
	}
	c.state = next
	c.sink.Post(SpeechEndedEvent{Generation: g, Err: cause})
}
