package live

import "github.com/vango-go/vai-converse/pkg/core"

// Event is the interface for all controller events.
type Event interface {
	// EventType returns the event type string for logging.
	EventType() string
}

// EventSink receives controller events. Implementations must not block.
type EventSink interface {
	Post(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Post calls f(e).
func (f EventSinkFunc) Post(e Event) { f(e) }

// CaptureStartedEvent is emitted when a capture cycle enters listening.
type CaptureStartedEvent struct {
	Cycle uint64
}

func (e CaptureStartedEvent) EventType() string { return "capture.started" }

// CaptureInterimEvent carries a non-final recognition hypothesis.
type CaptureInterimEvent struct {
	Cycle uint64
	Text  string
}

func (e CaptureInterimEvent) EventType() string { return "capture.interim" }

// CaptureFinalEvent carries a committed, non-empty utterance.
type CaptureFinalEvent struct {
	Cycle uint64
	Text  string
}

func (e CaptureFinalEvent) EventType() string { return "capture.final" }

// CaptureErrorEvent reports a device failure. Benign kinds are included;
// consumers decide whether to surface them.
type CaptureErrorEvent struct {
	Cycle uint64
	Err   *core.Error
}

func (e CaptureErrorEvent) EventType() string { return "capture.error" }

// CaptureEndedEvent is emitted once per cycle when listening ends for any reason.
type CaptureEndedEvent struct {
	Cycle uint64
}

func (e CaptureEndedEvent) EventType() string { return "capture.ended" }

// SpeechStartedEvent is emitted when an utterance begins playing.
type SpeechStartedEvent struct {
	Generation uint64
	Text       string
}

func (e SpeechStartedEvent) EventType() string { return "speech.started" }

// SpeechEndedEvent is emitted when playback returns to idle.
type SpeechEndedEvent struct {
	Generation uint64
	Err        error
}

func (e SpeechEndedEvent) EventType() string { return "speech.ended" }
