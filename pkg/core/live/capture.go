package live

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/types"
)

// RecognitionResult is one hypothesis from a recognizer.
type RecognitionResult struct {
	Text    string
	IsFinal bool
}

// Recognizer opens speech recognition cycles on a device.
type Recognizer interface {
	// Start acquires the microphone and begins recognizing. Failures should
	// be *core.Error values of type ErrDevice.
	Start(ctx context.Context, cfg types.RecognitionConfig) (Recognition, error)
}

// Recognition is one running capture cycle.
type Recognition interface {
	// Results is closed when the device ends the cycle.
	Results() <-chan RecognitionResult
	// Err is valid after Results is closed.
	Err() error
	// Stream is the microphone tap for level metering, or nil.
	Stream() AudioStream
	// Stop asks the device to finish and deliver any pending final result.
	Stop()
	// Abort ends the cycle without further results.
	Abort()
}

// CaptureController runs at most one recognition cycle at a time and
// reports through an EventSink.
type CaptureController struct {
	recognizer Recognizer
	level      *LevelMonitor
	sink       EventSink
	cfg        types.RecognitionConfig
	logger     *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	state    CaptureState
	cycle    uint64
	active   *captureCycle
	shutdown bool
	wg       sync.WaitGroup
}

type captureCycle struct {
	id      uint64
	cancel  context.CancelFunc
	rec     Recognition
	stream  *onceStream
	stopped bool
}

func (c *captureCycle) release() {
	if c.stream != nil {
		_ = c.stream.Close()
	}
}

// onceStream guarantees the microphone is released exactly once no matter
// how many exit paths try.
type onceStream struct {
	AudioStream
	once sync.Once
	err  error
}

func (s *onceStream) Close() error {
	s.once.Do(func() {
		s.err = s.AudioStream.Close()
	})
	return s.err
}

// CaptureOption configures a CaptureController.
type CaptureOption func(*CaptureController)

// WithRecognitionConfig overrides the default recognition configuration.
func WithRecognitionConfig(cfg types.RecognitionConfig) CaptureOption {
	return func(c *CaptureController) { c.cfg = cfg }
}

// WithCaptureLogger sets the controller logger.
func WithCaptureLogger(logger *slog.Logger) CaptureOption {
	return func(c *CaptureController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCaptureController creates an idle controller. level may be nil.
func NewCaptureController(recognizer Recognizer, level *LevelMonitor, sink EventSink, opts ...CaptureOption) *CaptureController {
	ctx, cancel := context.WithCancel(context.Background())
	c := &CaptureController{
		recognizer: recognizer,
		level:      level,
		sink:       sink,
		cfg:        types.DefaultRecognitionConfig(),
		logger:     slog.Default(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current capture state.
func (c *CaptureController) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a capture cycle. It returns an already_active error, and
// emits nothing, if a cycle is listening.
func (c *CaptureController) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return core.NewUserAbortError("speech capture has been shut down")
	}
	if c.state == CaptureListening {
		return core.NewAlreadyActiveError("speech capture is already listening")
	}
	next, err := NextCaptureState(c.state, TriggerStart)
	if err != nil {
		return err
	}

	c.cycle++
	ctx, cancel := context.WithCancel(c.baseCtx)
	cyc := &captureCycle{id: c.cycle, cancel: cancel}
	c.active = cyc
	c.state = next
	c.sink.Post(CaptureStartedEvent{Cycle: cyc.id})

	c.wg.Add(1)
	go c.run(ctx, cyc)
	return nil
}

// Stop ends listening now and asks the device to deliver any pending final
// result. It is a no-op when idle.
func (c *CaptureController) Stop() {
	c.mu.Lock()
	cyc := c.active
	if cyc == nil || c.state != CaptureListening {
		c.mu.Unlock()
		return
	}
	c.exitListeningLocked(cyc, TriggerStop)
	cyc.stopped = true
	rec := cyc.rec
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
}

// Shutdown aborts any cycle, detaches the level monitor and waits for the
// microphone to be released. It is idempotent.
func (c *CaptureController) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.shutdown = true
	var rec Recognition
	if cyc := c.active; cyc != nil {
		c.exitListeningLocked(cyc, TriggerShutdown)
		rec = cyc.rec
		cyc.cancel()
	}
	if c.level != nil {
		c.level.Detach()
	}
	c.mu.Unlock()

	if rec != nil {
		rec.Abort()
	}
	c.baseCancel()
	c.wg.Wait()
}

func (c *CaptureController) run(ctx context.Context, cyc *captureCycle) {
	defer c.wg.Done()
	defer cyc.cancel()

	rec, err := c.recognizer.Start(ctx, c.cfg)
	if err != nil {
		c.finish(cyc, deviceError(err))
		return
	}

	c.mu.Lock()
	cyc.rec = rec
	if s := rec.Stream(); s != nil {
		cyc.stream = &onceStream{AudioStream: s}
		if c.level != nil && c.cycle == cyc.id && c.state == CaptureListening && !c.shutdown {
			c.level.Attach(cyc.stream)
		}
	}
	stopped := cyc.stopped
	aborted := c.shutdown || ctx.Err() != nil
	c.mu.Unlock()

	switch {
	case aborted:
		rec.Abort()
	case stopped:
		rec.Stop()
	}

	for res := range rec.Results() {
		c.handleResult(cyc, res)
	}
	c.finish(cyc, deviceError(rec.Err()))
}

func (c *CaptureController) handleResult(cyc *captureCycle, res RecognitionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown || c.cycle != cyc.id {
		return
	}
	if !res.IsFinal {
		if c.state == CaptureListening && c.active == cyc {
			c.sink.Post(CaptureInterimEvent{Cycle: cyc.id, Text: res.Text})
		}
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		c.logger.Debug("capture: dropping empty final result", "cycle", cyc.id)
		return
	}
	c.sink.Post(CaptureFinalEvent{Cycle: cyc.id, Text: text})
	c.exitListeningLocked(cyc, TriggerFinal)
}

func (c *CaptureController) finish(cyc *captureCycle, err *core.Error) {
	c.mu.Lock()
	if err != nil && !c.shutdown && c.cycle == cyc.id {
		c.sink.Post(CaptureErrorEvent{Cycle: cyc.id, Err: err})
	}
	trigger := TriggerDeviceEnded
	if err != nil {
		trigger = TriggerDeviceError
	}
	c.exitListeningLocked(cyc, trigger)
	if c.active == cyc {
		c.active = nil
	}
	c.mu.Unlock()

	cyc.release()
}

// exitListeningLocked moves the current cycle to idle once and emits
// CaptureEndedEvent.
func (c *CaptureController) exitListeningLocked(cyc *captureCycle, trigger CaptureTrigger) {
	if c.active != cyc || c.state != CaptureListening {
		return
	}
	next, err := NextCaptureState(c.state, trigger)
	if err != nil {
		c.logger.Warn("capture: rejected transition", "error", err)
		return
	}
	c.state = next
	if c.level != nil {
		c.level.Detach()
	}
	c.sink.Post(CaptureEndedEvent{Cycle: cyc.id})
}

func deviceError(err error) *core.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return core.NewDeviceError(core.DeviceAborted, err)
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return core.NewDeviceError(core.DeviceKind("unknown"), err)
}
