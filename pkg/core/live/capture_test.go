package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/types"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func newTestCapture(t *testing.T, recs ...*fakeRecognition) (*CaptureController, *fakeRecognizer, *LevelMonitor, *recorder) {
	t.Helper()
	recognizer := &fakeRecognizer{queue: recs}
	level := NewLevelMonitor(time.Millisecond, nil)
	rec := &recorder{}
	c := NewCaptureController(recognizer, level, rec)
	t.Cleanup(c.Shutdown)
	return c, recognizer, level, rec
}

func TestCapture_StartUsesRecognitionConfig(t *testing.T) {
	r := newFakeRecognition(nil)
	c, recognizer, _, rec := newTestCapture(t, r)

	require.NoError(t, c.Start())
	assert.Equal(t, CaptureListening, c.State())
	require.Eventually(t, func() bool {
		recognizer.mu.Lock()
		defer recognizer.mu.Unlock()
		return recognizer.starts == 1
	}, waitFor, tick)

	recognizer.mu.Lock()
	cfg := recognizer.cfg
	recognizer.mu.Unlock()
	assert.Equal(t, types.DefaultRecognitionConfig(), cfg)
	assert.Equal(t, 1, rec.Count("capture.started"))
}

func TestCapture_SecondStartIsRejectedWithoutEvent(t *testing.T) {
	c, _, _, rec := newTestCapture(t, newFakeRecognition(nil))

	require.NoError(t, c.Start())
	err := c.Start()
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrAlreadyActive))
	assert.Equal(t, CaptureListening, c.State())
	assert.Equal(t, 1, rec.Count("capture.started"))
}

func TestCapture_FinalResultEndsCycle(t *testing.T) {
	stream := &fakeStream{pcm: fullScalePCM(1024)}
	r := newFakeRecognition(stream)
	c, _, level, rec := newTestCapture(t, r)

	require.NoError(t, c.Start())
	require.Eventually(t, level.Attached, waitFor, tick)

	r.emit(RecognitionResult{Text: "hel"})
	r.emit(RecognitionResult{Text: "  hello there ", IsFinal: true})
	r.end(nil)

	require.Eventually(t, func() bool { return stream.closes.Load() == 1 }, waitFor, tick)
	assert.Equal(t, CaptureIdle, c.State())
	assert.False(t, level.Attached())
	assert.Equal(t, []string{"capture.started", "capture.interim", "capture.final", "capture.ended"}, rec.Types())

	final := rec.Events()[2].(CaptureFinalEvent)
	assert.Equal(t, "hello there", final.Text)
}

func TestCapture_EmptyFinalIsDropped(t *testing.T) {
	r := newFakeRecognition(nil)
	c, _, _, rec := newTestCapture(t, r)

	require.NoError(t, c.Start())
	r.emit(RecognitionResult{Text: "   ", IsFinal: true})
	r.end(nil)

	require.Eventually(t, func() bool { return rec.Count("capture.ended") == 1 }, waitFor, tick)
	assert.Equal(t, 0, rec.Count("capture.final"))
	assert.Equal(t, CaptureIdle, c.State())
}

func TestCapture_NoSpeechReturnsToIdleWithBenignError(t *testing.T) {
	r := newFakeRecognition(nil)
	c, _, _, rec := newTestCapture(t, r)

	require.NoError(t, c.Start())
	r.end(core.NewDeviceError(core.DeviceNoSpeech, nil))

	require.Eventually(t, func() bool { return rec.Count("capture.ended") == 1 }, waitFor, tick)
	assert.Equal(t, CaptureIdle, c.State())

	var errEv CaptureErrorEvent
	for _, e := range rec.Events() {
		if ev, ok := e.(CaptureErrorEvent); ok {
			errEv = ev
		}
	}
	require.NotNil(t, errEv.Err)
	assert.True(t, errEv.Err.IsBenign())
	assert.Equal(t, core.DeviceNoSpeech, errEv.Err.Kind())
}

func TestCapture_DeviceStartFailure(t *testing.T) {
	recognizer := &fakeRecognizer{err: core.NewDeviceError(core.DeviceNotAllowed, nil)}
	rec := &recorder{}
	c := NewCaptureController(recognizer, nil, rec)
	t.Cleanup(c.Shutdown)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return rec.Count("capture.ended") == 1 }, waitFor, tick)

	assert.Equal(t, []string{"capture.started", "capture.error", "capture.ended"}, rec.Types())
	errEv := rec.Events()[1].(CaptureErrorEvent)
	assert.Equal(t, core.DeviceNotAllowed, errEv.Err.Kind())
	assert.False(t, errEv.Err.IsBenign())
	assert.Equal(t, CaptureIdle, c.State())
}

func TestCapture_StopIsImmediateAndFinalStillDelivered(t *testing.T) {
	stream := &fakeStream{}
	r := newFakeRecognition(stream)
	r.finalOnStop = "late words"
	c, _, _, rec := newTestCapture(t, r)

	require.NoError(t, c.Start())
	c.Stop()
	assert.Equal(t, CaptureIdle, c.State())
	assert.Equal(t, 1, rec.Count("capture.ended"))

	require.Eventually(t, func() bool { return rec.Count("capture.final") == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return stream.closes.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(1), r.stops.Load())
	assert.Equal(t, 1, rec.Count("capture.ended"))
}

func TestCapture_StopWhenIdleIsNoop(t *testing.T) {
	c, _, _, rec := newTestCapture(t)
	c.Stop()
	assert.Equal(t, CaptureIdle, c.State())
	assert.Empty(t, rec.Events())
}

func TestCapture_StaleFinalAfterNewCycleIsDropped(t *testing.T) {
	first := newFakeRecognition(nil)
	first.holdOnStop = true
	second := newFakeRecognition(nil)
	c, recognizer, _, rec := newTestCapture(t, first, second)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		recognizer.mu.Lock()
		defer recognizer.mu.Unlock()
		return recognizer.starts == 1
	}, waitFor, tick)
	c.Stop()
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		recognizer.mu.Lock()
		defer recognizer.mu.Unlock()
		return recognizer.starts == 2
	}, waitFor, tick)

	first.emit(RecognitionResult{Text: "old", IsFinal: true})
	first.end(nil)
	second.emit(RecognitionResult{Text: "new", IsFinal: true})
	second.end(nil)

	require.Eventually(t, func() bool { return rec.Count("capture.ended") == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.Count("capture.final") == 1 }, waitFor, tick)
	for _, e := range rec.Events() {
		if f, ok := e.(CaptureFinalEvent); ok {
			assert.Equal(t, "new", f.Text)
			assert.Equal(t, uint64(2), f.Cycle)
		}
	}
}

func TestCapture_ShutdownReleasesMicrophoneOnce(t *testing.T) {
	stream := &fakeStream{pcm: fullScalePCM(64)}
	r := newFakeRecognition(stream)
	c, _, level, rec := newTestCapture(t, r)

	require.NoError(t, c.Start())
	require.Eventually(t, level.Attached, waitFor, tick)

	c.Shutdown()
	c.Shutdown()

	assert.Equal(t, CaptureIdle, c.State())
	assert.False(t, level.Attached())
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, int32(1), r.aborts.Load())
	assert.Equal(t, 1, rec.Count("capture.ended"))
	assert.Equal(t, 0, rec.Count("capture.error"))

	err := c.Start()
	assert.True(t, core.IsType(err, core.ErrUserAbort))
}
