// Package audio runs the local microphone and speaker through ffmpeg and
// ffplay subprocesses.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/types"
)

// levelHistoryMs is how much recent audio the mic keeps for level metering.
const levelHistoryMs = 200

// exitGrace bounds how long Err waits for ffmpeg to be reaped after its
// output ends.
const exitGrace = 500 * time.Millisecond

// permissionHints are lowercase fragments ffmpeg input devices print when
// the OS refuses microphone access.
var permissionHints = []string{
	"permission denied",
	"not authorized",
	"access denied",
	"operation not permitted",
}

// Mic is one open microphone capture. Reads return 16-bit little-endian
// mono PCM; every byte read is also kept for Snapshot.
type Mic struct {
	src      io.ReadCloser
	stop     func()
	ring     *live.RingBuffer
	once     sync.Once
	closeErr error
	closed   atomic.Bool
	status   func() error
}

// MicOpener opens the microphone.
type MicOpener interface {
	OpenMic(ctx context.Context) (*Mic, error)
}

// FFmpegMic opens the default input device with ffmpeg.
type FFmpegMic struct {
	// Device overrides the platform default input ("default" on pulse,
	// ":0" on avfoundation).
	Device string
}

// ClassifyMicError maps a microphone failure to a device error. Refused
// access is not-allowed; anything else is audio-capture.
func ClassifyMicError(err error) *core.Error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) && ce.Type == core.ErrDevice {
		return ce
	}
	if errors.Is(err, os.ErrPermission) || mentionsPermission(err.Error()) {
		return core.NewDeviceError(core.DeviceNotAllowed, err)
	}
	return core.NewDeviceError(core.DeviceAudioCapture, err)
}

func mentionsPermission(msg string) bool {
	msg = strings.ToLower(msg)
	for _, hint := range permissionHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// stderrTail keeps the last few KB a subprocess wrote to stderr.
type stderrTail struct {
	mu  sync.Mutex
	buf []byte
}

const stderrTailMax = 4096

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	if over := len(s.buf) - stderrTailMax; over > 0 {
		s.buf = s.buf[over:]
	}
	return len(p), nil
}

func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(string(s.buf))
}

// OpenMic starts ffmpeg. A missing binary or unsupported platform is an
// audio-capture device error; a refused device is not-allowed.
func (f FFmpegMic) OpenMic(ctx context.Context) (*Mic, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, core.NewDeviceError(core.DeviceAudioCapture,
			errors.New("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)"))
	}
	args, err := micFFmpegArgs(runtime.GOOS, f.Device)
	if err != nil {
		return nil, core.NewDeviceError(core.DeviceAudioCapture, err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, core.NewDeviceError(core.DeviceAudioCapture, fmt.Errorf("open ffmpeg stdout: %w", err))
	}
	tail := &stderrTail{}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, ClassifyMicError(fmt.Errorf("start ffmpeg mic capture: %w", err))
	}

	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	mic := NewMic(stdout, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-exited
	})
	return mic.WithExitStatus(func() error {
		select {
		case <-exited:
		case <-time.After(exitGrace):
			return nil
		}
		if waitErr == nil {
			return nil
		}
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("ffmpeg mic capture: %s: %w", msg, waitErr)
		}
		return fmt.Errorf("ffmpeg mic capture: %w", waitErr)
	}), nil
}

// NewMic wraps an existing PCM source. stop, if set, runs once on Close
// after src is closed.
func NewMic(src io.ReadCloser, stop func()) *Mic {
	return &Mic{
		src:  src,
		stop: stop,
		ring: live.NewRingBuffer(live.CaptureAudioConfig(), levelHistoryMs),
	}
}

// WithExitStatus sets how Err learns why the source ended on its own.
func (m *Mic) WithExitStatus(status func() error) *Mic {
	m.status = status
	return m
}

// Err reports why capture ended without Close being called, classified
// as a device error. It is nil while running and after Close.
func (m *Mic) Err() error {
	if m == nil || m.status == nil || m.closed.Load() {
		return nil
	}
	if err := m.status(); err != nil {
		return ClassifyMicError(err)
	}
	return nil
}

func micFFmpegArgs(goos, device string) ([]string, error) {
	rate := fmt.Sprintf("%d", types.CaptureSampleRate)
	switch goos {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", device,
			"-ac", "1", "-ar", rate,
			"-f", "s16le", "-",
		}, nil
	case "linux":
		if device == "" {
			device = "default"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", device,
			"-ac", "1", "-ar", rate,
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *Mic) Read(p []byte) (int, error) {
	if m == nil || m.src == nil {
		return 0, io.EOF
	}
	n, err := m.src.Read(p)
	if n > 0 {
		m.ring.Write(p[:n])
	}
	return n, err
}

// Snapshot copies the most recent captured PCM into dst.
func (m *Mic) Snapshot(dst []byte) (int, error) {
	return m.ring.Snapshot(dst), nil
}

// Close stops capture. It is safe to call more than once.
func (m *Mic) Close() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		m.closed.Store(true)
		if m.src != nil {
			m.closeErr = m.src.Close()
		}
		if m.stop != nil {
			m.stop()
		}
	})
	return m.closeErr
}

var _ live.AudioStream = (*Mic)(nil)
