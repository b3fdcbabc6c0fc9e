package live

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

// defaultLevelWindowBytes is 1024 16-bit samples.
const defaultLevelWindowBytes = 2048

// AudioStream is an open microphone exposing its most recent PCM samples.
type AudioStream interface {
	// Snapshot copies the latest 16-bit little-endian PCM into dst.
	Snapshot(dst []byte) (int, error)
	// Close releases the microphone.
	Close() error
}

// LevelMonitor publishes the RMS level of an attached stream at a fixed
// frame rate. It never blocks its caller and never reports errors.
type LevelMonitor struct {
	interval time.Duration
	window   int
	logger   *slog.Logger

	mu     sync.Mutex
	stream AudioStream
	stop   chan struct{}
	done   chan struct{}

	level atomic.Uint64
	ticks atomic.Int64
}

// NewLevelMonitor creates a detached monitor. A non-positive interval uses
// types.DefaultLevelInterval.
func NewLevelMonitor(interval time.Duration, logger *slog.Logger) *LevelMonitor {
	if interval <= 0 {
		interval = types.DefaultLevelInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LevelMonitor{
		interval: interval,
		window:   defaultLevelWindowBytes,
		logger:   logger,
	}
}

// Attach starts sampling stream. Attaching the already attached stream is a
// no-op; attaching a different one detaches the previous stream first.
func (m *LevelMonitor) Attach(stream AudioStream) {
	if stream == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == stream {
		return
	}
	m.detachLocked()

	m.stream = stream
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sampleLoop(stream, m.stop, m.done)
}

// Detach stops sampling, resets the level to zero and releases the stream.
func (m *LevelMonitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
}

func (m *LevelMonitor) detachLocked() {
	if m.stream == nil {
		return
	}
	close(m.stop)
	<-m.done
	if err := m.stream.Close(); err != nil {
		m.logger.Debug("level monitor: stream close failed", "error", err)
	}
	m.stream = nil
	m.stop = nil
	m.done = nil
	m.level.Store(0)
}

// Attached reports whether a stream is being sampled.
func (m *LevelMonitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

// Level returns the latest level in [0, 1].
func (m *LevelMonitor) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

func (m *LevelMonitor) sampleLoop(stream AudioStream, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	buf := make([]byte, m.window)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		n, err := stream.Snapshot(buf)
		if err != nil {
			m.logger.Debug("level monitor: snapshot failed", "error", err)
			continue
		}
		level := CalculateRMSEnergy(buf[:n])
		if level > 1 {
			level = 1
		}
		select {
		case <-stop:
			return
		default:
		}
		m.level.Store(math.Float64bits(level))
		m.ticks.Add(1)
	}
}
