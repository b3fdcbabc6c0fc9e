package live

import (
	"math"
	"sync"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

// CalculateRMSEnergy returns the RMS of 16-bit little-endian PCM scaled to
// [0,1]. A trailing odd byte is ignored.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(pcm[i])|int16(pcm[i+1])<<8) / 32768.0
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(samples)))
}

// AudioConfig describes a PCM stream.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// CaptureAudioConfig is the microphone format shared by the recognizer and
// the level monitor.
func CaptureAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    types.CaptureSampleRate,
		Channels:      types.CaptureChannels,
		BitsPerSample: 16,
	}
}

// BytesForDurationMs is the byte length of ms of audio.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8) * ms / 1000
}

// RingBuffer keeps the most recent window of captured audio for level
// analysis. Writes never block and overwrite the oldest bytes.
type RingBuffer struct {
	mu     sync.Mutex
	data   []byte
	next   int
	filled int
}

// NewRingBuffer holds durationMs of audio in cfg's format.
func NewRingBuffer(cfg AudioConfig, durationMs int) *RingBuffer {
	size := cfg.BytesForDurationMs(durationMs)
	if size < 2 {
		size = 2
	}
	return &RingBuffer{data: make([]byte, size)}
}

func (r *RingBuffer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) >= len(r.data) {
		copy(r.data, p[len(p)-len(r.data):])
		r.next = 0
		r.filled = len(r.data)
		return
	}
	n := copy(r.data[r.next:], p)
	if n < len(p) {
		copy(r.data, p[n:])
	}
	r.next = (r.next + len(p)) % len(r.data)
	r.filled = min(r.filled+len(p), len(r.data))
}

// Snapshot copies the newest len(dst) bytes (rounded down to whole
// samples) into dst, oldest first, and returns the count.
func (r *RingBuffer) Snapshot(dst []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(dst), r.filled)
	n -= n % 2
	start := (r.next - n + len(r.data)) % len(r.data)
	first := copy(dst[:n], r.data[start:])
	copy(dst[first:n], r.data)
	return n
}

// Len is the number of buffered bytes.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}
