// Package tts streams agent text to a speech vendor and returns PCM.
package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Provider opens incremental synthesis contexts.
type Provider interface {
	Name() string
	NewStreamingContext(ctx context.Context, opts StreamingOptions) (*StreamingContext, error)
}

// StreamingOptions configures one synthesis context. Output is always
// 16-bit little-endian mono PCM at SampleRate.
type StreamingOptions struct {
	Voice      string
	Speed      float64 // vendor speed multiplier; 0 keeps the vendor default
	Volume     float64 // vendor volume multiplier; 0 keeps the vendor default
	Language   string
	SampleRate int // default 24000
}

// ErrContextClosed is returned when sending to a closed context.
var ErrContextClosed = errors.New("streaming context closed")

// StreamingContext accepts text with SendText and yields audio on Audio.
// Implementations fill in SendFunc and CloseFunc.
type StreamingContext struct {
	audio     chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	SendFunc  func(text string, isFinal bool) error
	CloseFunc func() error
}

// NewStreamingContext returns an empty context for a provider to drive.
func NewStreamingContext() *StreamingContext {
	return &StreamingContext{
		audio: make(chan []byte, 100),
		done:  make(chan struct{}),
	}
}

// SendText queues text. isFinal marks the last chunk.
func (sc *StreamingContext) SendText(text string, isFinal bool) error {
	if sc.closed.Load() {
		return ErrContextClosed
	}
	if sc.SendFunc != nil {
		return sc.SendFunc(text, isFinal)
	}
	return nil
}

// Flush marks the end of input.
func (sc *StreamingContext) Flush() error {
	return sc.SendText("", true)
}

// Audio is closed once the provider has delivered everything.
func (sc *StreamingContext) Audio() <-chan []byte {
	return sc.audio
}

// Err is valid after Audio is closed.
func (sc *StreamingContext) Err() error {
	sc.errMu.Lock()
	defer sc.errMu.Unlock()
	return sc.err
}

// Close abandons the context. It is idempotent.
func (sc *StreamingContext) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		sc.closed.Store(true)
		if sc.CloseFunc != nil {
			err = sc.CloseFunc()
		}
		close(sc.done)
	})
	return err
}

// Done is closed by Close.
func (sc *StreamingContext) Done() <-chan struct{} {
	return sc.done
}

// PushAudio delivers a chunk. It returns false once the context is closed.
func (sc *StreamingContext) PushAudio(chunk []byte) bool {
	if sc.closed.Load() {
		return false
	}
	select {
	case sc.audio <- chunk:
		return true
	case <-sc.done:
		return false
	}
}

// SetError records the first failure.
func (sc *StreamingContext) SetError(err error) {
	sc.errMu.Lock()
	defer sc.errMu.Unlock()
	if sc.err == nil {
		sc.err = err
	}
}

// FinishAudio closes the audio channel. Providers call it exactly once.
func (sc *StreamingContext) FinishAudio() {
	close(sc.audio)
}
