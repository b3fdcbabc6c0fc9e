package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/types"
	"github.com/vango-go/vai-converse/pkg/core/voice/audio"
	"github.com/vango-go/vai-converse/pkg/core/voice/stt"
)

const (
	micChunkBytes       = 1024
	defaultFinalTimeout = 3 * time.Second
)

// Recognizer turns the microphone into live.Recognition cycles using
// Cartesia streaming transcription.
type Recognizer struct {
	stt          *stt.Cartesia
	mics         audio.MicOpener
	logger       *slog.Logger
	finalTimeout time.Duration
}

// NewRecognizer wires a transcription client to a microphone.
func NewRecognizer(client *stt.Cartesia, mics audio.MicOpener, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{stt: client, mics: mics, logger: logger, finalTimeout: defaultFinalTimeout}
}

// Start opens the mic and a transcription stream. A refused mic is a
// not-allowed error, any other mic failure audio-capture, and a dial
// failure a network error.
func (r *Recognizer) Start(ctx context.Context, cfg types.RecognitionConfig) (live.Recognition, error) {
	mic, err := r.mics.OpenMic(ctx)
	if err != nil {
		return nil, audio.ClassifyMicError(err)
	}

	stream, err := r.stt.Open(ctx, stt.Options{Language: cfg.Language, SampleRate: types.CaptureSampleRate})
	if err != nil {
		_ = mic.Close()
		return nil, core.NewDeviceError(core.DeviceNetwork, err)
	}

	rec := &recognition{
		cfg:          cfg,
		mic:          mic,
		stream:       stream,
		logger:       r.logger,
		finalTimeout: r.finalTimeout,
		results:      make(chan live.RecognitionResult, 16),
		micDone:      make(chan struct{}),
	}
	go rec.pump()
	go rec.relay()
	return rec, nil
}

type recognition struct {
	cfg          types.RecognitionConfig
	mic          *audio.Mic
	stream       *stt.Stream
	logger       *slog.Logger
	finalTimeout time.Duration

	results chan live.RecognitionResult
	micDone chan struct{}

	stopOnce sync.Once
	aborted  atomic.Bool

	errMu  sync.Mutex
	micErr error
}

func (r *recognition) Results() <-chan live.RecognitionResult { return r.results }
func (r *recognition) Stream() live.AudioStream               { return r.mic }

// Err maps how the cycle ended. It is valid after Results is closed.
func (r *recognition) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.micErr
}

func (r *recognition) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.micErr == nil {
		r.micErr = err
	}
}

// Stop ends capture and waits briefly for the last final transcript.
func (r *recognition) Stop() {
	r.stopOnce.Do(func() {
		_ = r.mic.Close()
		_ = r.stream.Finalize()
		_ = r.stream.End()
		go func() {
			select {
			case <-r.stream.Done():
			case <-time.After(r.finalTimeout):
				r.logger.Debug("stt: final transcript timed out")
				_ = r.stream.Close()
			}
		}()
	})
}

// Abort drops the cycle without further results.
func (r *recognition) Abort() {
	r.aborted.Store(true)
	r.stopOnce.Do(func() {})
	_ = r.mic.Close()
	_ = r.stream.Close()
}

func (r *recognition) pump() {
	defer close(r.micDone)
	buf := make([]byte, micChunkBytes)
	for {
		n, err := r.mic.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := r.stream.SendAudio(chunk); sendErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.logger.Debug("stt: mic read ended", "error", err)
			}
			if micErr := r.mic.Err(); micErr != nil {
				r.logger.Warn("stt: microphone stopped", "error", micErr)
				r.setErr(micErr)
				_ = r.stream.Close()
			}
			return
		}
	}
}

func (r *recognition) relay() {
	defer close(r.results)

	var finals []string
	done := false
	for d := range r.stream.Deltas() {
		if done || r.aborted.Load() {
			continue
		}
		text := strings.TrimSpace(d.Text)
		if d.IsFinal {
			if text == "" {
				continue
			}
			finals = append(finals, text)
			r.results <- live.RecognitionResult{Text: strings.Join(finals, " "), IsFinal: true}
			if !r.cfg.Continuous {
				done = true
				r.Stop()
			}
			continue
		}
		if r.cfg.InterimResults && text != "" {
			r.results <- live.RecognitionResult{Text: strings.TrimSpace(strings.Join(append(finals, text), " "))}
		}
	}

	switch {
	case r.aborted.Load():
		r.setErr(core.NewDeviceError(core.DeviceAborted, nil))
	case r.stream.Err() != nil:
		r.setErr(core.NewDeviceError(core.DeviceNetwork, r.stream.Err()))
	case len(finals) == 0:
		r.setErr(core.NewDeviceError(core.DeviceNoSpeech, nil))
	}
	_ = r.stream.Close()
	_ = r.mic.Close()
	<-r.micDone
}
