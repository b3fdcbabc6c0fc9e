package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/types"
	"github.com/vango-go/vai-converse/pkg/core/voice/audio"
	"github.com/vango-go/vai-converse/pkg/core/voice/tts"
)

// Speaker implements live.Synthesizer by streaming sentences to a TTS
// provider and writing the returned PCM to a player.
type Speaker struct {
	provider tts.Provider
	player   audio.Player
	voice    string
	language string
	logger   *slog.Logger

	// playMu keeps one utterance writing to the player at a time.
	playMu sync.Mutex

	mu     sync.Mutex
	next   uint64
	active map[uint64]context.CancelFunc
}

// NewSpeaker returns a Speaker. voice and language are passed through to
// the provider unchanged.
func NewSpeaker(provider tts.Provider, player audio.Player, voice, language string, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		player:   player,
		voice:    voice,
		language: language,
		logger:   logger,
		active:   make(map[uint64]context.CancelFunc),
	}
}

var _ live.Synthesizer = (*Speaker)(nil)

// Speak starts synthesis in the background and returns immediately.
func (s *Speaker) Speak(ctx context.Context, text string, params types.UtteranceParams, cb live.UtteranceCallbacks) error {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return errors.New("nothing to speak")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.next++
	id := s.next
	s.active[id] = cancel
	s.mu.Unlock()

	go func() {
		defer s.release(id)
		err := s.play(ctx, sentences, params, cb.OnStart)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Warn("speech: utterance failed", "provider", s.provider.Name(), "error", err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
		case err != nil:
			if cb.OnError != nil {
				cb.OnError(ctx.Err())
			}
		default:
			if cb.OnEnd != nil {
				cb.OnEnd()
			}
		}
	}()
	return nil
}

func (s *Speaker) play(ctx context.Context, sentences []string, params types.UtteranceParams, onStart func()) error {
	sc, err := s.provider.NewStreamingContext(ctx, tts.StreamingOptions{
		Voice:      s.voice,
		Speed:      params.Rate,
		Volume:     params.Volume,
		Language:   s.language,
		SampleRate: types.PlaybackSampleRate,
	})
	if err != nil {
		return fmt.Errorf("open %s stream: %w", s.provider.Name(), err)
	}
	defer sc.Close()

	for _, sentence := range sentences {
		if err := sc.SendText(sentence, false); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	if err := sc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()
	started := false
	for chunk := range sc.Audio() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !started {
			started = true
			if onStart != nil {
				onStart()
			}
		}
		if err := s.player.Write(chunk); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Speaker) release(id uint64) {
	s.mu.Lock()
	cancel, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll stops every utterance in flight and drops buffered audio.
func (s *Speaker) CancelAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.active))
	for id, cancel := range s.active {
		cancels = append(cancels, cancel)
		delete(s.active, id)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if err := s.player.Reset(); err != nil {
		s.logger.Debug("speech: player reset failed", "error", err)
	}
}
