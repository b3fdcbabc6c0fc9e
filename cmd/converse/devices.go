package main

import (
	"log/slog"

	"github.com/vango-go/vai-converse/pkg/config"
	"github.com/vango-go/vai-converse/pkg/core/voice"
	"github.com/vango-go/vai-converse/pkg/core/voice/audio"
	"github.com/vango-go/vai-converse/pkg/core/voice/stt"
	"github.com/vango-go/vai-converse/pkg/core/voice/tts"
	converse "github.com/vango-go/vai-converse/sdk"
)

// buildDevices wires whatever speech backends the config allows. Missing
// keys or binaries disable that direction and are reported as warnings.
func buildDevices(cfg config.Config, logger *slog.Logger) (converse.Devices, func(), []string) {
	var devices converse.Devices
	var warnings []string
	cleanup := func() {}

	if cfg.SpeechInputAvailable() {
		mics := audio.FFmpegMic{Device: cfg.Voice.MicDevice}
		devices.Recognizer = voice.NewRecognizer(stt.NewCartesia(cfg.Speech.CartesiaAPIKey), mics, logger)
	} else {
		warnings = append(warnings, "Speech input disabled: set CARTESIA_API_KEY to enable /listen")
	}

	if !cfg.SpeechOutputAvailable() {
		if cfg.Speech.TTSProvider != config.TTSNone {
			warnings = append(warnings, "Speech output disabled: no key for "+string(cfg.Speech.TTSProvider))
		}
		return devices, cleanup, warnings
	}
	player, err := audio.NewFFplayPlayer()
	if err != nil {
		warnings = append(warnings, "Speech output disabled: "+err.Error())
		return devices, cleanup, warnings
	}

	var provider tts.Provider
	switch cfg.Speech.TTSProvider {
	case config.TTSElevenLabs:
		provider = tts.NewElevenLabs(cfg.Speech.ElevenLabsAPIKey)
	default:
		provider = tts.NewCartesia(cfg.Speech.CartesiaAPIKey)
	}
	devices.Synthesizer = voice.NewSpeaker(provider, player, cfg.Speech.TTSVoice, cfg.Voice.Language, logger)
	cleanup = func() {
		if err := player.Close(); err != nil {
			logger.Debug("player close failed", "error", err)
		}
	}
	return devices, cleanup, warnings
}
