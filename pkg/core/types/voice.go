package types

import "time"

// RecognitionConfig configures one speech recognition cycle.
type RecognitionConfig struct {
	Continuous      bool   `json:"continuous" yaml:"continuous"`
	InterimResults  bool   `json:"interim_results" yaml:"interim_results"`
	Language        string `json:"language" yaml:"language"` // BCP-47 tag, e.g. "en-US"
	MaxAlternatives int    `json:"max_alternatives" yaml:"max_alternatives"`
}

// DefaultRecognitionConfig returns single-utterance capture with interim results.
func DefaultRecognitionConfig() RecognitionConfig {
	return RecognitionConfig{
		Continuous:      false,
		InterimResults:  true,
		Language:        "en-US",
		MaxAlternatives: 1,
	}
}

// UtteranceParams controls how agent text is spoken.
type UtteranceParams struct {
	Rate   float64 `json:"rate" yaml:"rate"`     // 1.0 is normal speed
	Pitch  float64 `json:"pitch" yaml:"pitch"`   // 1.0 is normal pitch
	Volume float64 `json:"volume" yaml:"volume"` // 0.0-1.0
}

// DefaultUtteranceParams returns the default speaking parameters.
func DefaultUtteranceParams() UtteranceParams {
	return UtteranceParams{Rate: 0.8, Pitch: 1, Volume: 0.8}
}

// DefaultLevelInterval is the audio level sampling period (one display frame).
const DefaultLevelInterval = time.Second / 60

// Voice format constants
const (
	VoiceFormatWAV = "wav"
	VoiceFormatPCM = "pcm"
)

// Microphone capture format shared by the recognizer and the level monitor.
const (
	CaptureSampleRate = 16000
	CaptureChannels   = 1
)

// PlaybackSampleRate is the PCM rate requested from speech synthesis.
const PlaybackSampleRate = 24000
