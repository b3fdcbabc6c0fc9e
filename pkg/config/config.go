// Package config loads converse settings from an optional YAML file and
// CONVERSE_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/vai-converse/pkg/core/types"
)

type TTSProvider string

const (
	TTSCartesia   TTSProvider = "cartesia"
	TTSElevenLabs TTSProvider = "elevenlabs"
	TTSNone       TTSProvider = "none"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Voice  VoiceConfig  `yaml:"voice"`
	Speech SpeechConfig `yaml:"speech"`
	Log    LogConfig    `yaml:"log"`

	// Directory conversation summaries are exported to.
	ExportDir string `yaml:"export_dir"`
}

type ServerConfig struct {
	// Websocket server; http(s) URLs are converted.
	BaseURL string `yaml:"base_url"`
	// HTTP API for start-direct; defaults to BaseURL.
	APIBaseURL  string        `yaml:"api_base_url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

type VoiceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Language      string        `yaml:"language"`
	Rate          float64       `yaml:"rate"`
	Pitch         float64       `yaml:"pitch"`
	Volume        float64       `yaml:"volume"`
	LevelInterval time.Duration `yaml:"level_interval"`
	MicDevice     string        `yaml:"mic_device"`
}

type SpeechConfig struct {
	CartesiaAPIKey   string      `yaml:"cartesia_api_key"`
	ElevenLabsAPIKey string      `yaml:"elevenlabs_api_key"`
	TTSProvider      TTSProvider `yaml:"tts_provider"`
	TTSVoice         string      `yaml:"tts_voice"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	utt := types.DefaultUtteranceParams()
	rec := types.DefaultRecognitionConfig()
	return Config{
		Server: ServerConfig{
			BaseURL:     "http://localhost:8000",
			DialTimeout: 15 * time.Second,
			HTTPTimeout: 30 * time.Second,
		},
		Voice: VoiceConfig{
			Enabled:       true,
			Language:      rec.Language,
			Rate:          utt.Rate,
			Pitch:         utt.Pitch,
			Volume:        utt.Volume,
			LevelInterval: types.DefaultLevelInterval,
		},
		Speech: SpeechConfig{
			TTSProvider: TTSCartesia,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		ExportDir: ".",
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path == "" {
		path = strings.TrimSpace(os.Getenv("CONVERSE_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml config %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.BaseURL = envOr("CONVERSE_SERVER_URL", c.Server.BaseURL)
	c.Server.APIBaseURL = envOr("CONVERSE_API_URL", c.Server.APIBaseURL)
	c.Server.DialTimeout = envDurationOr("CONVERSE_DIAL_TIMEOUT", c.Server.DialTimeout)
	c.Server.HTTPTimeout = envDurationOr("CONVERSE_HTTP_TIMEOUT", c.Server.HTTPTimeout)

	c.Voice.Enabled = envBoolOr("CONVERSE_VOICE", c.Voice.Enabled)
	c.Voice.Language = envOr("CONVERSE_LANGUAGE", c.Voice.Language)
	c.Voice.Rate = envFloat64Or("CONVERSE_VOICE_RATE", c.Voice.Rate)
	c.Voice.Pitch = envFloat64Or("CONVERSE_VOICE_PITCH", c.Voice.Pitch)
	c.Voice.Volume = envFloat64Or("CONVERSE_VOICE_VOLUME", c.Voice.Volume)
	c.Voice.LevelInterval = envDurationOr("CONVERSE_LEVEL_INTERVAL", c.Voice.LevelInterval)
	c.Voice.MicDevice = envOr("CONVERSE_MIC_DEVICE", c.Voice.MicDevice)

	c.Speech.CartesiaAPIKey = envOr("CONVERSE_CARTESIA_API_KEY", envOr("CARTESIA_API_KEY", c.Speech.CartesiaAPIKey))
	c.Speech.ElevenLabsAPIKey = envOr("CONVERSE_ELEVENLABS_API_KEY", envOr("ELEVENLABS_API_KEY", c.Speech.ElevenLabsAPIKey))
	c.Speech.TTSProvider = TTSProvider(strings.ToLower(envOr("CONVERSE_TTS_PROVIDER", string(c.Speech.TTSProvider))))
	c.Speech.TTSVoice = envOr("CONVERSE_TTS_VOICE", c.Speech.TTSVoice)

	c.Log.Level = envOr("CONVERSE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("CONVERSE_LOG_FORMAT", c.Log.Format)
	c.ExportDir = envOr("CONVERSE_EXPORT_DIR", c.ExportDir)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return errors.New("CONVERSE_SERVER_URL must not be empty")
	}
	if c.Server.DialTimeout <= 0 {
		return errors.New("CONVERSE_DIAL_TIMEOUT must be > 0")
	}
	if c.Server.HTTPTimeout <= 0 {
		return errors.New("CONVERSE_HTTP_TIMEOUT must be > 0")
	}
	if c.Voice.Rate <= 0 {
		return errors.New("CONVERSE_VOICE_RATE must be > 0")
	}
	if c.Voice.Pitch <= 0 {
		return errors.New("CONVERSE_VOICE_PITCH must be > 0")
	}
	if c.Voice.Volume < 0 || c.Voice.Volume > 1 {
		return errors.New("CONVERSE_VOICE_VOLUME must be within [0,1]")
	}
	if c.Voice.LevelInterval <= 0 {
		return errors.New("CONVERSE_LEVEL_INTERVAL must be > 0")
	}
	switch c.Speech.TTSProvider {
	case TTSCartesia, TTSElevenLabs, TTSNone:
	default:
		return fmt.Errorf("CONVERSE_TTS_PROVIDER must be one of cartesia|elevenlabs|none")
	}
	if c.Speech.TTSProvider == TTSElevenLabs && strings.TrimSpace(c.Speech.TTSVoice) == "" {
		return errors.New("CONVERSE_TTS_VOICE is required for elevenlabs")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("CONVERSE_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.New("CONVERSE_LOG_FORMAT must be text or json")
	}
	return nil
}

// Recognition returns the capture configuration.
func (c Config) Recognition() types.RecognitionConfig {
	rec := types.DefaultRecognitionConfig()
	if c.Voice.Language != "" {
		rec.Language = c.Voice.Language
	}
	return rec
}

// Utterance returns the speaking parameters.
func (c Config) Utterance() types.UtteranceParams {
	return types.UtteranceParams{Rate: c.Voice.Rate, Pitch: c.Voice.Pitch, Volume: c.Voice.Volume}
}

// SpeechInputAvailable reports whether a transcription key is set.
func (c Config) SpeechInputAvailable() bool {
	return strings.TrimSpace(c.Speech.CartesiaAPIKey) != ""
}

// SpeechOutputAvailable reports whether the selected TTS vendor has a key.
func (c Config) SpeechOutputAvailable() bool {
	switch c.Speech.TTSProvider {
	case TTSCartesia:
		return strings.TrimSpace(c.Speech.CartesiaAPIKey) != ""
	case TTSElevenLabs:
		return strings.TrimSpace(c.Speech.ElevenLabsAPIKey) != ""
	default:
		return false
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
