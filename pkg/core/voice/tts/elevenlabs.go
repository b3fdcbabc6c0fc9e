package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

// ElevenLabs synthesizes over the ElevenLabs input-streaming websocket.
type ElevenLabs struct {
	apiKey    string
	wsBaseURL string
	dialer    *websocket.Dialer
}

// NewElevenLabs returns a provider for the hosted API.
func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: elevenLabsDefaultWSBase,
		dialer:    websocket.DefaultDialer,
	}
}

// WithWSBaseURL overrides the endpoint. "{voice_id}" is substituted.
func (e *ElevenLabs) WithWSBaseURL(base string) *ElevenLabs {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBaseURL = base
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenLabsVoiceSettings struct {
	Speed float64 `json:"speed,omitempty"`
}

type elevenLabsInit struct {
	Text          string                   `json:"text"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsChunk struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

// NewStreamingContext dials the voice's stream-input endpoint. Volume is
// not supported by the vendor and is ignored.
func (e *ElevenLabs) NewStreamingContext(ctx context.Context, opts StreamingOptions) (*StreamingContext, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	wsURL, err := buildElevenLabsWSURL(e.wsBaseURL, voiceID, opts.SampleRate)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	sc := NewStreamingContext()
	var closeOnce sync.Once
	closeConn := func() error {
		var closeErr error
		closeOnce.Do(func() { closeErr = conn.Close() })
		return closeErr
	}

	first := elevenLabsInit{Text: " "}
	if opts.Speed > 0 {
		first.VoiceSettings = &elevenLabsVoiceSettings{Speed: clampElevenLabsSpeed(opts.Speed)}
	}
	if err := conn.WriteJSON(first); err != nil {
		_ = closeConn()
		return nil, err
	}

	var writeMu sync.Mutex
	sc.SendFunc = func(text string, isFinal bool) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		chunk := elevenLabsChunk{Text: strings.TrimSpace(text), Flush: isFinal}
		if chunk.Text != "" {
			chunk.Text += " "
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(chunk); err != nil {
			return err
		}
		if isFinal {
			// An empty text frame ends the input stream.
			return conn.WriteJSON(elevenLabsChunk{Text: ""})
		}
		return nil
	}
	sc.CloseFunc = closeConn

	go func() {
		defer sc.FinishAudio()
		defer closeConn()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-sc.Done():
				default:
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						sc.SetError(err)
					}
				}
				return
			}
			var msg map[string]json.RawMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if audioB64 := decodeStringRaw(msg["audio"]); audioB64 != "" {
				pcm, err := base64.StdEncoding.DecodeString(audioB64)
				if err == nil && len(pcm) > 0 && !sc.PushAudio(pcm) {
					return
				}
			}
			if decodeBoolRaw(msg["isFinal"]) || decodeBoolRaw(msg["is_final"]) {
				return
			}
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			sc.SetError(ctx.Err())
			_ = sc.Close()
		case <-sc.Done():
		}
	}()

	return sc, nil
}

// clampElevenLabsSpeed keeps speed inside the vendor's accepted range.
func clampElevenLabsSpeed(speed float64) float64 {
	switch {
	case speed < 0.7:
		return 0.7
	case speed > 1.2:
		return 1.2
	default:
		return speed
	}
}

func buildElevenLabsWSURL(base, voiceID string, sampleRate int) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = elevenLabsDefaultWSBase
	}
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", "eleven_flash_v2_5")
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", fmt.Sprintf("pcm_%d", sampleRate))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeStringRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func decodeBoolRaw(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var out bool
	if err := json.Unmarshal(raw, &out); err != nil {
		return false
	}
	return out
}
