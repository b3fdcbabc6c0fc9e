package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

const (
	cartesiaWSURL   = "wss://api.cartesia.ai/tts/websocket"
	cartesiaVersion = "2025-04-16"
	cartesiaModel   = "sonic-3"

	// Used when no voice is configured.
	defaultCartesiaVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// Cartesia synthesizes over Cartesia's websocket API.
type Cartesia struct {
	apiKey string
	wsURL  string
	dialer *websocket.Dialer
}

// NewCartesia returns a provider for the hosted API.
func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{
		apiKey: strings.TrimSpace(apiKey),
		wsURL:  cartesiaWSURL,
		dialer: websocket.DefaultDialer,
	}
}

// WithWSURL points the provider at another websocket endpoint.
func (c *Cartesia) WithWSURL(raw string) *Cartesia {
	if raw = strings.TrimSpace(raw); raw != "" {
		c.wsURL = raw
	}
	return c
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string { return "cartesia" }

type cartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Speed  float64 `json:"speed,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

type cartesiaRequest struct {
	ModelID          string                    `json:"model_id"`
	Transcript       string                    `json:"transcript"`
	Voice            cartesiaVoiceSpec         `json:"voice"`
	OutputFormat     cartesiaOutputFormat      `json:"output_format"`
	ContextID        string                    `json:"context_id"`
	Continue         bool                      `json:"continue"`
	GenerationConfig *cartesiaGenerationConfig `json:"generation_config,omitempty"`
	Language         string                    `json:"language,omitempty"`
}

type cartesiaResponse struct {
	Type  string `json:"type"` // chunk, flush_done, done, error
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

var cartesiaContextSeq atomic.Uint64

func nextCartesiaContextID() string {
	return fmt.Sprintf("ctx_%d", cartesiaContextSeq.Add(1))
}

func pcmOutputFormat(sampleRate int) cartesiaOutputFormat {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return cartesiaOutputFormat{Container: "raw", Encoding: "pcm_s16le", SampleRate: sampleRate}
}

func (c *Cartesia) baseRequest(opts StreamingOptions) cartesiaRequest {
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		voiceID = defaultCartesiaVoiceID
	}
	req := cartesiaRequest{
		ModelID:      cartesiaModel,
		Voice:        cartesiaVoiceSpec{Mode: "id", ID: voiceID},
		OutputFormat: pcmOutputFormat(opts.SampleRate),
		ContextID:    nextCartesiaContextID(),
	}
	if opts.Speed != 0 || opts.Volume != 0 {
		req.GenerationConfig = &cartesiaGenerationConfig{Speed: opts.Speed, Volume: opts.Volume}
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" {
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			lang = lang[:i]
		}
		req.Language = strings.ToLower(lang)
	}
	return req
}

// NewStreamingContext dials a synthesis context. Text chunks continue the
// same context until Flush.
func (c *Cartesia) NewStreamingContext(ctx context.Context, opts StreamingOptions) (*StreamingContext, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("cartesia api key is required")
	}
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("cartesia_version", cartesiaVersion)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	sc := NewStreamingContext()
	base := c.baseRequest(opts)

	var writeMu sync.Mutex
	sc.SendFunc = func(text string, isFinal bool) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		req := base
		req.Transcript = text
		// continue must stay true until the last chunk or the context closes.
		req.Continue = !isFinal
		return conn.WriteJSON(req)
	}
	sc.CloseFunc = conn.Close

	go func() {
		defer sc.FinishAudio()
		defer conn.Close()

		for {
			var msg cartesiaResponse
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case <-sc.Done():
				default:
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						sc.SetError(err)
					}
				}
				return
			}

			switch msg.Type {
			case "chunk":
				pcm, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					sc.SetError(fmt.Errorf("decode audio: %w", err))
					return
				}
				if !sc.PushAudio(pcm) {
					return
				}
			case "done":
				return
			case "error":
				sc.SetError(fmt.Errorf("cartesia error: %s", msg.Error))
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
