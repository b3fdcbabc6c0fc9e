// Package stt streams microphone audio to Cartesia for live transcription.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	cartesiaWSURL   = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion = "2025-04-16"
	defaultModel    = "ink-whisper"
)

// ErrStreamClosed is returned when writing to a closed stream.
var ErrStreamClosed = errors.New("stt stream closed")

// Options configures one streaming session.
type Options struct {
	Model      string // default "ink-whisper"
	Language   string // BCP 47 tag or ISO code; the region is dropped
	Encoding   string // default "pcm_s16le"
	SampleRate int    // default 16000
}

// Delta is one transcript update.
type Delta struct {
	Text    string
	IsFinal bool
}

// Cartesia opens streaming transcription sessions.
type Cartesia struct {
	apiKey string
	wsURL  string
	dialer *websocket.Dialer
}

// NewCartesia returns a client for the hosted API.
func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{
		apiKey: strings.TrimSpace(apiKey),
		wsURL:  cartesiaWSURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// WithWSURL points the client at another websocket endpoint.
func (c *Cartesia) WithWSURL(raw string) *Cartesia {
	if raw = strings.TrimSpace(raw); raw != "" {
		c.wsURL = raw
	}
	return c
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string { return "cartesia" }

func (c *Cartesia) streamURL(opts Options) (string, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return "", fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	q.Set("model", model)
	q.Set("language", baseLanguage(opts.Language))

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "pcm_s16le"
	}
	q.Set("encoding", encoding)

	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("min_volume", "0.01")
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// baseLanguage reduces "en-US" to "en". Empty means English.
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return "en"
	}
	return strings.ToLower(tag)
}

// Open dials a streaming session.
func (c *Cartesia) Open(ctx context.Context, opts Options) (*Stream, error) {
	if c.apiKey == "" {
		return nil, errors.New("cartesia api key is required")
	}
	wsURL, err := c.streamURL(opts)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("X-API-Key", c.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	s := &Stream{
		conn:   conn,
		deltas: make(chan Delta, 100),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Stream is one live transcription session.
type Stream struct {
	conn    *websocket.Conn
	deltas  chan Delta
	done    chan struct{}
	quit    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

type cartesiaMessage struct {
	Type    string `json:"type"` // transcript, flush_done, done, error
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Stream) readLoop() {
	defer close(s.done)
	defer close(s.deltas)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setErr(err)
			}
			return
		}

		var msg cartesiaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "transcript":
			select {
			case s.deltas <- Delta{Text: msg.Text, IsFinal: msg.IsFinal}:
			case <-s.quit:
				return
			}
		case "done":
			return
		case "error":
			detail := msg.Error
			if detail == "" {
				detail = msg.Message
			}
			s.setErr(fmt.Errorf("cartesia error: %s", detail))
			return
		}
	}
}

func (s *Stream) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err is valid once Deltas is closed.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Deltas is closed when the session ends.
func (s *Stream) Deltas() <-chan Delta { return s.deltas }

// Done is closed after the read loop exits.
func (s *Stream) Done() <-chan struct{} { return s.done }

// SendAudio writes one PCM chunk.
func (s *Stream) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Finalize flushes buffered audio so a final transcript is produced.
func (s *Stream) Finalize() error {
	return s.command("finalize")
}

// End asks the server to finish the session after flushing.
func (s *Stream) End() error {
	return s.command("done")
}

func (s *Stream) command(cmd string) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(cmd))
}

// Close tears the session down without waiting for pending transcripts.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.quit)
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
