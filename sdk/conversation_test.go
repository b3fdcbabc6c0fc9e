package converse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/live"
	"github.com/vango-go/vai-converse/pkg/core/types"
)

type serverAction struct {
	frame     string
	closeCode int
	drop      bool
}

// scriptedServer is the far end of one conversation socket. Tests push
// frames through send and read what the client wrote from received.
type scriptedServer struct {
	actions  chan serverAction
	received chan string
	closed   chan *websocket.CloseError
}

func newScriptedServer(t *testing.T) (*scriptedServer, *Client) {
	s := &scriptedServer{
		actions:  make(chan serverAction, 16),
		received: make(chan string, 16),
		closed:   make(chan *websocket.CloseError, 1),
	}
	_, client := newWebsocketTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ce, ok := err.(*websocket.CloseError); ok {
						select {
						case s.closed <- ce:
						default:
						}
					}
					return
				}
				s.received <- string(data)
			}
		}()

		for {
			select {
			case a := <-s.actions:
				switch {
				case a.drop:
					_ = conn.UnderlyingConn().Close()
					return
				case a.closeCode != 0:
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(a.closeCode, ""))
					<-readDone
					return
				default:
					_ = conn.WriteMessage(websocket.TextMessage, []byte(a.frame))
				}
			case <-readDone:
				return
			}
		}
	})
	return s, client
}

func (s *scriptedServer) send(frame string) { s.actions <- serverAction{frame: frame} }

func (s *scriptedServer) expectReceived(t *testing.T) string {
	t.Helper()
	select {
	case got := <-s.received:
		return got
	case <-time.After(waitFor):
		t.Fatal("server received nothing")
		return ""
	}
}

type noteCollector struct {
	mu    sync.Mutex
	notes []Notification
}

func collectNotes(conv *Conversation) *noteCollector {
	c := &noteCollector{}
	go func() {
		for n := range conv.Notifications() {
			c.mu.Lock()
			c.notes = append(c.notes, n)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *noteCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

func (c *noteCollector) has(msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.notes {
		if n.Message == msg {
			return true
		}
	}
	return false
}

type countingStream struct {
	mu     sync.Mutex
	closes int
}

func (s *countingStream) Snapshot(dst []byte) (int, error) { return 0, nil }

func (s *countingStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *countingStream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type stubRecognition struct {
	results chan live.RecognitionResult
	stream  *countingStream
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (r *stubRecognition) Results() <-chan live.RecognitionResult { return r.results }
func (r *stubRecognition) Stop()                                  { r.end() }
func (r *stubRecognition) Abort()                                 { r.end() }
func (r *stubRecognition) end()                                   { r.once.Do(func() { close(r.results) }) }

func (r *stubRecognition) Stream() live.AudioStream {
	if r.stream == nil {
		return nil
	}
	return r.stream
}

func (r *stubRecognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// fail ends the recognition with err.
func (r *stubRecognition) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.end()
}

type stubRecognizer struct {
	mu   sync.Mutex
	recs []*stubRecognition
	// withStream attaches a countingStream to every recognition.
	withStream bool
}

func (s *stubRecognizer) Start(ctx context.Context, cfg types.RecognitionConfig) (live.Recognition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &stubRecognition{results: make(chan live.RecognitionResult, 8)}
	if s.withStream {
		r.stream = &countingStream{}
	}
	s.recs = append(s.recs, r)
	return r, nil
}

func (s *stubRecognizer) latest() *stubRecognition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recs) == 0 {
		return nil
	}
	return s.recs[len(s.recs)-1]
}

type stubSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (s *stubSynth) Speak(ctx context.Context, text string, params types.UtteranceParams, cb live.UtteranceCallbacks) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	if cb.OnStart != nil {
		cb.OnStart()
	}
	return nil
}

func (s *stubSynth) CancelAll() {}

func (s *stubSynth) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type harness struct {
	conv   *Conversation
	server *scriptedServer
	notes  *noteCollector
	runErr chan error
}

func startConversation(t *testing.T, devices Devices, opts ...ConversationOption) *harness {
	t.Helper()
	server, client := newScriptedServer(t)
	conv := client.NewConversation("sess-1", "Ava", devices, opts...)
	h := &harness{conv: conv, server: server, notes: collectNotes(conv), runErr: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.runErr <- conv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		conv.End()
	})

	require.Eventually(t, func() bool { return conv.State() == live.ConversationActive }, waitFor, tick)
	return h
}

func turnTexts(turns []types.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Text)
	}
	return out
}

func TestConversation_WelcomeThenReply(t *testing.T) {
	t.Parallel()

	synth := &stubSynth{}
	h := startConversation(t, Devices{Synthesizer: synth})
	require.Eventually(t, func() bool { return h.notes.has("Connected to conversation") }, waitFor, tick)

	h.server.send(`{"type":"connection_info","agent_name":"Ava","agent_purpose":"intake","participant_name":"","conversation_id":"c-9"}`)
	h.server.send(`{"message":"Hello! What is your name?","sender":"agent","type":"welcome"}`)

	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 1 }, waitFor, tick)
	snap := h.conv.Snapshot()
	assert.Equal(t, types.TurnWelcome, snap.Turns[0].Kind)
	assert.Equal(t, types.SpeakerAgent, snap.Turns[0].Speaker)
	assert.Equal(t, "c-9", snap.Session.ConversationID)
	assert.Equal(t, "intake", snap.Session.AgentPurpose)

	require.NoError(t, h.conv.SubmitText("  John "))
	assert.JSONEq(t, `{"message":"John","type":"text"}`, h.server.expectReceived(t))

	snap = h.conv.Snapshot()
	assert.True(t, snap.Busy)
	require.Len(t, snap.Turns, 2)
	assert.Equal(t, "John", snap.Turns[1].Text)
	assert.Equal(t, types.SpeakerParticipant, snap.Turns[1].Speaker)
	assert.Equal(t, types.ModalityText, snap.Turns[1].Modality)

	h.server.send(`{"message":"Nice to meet you, John.","sender":"agent","type":"text","participant_name":"John"}`)
	require.Eventually(t, func() bool { return !h.conv.Snapshot().Busy }, waitFor, tick)

	snap = h.conv.Snapshot()
	assert.Equal(t, []string{"Hello! What is your name?", "John", "Nice to meet you, John."}, turnTexts(snap.Turns))
	assert.Equal(t, "John", snap.Session.ParticipantName)
	require.Eventually(t, func() bool { return len(synth.Spoken()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"Hello! What is your name?", "Nice to meet you, John."}, synth.Spoken())
}

func TestConversation_DuplicateWelcomeDiscarded(t *testing.T) {
	t.Parallel()

	synth := &stubSynth{}
	h := startConversation(t, Devices{Synthesizer: synth})

	h.server.send(`{"message":"Welcome!","type":"welcome"}`)
	h.server.send(`{"message":"Welcome again!","type":"welcome"}`)
	h.server.send(`{"message":"Shall we begin?","type":"text"}`)

	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"Welcome!", "Shall we begin?"}, turnTexts(h.conv.Snapshot().Turns))
	require.Eventually(t, func() bool { return len(synth.Spoken()) == 2 }, waitFor, tick)
	assert.NotContains(t, synth.Spoken(), "Welcome again!")
}

func TestConversation_WelcomeReplacesEarlyAgentLines(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})

	h.server.send(`{"message":"early agent line","type":"text"}`)
	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 1 }, waitFor, tick)

	h.server.send(`{"message":"Hi there","type":"welcome"}`)
	require.Eventually(t, func() bool {
		turns := h.conv.Snapshot().Turns
		return len(turns) == 1 && turns[0].Text == "Hi there"
	}, waitFor, tick)
	assert.Equal(t, []string{"Hi there"}, turnTexts(h.conv.Snapshot().Turns))
	assert.True(t, h.conv.Snapshot().Turns[0].IsWelcome())
}

func TestConversation_LateWelcomeGoesFirst(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})

	require.NoError(t, h.conv.SubmitText("hi"))
	h.server.expectReceived(t)
	h.server.send(`{"message":"Welcome!","type":"welcome"}`)

	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"Welcome!", "hi"}, turnTexts(h.conv.Snapshot().Turns))
}

func TestConversation_SubmitRules(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})

	err := h.conv.SubmitText("   ")
	assert.True(t, core.IsType(err, core.ErrInvalidRequest), "err = %v", err)

	require.NoError(t, h.conv.SubmitText("first"))
	h.server.expectReceived(t)

	err = h.conv.SubmitText("second")
	assert.True(t, core.IsType(err, core.ErrBusy), "err = %v", err)
	assert.Len(t, h.conv.Snapshot().Turns, 1)

	// Any inbound frame clears the wait, even one the client cannot decode.
	h.server.send(`{broken`)
	require.Eventually(t, func() bool { return !h.conv.Snapshot().Busy }, waitFor, tick)
	require.NoError(t, h.conv.SubmitText("second"))
	assert.JSONEq(t, `{"message":"second","type":"text"}`, h.server.expectReceived(t))
}

func TestConversation_ServerErrorFrame(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})
	require.NoError(t, h.conv.SubmitText("hello"))
	h.server.expectReceived(t)

	h.server.send(`{"error":"Agent is unavailable"}`)
	require.Eventually(t, func() bool { return h.notes.has("Agent is unavailable") }, waitFor, tick)
	assert.False(t, h.conv.Snapshot().Busy)
	assert.Len(t, h.conv.Snapshot().Turns, 1)
}

func TestConversation_AbnormalCloseEnds(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})
	require.NoError(t, h.conv.SubmitText("are you there?"))
	h.server.expectReceived(t)

	h.server.actions <- serverAction{drop: true}

	select {
	case <-h.conv.Ended():
	case <-time.After(waitFor):
		t.Fatal("conversation did not end")
	}
	assert.Equal(t, live.ConversationEnded, h.conv.State())
	require.Eventually(t, func() bool { return h.notes.has(core.ConnectionLostMessage) }, waitFor, tick)

	summary, ok := h.conv.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, summary.ParticipantTurns)

	err := h.conv.SubmitText("hello?")
	assert.True(t, core.IsType(err, core.ErrNotConnected), "err = %v", err)

	select {
	case err := <-h.runErr:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
}

func TestConversation_NormalServerCloseKeepsTranscript(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})
	h.server.send(`{"message":"Goodbye.","type":"text"}`)
	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 1 }, waitFor, tick)

	h.server.actions <- serverAction{closeCode: websocket.CloseNormalClosure}

	require.Eventually(t, func() bool {
		return h.conv.Snapshot().Session.Status == types.StatusClosed
	}, waitFor, tick)
	assert.Equal(t, live.ConversationActive, h.conv.State())
	assert.False(t, h.notes.has(core.ConnectionLostMessage))

	err := h.conv.SubmitText("still there?")
	assert.True(t, core.IsType(err, core.ErrNotConnected), "err = %v", err)
}

func TestConversation_EndSendsUserEnded(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{Synthesizer: &stubSynth{}})
	h.server.send(`{"type":"connection_info","agent_name":"Ava","participant_name":"John"}`)
	h.server.send(`{"message":"Tell me about your garden project.","type":"text"}`)
	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 1 }, waitFor, tick)

	require.NoError(t, h.conv.SubmitText("Tomatoes and tomatoes everywhere"))
	h.server.expectReceived(t)

	summary := h.conv.End()
	again := h.conv.End()
	assert.Equal(t, summary.TotalTurns, again.TotalTurns)

	select {
	case ce := <-h.server.closed:
		assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
		assert.Equal(t, UserEndedReason, ce.Text)
	case <-time.After(waitFor):
		t.Fatal("server did not observe close frame")
	}

	assert.Equal(t, "John", summary.ParticipantName)
	assert.Equal(t, "Ava", summary.AgentName)
	assert.Equal(t, 2, summary.TotalTurns)
	assert.Equal(t, 1, summary.ParticipantTurns)
	assert.Equal(t, 1, summary.AgentTurns)
	require.NotEmpty(t, summary.KeyTopics)
	assert.Equal(t, types.TopicCount{Word: "tomatoes", Count: 2}, summary.KeyTopics[0])

	require.Eventually(t, func() bool { return h.notes.has("Conversation ended. Generating summary...") }, waitFor, tick)
	assert.Equal(t, live.PlaybackIdle, h.conv.Snapshot().Playback)

	select {
	case err := <-h.runErr:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
}

func TestConversation_VoiceFinalIsSubmitted(t *testing.T) {
	t.Parallel()

	rec := &stubRecognizer{}
	h := startConversation(t, Devices{Recognizer: rec})

	require.NoError(t, h.conv.StartListening())
	require.Eventually(t, func() bool { return rec.latest() != nil }, waitFor, tick)
	assert.Equal(t, live.CaptureListening, h.conv.Snapshot().Capture)

	rec.latest().results <- live.RecognitionResult{Text: "hello th"}
	require.Eventually(t, func() bool { return h.conv.Snapshot().Interim == "hello th" }, waitFor, tick)

	rec.latest().results <- live.RecognitionResult{Text: "hello there", IsFinal: true}
	assert.JSONEq(t, `{"message":"hello there","type":"voice"}`, h.server.expectReceived(t))

	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 1 }, waitFor, tick)
	snap := h.conv.Snapshot()
	assert.Equal(t, types.ModalityVoice, snap.Turns[0].Modality)
	assert.Equal(t, live.CaptureIdle, snap.Capture)
	assert.Empty(t, snap.Interim)
}

func TestConversation_StartListeningWhileListening(t *testing.T) {
	t.Parallel()

	rec := &stubRecognizer{}
	h := startConversation(t, Devices{Recognizer: rec})

	require.NoError(t, h.conv.StartListening())
	err := h.conv.StartListening()
	assert.True(t, core.IsType(err, core.ErrAlreadyActive), "err = %v", err)

	h.conv.StopListening()
	require.Eventually(t, func() bool { return h.notes.has("Recording stopped") }, waitFor, tick)
	assert.Equal(t, live.CaptureIdle, h.conv.Snapshot().Capture)
}

func TestConversation_EndWhileListeningAndSpeaking(t *testing.T) {
	t.Parallel()

	rec := &stubRecognizer{withStream: true}
	synth := &stubSynth{}
	h := startConversation(t, Devices{Recognizer: rec, Synthesizer: synth})

	h.server.send(`{"message":"Take your time.","type":"text"}`)
	require.Eventually(t, func() bool { return h.conv.Snapshot().Playback == live.PlaybackSpeaking }, waitFor, tick)

	require.NoError(t, h.conv.StartListening())
	require.Eventually(t, func() bool { return rec.latest() != nil }, waitFor, tick)
	assert.Equal(t, live.CaptureListening, h.conv.Snapshot().Capture)

	h.conv.End()
	h.conv.End()

	snap := h.conv.Snapshot()
	assert.Equal(t, live.CaptureIdle, snap.Capture)
	assert.Equal(t, live.PlaybackIdle, snap.Playback)
	require.Eventually(t, func() bool { return rec.latest().stream.Closes() > 0 }, waitFor, tick)
	assert.Never(t, func() bool { return rec.latest().stream.Closes() > 1 }, 100*time.Millisecond, tick)
	assert.Equal(t, 1, rec.latest().stream.Closes())
}

func TestConversation_NoSpeechIsSilent(t *testing.T) {
	t.Parallel()

	rec := &stubRecognizer{}
	h := startConversation(t, Devices{Recognizer: rec})

	require.NoError(t, h.conv.StartListening())
	require.Eventually(t, func() bool { return rec.latest() != nil }, waitFor, tick)
	require.Eventually(t, func() bool { return h.notes.has("Listening...") }, waitFor, tick)
	before := h.notes.count()

	rec.latest().fail(core.NewDeviceError(core.DeviceNoSpeech, nil))

	require.Eventually(t, func() bool { return h.conv.Snapshot().Capture == live.CaptureIdle }, waitFor, tick)
	assert.Never(t, func() bool { return h.notes.count() > before }, 200*time.Millisecond, tick)
	assert.Equal(t, live.CaptureIdle, h.conv.Snapshot().Capture)
}

func TestConversation_StartListeningWithoutRecognizer(t *testing.T) {
	t.Parallel()

	h := startConversation(t, Devices{})
	err := h.conv.StartListening()
	require.Error(t, err)
	assert.Equal(t, core.DeviceAudioCapture, core.AsError(err).Kind())
}

func TestConversation_VoiceDisabled(t *testing.T) {
	t.Parallel()

	synth := &stubSynth{}
	h := startConversation(t, Devices{Synthesizer: synth}, WithVoiceOutput(false))

	h.server.send(`{"message":"Quietly now.","type":"text"}`)
	require.Eventually(t, func() bool { return len(h.conv.Snapshot().Turns) == 1 }, waitFor, tick)
	assert.Empty(t, synth.Spoken())

	h.conv.SetVoiceEnabled(true)
	require.Eventually(t, func() bool { return h.notes.has("Voice enabled") }, waitFor, tick)
	h.server.send(`{"message":"Now out loud.","type":"text"}`)
	require.Eventually(t, func() bool { return len(synth.Spoken()) == 1 }, waitFor, tick)
	assert.Equal(t, "Now out loud.", synth.Spoken()[0])
}

func TestConversation_DialFailureEnds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(WithBaseURL(url), WithDialTimeout(time.Second))
	conv := client.NewConversation("sess-1", "", Devices{})
	notes := collectNotes(conv)

	err := conv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, live.ConversationEnded, conv.State())
	require.Eventually(t, func() bool {
		return notes.has("Failed to connect to conversation") && notes.has(core.ConnectionLostMessage)
	}, waitFor, tick)
}

func TestConversation_CancelEnds(t *testing.T) {
	t.Parallel()

	_, client := newScriptedServer(t)
	conv := client.NewConversation("sess-1", "Ava", Devices{})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- conv.Run(ctx) }()
	require.Eventually(t, func() bool { return conv.State() == live.ConversationActive }, waitFor, tick)

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, live.ConversationEnded, conv.State())
}
