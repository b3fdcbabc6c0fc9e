package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vai-converse/pkg/core"
	"github.com/vango-go/vai-converse/pkg/core/types"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Post(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) Count(typ string) int {
	n := 0
	for _, e := range r.Events() {
		if e.EventType() == typ {
			n++
		}
	}
	return n
}

func (r *recorder) Types() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.EventType())
	}
	return out
}

type fakeStream struct {
	pcm     []byte
	failing bool
	closes  atomic.Int32
}

func (s *fakeStream) Snapshot(dst []byte) (int, error) {
	if s.failing {
		return 0, errors.New("analyser unavailable")
	}
	return copy(dst, s.pcm), nil
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

func fullScalePCM(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(32767)
		if i%2 == 1 {
			v = -32767
		}
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(uint16(v) >> 8)
	}
	return pcm
}

type fakeRecognition struct {
	results chan RecognitionResult
	stream  AudioStream

	mu          sync.Mutex
	err         error
	closed      bool
	finalOnStop string
	holdOnStop  bool

	stops  atomic.Int32
	aborts atomic.Int32
}

func newFakeRecognition(stream AudioStream) *fakeRecognition {
	r := &fakeRecognition{results: make(chan RecognitionResult, 16)}
	if stream != nil {
		r.stream = stream
	}
	return r
}

func (r *fakeRecognition) Results() <-chan RecognitionResult { return r.results }

func (r *fakeRecognition) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *fakeRecognition) Stream() AudioStream { return r.stream }

func (r *fakeRecognition) Stop() {
	r.stops.Add(1)
	r.mu.Lock()
	final, hold := r.finalOnStop, r.holdOnStop
	r.mu.Unlock()
	if final != "" {
		r.emit(RecognitionResult{Text: final, IsFinal: true})
	}
	if !hold {
		r.end(nil)
	}
}

func (r *fakeRecognition) Abort() {
	r.aborts.Add(1)
	r.end(core.NewDeviceError(core.DeviceAborted, nil))
}

func (r *fakeRecognition) emit(res RecognitionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.results <- res
	}
}

func (r *fakeRecognition) end(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.err = err
	close(r.results)
}

type fakeRecognizer struct {
	mu     sync.Mutex
	queue  []*fakeRecognition
	err    error
	starts int
	cfg    types.RecognitionConfig
}

func (f *fakeRecognizer) Start(ctx context.Context, cfg types.RecognitionConfig) (Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) == 0 {
		return nil, core.NewDeviceError(core.DeviceAudioCapture, errors.New("no recognition queued"))
	}
	rec := f.queue[0]
	f.queue = f.queue[1:]
	return rec, nil
}

type fakeUtterance struct {
	ctx    context.Context
	text   string
	params types.UtteranceParams
	cb     UtteranceCallbacks
}

type fakeSynth struct {
	mu         sync.Mutex
	utterances []*fakeUtterance
	cancels    int
	speakErr   error
}

func (s *fakeSynth) Speak(ctx context.Context, text string, params types.UtteranceParams, cb UtteranceCallbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speakErr != nil {
		return s.speakErr
	}
	s.utterances = append(s.utterances, &fakeUtterance{ctx: ctx, text: text, params: params, cb: cb})
	return nil
}

func (s *fakeSynth) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSynth) utterance(i int) *fakeUtterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.utterances[i]
}

func (s *fakeSynth) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.utterances)
}
