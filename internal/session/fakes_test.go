package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/streamnote/streamnote/internal/engine"
	"github.com/streamnote/streamnote/internal/transcript"
)

type fakeStream struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
	termErr error

	results chan transcript.Result
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan transcript.Result, 16)}
}

func (f *fakeStream) Send(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), pcm...))
	return nil
}

func (f *fakeStream) Results() <-chan transcript.Result { return f.results }

func (f *fakeStream) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.results)
	}
	return nil
}

func (f *fakeStream) Err() error { return f.termErr }

func (f *fakeStream) push(res transcript.Result) { f.results <- res }

func (f *fakeStream) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeStream) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// fakeDialer fails the scripted dials, then hands out fake streams.
type fakeDialer struct {
	mu       sync.Mutex
	outcomes []error
	dials    int
	created  []*fakeStream
}

func (d *fakeDialer) Dial(context.Context, engine.StreamConfig) (engine.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	d.dials++
	if i < len(d.outcomes) && d.outcomes[i] != nil {
		return nil, d.outcomes[i]
	}
	st := newFakeStream()
	d.created = append(d.created, st)
	return st, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) waitStream(t *testing.T, index int) *fakeStream {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if index < len(d.created) {
			st := d.created[index]
			d.mu.Unlock()
			return st
		}
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("stream %d was never dialed", index)
	return nil
}

// failingDialer always fails.
type failingDialer struct {
	mu    sync.Mutex
	err   error
	dials int
}

func (d *failingDialer) Dial(context.Context, engine.StreamConfig) (engine.Stream, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	return nil, d.err
}

type errorEvent struct {
	kind  string
	state State
}

type dispatcherMock struct {
	mu          sync.Mutex
	transcripts []transcript.Segment
	summaries   []Summary
	errors      []errorEvent
	closeCalls  int
}

func (d *dispatcherMock) TranscriptUpdate(_ string, seg transcript.Segment) {
	d.mu.Lock()
	d.transcripts = append(d.transcripts, seg)
	d.mu.Unlock()
}

func (d *dispatcherMock) SummaryUpdate(_ string, snap Summary) {
	d.mu.Lock()
	d.summaries = append(d.summaries, snap)
	d.mu.Unlock()
}

func (d *dispatcherMock) SessionError(_, kind string, state State) {
	d.mu.Lock()
	d.errors = append(d.errors, errorEvent{kind: kind, state: state})
	d.mu.Unlock()
}

func (d *dispatcherMock) Close(string) {
	d.mu.Lock()
	d.closeCalls++
	d.mu.Unlock()
}

func (d *dispatcherMock) transcriptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transcripts)
}

func (d *dispatcherMock) lastTranscript() (transcript.Segment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transcripts) == 0 {
		return transcript.Segment{}, false
	}
	return d.transcripts[len(d.transcripts)-1], true
}

func (d *dispatcherMock) errorEvents() []errorEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]errorEvent(nil), d.errors...)
}

func (d *dispatcherMock) closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

type summarizerMock struct {
	mu     sync.Mutex
	calls  []string
	err    error
	result string
}

func (s *summarizerMock) Summarize(_ context.Context, _, delta string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, delta)
	if s.err != nil {
		return "", s.err
	}
	if s.result != "" {
		return s.result, nil
	}
	return "summary of: " + delta, nil
}

func (s *summarizerMock) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *summarizerMock) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testTunables() Tunables {
	return Tunables{
		FrameDuration:     2 * time.Millisecond,
		QueueDuration:     time.Second,
		SilenceTimeout:    time.Second,
		StreamMaxDuration: time.Hour,
		RetryLimit:        2,
		BackoffBase:       time.Millisecond,
		BackoffCap:        2 * time.Millisecond,
		DegradedBuffer:    time.Second,
		DrainTimeout:      100 * time.Millisecond,
		SummaryHistory:    4,
	}
}
