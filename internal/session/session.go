package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamnote/streamnote/internal/audio"
	"github.com/streamnote/streamnote/internal/engine"
	"github.com/streamnote/streamnote/internal/transcript"
)

// Session is one end-to-end live transcription interaction. Its pipeline
// stages (mixer, connector, reconciler, scheduler) run as independent
// goroutines joined by ordered channels; the only cross-stage shared
// state is the transcript log, which supports concurrent snapshots.
type Session struct {
	ID        string
	cfg       Config
	tun       Tunables
	startedAt time.Time

	tlog       *transcript.Log
	mixer      *audio.Mixer
	conn       *connector
	sched      *scheduler
	dispatcher Dispatcher
	onClosed   func(*Session)

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State

	stopOnce      sync.Once
	droppedChunks atomic.Uint64
}

func newSession(id string, cfg Config, tun Tunables, dialer engine.Dialer, summarizer Summarizer, dispatcher Dispatcher, onClosed func(*Session)) *Session {
	cfg = cfg.withDefaults()
	tun = tun.withDefaults()

	s := &Session{
		ID:         id,
		cfg:        cfg,
		tun:        tun,
		startedAt:  time.Now().UTC(),
		tlog:       transcript.NewLog(transcript.NewSpeakerMap(cfg.Speakers, cfg.DefaultSpeaker)),
		dispatcher: dispatcher,
		onClosed:   onClosed,
		done:       make(chan struct{}),
		state:      StateInit,
	}

	s.mixer = audio.NewMixer(audio.MixerConfig{
		SampleRate:     cfg.SampleRate,
		FrameDuration:  tun.FrameDuration,
		QueueDuration:  tun.QueueDuration,
		SilenceTimeout: tun.SilenceTimeout,
	}, s.onBackpressure)

	s.conn = &connector{
		sessionID: id,
		dialer:    dialer,
		streamCfg: engine.StreamConfig{
			SampleRate: cfg.SampleRate,
			Language:   cfg.Language,
			Diarize:    cfg.Diarize,
		},
		tun:         tun,
		frames:      s.mixer.Frames(),
		ops:         make(chan reconcileOp, 64),
		onConnected: s.onConnected,
		onDegraded:  s.onDegraded,
		onFatal:     s.onFatal,
	}

	if summarizer != nil {
		s.sched = newScheduler(id, cfg.SummaryInterval, s.tlog, summarizer, s.dispatchSummary, tun.SummaryHistory)
	}

	return s
}

// start launches the session pipeline. Called once by the registry.
func (s *Session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.mixer.Run(ctx) }()
	go func() { defer wg.Done(); s.conn.run(ctx) }()
	go func() { defer wg.Done(); s.reconcile() }()
	if s.sched != nil {
		wg.Add(1)
		go func() { defer wg.Done(); s.sched.run(ctx) }()
	}

	go func() {
		wg.Wait()
		close(s.done)
	}()
}

// Ingest feeds one tagged audio chunk into the session's mixer.
func (s *Session) Ingest(source string, payload []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	return s.mixer.Ingest(source, payload)
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns the session's creation time.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Transcript returns a consistent snapshot of the transcript log.
func (s *Session) Transcript() []transcript.Segment {
	return s.tlog.Snapshot()
}

// Summaries returns the retained summary history.
func (s *Session) Summaries() []Summary {
	if s.sched == nil {
		return nil
	}
	return s.sched.summaries()
}

// DroppedChunks reports chunks dropped under backpressure so far.
func (s *Session) DroppedChunks() uint64 {
	return s.droppedChunks.Load()
}

// Stop tears the session down gracefully: no new audio, upstream closed
// within the drain timeout, timer cancelled, outbound channel closed.
// Idempotent; resources are released exactly once.
func (s *Session) Stop() {
	s.close(ErrorKindStopped)
}

func (s *Session) close(kind string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		s.dispatcher.SessionError(s.ID, kind, StateClosed)
		s.cancel()

		select {
		case <-s.done:
		case <-time.After(2 * s.tun.DrainTimeout):
			log.Printf("session %s: pipeline shutdown timed out", s.ID)
		}

		s.dispatcher.Close(s.ID)
		if s.onClosed != nil {
			s.onClosed(s)
		}
	})
}

// reconcile is the single consumer of the connector's ordered op stream.
func (s *Session) reconcile() {
	for op := range s.conn.ops {
		var seg transcript.Segment
		var ok bool
		if op.promote {
			seg, ok = s.tlog.PromoteInterim()
		} else {
			seg, ok = s.tlog.Apply(op.res)
		}
		if !ok || s.State() == StateClosed {
			continue
		}
		s.dispatcher.TranscriptUpdate(s.ID, seg)
	}
}

func (s *Session) dispatchSummary(snap Summary) {
	if s.State() == StateClosed {
		return
	}
	s.dispatcher.SummaryUpdate(s.ID, snap)
}

func (s *Session) onBackpressure(source string, droppedChunks int) {
	s.droppedChunks.Add(uint64(droppedChunks))
	log.Printf("session %s: backpressure on source %q, dropped %d chunk(s)", s.ID, source, droppedChunks)
}

func (s *Session) onConnected() {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateStreaming
	}
	s.mu.Unlock()
}

func (s *Session) onDegraded() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDegraded
	s.mu.Unlock()

	s.dispatcher.SessionError(s.ID, ErrorKindDegraded, StateDegraded)
}

func (s *Session) onFatal(err error) {
	log.Printf("session %s: upstream fatal: %v", s.ID, err)
	// close waits for the connector goroutine, which is the caller here.
	go s.close(ErrorKindFatal)
}
