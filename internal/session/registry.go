package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/streamnote/streamnote/internal/engine"
)

// Registry owns every active session. It is the only state shared across
// sessions; each session's internals are touched only by its own pipeline.
type Registry struct {
	dialer      engine.Dialer
	summarizer  Summarizer
	archiver    Archiver
	tun         Tunables
	maxSessions int
	baseCtx     context.Context

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry bounding concurrent sessions at max.
// summarizer and archiver may be nil to disable those capabilities.
func NewRegistry(ctx context.Context, dialer engine.Dialer, summarizer Summarizer, archiver Archiver, tun Tunables, max int) *Registry {
	if max <= 0 {
		max = 16
	}
	return &Registry{
		dialer:      dialer,
		summarizer:  summarizer,
		archiver:    archiver,
		tun:         tun,
		maxSessions: max,
		baseCtx:     ctx,
		sessions:    make(map[string]*Session),
	}
}

// Create registers and starts a new session.
func (r *Registry) Create(id string, cfg Config, dispatcher Dispatcher) (*Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	if len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, ErrCapacityExceeded
	}

	s := newSession(id, cfg, r.tun, r.dialer, r.summarizer, dispatcher, r.sessionClosed)
	r.sessions[id] = s
	r.mu.Unlock()

	s.start(r.baseCtx)
	log.Printf("session %s: created", id)
	return s, nil
}

// Get looks up an active session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Ingest routes one audio chunk to its session.
func (r *Registry) Ingest(sessionID, source string, payload []byte) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	return s.Ingest(source, payload)
}

// Destroy tears down a session and removes it. Idempotent.
func (r *Registry) Destroy(id string) {
	s, ok := r.Get(id)
	if !ok {
		return
	}
	s.Stop()
}

// DestroyAll stops every active session, bounded by ctx.
func (r *Registry) DestroyAll(ctx context.Context) {
	r.mu.Lock()
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range active {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("registry: shutdown interrupted with sessions still draining")
	}
}

// List snapshots the active sessions in no particular order.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sessionClosed runs once per session at the end of teardown: removes the
// entry and archives the transcript if an archiver is configured.
func (r *Registry) sessionClosed(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()
	log.Printf("session %s: closed", s.ID)

	if r.archiver == nil {
		return
	}
	segments := s.Transcript()
	finals := segments[:0:0]
	for _, seg := range segments {
		if seg.Final {
			finals = append(finals, seg)
		}
	}
	if err := r.archiver.ArchiveSession(s.ID, s.StartedAt(), time.Now().UTC(), finals, s.Summaries()); err != nil {
		log.Printf("session %s: archive failed: %v", s.ID, err)
	}
}
