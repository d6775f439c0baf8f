package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/streamnote/streamnote/internal/transcript"
)

// scheduler fires at the session's summary interval, summarizing the
// final segments appended since the last successful summary. It runs on
// its own goroutine and never blocks the audio pipeline; a failed
// external call is retried on the next interval with the grown delta.
type scheduler struct {
	sessionID  string
	interval   time.Duration
	tlog       *transcript.Log
	summarizer Summarizer
	dispatch   func(Summary)
	maxHistory int
	now        func() time.Time

	mu        sync.Mutex
	nextIndex int
	history   []Summary
}

func newScheduler(sessionID string, interval time.Duration, tlog *transcript.Log, summarizer Summarizer, dispatch func(Summary), maxHistory int) *scheduler {
	return &scheduler{
		sessionID:  sessionID,
		interval:   interval,
		tlog:       tlog,
		summarizer: summarizer,
		dispatch:   dispatch,
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

// run fires until ctx is cancelled. No summary fires after teardown begins.
func (s *scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire runs one summarization cycle. An empty delta skips the external
// call entirely.
func (s *scheduler) fire(ctx context.Context) {
	s.mu.Lock()
	from := s.nextIndex
	s.mu.Unlock()

	delta := s.tlog.Delta(from)
	if len(delta) == 0 {
		return
	}

	text := formatDelta(delta)
	summaryText, err := s.summarizer.Summarize(ctx, s.sessionID, text)
	if err != nil {
		log.Printf("session %s: summarize failed, retrying next interval: %v", s.sessionID, err)
		return
	}
	if strings.TrimSpace(summaryText) == "" {
		return
	}

	snap := Summary{
		Text:       summaryText,
		Timestamp:  s.now().UTC(),
		RangeStart: delta[0].Index,
		RangeEnd:   delta[len(delta)-1].Index,
	}

	s.mu.Lock()
	s.nextIndex = snap.RangeEnd + 1
	s.history = append(s.history, snap)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.mu.Unlock()

	s.dispatch(snap)
}

// summaries returns a copy of the retained summary history.
func (s *scheduler) summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Summary(nil), s.history...)
}

func formatDelta(segments []transcript.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", seg.Speaker, seg.Text)
	}
	return b.String()
}
