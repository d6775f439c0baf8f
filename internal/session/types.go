package session

import (
	"context"
	"time"

	"github.com/streamnote/streamnote/internal/transcript"
)

// State is a session's lifecycle state.
type State int

const (
	StateInit State = iota
	StateStreaming
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Error kinds surfaced to the client on DEGRADED/CLOSED entry.
const (
	ErrorKindDegraded = "upstream_degraded"
	ErrorKindFatal    = "upstream_fatal"
	ErrorKindStopped  = "session_stopped"
)

// Summary is one generated summary snapshot. RangeStart and RangeEnd are
// the inclusive final-segment index range it covers. Immutable.
type Summary struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	RangeStart int       `json:"range_start"`
	RangeEnd   int       `json:"range_end"`
}

// Config is one session's negotiated configuration, from the setup message.
type Config struct {
	SampleRate      int
	Language        string
	SummaryInterval time.Duration
	Speakers        map[int]string
	DefaultSpeaker  string
	Diarize         bool
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = 30 * time.Second
	}
	if c.DefaultSpeaker == "" {
		c.DefaultSpeaker = "Speaker"
	}
	return c
}

// Tunables are process-wide pipeline settings shared by all sessions.
type Tunables struct {
	FrameDuration     time.Duration
	QueueDuration     time.Duration
	SilenceTimeout    time.Duration
	StreamMaxDuration time.Duration // rotate the upstream stream before this
	RetryLimit        int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	DegradedBuffer    time.Duration // buffered audio bound while degraded
	DrainTimeout      time.Duration
	SummaryHistory    int
}

// DefaultTunables mirror the provider's practical limits: Deepgram keeps
// a live stream open well past ten minutes, rotating at five keeps a
// safety margin.
func DefaultTunables() Tunables {
	return Tunables{
		FrameDuration:     100 * time.Millisecond,
		QueueDuration:     2 * time.Second,
		SilenceTimeout:    3 * time.Second,
		StreamMaxDuration: 5 * time.Minute,
		RetryLimit:        5,
		BackoffBase:       250 * time.Millisecond,
		BackoffCap:        8 * time.Second,
		DegradedBuffer:    30 * time.Second,
		DrainTimeout:      5 * time.Second,
		SummaryHistory:    8,
	}
}

func (t Tunables) withDefaults() Tunables {
	d := DefaultTunables()
	if t.FrameDuration <= 0 {
		t.FrameDuration = d.FrameDuration
	}
	if t.QueueDuration <= 0 {
		t.QueueDuration = d.QueueDuration
	}
	if t.SilenceTimeout <= 0 {
		t.SilenceTimeout = d.SilenceTimeout
	}
	if t.StreamMaxDuration <= 0 {
		t.StreamMaxDuration = d.StreamMaxDuration
	}
	if t.RetryLimit <= 0 {
		t.RetryLimit = d.RetryLimit
	}
	if t.BackoffBase <= 0 {
		t.BackoffBase = d.BackoffBase
	}
	if t.BackoffCap <= 0 {
		t.BackoffCap = d.BackoffCap
	}
	if t.DegradedBuffer <= 0 {
		t.DegradedBuffer = d.DegradedBuffer
	}
	if t.DrainTimeout <= 0 {
		t.DrainTimeout = d.DrainTimeout
	}
	if t.SummaryHistory <= 0 {
		t.SummaryHistory = d.SummaryHistory
	}
	return t
}

// Dispatcher delivers session events to the client, in publish order.
// Implementations must not block the caller indefinitely.
type Dispatcher interface {
	TranscriptUpdate(sessionID string, seg transcript.Segment)
	SummaryUpdate(sessionID string, snap Summary)
	SessionError(sessionID, kind string, state State)
	Close(sessionID string)
}

// Summarizer produces a summary of newly finalized transcript text.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID, delta string) (string, error)
}

// Archiver persists an ended session. Optional; sessions are ephemeral
// without one.
type Archiver interface {
	ArchiveSession(id string, startedAt, endedAt time.Time, segments []transcript.Segment, summaries []Summary) error
}
