package transcript

import (
	"strings"
	"sync"
	"time"
)

// Segment is one entry in a session's transcript log.
type Segment struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is the ordered transcript for one session. Final segments are
// immutable once appended. At most one interim segment is open at a time;
// each interim result rewrites its content in place, and the matching
// final result closes it and commits the next final segment.
//
// Apply is called only by the session's reconciler goroutine. Snapshot
// and Delta may be called concurrently from the scheduler and API.
type Log struct {
	speakers SpeakerMap
	now      func() time.Time

	mu       sync.RWMutex
	finals   []Segment
	interim  *Segment
}

// NewLog creates an empty transcript log using speakers for label resolution.
func NewLog(speakers SpeakerMap) *Log {
	return &Log{speakers: speakers, now: time.Now}
}

// Apply folds one recognition result into the log and returns the segment
// to dispatch. An Interim rewrites the open interim slot; a Final closes
// the slot and appends an immutable segment. Empty final text still closes
// the open interim but commits nothing, returning ok=false.
func (l *Log) Apply(res Result) (Segment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch r := res.(type) {
	case Interim:
		seg := Segment{
			Index:     len(l.finals),
			Text:      r.Text,
			Speaker:   l.speakers.Resolve(NoSpeakerTag),
			Final:     false,
			Timestamp: l.now().UTC(),
		}
		l.interim = &seg
		return seg, true

	case Final:
		l.interim = nil
		if strings.TrimSpace(r.Text) == "" {
			return Segment{}, false
		}
		seg := Segment{
			Index:     len(l.finals),
			Text:      r.Text,
			Speaker:   l.speakers.Resolve(r.SpeakerTag),
			Final:     true,
			Timestamp: l.now().UTC(),
		}
		l.finals = append(l.finals, seg)
		return seg, true
	}

	return Segment{}, false
}

// PromoteInterim finalizes the open interim segment, if any. Used at a
// stream rotation boundary so in-flight text from the closing stream is
// committed rather than discarded.
func (l *Log) PromoteInterim() (Segment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.interim == nil {
		return Segment{}, false
	}
	open := *l.interim
	l.interim = nil
	if strings.TrimSpace(open.Text) == "" {
		return Segment{}, false
	}

	seg := Segment{
		Index:     len(l.finals),
		Text:      open.Text,
		Speaker:   open.Speaker,
		Final:     true,
		Timestamp: l.now().UTC(),
	}
	l.finals = append(l.finals, seg)
	return seg, true
}

// Snapshot returns the committed segments followed by the open interim
// segment, if one exists. The returned slice is a copy.
func (l *Log) Snapshot() []Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Segment, 0, len(l.finals)+1)
	out = append(out, l.finals...)
	if l.interim != nil {
		out = append(out, *l.interim)
	}
	return out
}

// Delta returns a copy of the final segments with Index >= from.
func (l *Log) Delta(from int) []Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from >= len(l.finals) {
		return nil
	}
	return append([]Segment(nil), l.finals[from:]...)
}

// FinalCount returns the number of committed final segments.
func (l *Log) FinalCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.finals)
}

// HasOpenInterim reports whether an interim segment is currently open.
func (l *Log) HasOpenInterim() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.interim != nil
}
