package server

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/streamnote/streamnote/internal/metrics"
	"github.com/streamnote/streamnote/internal/session"
	"github.com/streamnote/streamnote/internal/transcript"
)

const outboundQueueSize = 256

// Dispatcher fans session events out to per-session client channels.
// Each session has one bounded queue drained by a single writer
// goroutine, so clients observe events in publish order. A full queue
// drops the event rather than block the pipeline.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]chan []byte
	metrics  *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{channels: make(map[string]chan []byte), metrics: m}
}

// Attach creates the outbound queue for a session. The returned channel
// is closed by Close; the caller's writer loop should drain it until
// then. Attach never replaces a live session's queue: a second attach
// for the same id reports false and leaves the existing queue intact.
func (d *Dispatcher) Attach(sessionID string) (chan []byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.channels[sessionID]; exists {
		return nil, false
	}
	ch := make(chan []byte, outboundQueueSize)
	d.channels[sessionID] = ch
	return ch, true
}

// Detach removes the session's queue without closing it. Used when
// session creation fails after Attach; normal teardown goes through
// Close.
func (d *Dispatcher) Detach(sessionID string) {
	d.mu.Lock()
	delete(d.channels, sessionID)
	d.mu.Unlock()
}

func (d *Dispatcher) TranscriptUpdate(sessionID string, seg transcript.Segment) {
	if d.metrics != nil {
		d.metrics.TranscriptEvents.WithLabelValues(strconv.FormatBool(seg.Final)).Inc()
	}
	d.publish(sessionID, TranscriptEvent{
		Event:        newEvent("transcript", seg.Timestamp),
		SessionID:    sessionID,
		IsFinal:      seg.Final,
		Text:         seg.Text,
		Speaker:      seg.Speaker,
		SegmentIndex: seg.Index,
	})
}

func (d *Dispatcher) SummaryUpdate(sessionID string, snap session.Summary) {
	if d.metrics != nil {
		d.metrics.SummaryEvents.Inc()
	}
	d.publish(sessionID, SummaryEvent{
		Event:      newEvent("summary", snap.Timestamp),
		SessionID:  sessionID,
		Text:       snap.Text,
		RangeStart: snap.RangeStart,
		RangeEnd:   snap.RangeEnd,
	})
}

func (d *Dispatcher) SessionError(sessionID, kind string, state session.State) {
	if d.metrics != nil {
		d.metrics.ErrorEvents.WithLabelValues(kind).Inc()
	}
	d.publish(sessionID, ErrorEvent{
		Event:        newEvent("error", time.Now().UTC()),
		SessionID:    sessionID,
		Kind:         kind,
		SessionState: state.String(),
	})
}

// Close ends the session's event stream. The queue is closed exactly
// once; already-published events remain for the writer to drain.
func (d *Dispatcher) Close(sessionID string) {
	d.mu.Lock()
	ch, ok := d.channels[sessionID]
	if ok {
		delete(d.channels, sessionID)
	}
	d.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (d *Dispatcher) publish(sessionID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error for session %s: %v", sessionID, err)
		return
	}

	d.mu.RLock()
	ch, ok := d.channels[sessionID]
	d.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case ch <- payload:
		if d.metrics != nil {
			d.metrics.OutboundEventsSent.Inc()
		}
	default:
		log.Printf("outbound queue full for session %s, dropping event", sessionID)
		if d.metrics != nil {
			d.metrics.OutboundEventsDropped.Inc()
		}
	}
}
