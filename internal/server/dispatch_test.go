package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/streamnote/streamnote/internal/session"
	"github.com/streamnote/streamnote/internal/transcript"
)

func TestDispatcherPreservesPublishOrder(t *testing.T) {
	d := NewDispatcher(nil)
	ch, _ := d.Attach("s1")
	defer d.Close("s1")

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	d.TranscriptUpdate("s1", transcript.Segment{Index: 0, Text: "first", Speaker: "Host", Timestamp: now})
	d.TranscriptUpdate("s1", transcript.Segment{Index: 0, Text: "first draft", Speaker: "Host", Timestamp: now})
	d.SummaryUpdate("s1", session.Summary{Text: "so far", Timestamp: now, RangeStart: 0, RangeEnd: 0})

	wantTypes := []string{"transcript", "transcript", "summary"}
	for i, want := range wantTypes {
		select {
		case msg := <-ch:
			var payload map[string]any
			if err := json.Unmarshal(msg, &payload); err != nil {
				t.Fatalf("unmarshal event %d failed: %v", i, err)
			}
			if payload["type"] != want {
				t.Fatalf("event %d: expected type %q, got %#v", i, want, payload["type"])
			}
			if payload["version"] == nil || payload["timestamp"] == nil {
				t.Fatalf("event %d missing envelope fields: %s", i, string(msg))
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestDispatcherTranscriptEventShape(t *testing.T) {
	d := NewDispatcher(nil)
	ch, _ := d.Attach("s1")
	defer d.Close("s1")

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	d.TranscriptUpdate("s1", transcript.Segment{Index: 3, Text: "done", Speaker: "Guest", Final: true, Timestamp: now})

	msg := <-ch
	var event TranscriptEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !event.IsFinal || event.Text != "done" || event.Speaker != "Guest" || event.SegmentIndex != 3 {
		t.Fatalf("unexpected transcript event: %+v", event)
	}
	if event.SessionID != "s1" {
		t.Fatalf("expected session id s1, got %q", event.SessionID)
	}
}

func TestDispatcherCloseEndsStream(t *testing.T) {
	d := NewDispatcher(nil)
	ch, _ := d.Attach("s1")

	d.Close("s1")
	if _, open := <-ch; open {
		t.Fatal("expected channel closed after Close")
	}

	// Publishing after close must not panic or block.
	d.SessionError("s1", session.ErrorKindStopped, session.StateClosed)
	d.Close("s1")
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(nil)
	ch, _ := d.Attach("s1")
	defer d.Close("s1")

	now := time.Now().UTC()
	for i := 0; i < outboundQueueSize+10; i++ {
		d.TranscriptUpdate("s1", transcript.Segment{Index: i, Text: "x", Speaker: "Host", Timestamp: now})
	}

	if len(ch) != outboundQueueSize {
		t.Fatalf("expected queue capped at %d, got %d", outboundQueueSize, len(ch))
	}
}

func TestDispatcherAttachRefusesLiveSession(t *testing.T) {
	d := NewDispatcher(nil)
	ch, ok := d.Attach("s1")
	if !ok {
		t.Fatal("first attach rejected")
	}
	defer d.Close("s1")

	if second, ok := d.Attach("s1"); ok || second != nil {
		t.Fatal("second attach for a live session must be refused")
	}

	// The first queue is untouched and still receives events.
	now := time.Now().UTC()
	d.TranscriptUpdate("s1", transcript.Segment{Index: 0, Text: "x", Speaker: "Host", Timestamp: now})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("live queue lost after refused attach")
	}
}

func TestDispatcherUnknownSessionIsNoop(t *testing.T) {
	d := NewDispatcher(nil)
	d.TranscriptUpdate("missing", transcript.Segment{Text: "x", Timestamp: time.Now()})
	d.SessionError("missing", session.ErrorKindFatal, session.StateClosed)
	d.Close("missing")
}
