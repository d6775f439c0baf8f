package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ConnectedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type TranscriptEvent struct {
	Event
	SessionID    string `json:"session_id"`
	IsFinal      bool   `json:"is_final"`
	Text         string `json:"text"`
	Speaker      string `json:"speaker"`
	SegmentIndex int    `json:"segment_index"`
}

type SummaryEvent struct {
	Event
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	RangeStart int    `json:"range_start"`
	RangeEnd   int    `json:"range_end"`
}

type ErrorEvent struct {
	Event
	SessionID    string `json:"session_id"`
	Kind         string `json:"kind"`
	SessionState string `json:"session_state"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
