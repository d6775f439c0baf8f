package engine

import (
	"encoding/json"
	"testing"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/streamnote/streamnote/internal/transcript"
)

func decodeMessage(t *testing.T, raw string) *api.MessageResponse {
	t.Helper()
	var msg api.MessageResponse
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal deepgram message failed: %v", err)
	}
	return &msg
}

func TestResultAdapter_InterimMessage(t *testing.T) {
	a := newResultAdapter()

	msg := decodeMessage(t, `{
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "hello th"}]}
	}`)
	if err := a.Message(msg); err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	res := <-a.results
	interim, ok := res.(transcript.Interim)
	if !ok {
		t.Fatalf("expected Interim, got %T", res)
	}
	if interim.Text != "hello th" {
		t.Errorf("expected 'hello th', got %q", interim.Text)
	}
}

func TestResultAdapter_FinalMessageCarriesSpeakerTag(t *testing.T) {
	a := newResultAdapter()

	msg := decodeMessage(t, `{
		"is_final": true,
		"channel": {
			"alternatives": [
				{
					"transcript": "hello there",
					"words": [
						{"speaker": 1, "punctuated_word": "hello", "start": 0, "end": 0.5},
						{"speaker": 1, "punctuated_word": "there", "start": 0.5, "end": 1.0}
					]
				}
			]
		}
	}`)
	if err := a.Message(msg); err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	res := <-a.results
	final, ok := res.(transcript.Final)
	if !ok {
		t.Fatalf("expected Final, got %T", res)
	}
	if final.Text != "hello there" {
		t.Errorf("expected 'hello there', got %q", final.Text)
	}
	if final.SpeakerTag != 1 {
		t.Errorf("expected speaker tag 1, got %d", final.SpeakerTag)
	}
}

func TestResultAdapter_FinalWithoutWordsHasNoTag(t *testing.T) {
	a := newResultAdapter()

	msg := decodeMessage(t, `{
		"is_final": true,
		"channel": {"alternatives": [{"transcript": "no words here"}]}
	}`)
	if err := a.Message(msg); err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	final := (<-a.results).(transcript.Final)
	if final.SpeakerTag != transcript.NoSpeakerTag {
		t.Errorf("expected NoSpeakerTag, got %d", final.SpeakerTag)
	}
}

func TestResultAdapter_EmptyTranscriptIgnored(t *testing.T) {
	a := newResultAdapter()

	msg := decodeMessage(t, `{
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "   "}]}
	}`)
	if err := a.Message(msg); err != nil {
		t.Fatalf("Message failed: %v", err)
	}

	select {
	case res := <-a.results:
		t.Fatalf("expected no result for blank transcript, got %v", res)
	default:
	}
}

func TestResultAdapter_ErrorRecordedAndChannelClosed(t *testing.T) {
	a := newResultAdapter()

	if err := a.Error(&api.ErrorResponse{ErrCode: "1011", Description: "timeout"}); err != nil {
		t.Fatalf("Error callback failed: %v", err)
	}

	if a.Err() == nil {
		t.Error("expected terminal error recorded")
	}
	if _, open := <-a.results; open {
		t.Error("expected results channel closed after error")
	}

	// A late message after close must not panic or deliver.
	msg := decodeMessage(t, `{
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "late"}]}
	}`)
	if err := a.Message(msg); err != nil {
		t.Fatalf("late Message failed: %v", err)
	}
}

func TestResultAdapter_CloseIdempotent(t *testing.T) {
	a := newResultAdapter()
	if err := a.Close(&api.CloseResponse{}); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Close(&api.CloseResponse{}); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if a.Err() != nil {
		t.Errorf("expected no error from clean close, got %v", a.Err())
	}
}
