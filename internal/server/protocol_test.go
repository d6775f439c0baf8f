package server

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestAudioFrameRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80}
	frame, err := encodeAudioFrame("mic", pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	tag, gotPCM, err := decodeAudioFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if tag != "mic" {
		t.Fatalf("expected tag mic, got %q", tag)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Fatalf("expected pcm %v, got %v", pcm, gotPCM)
	}
}

func TestDecodeAudioFrameRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":             nil,
		"single byte":       {0x03},
		"zero tag length":   {0x00, 'm', 0x01, 0x00},
		"truncated tag":     {0x05, 'm', 'i'},
		"no pcm after tag":  {0x03, 'm', 'i', 'c'},
		"one pcm byte only": {0x03, 'm', 'i', 'c', 0x01},
	}

	for name, frame := range cases {
		if _, _, err := decodeAudioFrame(frame); !errors.Is(err, ErrBadFrame) {
			t.Errorf("%s: expected ErrBadFrame, got %v", name, err)
		}
	}
}

func TestEncodeAudioFrameRejectsBadTag(t *testing.T) {
	if _, err := encodeAudioFrame("", []byte{0, 0}); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame for empty tag, got %v", err)
	}
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := encodeAudioFrame(string(long), []byte{0, 0}); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame for oversized tag, got %v", err)
	}
}

func TestParseSetup(t *testing.T) {
	raw := []byte(`{
		"type": "setup",
		"sample_rate": 16000,
		"language": "uk-UA",
		"summary_interval_seconds": 15,
		"speakers": {"0": "Host", "1": "Guest", "bad": "Ignored"},
		"sources": {"mic": "Host", "tab": "Shared Tab"},
		"default_speaker": "Someone"
	}`)

	setup, err := parseSetup(raw)
	if err != nil {
		t.Fatalf("parseSetup failed: %v", err)
	}

	cfg := setup.sessionConfig()
	if cfg.SampleRate != 16000 || cfg.Language != "uk-UA" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SummaryInterval != 15*time.Second {
		t.Fatalf("expected 15s summary interval, got %v", cfg.SummaryInterval)
	}
	if len(cfg.Speakers) != 2 || cfg.Speakers[0] != "Host" || cfg.Speakers[1] != "Guest" {
		t.Fatalf("unexpected speakers: %v", cfg.Speakers)
	}
	if !cfg.Diarize {
		t.Fatal("expected diarize implied by speaker labels")
	}
	if cfg.DefaultSpeaker != "Someone" {
		t.Fatalf("unexpected default speaker: %q", cfg.DefaultSpeaker)
	}
}

func TestParseSetupExplicitDiarizeWins(t *testing.T) {
	setup, err := parseSetup([]byte(`{"type":"setup","speakers":{"0":"A"},"diarize":false}`))
	if err != nil {
		t.Fatalf("parseSetup failed: %v", err)
	}
	if setup.sessionConfig().Diarize {
		t.Fatal("explicit diarize=false should override speaker labels")
	}
}

func TestParseSetupRejectsWrongType(t *testing.T) {
	if _, err := parseSetup([]byte(`{"type":"stop"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := parseSetup([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
