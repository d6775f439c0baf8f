package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/streamnote/streamnote/internal/session"
)

var (
	ErrBadFrame      = errors.New("malformed audio frame")
	ErrNotSetup      = errors.New("audio received before setup")
	ErrUnknownType   = errors.New("unknown message type")
	ErrUnknownSource = errors.New("undeclared audio source")
)

// setupMessage is the required first text frame on a session socket.
type setupMessage struct {
	Type                   string            `json:"type"`
	SampleRate             int               `json:"sample_rate"`
	Language               string            `json:"language"`
	SummaryIntervalSeconds int               `json:"summary_interval_seconds"`
	Speakers               map[string]string `json:"speakers"`
	Sources                map[string]string `json:"sources"`
	DefaultSpeaker         string            `json:"default_speaker"`
	Diarize                *bool             `json:"diarize"`
}

type controlMessage struct {
	Type string `json:"type"`
}

func parseControl(data []byte) (controlMessage, error) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return controlMessage{}, fmt.Errorf("parse control message: %w", err)
	}
	return msg, nil
}

func parseSetup(data []byte) (setupMessage, error) {
	var msg setupMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return setupMessage{}, fmt.Errorf("parse setup message: %w", err)
	}
	if msg.Type != "setup" {
		return setupMessage{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}

func (m setupMessage) sessionConfig() session.Config {
	speakers := make(map[int]string, len(m.Speakers))
	for key, label := range m.Speakers {
		tag, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		speakers[tag] = label
	}

	diarize := len(speakers) > 0
	if m.Diarize != nil {
		diarize = *m.Diarize
	}

	return session.Config{
		SampleRate:      m.SampleRate,
		Language:        m.Language,
		SummaryInterval: time.Duration(m.SummaryIntervalSeconds) * time.Second,
		Speakers:        speakers,
		DefaultSpeaker:  m.DefaultSpeaker,
		Diarize:         diarize,
	}
}

// decodeAudioFrame splits a binary frame into its source tag and PCM
// payload. Layout: one byte of tag length, the tag bytes, then s16le
// samples.
func decodeAudioFrame(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(data))
	}

	tagLen := int(data[0])
	if tagLen == 0 || len(data) < 1+tagLen+2 {
		return "", nil, fmt.Errorf("%w: tag length %d in %d bytes", ErrBadFrame, tagLen, len(data))
	}

	tag := string(data[1 : 1+tagLen])
	pcm := data[1+tagLen:]
	return tag, pcm, nil
}

// encodeAudioFrame is the inverse of decodeAudioFrame. The client side
// of the protocol; kept here so tests exercise both directions.
func encodeAudioFrame(tag string, pcm []byte) ([]byte, error) {
	if len(tag) == 0 || len(tag) > 255 {
		return nil, fmt.Errorf("%w: tag %q", ErrBadFrame, tag)
	}
	frame := make([]byte, 0, 1+len(tag)+len(pcm))
	frame = append(frame, byte(len(tag)))
	frame = append(frame, tag...)
	frame = append(frame, pcm...)
	return frame, nil
}
