// Package engine defines the boundary to the external streaming
// recognition service. The rest of the system sees only normalized
// transcript results; provider response shapes stay behind this package.
package engine

import (
	"context"

	"github.com/streamnote/streamnote/internal/transcript"
)

// StreamConfig carries the session-negotiated recognition parameters.
type StreamConfig struct {
	SampleRate int
	Language   string
	Diarize    bool
}

// Stream is one live recognition stream. Send forwards PCM frames in
// order; Results delivers normalized interim/final results until the
// stream ends, after which the channel is closed and Err reports the
// terminal error, if any. Close requests a graceful shutdown.
type Stream interface {
	Send(pcm []byte) error
	Results() <-chan transcript.Result
	Close(ctx context.Context) error
	Err() error
}

// Dialer opens recognition streams. The production implementation talks
// to Deepgram; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, cfg StreamConfig) (Stream, error)
}
