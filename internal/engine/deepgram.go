package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/streamnote/streamnote/internal/transcript"
)

// DeepgramDialer opens live websocket streams against Deepgram.
type DeepgramDialer struct {
	apiKey string
	model  string
}

// NewDeepgramDialer creates a dialer. An empty model defaults to nova-2.
func NewDeepgramDialer(apiKey, model string) *DeepgramDialer {
	if strings.TrimSpace(model) == "" {
		model = "nova-2"
	}
	return &DeepgramDialer{apiKey: apiKey, model: model}
}

// Dial opens one live transcription stream with the session's parameters.
func (d *DeepgramDialer) Dial(ctx context.Context, cfg StreamConfig) (Stream, error) {
	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       cfg.Language,
		Diarize:        cfg.Diarize,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		Encoding:       "linear16",
		SampleRate:     cfg.SampleRate,
		Channels:       1,
	}

	adapter := newResultAdapter()
	dgClient, err := client.NewWSUsingCallback(ctx, d.apiKey, cOptions, tOptions, adapter)
	if err != nil {
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dgClient.Connect(); !ok {
		return nil, fmt.Errorf("deepgram connect failed")
	}

	return &deepgramStream{client: dgClient, adapter: adapter}, nil
}

// dgConn is the slice of the Deepgram websocket client we use.
type dgConn interface {
	Connect() bool
	Stop()
	Write(p []byte) (int, error)
}

type deepgramStream struct {
	client  dgConn
	adapter *resultAdapter

	closeOnce sync.Once
}

func (s *deepgramStream) Send(pcm []byte) error {
	if err := s.adapter.Err(); err != nil {
		return err
	}
	if _, err := s.client.Write(pcm); err != nil {
		return fmt.Errorf("deepgram write: %w", err)
	}
	return nil
}

func (s *deepgramStream) Results() <-chan transcript.Result {
	return s.adapter.results
}

func (s *deepgramStream) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		s.client.Stop()
		s.adapter.finish()
	})
	return nil
}

func (s *deepgramStream) Err() error {
	return s.adapter.Err()
}

// resultAdapter receives Deepgram callback events and normalizes them
// onto a result channel. Word-level speaker tags are collapsed to the
// first word's tag; Deepgram does not reliably tag every word under
// live streaming conditions.
type resultAdapter struct {
	results chan transcript.Result

	mu     sync.Mutex
	err    error
	closed bool
}

func newResultAdapter() *resultAdapter {
	return &resultAdapter{results: make(chan transcript.Result, 64)}
}

func (a *resultAdapter) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}

	var res transcript.Result
	if mr.IsFinal {
		tag := transcript.NoSpeakerTag
		words := mr.Channel.Alternatives[0].Words
		if len(words) > 0 && words[0].Speaker != nil {
			tag = *words[0].Speaker
		}
		res = transcript.Final{Text: text, SpeakerTag: tag}
	} else {
		res = transcript.Interim{Text: text}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	select {
	case a.results <- res:
	default:
		// Reconciler fell behind; dropping the oldest normalized result
		// would reorder, so drop the newest and let the next one catch up.
		log.Printf("deepgram: result channel full, dropping result")
	}
	return nil
}

func (a *resultAdapter) Open(*api.OpenResponse) error {
	log.Println("deepgram: connected")
	return nil
}

func (a *resultAdapter) Metadata(*api.MetadataResponse) error { return nil }

func (a *resultAdapter) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (a *resultAdapter) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (a *resultAdapter) Close(*api.CloseResponse) error {
	log.Println("deepgram: disconnected")
	a.finish()
	return nil
}

func (a *resultAdapter) Error(er *api.ErrorResponse) error {
	a.mu.Lock()
	if a.err == nil {
		a.err = fmt.Errorf("deepgram error %s: %s", er.ErrCode, er.Description)
	}
	a.mu.Unlock()
	a.finish()
	return nil
}

func (a *resultAdapter) UnhandledEvent([]byte) error { return nil }

func (a *resultAdapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *resultAdapter) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.results)
	}
}
