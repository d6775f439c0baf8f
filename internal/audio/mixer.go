package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

// Frame is one mixed audio frame, the unit forwarded upstream.
type Frame struct {
	Samples   []int16
	Timestamp time.Time
}

// PCM returns the frame as little-endian 16-bit PCM bytes.
func (f Frame) PCM() []byte {
	return EncodePCM(f.Samples)
}

// MixerConfig sizes one session's ingest pipeline.
type MixerConfig struct {
	SampleRate     int
	FrameDuration  time.Duration // engine minimum frame cadence
	QueueDuration  time.Duration // per-source buffering before drop-oldest
	SilenceTimeout time.Duration // source inactivity before exclusion
}

func (c MixerConfig) withDefaults() MixerConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 100 * time.Millisecond
	}
	if c.QueueDuration <= 0 {
		c.QueueDuration = 2 * time.Second
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 3 * time.Second
	}
	return c
}

// frameSamples returns the number of samples per mixed frame.
func (c MixerConfig) frameSamples() int {
	n := int(float64(c.SampleRate) * c.FrameDuration.Seconds())
	if n <= 0 {
		n = 1
	}
	return n
}

// Mixer accepts tagged chunks from a session's sources and produces a
// single ordered mixed frame stream. Chunks from each source keep their
// arrival order; on queue overflow the oldest chunk in that source's
// queue is dropped and the drop callback fires. A source silent longer
// than the silence timeout is excluded from mixing until it resumes.
//
// Ingest may be called from the socket reader goroutine; Run is the
// single producer of the frame channel.
type Mixer struct {
	cfg    MixerConfig
	onDrop func(source string, droppedChunks int)
	now    func() time.Time

	mu      sync.Mutex
	sources map[string]*sourceQueue
	closed  bool

	frames chan Frame
}

// NewMixer creates a mixer. onDrop, if non-nil, is invoked outside the
// mixer lock whenever backpressure drops chunks from a source queue.
func NewMixer(cfg MixerConfig, onDrop func(source string, droppedChunks int)) *Mixer {
	cfg = cfg.withDefaults()
	return &Mixer{
		cfg:     cfg,
		onDrop:  onDrop,
		now:     time.Now,
		sources: make(map[string]*sourceQueue),
		frames:  make(chan Frame, 16),
	}
}

// Frames is the mixed output stream. It is closed when Run returns.
func (m *Mixer) Frames() <-chan Frame {
	return m.frames
}

// Ingest validates and enqueues one chunk of PCM from a source.
func (m *Mixer) Ingest(source string, payload []byte) error {
	samples, err := DecodePCM(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	q, ok := m.sources[source]
	if !ok {
		q = newSourceQueue(source, int(float64(m.cfg.SampleRate)*m.cfg.QueueDuration.Seconds()))
		m.sources[source] = q
	}
	dropped := q.push(samples, m.now())
	m.mu.Unlock()

	if dropped > 0 && m.onDrop != nil {
		m.onDrop(source, dropped)
	}
	return nil
}

// Run drives the mix cadence until ctx is cancelled, then closes the
// frame channel. It is the sole writer of Frames.
func (m *Mixer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.FrameDuration)
	defer ticker.Stop()
	defer m.close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, ok := m.mix(m.now())
			if !ok {
				continue
			}
			select {
			case m.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Mixer) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	close(m.frames)
}

// mix pulls up to one frame's worth of samples from every active source
// and sums them with clipping. A lone contributing source passes through
// unmixed. It returns ok=false when no active source has data.
func (m *Mixer) mix(now time.Time) (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := m.cfg.frameSamples()
	var contributions [][]int16
	for _, q := range m.sources {
		if !q.activeAt(now, m.cfg.SilenceTimeout) {
			continue
		}
		pulled := q.pull(want)
		if len(pulled) > 0 {
			contributions = append(contributions, pulled)
		}
	}

	if len(contributions) == 0 {
		return Frame{}, false
	}
	if len(contributions) == 1 {
		return Frame{Samples: contributions[0], Timestamp: now}, true
	}

	size := 0
	for _, c := range contributions {
		if len(c) > size {
			size = len(c)
		}
	}
	mixed := make([]int16, size)
	for _, c := range contributions {
		for i, s := range c {
			mixed[i] = clipAdd(mixed[i], s)
		}
	}
	return Frame{Samples: mixed, Timestamp: now}, true
}

// clipAdd sums two samples, saturating at the int16 range.
func clipAdd(a, b int16) int16 {
	sum := int32(a) + int32(b)
	if sum > math.MaxInt16 {
		return math.MaxInt16
	}
	if sum < math.MinInt16 {
		return math.MinInt16
	}
	return int16(sum)
}
