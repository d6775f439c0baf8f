package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/streamnote/streamnote/internal/audio"
	"github.com/streamnote/streamnote/internal/engine"
	"github.com/streamnote/streamnote/internal/transcript"
)

// reconcileOp is one unit of work for the reconciler: a normalized result,
// or a promotion of the open interim segment at a stream boundary.
type reconcileOp struct {
	res     transcript.Result
	promote bool
}

// connector owns the session's upstream recognition stream. It forwards
// mixed frames in order, rotates the stream before the provider's
// duration limit, retries transient failures with capped exponential
// backoff, and buffers audio while the upstream is down. It is the sole
// producer of the ops channel, preserving result order for the reconciler.
type connector struct {
	sessionID string
	dialer    engine.Dialer
	streamCfg engine.StreamConfig
	tun       Tunables

	frames <-chan audio.Frame
	ops    chan reconcileOp

	onConnected func()          // entering STREAMING, first connect or recovery
	onDegraded  func()          // retry budget exhausted
	onFatal     func(err error) // degraded buffer bound exceeded

	pending        []audio.Frame
	pendingSamples int
	attempts       int
	degraded       bool
}

type streamEnd int

const (
	streamDone streamEnd = iota
	streamRotate
	streamFailed
)

type waitResult int

const (
	waitOK waitResult = iota
	waitCancelled
	waitOverflow
)

// run drives the connector until ctx is cancelled or the session is
// fatally degraded. It closes the ops channel on return.
func (c *connector) run(ctx context.Context) {
	defer close(c.ops)

	for {
		st := c.connect(ctx)
		if st == nil {
			return
		}
		c.attempts = 0
		c.degraded = false
		c.onConnected()

		switch c.stream(ctx, st) {
		case streamDone:
			return
		case streamRotate, streamFailed:
			// dial a replacement immediately
		}
	}
}

// connect dials until a stream is open, counting attempts against the
// retry budget and buffering inbound frames during backoff waits.
func (c *connector) connect(ctx context.Context) engine.Stream {
	for {
		if ctx.Err() != nil {
			return nil
		}

		st, err := c.dialer.Dial(ctx, c.streamCfg)
		if err == nil {
			return st
		}

		c.attempts++
		log.Printf("session %s: upstream dial failed (attempt %d): %v", c.sessionID, c.attempts, err)
		if c.attempts > c.tun.RetryLimit && !c.degraded {
			c.degraded = true
			c.onDegraded()
		}

		switch c.waitBuffering(ctx, c.backoff()) {
		case waitCancelled:
			return nil
		case waitOverflow:
			c.onFatal(fmt.Errorf("degraded audio buffer exceeded %s: %w", c.tun.DegradedBuffer, err))
			return nil
		}
	}
}

// stream forwards frames to one open stream and pumps its results until
// it ends. Any buffered frames are flushed first, in arrival order.
func (c *connector) stream(ctx context.Context, st engine.Stream) streamEnd {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for res := range st.Results() {
			select {
			case c.ops <- reconcileOp{res: res}:
			case <-ctx.Done():
				return
			}
		}
	}()

	rotate := time.NewTimer(c.tun.StreamMaxDuration)
	defer rotate.Stop()

	if !c.flushPending(st) {
		c.attempts++
		c.closeStream(st, pumpDone)
		c.ops <- reconcileOp{promote: true}
		return streamFailed
	}

	for {
		select {
		case <-ctx.Done():
			c.closeStream(st, pumpDone)
			return streamDone

		case <-rotate.C:
			// Rotation boundary: drain the old stream's results, then
			// finalize any open interim before the replacement produces.
			c.closeStream(st, pumpDone)
			c.ops <- reconcileOp{promote: true}
			log.Printf("session %s: rotated upstream stream", c.sessionID)
			return streamRotate

		case frame, ok := <-c.frames:
			if !ok {
				c.closeStream(st, pumpDone)
				return streamDone
			}
			if err := st.Send(frame.PCM()); err != nil {
				log.Printf("session %s: upstream send failed: %v", c.sessionID, err)
				c.buffer(frame)
				c.attempts++
				c.closeStream(st, pumpDone)
				c.ops <- reconcileOp{promote: true}
				return streamFailed
			}
		}
	}
}

// flushPending replays frames buffered while the upstream was down.
// Undelivered frames stay buffered on failure; nothing is sent twice.
func (c *connector) flushPending(st engine.Stream) bool {
	for len(c.pending) > 0 {
		frame := c.pending[0]
		if err := st.Send(frame.PCM()); err != nil {
			log.Printf("session %s: flush of buffered audio failed: %v", c.sessionID, err)
			return false
		}
		c.pendingSamples -= len(frame.Samples)
		c.pending = c.pending[1:]
	}
	return true
}

// waitBuffering sleeps for the backoff interval while continuing to
// accept mixed frames into the bounded pending buffer.
func (c *connector) waitBuffering(ctx context.Context, d time.Duration) waitResult {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return waitCancelled
		case <-timer.C:
			return waitOK
		case frame, ok := <-c.frames:
			if !ok {
				return waitCancelled
			}
			c.buffer(frame)
			if c.degraded && c.pendingSamples > c.maxPendingSamples() {
				return waitOverflow
			}
		}
	}
}

// buffer holds a frame for replay on the next stream. The buffer is
// bounded at all times: before the degraded transition overflow sheds
// the oldest frames like any other backpressure; while degraded the
// overflow check in waitBuffering is fatal instead.
func (c *connector) buffer(frame audio.Frame) {
	c.pending = append(c.pending, frame)
	c.pendingSamples += len(frame.Samples)
	if c.degraded {
		return
	}

	max := c.maxPendingSamples()
	dropped := 0
	for c.pendingSamples > max && len(c.pending) > 1 {
		c.pendingSamples -= len(c.pending[0].Samples)
		c.pending = c.pending[1:]
		dropped++
	}
	if dropped > 0 {
		log.Printf("session %s: pending audio over bound, dropped %d buffered frame(s)", c.sessionID, dropped)
	}
}

func (c *connector) maxPendingSamples() int {
	return int(float64(c.streamCfg.SampleRate) * c.tun.DegradedBuffer.Seconds())
}

// closeStream closes st gracefully, bounded by the drain timeout, and
// waits for its result pump so no result can trail the close.
func (c *connector) closeStream(st engine.Stream, pumpDone <-chan struct{}) {
	drainCtx, cancel := context.WithTimeout(context.Background(), c.tun.DrainTimeout)
	defer cancel()

	if err := st.Close(drainCtx); err != nil {
		log.Printf("session %s: upstream close: %v", c.sessionID, err)
	}

	select {
	case <-pumpDone:
	case <-time.After(c.tun.DrainTimeout):
		log.Printf("session %s: upstream drain timed out", c.sessionID)
	}
}

func (c *connector) backoff() time.Duration {
	d := c.tun.BackoffBase
	for i := 1; i < c.attempts; i++ {
		d *= 2
		if d >= c.tun.BackoffCap {
			return c.tun.BackoffCap
		}
	}
	if d > c.tun.BackoffCap {
		d = c.tun.BackoffCap
	}
	return d
}
