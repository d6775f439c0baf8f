package audio

import (
	"time"
)

// chunk is one ingested audio chunk held in a source queue.
type chunk struct {
	seq     uint64
	samples []int16
}

// sourceQueue is a bounded FIFO of chunks from one logical source.
// Capacity is expressed in samples (~2 seconds of audio by default);
// overflow drops whole chunks from the head, oldest first.
type sourceQueue struct {
	tag        string
	maxSamples int

	chunks    []chunk
	buffered  int
	nextSeq   uint64
	lastData  time.Time
	dropped   uint64
}

func newSourceQueue(tag string, maxSamples int) *sourceQueue {
	return &sourceQueue{tag: tag, maxSamples: maxSamples}
}

// push appends a chunk, evicting from the head until it fits. It returns
// the number of chunks dropped to make room.
func (q *sourceQueue) push(samples []int16, now time.Time) int {
	droppedChunks := 0
	for len(q.chunks) > 0 && q.buffered+len(samples) > q.maxSamples {
		head := q.chunks[0]
		q.chunks = q.chunks[1:]
		q.buffered -= len(head.samples)
		q.dropped++
		droppedChunks++
	}

	q.chunks = append(q.chunks, chunk{seq: q.nextSeq, samples: samples})
	q.nextSeq++
	q.buffered += len(samples)
	q.lastData = now
	return droppedChunks
}

// pull removes and returns up to n samples in arrival order.
func (q *sourceQueue) pull(n int) []int16 {
	if n <= 0 || q.buffered == 0 {
		return nil
	}
	if n > q.buffered {
		n = q.buffered
	}

	out := make([]int16, 0, n)
	for len(out) < n {
		head := &q.chunks[0]
		take := n - len(out)
		if take >= len(head.samples) {
			out = append(out, head.samples...)
			q.buffered -= len(head.samples)
			q.chunks = q.chunks[1:]
			continue
		}
		out = append(out, head.samples[:take]...)
		head.samples = head.samples[take:]
		q.buffered -= take
	}
	return out
}

// activeAt reports whether the source delivered data within the silence
// timeout ending at now.
func (q *sourceQueue) activeAt(now time.Time, silenceTimeout time.Duration) bool {
	if q.lastData.IsZero() {
		return false
	}
	return now.Sub(q.lastData) <= silenceTimeout
}
