package transcript

import "strings"

// NoSpeakerTag marks a result for which the engine supplied no speaker tag.
const NoSpeakerTag = -1

// Result is a normalized recognition result from the upstream engine.
// It is either an Interim or a Final; nothing else implements it.
type Result interface {
	resultKind()
}

// Interim is a provisional transcript fragment. The engine may revise it
// any number of times before committing a Final.
type Interim struct {
	Text string
}

// Final is a committed transcript fragment. SpeakerTag is the engine's
// numeric speaker identifier, or NoSpeakerTag when diarization supplied none.
type Final struct {
	Text       string
	SpeakerTag int
}

func (Interim) resultKind() {}
func (Final) resultKind()   {}

// SpeakerMap resolves engine speaker tags to human labels for one session.
// Labels come from session setup; tags the engine never declared fall back
// to the default label.
type SpeakerMap struct {
	labels   map[int]string
	fallback string
}

// NewSpeakerMap builds a resolver from configured role labels keyed by
// engine speaker tag. An empty fallback becomes "Speaker".
func NewSpeakerMap(labels map[int]string, fallback string) SpeakerMap {
	if strings.TrimSpace(fallback) == "" {
		fallback = "Speaker"
	}
	copied := make(map[int]string, len(labels))
	for tag, label := range labels {
		if strings.TrimSpace(label) == "" {
			continue
		}
		copied[tag] = label
	}
	return SpeakerMap{labels: copied, fallback: fallback}
}

// Resolve returns the configured label for tag, or the fallback label.
func (m SpeakerMap) Resolve(tag int) string {
	if label, ok := m.labels[tag]; ok {
		return label
	}
	return m.fallback
}
