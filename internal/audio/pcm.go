package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Sessions negotiate mono signed 16-bit little-endian linear PCM at setup;
// every inbound chunk must match.
const (
	Channels       = 1
	BytesPerSample = 2
)

// ErrInvalidFormat is returned for audio payloads that cannot be PCM-16
// mono at the negotiated rate (empty, or an odd byte count).
var ErrInvalidFormat = errors.New("invalid audio format")

// DecodePCM converts little-endian 16-bit PCM bytes to samples.
func DecodePCM(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrInvalidFormat, len(data))
	}

	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return samples, nil
}

// EncodePCM converts samples back to little-endian 16-bit PCM bytes.
func EncodePCM(samples []int16) []byte {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*BytesPerSample:], uint16(s))
	}
	return data
}
