// Package capture owns microphone recording for the chat session: device
// acquisition, wire-format encoding, chunked frame emission, and the
// visualization analyzer.
package capture

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/vocality/voicelink/pkg/audioio"
)

// Encoder turns PCM16 capture buffers into wire-format frames.
type Encoder interface {
	// Encode converts one capture buffer. The returned slice is owned by
	// the caller.
	Encode(pcm []int16) ([]byte, error)

	// Name returns the wire format name ("opus", "pcm").
	Name() string

	// Close releases encoder resources.
	Close() error
}

// EncoderFactory builds an Encoder for the given capture format.
type EncoderFactory func(sampleRate, channels int) (Encoder, error)

// OpusEncoder encodes PCM16 to Opus using libopus.
type OpusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

// NewOpusEncoder creates an Opus encoder for voice audio.
func NewOpusEncoder(sampleRate, channels int) (Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("capture: create opus encoder: %w", err)
	}
	return &OpusEncoder{
		enc: enc,
		buf: make([]byte, 4000), // Max opus frame per RFC 6716
	}, nil
}

// Encode converts one PCM16 buffer into an Opus frame.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("capture: opus encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// Name returns "opus".
func (e *OpusEncoder) Name() string {
	return "opus"
}

// Close releases encoder resources.
func (e *OpusEncoder) Close() error {
	return nil
}

// PCMEncoder passes PCM16 through unencoded. Used in tests and against
// backends that accept raw PCM.
type PCMEncoder struct{}

// NewPCMEncoder creates a passthrough encoder.
func NewPCMEncoder(sampleRate, channels int) (Encoder, error) {
	return &PCMEncoder{}, nil
}

// Encode returns the little-endian bytes of the buffer.
func (e *PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	return audioio.SamplesToBytes(pcm), nil
}

// Name returns "pcm".
func (e *PCMEncoder) Name() string {
	return "pcm"
}

// Close is a no-op.
func (e *PCMEncoder) Close() error {
	return nil
}
