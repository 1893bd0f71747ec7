package audioio

import (
	"context"
	"errors"
	"io"
)

// Capture acquisition errors. The session layer maps these onto its own
// error taxonomy for the display layer.
var (
	// ErrPermissionDenied indicates the capture device exists but access
	// was refused. The user may grant access and retry.
	ErrPermissionDenied = errors.New("audioio: microphone permission denied")

	// ErrNotSupported indicates no capture backend is available on this
	// platform or device.
	ErrNotSupported = errors.New("audioio: audio capture not supported")

	// ErrDeviceBusy indicates the device is held by another process.
	ErrDeviceBusy = errors.New("audioio: capture device busy")
)

// Chunk represents a buffer of captured audio.
type Chunk struct {
	// Samples contains PCM16 audio samples (little-endian).
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the raw bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *Chunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = BytesToSamples(data)
}

// Duration returns the duration of this chunk in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture. Acquisition failures surface the
	// sentinel errors above.
	Start(ctx context.Context) error

	// Stop halts audio capture and releases the device handle.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next chunk, blocking if necessary.
	// Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (Chunk, error)

	// Stream returns a channel that receives captured chunks.
	// The channel is closed when the source is stopped.
	Stream() <-chan Chunk

	// Config returns the current capture configuration.
	Config() Config

	// Name returns the backend name (e.g., "alsa", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// ChunksRead is the total number of chunks read.
	ChunksRead int64 `json:"chunks_read"`

	// SamplesRead is the total number of samples read.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of buffer overruns (dropped audio).
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
