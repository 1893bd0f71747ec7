// Package audioio provides microphone capture for the chat session.
//
// This package supports multiple backends:
//   - ALSA (Linux) - capture via the system arecord tool
//   - Mock - CI/testing without hardware
//
// The backend is selected automatically based on the platform, or can be
// explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio capture backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendALSA captures via ALSA on Linux.
	BackendALSA Backend = "alsa"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "auto" (selects best available for platform)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (backend speech recognition input rate)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of capture buffers. Frames are emitted
	// on this cadence so the backend can start processing before the
	// user finishes speaking.
	// Default: 60ms (960 samples at 16kHz, one Opus frame)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - ALSA: "hw:0,0", "default", "plughw:1,0"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 60 * time.Millisecond,
		Device:         "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2 // 2 bytes per int16 sample
}
