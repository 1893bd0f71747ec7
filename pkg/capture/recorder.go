package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocality/voicelink/pkg/audioio"
)

// ErrAlreadyRecording is returned by Start while a recording is active.
var ErrAlreadyRecording = errors.New("capture: already recording")

// DefaultMaxDuration is the hard ceiling on a single recording. The
// watchdog force-stops capture when it is reached.
const DefaultMaxDuration = 2 * time.Minute

// Frame is one encoded audio frame ready for transmission. Frames are
// transient; they are not retained after the emit callback returns.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Config holds recorder configuration.
type Config struct {
	// Audio is the capture device configuration.
	Audio audioio.Config

	// MaxDuration bounds a single recording. Zero means DefaultMaxDuration.
	MaxDuration time.Duration

	// NewEncoder builds the wire encoder. Nil means NewOpusEncoder.
	NewEncoder EncoderFactory

	// NewSource builds the capture source. Nil means audioio.NewSource.
	NewSource func(audioio.Config, *slog.Logger) (audioio.Source, error)
}

// Recorder acquires the microphone, encodes captured audio, and emits
// frames on the capture cadence. One recording at a time; every exit
// path releases the device handle and stops the watchdog.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	source   audioio.Source
	enc      Encoder
	done     chan struct{}
	watchdog *time.Timer

	// Callbacks, set before Start.
	onFrame func(Frame)
	onChunk func(audioio.Chunk)
	onLimit func()
}

// NewRecorder creates a recorder.
func NewRecorder(cfg Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.NewEncoder == nil {
		cfg.NewEncoder = NewOpusEncoder
	}
	if cfg.NewSource == nil {
		cfg.NewSource = func(ac audioio.Config, l *slog.Logger) (audioio.Source, error) {
			return audioio.NewSource(ac, l)
		}
	}
	return &Recorder{cfg: cfg, logger: logger}
}

// OnFrame sets the encoded frame callback. Called from the capture
// goroutine; must not block for long.
func (r *Recorder) OnFrame(fn func(Frame)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFrame = fn
}

// OnChunk sets the raw chunk callback (feeds the analyzer).
func (r *Recorder) OnChunk(fn func(audioio.Chunk)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChunk = fn
}

// OnLimit sets the callback fired when the recording ceiling is reached.
// The recorder has already stopped itself when it fires.
func (r *Recorder) OnLimit(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLimit = fn
}

// Recording reports whether a recording is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start acquires the device and begins streaming frames. On any failure
// the device handle is released before returning.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}

	source, err := r.cfg.NewSource(r.cfg.Audio, r.logger)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	if err := source.Start(ctx); err != nil {
		source.Close()
		r.mu.Unlock()
		return err
	}

	enc, err := r.cfg.NewEncoder(r.cfg.Audio.SampleRate, r.cfg.Audio.Channels)
	if err != nil {
		source.Stop()
		source.Close()
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", audioio.ErrNotSupported, err)
	}

	r.source = source
	r.enc = enc
	r.running = true
	r.done = make(chan struct{})

	onLimit := r.onLimit
	r.watchdog = time.AfterFunc(r.cfg.MaxDuration, func() {
		r.logger.Warn("recording ceiling reached, forcing stop",
			"max_duration", r.cfg.MaxDuration,
		)
		r.Stop()
		if onLimit != nil {
			onLimit()
		}
	})

	go r.pumpLoop(source, enc, r.done)

	r.logger.Info("recording started",
		"backend", source.Name(),
		"format", enc.Name(),
		"sample_rate", r.cfg.Audio.SampleRate,
	)
	r.mu.Unlock()

	return nil
}

// pumpLoop drains the source stream, encodes, and emits frames.
func (r *Recorder) pumpLoop(source audioio.Source, enc Encoder, done chan struct{}) {
	defer close(done)

	wantRate := r.cfg.Audio.SampleRate

	for chunk := range source.Stream() {
		r.mu.Lock()
		onFrame := r.onFrame
		onChunk := r.onChunk
		r.mu.Unlock()

		if onChunk != nil {
			onChunk(chunk)
		}

		samples := chunk.Samples
		if chunk.SampleRate != wantRate {
			samples = audioio.Resample(samples, chunk.SampleRate, wantRate)
		}

		data, err := enc.Encode(samples)
		if err != nil {
			r.logger.Error("encode failed, dropping frame", "err", err)
			continue
		}

		if onFrame != nil {
			onFrame(Frame{Data: data, Timestamp: time.Now()})
		}
	}
}

// Stop halts capture, releases the device, and stops the watchdog.
// Idempotent and safe to call at any time, including from the watchdog.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	source := r.source
	enc := r.enc
	watchdog := r.watchdog
	done := r.done
	r.source = nil
	r.enc = nil
	r.watchdog = nil
	r.mu.Unlock()

	if watchdog != nil {
		watchdog.Stop()
	}
	if source != nil {
		source.Stop()
		source.Close()
	}

	// Wait for the pump to drain the closed stream before releasing the
	// encoder; a tail frame may still be in flight.
	if done != nil {
		<-done
	}
	if enc != nil {
		enc.Close()
	}

	r.logger.Info("recording stopped")
}
