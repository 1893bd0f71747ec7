//go:build linux

package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ALSASource captures audio on Linux by running the system arecord tool
// and reading raw PCM16 from its stdout. The subprocess is the device
// handle: killing it releases the microphone on every exit path.
type ALSASource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Chunk
	stopCh   chan struct{}
	cmd      *exec.Cmd
	stdout   io.ReadCloser

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	device string
}

// newALSASource creates a new ALSA audio source.
func newALSASource(cfg Config, logger *slog.Logger) (*ALSASource, error) {
	device := cfg.Device
	if device == "" {
		device = "default"
	}

	if _, err := exec.LookPath("arecord"); err != nil {
		return nil, fmt.Errorf("%w: arecord not found", ErrNotSupported)
	}

	s := &ALSASource{
		cfg:      cfg,
		logger:   logger,
		device:   device,
		streamCh: make(chan Chunk, 10),
		stopCh:   make(chan struct{}),
	}

	logger.Info("ALSA source created",
		"device", device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	return s, nil
}

// Start begins audio capture.
func (s *ALSASource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := exec.Command("arecord",
		"-q",
		"-D", s.device,
		"-f", "S16_LE",
		"-r", fmt.Sprint(s.cfg.SampleRate),
		"-c", fmt.Sprint(s.cfg.Channels),
		"-t", "raw",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNotSupported, err)
		}
		return fmt.Errorf("alsa: start capture: %w", err)
	}

	// arecord reports device-open failures (permission, busy, missing)
	// by exiting immediately; probe briefly so Start can surface them.
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		stdout.Close()
		return classifyOpenError(err, stderr.String())
	case <-time.After(150 * time.Millisecond):
		// Device opened; capture is streaming.
	}

	s.cmd = cmd
	s.stdout = stdout
	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan Chunk, 10)

	// The loop owns streamCh and closes it on exit, so a concurrent Stop
	// can never race a send against a close.
	go s.captureLoop(ctx, stdout, &stderr, waitErr, s.stopCh, s.streamCh)

	s.logger.Info("ALSA audio source started", "device", s.device)

	return nil
}

func (s *ALSASource) captureLoop(ctx context.Context, stdout io.ReadCloser, stderr *strings.Builder, waitErr <-chan error, stopCh chan struct{}, streamCh chan Chunk) {
	defer func() { <-waitErr }() // Reap arecord on exit
	defer close(streamCh)

	buf := make([]byte, s.cfg.BufferBytes())

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-stopCh:
			return
		default:
		}

		if _, err := io.ReadFull(stdout, buf); err != nil {
			// arecord exited: device unplugged, permission revoked, or we
			// killed it in Stop.
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if running {
				s.logger.Warn("ALSA capture ended",
					"err", err,
					"stderr", strings.TrimSpace(stderr.String()),
				)
				s.Stop()
			}
			return
		}

		var chunk Chunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)

		select {
		case streamCh <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
			s.logger.Debug("ALSA source: buffer full, dropping chunk")
		}
	}
}

// classifyOpenError maps arecord failures onto the capture sentinels.
func classifyOpenError(err error, stderr string) error {
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "permission denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr))
	case strings.Contains(low, "busy"):
		return fmt.Errorf("%w: %s", ErrDeviceBusy, strings.TrimSpace(stderr))
	case strings.Contains(low, "no such"):
		return fmt.Errorf("%w: %s", ErrNotSupported, strings.TrimSpace(stderr))
	default:
		return fmt.Errorf("alsa: start capture: %w", err)
	}
}

// Stop halts audio capture and kills the arecord subprocess.
func (s *ALSASource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	close(s.stopCh)

	if s.stdout != nil {
		s.stdout.Close()
		s.stdout = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd = nil

	s.logger.Info("ALSA audio source stopped")

	return nil
}

// Read reads the next chunk.
func (s *ALSASource) Read(ctx context.Context) (Chunk, error) {
	select {
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	case chunk, ok := <-s.streamCh:
		if !ok {
			return Chunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the chunk channel.
func (s *ALSASource) Stream() <-chan Chunk {
	return s.streamCh
}

// Config returns the capture configuration.
func (s *ALSASource) Config() Config {
	return s.cfg
}

// Name returns "alsa".
func (s *ALSASource) Name() string {
	return "alsa"
}

// Close releases resources.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	return nil
}

// Stats returns source statistics.
func (s *ALSASource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "alsa",
	}
}

var _ SourceWithStats = (*ALSASource)(nil)
