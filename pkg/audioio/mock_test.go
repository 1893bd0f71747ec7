package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	// Start should succeed
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	// Stop should succeed
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	expectedSamples := cfg.BufferSize() * cfg.Channels
	if len(chunk.Samples) != expectedSamples {
		t.Errorf("Expected %d samples, got %d", expectedSamples, len(chunk.Samples))
	}

	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Drain until EOF once the generate loop has exited.
	readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	for {
		_, err := src.Read(readCtx)
		if err == nil {
			continue
		}
		if err != io.EOF {
			t.Fatalf("Read after Stop = %v, want io.EOF", err)
		}
		break
	}
}

func TestMockSource_StartError(t *testing.T) {
	cfg := DefaultConfig()

	src := NewMockSource(cfg, nil, WithStartError(ErrPermissionDenied))
	defer src.Close()

	err := src.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Start() error = %v, want ErrPermissionDenied", err)
	}
	if src.Running() {
		t.Error("source should not be running after failed Start")
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.8))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	nonZero := false
	for _, s := range chunk.Samples {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("sine wave chunk should contain non-zero samples")
	}
}

func TestChunkBytesRoundTrip(t *testing.T) {
	original := Chunk{
		Samples:    []int16{0, 100, -100, 32767, -32768},
		SampleRate: 16000,
		Channels:   1,
	}

	data := original.Bytes()

	var restored Chunk
	restored.FromBytes(data, 16000, 1)

	if len(restored.Samples) != len(original.Samples) {
		t.Fatalf("Expected %d samples, got %d", len(original.Samples), len(restored.Samples))
	}
	for i, s := range original.Samples {
		if restored.Samples[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, restored.Samples[i])
		}
	}
}
