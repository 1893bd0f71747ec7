package audioio

import (
	"testing"
)

func TestResample_SameRate(t *testing.T) {
	samples := []int16{100, 200, 300, 400, 500}
	result := Resample(samples, 16000, 16000)

	if len(result) != len(samples) {
		t.Errorf("Expected %d samples, got %d", len(samples), len(result))
	}

	for i, s := range samples {
		if result[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, result[i])
		}
	}
}

func TestResample_Downsample(t *testing.T) {
	// 48kHz -> 16kHz (3:1 ratio)
	samples := make([]int16, 960) // 20ms at 48kHz
	for i := range samples {
		samples[i] = int16(i)
	}

	result := Resample(samples, 48000, 16000)

	expectedLen := 320
	if len(result) != expectedLen {
		t.Errorf("Expected %d samples, got %d", expectedLen, len(result))
	}
}

func TestResample_Upsample(t *testing.T) {
	// 16kHz -> 24kHz (2:3 ratio)
	samples := make([]int16, 320) // 20ms at 16kHz
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	result := Resample(samples, 16000, 24000)

	expectedLen := 480
	if len(result) != expectedLen {
		t.Errorf("Expected %d samples, got %d", expectedLen, len(result))
	}
}

func TestResample_Empty(t *testing.T) {
	result := Resample([]int16{}, 48000, 16000)
	if len(result) != 0 {
		t.Errorf("Expected empty result, got %d samples", len(result))
	}
}
