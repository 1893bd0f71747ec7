package capture

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vocality/voicelink/pkg/audioio"
)

const (
	// DefaultBands is the number of energy bands in a sample.
	DefaultBands = 16

	// DefaultSampleInterval is the visualization cadence. Faster than any
	// display refresh the UI will run at.
	DefaultSampleInterval = 50 * time.Millisecond
)

// Sample is one visualization snapshot: normalized band energies in
// [0, 1] plus a sequence number that resets to zero on each Start.
type Sample struct {
	Bands []float32
	Seq   uint64
}

// Analyzer produces visualization samples from the live capture stream
// on its own cadence, independent of the capture chunk cadence. It runs
// only while recording; Start and Stop are driven by the session.
type Analyzer struct {
	logger   *slog.Logger
	bands    int
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	latest  audioio.Chunk
	sample  Sample
}

// NewAnalyzer creates an analyzer with the default band count and cadence.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		logger:   logger,
		bands:    DefaultBands,
		interval: DefaultSampleInterval,
	}
}

// Start begins sampling. The sequence counter resets to zero so a
// stop/start cycle can never observe a stale timer from the prior cycle.
func (a *Analyzer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.latest = audioio.Chunk{}
	a.sample = Sample{Bands: make([]float32, a.bands)}

	go a.sampleLoop(a.stopCh)
}

// Stop halts sampling. Idempotent.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false
	close(a.stopCh)
}

// Running reports whether the sampling timer is active.
func (a *Analyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Feed stores the most recent capture chunk for the next tick.
func (a *Analyzer) Feed(chunk audioio.Chunk) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest = chunk
}

// Sample returns the latest visualization snapshot. The bands slice is a
// copy and safe to retain.
func (a *Analyzer) Sample() Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Sample{
		Bands: make([]float32, len(a.sample.Bands)),
		Seq:   a.sample.Seq,
	}
	copy(out.Bands, a.sample.Bands)
	return out
}

func (a *Analyzer) sampleLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.mu.Lock()
			chunk := a.latest
			bands := bandEnergies(chunk.Samples, a.bands)
			a.sample = Sample{Bands: bands, Seq: a.sample.Seq + 1}
			a.mu.Unlock()
		}
	}
}

// bandEnergies splits the chunk into n segments and computes the
// normalized RMS energy of each.
func bandEnergies(samples []int16, n int) []float32 {
	bands := make([]float32, n)
	if len(samples) == 0 {
		return bands
	}

	segLen := len(samples) / n
	if segLen == 0 {
		segLen = 1
	}

	for b := 0; b < n; b++ {
		start := b * segLen
		if start >= len(samples) {
			break
		}
		end := start + segLen
		if end > len(samples) {
			end = len(samples)
		}

		var sum float64
		for _, s := range samples[start:end] {
			v := float64(s) / 32768.0
			sum += v * v
		}
		bands[b] = float32(math.Sqrt(sum / float64(end-start)))
	}

	return bands
}
