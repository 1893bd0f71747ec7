package chat

import (
	"log/slog"
	"sync"
	"time"
)

// activationFlow tracks the single outstanding activation challenge and
// its server-supplied countdown. Expiry auto-dismisses without raising
// an error; a newer challenge always replaces an older one.
type activationFlow struct {
	logger *slog.Logger

	mu      sync.Mutex
	current *ActivationChallenge
	timer   *time.Timer
	gen     uint64 // Guards the timer against firing for a replaced challenge

	onChange func(*ActivationChallenge)
}

func newActivationFlow(logger *slog.Logger, onChange func(*ActivationChallenge)) *activationFlow {
	return &activationFlow{logger: logger, onChange: onChange}
}

// Set installs a new challenge, discarding any prior one, and arms the
// countdown with the backend-supplied timeout.
func (f *activationFlow) Set(ch ActivationChallenge) {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	gen := f.gen
	f.current = &ch

	if ch.Timeout > 0 {
		f.timer = time.AfterFunc(ch.Timeout, func() {
			f.expire(gen)
		})
	}
	f.mu.Unlock()

	f.logger.Info("activation challenge received",
		"code", ch.Code,
		"timeout", ch.Timeout,
	)
	f.onChange(&ch)
}

func (f *activationFlow) expire(gen uint64) {
	f.mu.Lock()
	if f.gen != gen || f.current == nil {
		f.mu.Unlock()
		return
	}
	f.current = nil
	f.timer = nil
	f.mu.Unlock()

	f.logger.Info("activation challenge expired")
	f.onChange(nil)
}

// Dismiss clears the challenge on user action. No-op when none is active.
func (f *activationFlow) Dismiss() {
	f.mu.Lock()
	if f.current == nil {
		f.mu.Unlock()
		return
	}
	f.current = nil
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.onChange(nil)
}

// Current returns a copy of the active challenge, or nil.
func (f *activationFlow) Current() *ActivationChallenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	ch := *f.current
	return &ch
}
