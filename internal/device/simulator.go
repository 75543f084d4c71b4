package device

import (
	"math/rand"
	"sync"
)

// Simulator is a PRNG-backed byte source standing in for hardware. It feeds
// the same pipeline path as a TrueRNG, which makes it useful for demos and
// for exercising the engine against a statistically unbiased stream.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	seed      int64
	connected bool
}

// NewSimulator creates a simulator seeded for a reproducible stream.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

// Connect marks the simulator ready. It never fails.
func (s *Simulator) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

// ReadChunk produces n pseudo-random bytes.
func (s *Simulator) ReadChunk(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	buf := make([]byte, n)
	s.rng.Read(buf)
	return buf, nil
}

// Disconnect marks the simulator stopped.
func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// Status reports simulator state in the same shape as hardware sources.
func (s *Simulator) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"connected": s.connected,
		"port":      "simulator",
		"mode":      "Simulated PRNG",
		"seed":      s.seed,
	}
}
