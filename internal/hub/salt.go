package hub

import (
	cryptorand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Salter hands out connection salts.
type Salter interface {
	Next() uint64
}

// SaltSource is a ChaCha8 generator seeded from the operating system's
// entropy pool. It is safe for concurrent use.
type SaltSource struct {
	mu  sync.Mutex
	rng *rand.ChaCha8
}

// NewSaltSource seeds a generator from crypto/rand.
func NewSaltSource() (*SaltSource, error) {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed salt source: %w", err)
	}
	return &SaltSource{rng: rand.NewChaCha8(seed)}, nil
}

// Next returns the salt for a new connection.
func (s *SaltSource) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Uint64()
}
