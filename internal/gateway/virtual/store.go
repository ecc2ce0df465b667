// Package virtual implements the software point store. Virtual points back
// the writable AUTO/MANUAL selectors and give bench setups a full equipment
// catalog with no field wiring.
package virtual

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Store is an in-memory point backend. Unwritten points read as 0; the
// endpoint argument is ignored, every virtual point lives in one namespace.
type Store struct {
	mu     sync.RWMutex
	points map[string]float64
	logger zerolog.Logger
}

// NewStore creates an empty point store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		points: make(map[string]float64),
		logger: logger.With().Str("component", "virtual-store").Logger(),
	}
}

// Seed sets initial point values, typically from configuration so virtual
// mode switches survive with a defined state at boot.
func (s *Store) Seed(values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.points[k] = v
	}
}

func (s *Store) Read(_ context.Context, _ string, address string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[address], nil
}

func (s *Store) Write(_ context.Context, _ string, address string, value float64) error {
	s.mu.Lock()
	s.points[address] = value
	s.mu.Unlock()

	s.logger.Debug().Str("address", address).Float64("value", value).Msg("Virtual point written")
	return nil
}

func (s *Store) Close() error {
	return nil
}
