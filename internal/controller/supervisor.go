// Package controller implements the equipment reconciliation engine.
package controller

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
	"github.com/tankwanghow/pou-con-sub002/internal/metrics"
)

// Supervisor owns the name -> controller map. Controllers are plain values
// with identity; lookups are ordinary map reads rather than an ambient
// process-wide registry.
type Supervisor struct {
	gw     domain.PointGateway
	oracle domain.InterlockOracle
	sink   domain.EventSink
	logger zerolog.Logger
	mreg   *metrics.Registry

	mu          sync.RWMutex
	controllers map[string]*Controller
}

// NewSupervisor creates an empty supervisor with shared collaborators.
func NewSupervisor(
	gw domain.PointGateway,
	oracle domain.InterlockOracle,
	sink domain.EventSink,
	logger zerolog.Logger,
	mreg *metrics.Registry,
) *Supervisor {
	return &Supervisor{
		gw:          gw,
		oracle:      oracle,
		sink:        sink,
		logger:      logger.With().Str("component", "supervisor").Logger(),
		mreg:        mreg,
		controllers: make(map[string]*Controller),
	}
}

// Add constructs and registers a controller for the equipment. Construction
// validates the configuration; registration fails on duplicate names.
func (s *Supervisor) Add(eq domain.Equipment) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.controllers[eq.Name]; exists {
		return nil, domain.ErrEquipmentExists
	}

	c, err := New(eq, s.gw, s.oracle, s.sink, s.logger, s.mreg)
	if err != nil {
		return nil, err
	}
	s.controllers[eq.Name] = c
	if s.mreg != nil {
		s.mreg.ControllersRegistered.Set(float64(len(s.controllers)))
	}

	s.logger.Info().
		Str("equipment", eq.Name).
		Str("kind", string(eq.Kind)).
		Msg("Registered equipment controller")
	return c, nil
}

// Remove stops and unregisters a controller.
func (s *Supervisor) Remove(name string) error {
	s.mu.Lock()
	c, exists := s.controllers[name]
	if exists {
		delete(s.controllers, name)
		if s.mreg != nil {
			s.mreg.ControllersRegistered.Set(float64(len(s.controllers)))
		}
	}
	s.mu.Unlock()

	if !exists {
		return domain.ErrEquipmentNotFound
	}
	c.Stop()
	s.logger.Info().Str("equipment", name).Msg("Unregistered equipment controller")
	return nil
}

// Get returns the controller for an equipment name.
func (s *Supervisor) Get(name string) (*Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[name]
	return c, ok
}

// StartAll starts every registered controller. Each controller's initial
// poll runs synchronously, so callers observe post-poll snapshots as soon as
// StartAll returns.
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.controllers {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	s.logger.Info().Int("controllers", len(s.controllers)).Msg("All equipment controllers started")
	return nil
}

// StopAll stops every registered controller, letting in-flight polls finish.
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	controllers := make([]*Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		controllers = append(controllers, c)
	}
	s.mu.RUnlock()

	for _, c := range controllers {
		c.Stop()
	}
	s.logger.Info().Msg("All equipment controllers stopped")
}

// Status returns the state snapshot for one equipment name.
func (s *Supervisor) Status(name string) (domain.State, error) {
	c, ok := s.Get(name)
	if !ok {
		return domain.State{}, domain.ErrEquipmentNotFound
	}
	return c.Status(), nil
}

// StatusAll returns snapshots for every controller, ordered by name.
func (s *Supervisor) StatusAll() []domain.State {
	s.mu.RLock()
	states := make([]domain.State, 0, len(s.controllers))
	for _, c := range s.controllers {
		states = append(states, c.Status())
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// TurnOn routes a turn-on command to the named controller.
func (s *Supervisor) TurnOn(ctx context.Context, name string) error {
	c, ok := s.Get(name)
	if !ok {
		return domain.ErrEquipmentNotFound
	}
	c.TurnOn(ctx)
	return nil
}

// TurnOff routes a turn-off command to the named controller.
func (s *Supervisor) TurnOff(ctx context.Context, name string) error {
	c, ok := s.Get(name)
	if !ok {
		return domain.ErrEquipmentNotFound
	}
	c.TurnOff(ctx)
	return nil
}

// SetMode routes a mode change to the named controller.
func (s *Supervisor) SetMode(ctx context.Context, name string, mode domain.Mode) error {
	c, ok := s.Get(name)
	if !ok {
		return domain.ErrEquipmentNotFound
	}
	c.SetMode(ctx, mode)
	return nil
}
