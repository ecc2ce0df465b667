// Package gateway routes logical point reads and commands to protocol
// backends. Controllers deal in logical values only (1=ON / 0=OFF,
// engineering units); inversion for normally-closed wiring and analog
// scaling happen here, on both the read and the write path.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
	"github.com/tankwanghow/pou-con-sub002/internal/metrics"
)

// Backend is one protocol adapter serving a set of named endpoints. Raw
// values cross this boundary: digital points as 0/1, analogs in raw device
// units before scaling.
type Backend interface {
	Read(ctx context.Context, endpoint, address string) (float64, error)
	Write(ctx context.Context, endpoint, address string, value float64) error
	Close() error
}

// DefaultPointTimeout bounds a single backend read or write.
const DefaultPointTimeout = 2 * time.Second

// Router implements domain.PointGateway over a set of registered backends.
type Router struct {
	backends map[domain.Backend]Backend
	timeout  time.Duration
	logger   zerolog.Logger
	mreg     *metrics.Registry
}

// NewRouter creates a router with no backends registered.
func NewRouter(timeout time.Duration, logger zerolog.Logger, mreg *metrics.Registry) *Router {
	if timeout <= 0 {
		timeout = DefaultPointTimeout
	}
	return &Router{
		backends: make(map[domain.Backend]Backend),
		timeout:  timeout,
		logger:   logger.With().Str("component", "gateway").Logger(),
		mreg:     mreg,
	}
}

// Register attaches a backend under its protocol name. Not safe for
// concurrent use with Read/Command; registration happens during wiring.
func (r *Router) Register(name domain.Backend, b Backend) {
	r.backends[name] = b
	r.logger.Info().Str("backend", string(name)).Msg("Point backend registered")
}

// Read resolves the point's backend, reads the raw value under the point
// timeout and translates it to a logical reading.
func (r *Router) Read(ctx context.Context, ref domain.PointRef) (domain.PointValue, error) {
	b, ok := r.backends[ref.Backend]
	if !ok {
		return domain.PointValue{}, fmt.Errorf("%w: %q", domain.ErrBackendNotRegistered, ref.Backend)
	}

	readCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := b.Read(readCtx, ref.Endpoint, ref.Address)
	if err != nil {
		err = classify(err)
		errType := "timeout"
		if errors.Is(err, domain.ErrPointInvalid) {
			errType = "invalid_data"
		}
		r.mreg.RecordPointRead(string(ref.Backend), errType)
		return domain.PointValue{}, fmt.Errorf("read %s %q: %w", ref.Backend, ref.Address, err)
	}

	v := domain.PointValue{Timestamp: time.Now()}
	if ref.Analog {
		v.Analog = true
		v.Value = raw*scaleOf(ref) + ref.Offset
		r.mreg.RecordPointRead(string(ref.Backend), "")
		return v, nil
	}

	// Digital payloads are strict: anything but 0/1 means the point map is
	// wrong or the device returned garbage.
	switch raw {
	case 0:
		v.State = 0
	case 1:
		v.State = 1
	default:
		r.mreg.RecordPointRead(string(ref.Backend), "invalid_data")
		return domain.PointValue{}, fmt.Errorf("%w: point %q returned %v", domain.ErrPointInvalid, ref.Address, raw)
	}
	if ref.Inverted {
		v.State = 1 - v.State
	}
	r.mreg.RecordPointRead(string(ref.Backend), "")
	return v, nil
}

// Command resolves the point's backend and writes the logical command,
// applying inversion and analog descaling.
func (r *Router) Command(ctx context.Context, ref domain.PointRef, action domain.CommandAction, value float64) error {
	b, ok := r.backends[ref.Backend]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrBackendNotRegistered, ref.Backend)
	}

	var raw float64
	switch action {
	case domain.ActionOn, domain.ActionOff:
		state := 0
		if action == domain.ActionOn {
			state = 1
		}
		if ref.Inverted {
			state = 1 - state
		}
		raw = float64(state)
	case domain.ActionSet:
		raw = (value - ref.Offset) / scaleOf(ref)
	default:
		return fmt.Errorf("%w: unknown action %q", domain.ErrPointInvalid, action)
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := b.Write(writeCtx, ref.Endpoint, ref.Address, raw); err != nil {
		err = classify(err)
		r.mreg.RecordPointWrite(string(ref.Backend), "error")
		return fmt.Errorf("write %s %q: %w", ref.Backend, ref.Address, err)
	}
	r.mreg.RecordPointWrite(string(ref.Backend), "ok")
	return nil
}

// Close shuts down every registered backend, returning the first error.
func (r *Router) Close() error {
	var first error
	for name, b := range r.backends {
		if err := b.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return first
}

func scaleOf(ref domain.PointRef) float64 {
	if ref.Scale == 0 {
		return 1
	}
	return ref.Scale
}

// classify folds backend failures into the two read-fault categories the
// reconciliation engine distinguishes. Malformed data keeps its identity;
// everything else (connection loss, deadline, open breaker) is a timeout.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrPointInvalid),
		errors.Is(err, domain.ErrPointNotWritable),
		errors.Is(err, domain.ErrEndpointNotFound):
		return err
	case errors.Is(err, domain.ErrPointTimeout):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrPointTimeout, err)
	}
}
