// Package s7 implements the Siemens S7 point backend on gos7. Digital
// points address single DB bits ("DB2.DBX0.3"); bit writes go through
// read-modify-write on the containing byte. The gos7 client is not
// thread-safe, so each endpoint serializes its operations.
package s7

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robinson/gos7"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// EndpointConfig describes one S7 PLC connection.
type EndpointConfig struct {
	// Address is the PLC host or host:port (102 by default).
	Address string

	// Rack and Slot identify the CPU. S7-1200/1500 use 0/1.
	Rack int
	Slot int

	// Timeout is the per-request response timeout.
	Timeout time.Duration
}

type endpoint struct {
	cfg     EndpointConfig
	handler *gos7.TCPClientHandler
	client  gos7.Client
	breaker *gobreaker.CircuitBreaker
	mu      sync.Mutex
}

// Backend serves s7 points.
type Backend struct {
	endpoints map[string]*endpoint
	logger    zerolog.Logger
}

// New builds the backend from the endpoint catalog, connecting lazily.
func New(endpoints map[string]EndpointConfig, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{
		endpoints: make(map[string]*endpoint, len(endpoints)),
		logger:    logger.With().Str("component", "s7-backend").Logger(),
	}

	for name, cfg := range endpoints {
		if cfg.Address == "" {
			return nil, fmt.Errorf("s7 endpoint %q: address is required", name)
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = 2 * time.Second
		}

		b.endpoints[name] = &endpoint{
			cfg: cfg,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "s7-" + name,
				MaxRequests: 3,
				Interval:    10 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(n string, from, to gobreaker.State) {
					logger.Warn().
						Str("breaker", n).
						Str("from", from.String()).
						Str("to", to.String()).
						Msg("S7 circuit breaker state change")
				},
			}),
		}
	}
	return b, nil
}

// bitAddr is a parsed "DBn.DBXb.x" address.
type bitAddr struct {
	db     int
	byteAt int
	bit    uint
	word   bool // DBW word address for analogs
}

var (
	bitRe  = regexp.MustCompile(`^DB(\d+)\.DBX(\d+)\.([0-7])$`)
	wordRe = regexp.MustCompile(`^DB(\d+)\.DBW(\d+)$`)
)

// parseAddr parses "DB2.DBX0.3" (bit) or "DB2.DBW10" (word, analog).
func parseAddr(address string) (bitAddr, error) {
	if m := bitRe.FindStringSubmatch(address); m != nil {
		db, _ := strconv.Atoi(m[1])
		byteAt, _ := strconv.Atoi(m[2])
		bit, _ := strconv.Atoi(m[3])
		return bitAddr{db: db, byteAt: byteAt, bit: uint(bit)}, nil
	}
	if m := wordRe.FindStringSubmatch(address); m != nil {
		db, _ := strconv.Atoi(m[1])
		byteAt, _ := strconv.Atoi(m[2])
		return bitAddr{db: db, byteAt: byteAt, word: true}, nil
	}
	return bitAddr{}, fmt.Errorf("%w: s7 address %q, want DBn.DBXb.x or DBn.DBWb", domain.ErrPointInvalid, address)
}

func (b *Backend) endpointFor(name string) (*endpoint, error) {
	ep, ok := b.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: s7 endpoint %q", domain.ErrEndpointNotFound, name)
	}
	return ep, nil
}

// Read reads one point: 0/1 for bits, the raw word value for DBW analogs.
func (b *Backend) Read(ctx context.Context, endpointName, address string) (float64, error) {
	ep, err := b.endpointFor(endpointName)
	if err != nil {
		return 0, err
	}
	addr, err := parseAddr(address)
	if err != nil {
		return 0, err
	}

	size := 1
	if addr.word {
		size = 2
	}
	buf := make([]byte, size)
	if err := ep.execute(ctx, func(c gos7.Client) error {
		return c.AGReadDB(addr.db, addr.byteAt, size, buf)
	}); err != nil {
		return 0, err
	}

	if addr.word {
		return float64(int16(binary.BigEndian.Uint16(buf))), nil
	}
	if buf[0]&(1<<addr.bit) != 0 {
		return 1, nil
	}
	return 0, nil
}

// Write writes one point. Bit writes read-modify-write the containing byte;
// the per-endpoint lock makes the sequence atomic for this process.
func (b *Backend) Write(ctx context.Context, endpointName, address string, value float64) error {
	ep, err := b.endpointFor(endpointName)
	if err != nil {
		return err
	}
	addr, err := parseAddr(address)
	if err != nil {
		return err
	}

	if addr.word {
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(value)))
		return ep.execute(ctx, func(c gos7.Client) error {
			return c.AGWriteDB(addr.db, addr.byteAt, 2, buf)
		})
	}

	return ep.execute(ctx, func(c gos7.Client) error {
		buf := make([]byte, 1)
		if err := c.AGReadDB(addr.db, addr.byteAt, 1, buf); err != nil {
			return err
		}
		if value != 0 {
			buf[0] |= 1 << addr.bit
		} else {
			buf[0] &^= 1 << addr.bit
		}
		return c.AGWriteDB(addr.db, addr.byteAt, 1, buf)
	})
}

// Close disconnects every endpoint.
func (b *Backend) Close() error {
	var first error
	for name, ep := range b.endpoints {
		ep.mu.Lock()
		if ep.handler != nil {
			if err := ep.handler.Close(); err != nil && first == nil {
				first = fmt.Errorf("s7 endpoint %q: %w", name, err)
			}
			ep.handler = nil
			ep.client = nil
		}
		ep.mu.Unlock()
	}
	return first
}

// execute runs one operation through the endpoint's breaker under its lock,
// connecting on demand and redialing after a failure.
func (ep *endpoint) execute(ctx context.Context, op func(gos7.Client) error) error {
	_, err := ep.breaker.Execute(func() (interface{}, error) {
		ep.mu.Lock()
		defer ep.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ep.client == nil {
			if err := ep.connect(); err != nil {
				return nil, err
			}
		}

		if err := op(ep.client); err != nil {
			ep.handler.Close()
			ep.handler = nil
			ep.client = nil
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%w: %v", domain.ErrCircuitBreakerOpen, err)
		}
		return err
	}
	return nil
}

// connect dials the PLC. Caller holds ep.mu.
func (ep *endpoint) connect() error {
	h := gos7.NewTCPClientHandler(ep.cfg.Address, ep.cfg.Rack, ep.cfg.Slot)
	h.Timeout = ep.cfg.Timeout
	if err := h.Connect(); err != nil {
		h.Close()
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	ep.handler = h
	ep.client = gos7.NewClient(h)
	return nil
}
