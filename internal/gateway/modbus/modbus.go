// Package modbus implements the Modbus TCP/RTU point backend on goburrow's
// client, one connection per configured endpoint with a per-endpoint circuit
// breaker so a dead PLC trips fast instead of stalling every poll behind the
// TCP timeout.
package modbus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// EndpointConfig describes one Modbus device connection.
type EndpointConfig struct {
	// Address is host:port for TCP or the serial device path for RTU.
	Address string

	// SlaveID is the Modbus unit ID (1-247).
	SlaveID byte

	// RTU selects serial framing; false means TCP.
	RTU bool

	// BaudRate applies to RTU endpoints only.
	BaudRate int

	// Timeout is the per-request response timeout.
	Timeout time.Duration
}

type endpoint struct {
	cfg     EndpointConfig
	handler closableHandler
	client  modbus.Client
	breaker *gobreaker.CircuitBreaker
	mu      sync.Mutex
}

type closableHandler interface {
	Connect() error
	Close() error
}

// Backend serves modbus-tcp and modbus-rtu points.
type Backend struct {
	endpoints map[string]*endpoint
	logger    zerolog.Logger
}

// New builds the backend from the endpoint catalog. Connections are opened
// lazily on first use; a PLC that is down at boot must not block startup.
func New(endpoints map[string]EndpointConfig, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{
		endpoints: make(map[string]*endpoint, len(endpoints)),
		logger:    logger.With().Str("component", "modbus-backend").Logger(),
	}

	for name, cfg := range endpoints {
		if cfg.Address == "" {
			return nil, fmt.Errorf("modbus endpoint %q: address is required", name)
		}
		if cfg.SlaveID == 0 || cfg.SlaveID > 247 {
			return nil, fmt.Errorf("modbus endpoint %q: slave id %d out of range", name, cfg.SlaveID)
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = 2 * time.Second
		}
		if cfg.RTU && cfg.BaudRate == 0 {
			cfg.BaudRate = 9600
		}

		b.endpoints[name] = &endpoint{
			cfg:     cfg,
			breaker: newBreaker(name, b.logger),
		}
	}
	return b, nil
}

func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "modbus-" + name,
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
				Msg("Modbus circuit breaker state change")
		},
	})
}

// pointAddr is a parsed modbus point address.
type pointAddr struct {
	table string // coil, di, hr, ir
	num   uint16
}

// parseAddr parses "coil:12", "di:3", "hr:100", "ir:7".
func parseAddr(address string) (pointAddr, error) {
	table, numStr, ok := strings.Cut(address, ":")
	if !ok {
		return pointAddr{}, fmt.Errorf("%w: modbus address %q, want table:number", domain.ErrPointInvalid, address)
	}
	switch table {
	case "coil", "di", "hr", "ir":
	default:
		return pointAddr{}, fmt.Errorf("%w: unknown modbus table %q", domain.ErrPointInvalid, table)
	}
	num, err := strconv.ParseUint(numStr, 10, 16)
	if err != nil {
		return pointAddr{}, fmt.Errorf("%w: modbus address %q: %v", domain.ErrPointInvalid, address, err)
	}
	return pointAddr{table: table, num: uint16(num)}, nil
}

func (b *Backend) endpointFor(name string) (*endpoint, error) {
	ep, ok := b.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: modbus endpoint %q", domain.ErrEndpointNotFound, name)
	}
	return ep, nil
}

// Read reads one point. Coils and discrete inputs return 0/1; holding and
// input registers return the raw register value for analog scaling upstream.
func (b *Backend) Read(ctx context.Context, endpointName, address string) (float64, error) {
	ep, err := b.endpointFor(endpointName)
	if err != nil {
		return 0, err
	}
	addr, err := parseAddr(address)
	if err != nil {
		return 0, err
	}

	out, err := ep.execute(ctx, func(c modbus.Client) ([]byte, error) {
		switch addr.table {
		case "coil":
			return c.ReadCoils(addr.num, 1)
		case "di":
			return c.ReadDiscreteInputs(addr.num, 1)
		case "hr":
			return c.ReadHoldingRegisters(addr.num, 1)
		default:
			return c.ReadInputRegisters(addr.num, 1)
		}
	})
	if err != nil {
		return 0, err
	}

	switch addr.table {
	case "coil", "di":
		if len(out) < 1 {
			return 0, fmt.Errorf("%w: empty modbus response for %q", domain.ErrPointInvalid, address)
		}
		if out[0]&0x01 != 0 {
			return 1, nil
		}
		return 0, nil
	default:
		if len(out) < 2 {
			return 0, fmt.Errorf("%w: short modbus response for %q", domain.ErrPointInvalid, address)
		}
		return float64(uint16(out[0])<<8 | uint16(out[1])), nil
	}
}

// Write writes one point. Only coils and holding registers are writable.
func (b *Backend) Write(ctx context.Context, endpointName, address string, value float64) error {
	ep, err := b.endpointFor(endpointName)
	if err != nil {
		return err
	}
	addr, err := parseAddr(address)
	if err != nil {
		return err
	}

	_, err = ep.execute(ctx, func(c modbus.Client) ([]byte, error) {
		switch addr.table {
		case "coil":
			coil := uint16(0x0000)
			if value != 0 {
				coil = 0xFF00
			}
			return c.WriteSingleCoil(addr.num, coil)
		case "hr":
			return c.WriteSingleRegister(addr.num, uint16(value))
		default:
			return nil, fmt.Errorf("%w: modbus table %q is read-only", domain.ErrPointNotWritable, addr.table)
		}
	})
	return err
}

// Close disconnects every endpoint.
func (b *Backend) Close() error {
	var first error
	for name, ep := range b.endpoints {
		ep.mu.Lock()
		if ep.handler != nil {
			if err := ep.handler.Close(); err != nil && first == nil {
				first = fmt.Errorf("modbus endpoint %q: %w", name, err)
			}
			ep.handler = nil
			ep.client = nil
		}
		ep.mu.Unlock()
	}
	return first
}

// execute runs one request through the endpoint's breaker, connecting on
// demand and dropping the connection on failure so the next call redials.
func (ep *endpoint) execute(ctx context.Context, op func(modbus.Client) ([]byte, error)) ([]byte, error) {
	out, err := ep.breaker.Execute(func() (interface{}, error) {
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

		res, err := op(ep.client)
		if err != nil {
			ep.handler.Close()
			ep.handler = nil
			ep.client = nil
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %v", domain.ErrCircuitBreakerOpen, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

// connect dials the endpoint. Caller holds ep.mu.
func (ep *endpoint) connect() error {
	if ep.cfg.RTU {
		h := modbus.NewRTUClientHandler(ep.cfg.Address)
		h.BaudRate = ep.cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = ep.cfg.SlaveID
		h.Timeout = ep.cfg.Timeout
		if err := h.Connect(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
		}
		ep.handler = h
		ep.client = modbus.NewClient(h)
		return nil
	}

	h := modbus.NewTCPClientHandler(ep.cfg.Address)
	h.SlaveId = ep.cfg.SlaveID
	h.Timeout = ep.cfg.Timeout
	if err := h.Connect(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	ep.handler = h
	ep.client = modbus.NewClient(h)
	return nil
}
