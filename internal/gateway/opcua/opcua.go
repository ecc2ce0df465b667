// Package opcua implements the OPC UA point backend on gopcua. Points are
// addressed by node id ("ns=2;s=Fan1.Run"); digital points map to Boolean
// nodes, analogs to numeric nodes.
package opcua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// EndpointConfig describes one OPC UA server connection.
type EndpointConfig struct {
	// EndpointURL is the server URL, e.g. "opc.tcp://plc01:4840".
	EndpointURL string

	// Username and Password enable basic auth; empty means anonymous.
	Username string
	Password string

	// RequestTimeout bounds a single service call.
	RequestTimeout time.Duration
}

type endpoint struct {
	cfg     EndpointConfig
	client  *opcua.Client
	breaker *gobreaker.CircuitBreaker
	mu      sync.Mutex

	nodeMu    sync.Mutex
	nodeCache map[string]*ua.NodeID
}

// Backend serves opcua points.
type Backend struct {
	endpoints map[string]*endpoint
	logger    zerolog.Logger
}

// New builds the backend from the endpoint catalog, connecting lazily.
func New(endpoints map[string]EndpointConfig, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{
		endpoints: make(map[string]*endpoint, len(endpoints)),
		logger:    logger.With().Str("component", "opcua-backend").Logger(),
	}

	for name, cfg := range endpoints {
		if cfg.EndpointURL == "" {
			return nil, fmt.Errorf("opcua endpoint %q: endpoint url is required", name)
		}
		if cfg.RequestTimeout == 0 {
			cfg.RequestTimeout = 2 * time.Second
		}

		b.endpoints[name] = &endpoint{
			cfg:       cfg,
			nodeCache: make(map[string]*ua.NodeID),
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "opcua-" + name,
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
						Msg("OPC UA circuit breaker state change")
				},
			}),
		}
	}
	return b, nil
}

func (b *Backend) endpointFor(name string) (*endpoint, error) {
	ep, ok := b.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: opcua endpoint %q", domain.ErrEndpointNotFound, name)
	}
	return ep, nil
}

// Read reads one node value. Booleans come back as 0/1, numerics as their
// float64 conversion.
func (b *Backend) Read(ctx context.Context, endpointName, address string) (float64, error) {
	ep, err := b.endpointFor(endpointName)
	if err != nil {
		return 0, err
	}
	nodeID, err := ep.nodeID(address)
	if err != nil {
		return 0, err
	}

	var out float64
	err = ep.execute(ctx, func(ctx context.Context, c *opcua.Client) error {
		req := &ua.ReadRequest{
			TimestampsToReturn: ua.TimestampsToReturnServer,
			NodesToRead: []*ua.ReadValueID{{
				NodeID:       nodeID,
				AttributeID:  ua.AttributeIDValue,
				DataEncoding: &ua.QualifiedName{},
			}},
		}
		resp, err := c.Read(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 || resp.Results[0].Value == nil {
			return fmt.Errorf("%w: empty read result for node %q", domain.ErrPointInvalid, address)
		}
		if resp.Results[0].Status != ua.StatusOK {
			return fmt.Errorf("read node %q: status %v", address, resp.Results[0].Status)
		}
		out, err = variantToFloat(resp.Results[0].Value, address)
		return err
	})
	return out, err
}

// Write writes one node value. Digital points write Boolean variants.
func (b *Backend) Write(ctx context.Context, endpointName, address string, value float64) error {
	ep, err := b.endpointFor(endpointName)
	if err != nil {
		return err
	}
	nodeID, err := ep.nodeID(address)
	if err != nil {
		return err
	}

	variant, err := ua.NewVariant(value != 0)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPointInvalid, err)
	}

	return ep.execute(ctx, func(ctx context.Context, c *opcua.Client) error {
		req := &ua.WriteRequest{
			NodesToWrite: []*ua.WriteValue{{
				NodeID:      nodeID,
				AttributeID: ua.AttributeIDValue,
				Value: &ua.DataValue{
					EncodingMask: ua.DataValueValue,
					Value:        variant,
				},
			}},
		}
		resp, err := c.Write(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			return fmt.Errorf("write node %q: no results", address)
		}
		if resp.Results[0] != ua.StatusOK {
			return fmt.Errorf("write node %q: status %v", address, resp.Results[0])
		}
		return nil
	})
}

// Close disconnects every endpoint.
func (b *Backend) Close() error {
	for _, ep := range b.endpoints {
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close(context.Background())
			ep.client = nil
		}
		ep.mu.Unlock()
	}
	return nil
}

// nodeID parses and caches a node id string.
func (ep *endpoint) nodeID(address string) (*ua.NodeID, error) {
	ep.nodeMu.Lock()
	defer ep.nodeMu.Unlock()

	if id, ok := ep.nodeCache[address]; ok {
		return id, nil
	}
	id, err := ua.ParseNodeID(address)
	if err != nil {
		return nil, fmt.Errorf("%w: opcua node id %q: %v", domain.ErrPointInvalid, address, err)
	}
	ep.nodeCache[address] = id
	return id, nil
}

// execute runs one service call through the endpoint's breaker, connecting
// on demand and dropping the session on failure.
func (ep *endpoint) execute(ctx context.Context, op func(context.Context, *opcua.Client) error) error {
	_, err := ep.breaker.Execute(func() (interface{}, error) {
		ep.mu.Lock()
		defer ep.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ep.client == nil {
			if err := ep.connect(ctx); err != nil {
				return nil, err
			}
		}

		if err := op(ctx, ep.client); err != nil {
			ep.client.Close(context.Background())
			ep.client = nil
			return nil, err
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrCircuitBreakerOpen, err)
	}
	return err
}

// connect establishes a session. Caller holds ep.mu.
func (ep *endpoint) connect(ctx context.Context) error {
	opts := []opcua.Option{
		opcua.RequestTimeout(ep.cfg.RequestTimeout),
		opcua.SecurityMode(ua.MessageSecurityModeNone),
	}
	if ep.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(ep.cfg.Username, ep.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	client, err := opcua.NewClient(ep.cfg.EndpointURL, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotConnected, err)
	}
	ep.client = client
	return nil
}

// variantToFloat widens a read variant to float64.
func variantToFloat(v *ua.Variant, address string) (float64, error) {
	switch val := v.Value().(type) {
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case byte:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("%w: node %q returned unsupported type %T", domain.ErrPointInvalid, address, v.Value())
	}
}
