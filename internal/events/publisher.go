// Package events delivers fault transition events to downstream consumers.
// The MQTT publisher is fire-and-forget with a bounded buffer: a slow or
// absent broker drops events rather than backing pressure into the
// reconciliation cycle.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// PublisherConfig holds MQTT publisher configuration.
type PublisherConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	BufferSize     int
	Retain         bool
}

// DefaultPublisherConfig returns a PublisherConfig with sensible defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "pou-con",
		TopicPrefix:    "pou/events",
		QoS:            1,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
		BufferSize:     1000,
	}
}

// Publisher publishes fault transitions to
// {prefix}/fault/{equipment-name} as JSON.
type Publisher struct {
	config    PublisherConfig
	client    pahomqtt.Client
	logger    zerolog.Logger
	connected atomic.Bool
	buffer    chan domain.FaultEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
}

// NewPublisher creates an MQTT fault event publisher. Call Connect before
// handing it to controllers.
func NewPublisher(config PublisherConfig, logger zerolog.Logger) *Publisher {
	def := DefaultPublisherConfig()
	if config.TopicPrefix == "" {
		config.TopicPrefix = def.TopicPrefix
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = def.KeepAlive
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = def.PublishTimeout
	}
	if config.BufferSize == 0 {
		config.BufferSize = def.BufferSize
	}

	return &Publisher{
		config: config,
		logger: logger.With().Str("component", "event-publisher").Logger(),
		buffer: make(chan domain.FaultEvent, config.BufferSize),
		done:   make(chan struct{}),
	}
}

// Connect establishes the broker connection and starts the publish loop.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.config.BrokerURL)
	opts.SetClientID(p.config.ClientID)
	opts.SetKeepAlive(p.config.KeepAlive)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		p.connected.Store(true)
		p.logger.Info().Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.connected.Store(false)
		p.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	p.client = pahomqtt.NewClient(opts)

	p.logger.Info().Str("broker", p.config.BrokerURL).Msg("Connecting to MQTT broker")
	token := p.client.Connect()

	connectDone := make(chan bool, 1)
	go func() {
		connectDone <- token.WaitTimeout(p.config.ConnectTimeout)
	}()
	select {
	case ok := <-connectDone:
		if !ok {
			return fmt.Errorf("mqtt connect: timeout after %s", p.config.ConnectTimeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	p.connected.Store(true)

	p.wg.Add(1)
	go p.publishLoop()
	return nil
}

// Close drains the buffer and disconnects.
func (p *Publisher) Close() {
	close(p.done)
	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
	p.connected.Store(false)

	if n := p.dropped.Load(); n > 0 {
		p.logger.Warn().Uint64("dropped", n).Msg("Fault events dropped during session")
	}
	p.logger.Info().Msg("Event publisher closed")
}

// FaultTransition queues the event for publishing. Never blocks: when the
// buffer is full the event is dropped and counted.
func (p *Publisher) FaultTransition(ev domain.FaultEvent) {
	select {
	case p.buffer <- ev:
	default:
		p.dropped.Add(1)
		p.logger.Warn().Str("equipment", ev.Equipment).Msg("Event buffer full, dropping fault event")
	}
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for {
		select {
		case ev := <-p.buffer:
			p.publish(ev)
		case <-p.done:
			// Drain whatever is queued before shutting down.
			for {
				select {
				case ev := <-p.buffer:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(ev domain.FaultEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Msg("Fault event serialization failed")
		return
	}

	topic := fmt.Sprintf("%s/fault/%s", p.config.TopicPrefix, ev.Equipment)
	token := p.client.Publish(topic, p.config.QoS, p.config.Retain, payload)
	if !token.WaitTimeout(p.config.PublishTimeout) {
		p.dropped.Add(1)
		p.logger.Warn().Str("topic", topic).Msg("Fault event publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		p.dropped.Add(1)
		p.logger.Warn().Err(err).Str("topic", topic).Msg("Fault event publish failed")
	}
}
