// Package main is the entry point for the poultry house equipment
// controller. It wires the point gateway backends, the interlock oracle,
// fault event sinks and the per-equipment controllers, then serves the
// command and status API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tankwanghow/pou-con-sub002/internal/api"
	"github.com/tankwanghow/pou-con-sub002/internal/config"
	"github.com/tankwanghow/pou-con-sub002/internal/controller"
	"github.com/tankwanghow/pou-con-sub002/internal/domain"
	"github.com/tankwanghow/pou-con-sub002/internal/events"
	"github.com/tankwanghow/pou-con-sub002/internal/gateway"
	modbusgw "github.com/tankwanghow/pou-con-sub002/internal/gateway/modbus"
	opcuagw "github.com/tankwanghow/pou-con-sub002/internal/gateway/opcua"
	s7gw "github.com/tankwanghow/pou-con-sub002/internal/gateway/s7"
	"github.com/tankwanghow/pou-con-sub002/internal/gateway/virtual"
	"github.com/tankwanghow/pou-con-sub002/internal/health"
	"github.com/tankwanghow/pou-con-sub002/internal/interlock"
	"github.com/tankwanghow/pou-con-sub002/internal/metrics"
	"github.com/tankwanghow/pou-con-sub002/pkg/logging"
)

const (
	serviceName    = "pou-con"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, serviceVersion, logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().Str("env", cfg.Environment).Msg("Starting equipment controller")

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Point gateway with all configured backends.
	router := gateway.NewRouter(cfg.Gateway.PointTimeout, logger, metricsRegistry)

	store := virtual.NewStore(logger)
	store.Seed(cfg.Gateway.VirtualSeed)
	router.Register(domain.BackendVirtual, store)

	if len(cfg.Gateway.Modbus) > 0 {
		endpoints := make(map[string]modbusgw.EndpointConfig, len(cfg.Gateway.Modbus))
		for name, ep := range cfg.Gateway.Modbus {
			endpoints[name] = modbusgw.EndpointConfig{
				Address:  ep.Address,
				SlaveID:  byte(ep.SlaveID),
				RTU:      ep.RTU,
				BaudRate: ep.BaudRate,
				Timeout:  ep.Timeout,
			}
		}
		backend, err := modbusgw.New(endpoints, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build modbus backend")
		}
		router.Register(domain.BackendModbusTCP, backend)
		router.Register(domain.BackendModbusRTU, backend)
	}

	if len(cfg.Gateway.S7) > 0 {
		endpoints := make(map[string]s7gw.EndpointConfig, len(cfg.Gateway.S7))
		for name, ep := range cfg.Gateway.S7 {
			endpoints[name] = s7gw.EndpointConfig{
				Address: ep.Address,
				Rack:    ep.Rack,
				Slot:    ep.Slot,
				Timeout: ep.Timeout,
			}
		}
		backend, err := s7gw.New(endpoints, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build s7 backend")
		}
		router.Register(domain.BackendS7, backend)
	}

	if len(cfg.Gateway.OPCUA) > 0 {
		endpoints := make(map[string]opcuagw.EndpointConfig, len(cfg.Gateway.OPCUA))
		for name, ep := range cfg.Gateway.OPCUA {
			endpoints[name] = opcuagw.EndpointConfig{
				EndpointURL:    ep.EndpointURL,
				Username:       ep.Username,
				Password:       ep.Password,
				RequestTimeout: ep.RequestTimeout,
			}
		}
		backend, err := opcuagw.New(endpoints, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build opcua backend")
		}
		router.Register(domain.BackendOPCUA, backend)
	}

	// Interlock oracle. No configured service means every start is allowed.
	var oracle domain.InterlockOracle = interlock.Static{Allow: true}
	if cfg.Interlock.BaseURL != "" {
		oracle = interlock.NewHTTPOracle(cfg.Interlock.BaseURL, cfg.Interlock.Timeout, logger)
	}

	// Fault event sinks. The log sink is always on; MQTT is optional.
	sinks := events.Multi{events.NewLogSink(logger)}
	var publisher *events.Publisher
	if cfg.MQTT.Enabled {
		publisher = events.NewPublisher(events.PublisherConfig{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			KeepAlive:      cfg.MQTT.KeepAlive,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
			BufferSize:     cfg.MQTT.BufferSize,
		}, logger)
		if err := publisher.Connect(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect MQTT publisher")
		}
		sinks = append(sinks, publisher)
	}

	// Equipment catalog and controllers.
	supervisor := controller.NewSupervisor(router, oracle, sinks, logger, metricsRegistry)

	equipment, err := config.LoadEquipment(cfg.EquipmentConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.EquipmentConfigPath).Msg("Failed to load equipment catalog")
	}
	for _, eq := range equipment {
		if eq.PollInterval == 0 {
			eq.PollInterval = cfg.Polling.DefaultInterval
		}
		if _, err := supervisor.Add(eq); err != nil {
			logger.Fatal().Err(err).Str("equipment", eq.Name).Msg("Failed to register equipment")
		}
	}

	if err := supervisor.StartAll(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start equipment controllers")
	}
	logger.Info().Int("equipment", len(equipment)).Msg("All equipment controllers running")

	// Health checks.
	healthChecker := health.NewChecker(health.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	})
	healthChecker.AddCheck("controllers", health.CheckerFunc(func(context.Context) error {
		states := supervisor.StatusAll()
		if len(states) == 0 {
			return fmt.Errorf("no equipment controllers registered")
		}
		return nil
	}))

	// HTTP surface.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(supervisor, logger).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Polling.ShutdownTimeout)
	defer shutdownCancel()

	supervisor.StopAll()
	cancel()

	if publisher != nil {
		publisher.Close()
	}
	if err := router.Close(); err != nil {
		logger.Warn().Err(err).Msg("Gateway close reported errors")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("Equipment controller stopped")
}
