// Package config provides configuration management for the equipment
// controller. It supports environment variables, config files (YAML/JSON),
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	// Environment is the deployment environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// EquipmentConfigPath is the path to the equipment catalog file
	EquipmentConfigPath string `mapstructure:"equipment_config_path"`

	// HTTP server configuration
	HTTP HTTPConfig `mapstructure:"http"`

	// MQTT fault event publishing
	MQTT MQTTConfig `mapstructure:"mqtt"`

	// Interlock oracle configuration
	Interlock InterlockConfig `mapstructure:"interlock"`

	// Gateway endpoint catalogs per backend
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Polling configuration
	Polling PollingConfig `mapstructure:"polling"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// MQTTConfig holds the fault event publisher configuration. Publishing is
// optional; an empty broker URL disables it.
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	BufferSize     int           `mapstructure:"buffer_size"`
}

// InterlockConfig holds the interlock oracle configuration. With no base
// URL every start is permitted.
type InterlockConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GatewayConfig holds the per-backend endpoint catalogs.
type GatewayConfig struct {
	// PointTimeout bounds a single point read or write.
	PointTimeout time.Duration `mapstructure:"point_timeout"`

	Modbus map[string]ModbusEndpoint `mapstructure:"modbus"`
	S7     map[string]S7Endpoint     `mapstructure:"s7"`
	OPCUA  map[string]OPCUAEndpoint  `mapstructure:"opcua"`

	// VirtualSeed sets initial virtual point values at boot.
	VirtualSeed map[string]float64 `mapstructure:"virtual_seed"`
}

// ModbusEndpoint describes one Modbus device connection.
type ModbusEndpoint struct {
	Address  string        `mapstructure:"address"`
	SlaveID  int           `mapstructure:"slave_id"`
	RTU      bool          `mapstructure:"rtu"`
	BaudRate int           `mapstructure:"baud_rate"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// S7Endpoint describes one S7 PLC connection.
type S7Endpoint struct {
	Address string        `mapstructure:"address"`
	Rack    int           `mapstructure:"rack"`
	Slot    int           `mapstructure:"slot"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OPCUAEndpoint describes one OPC UA server connection.
type OPCUAEndpoint struct {
	EndpointURL    string        `mapstructure:"endpoint_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PollingConfig holds the controller poll loop configuration.
type PollingConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	TimeFormat string `mapstructure:"time_format"`
}

// Load loads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pou-con")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and env vars only.
	}

	v.SetEnvPrefix("POUCON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("equipment_config_path", "./config/equipment.yaml")

	// HTTP
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "pou-con")
	v.SetDefault("mqtt.topic_prefix", "pou/events")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", 30*time.Second)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)
	v.SetDefault("mqtt.buffer_size", 1000)

	// Interlock
	v.SetDefault("interlock.base_url", "")
	v.SetDefault("interlock.timeout", 1*time.Second)

	// Gateway
	v.SetDefault("gateway.point_timeout", 2*time.Second)

	// Polling
	v.SetDefault("polling.default_interval", 500*time.Millisecond)
	v.SetDefault("polling.shutdown_timeout", 10*time.Second)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// bindEnvVars binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("environment", "ENVIRONMENT")
	_ = v.BindEnv("equipment_config_path", "EQUIPMENT_CONFIG_PATH")

	_ = v.BindEnv("http.port", "HTTP_PORT")

	_ = v.BindEnv("mqtt.enabled", "MQTT_ENABLED")
	_ = v.BindEnv("mqtt.broker_url", "MQTT_BROKER_URL")
	_ = v.BindEnv("mqtt.username", "MQTT_USERNAME")
	_ = v.BindEnv("mqtt.password", "MQTT_PASSWORD")
	_ = v.BindEnv("mqtt.client_id", "MQTT_CLIENT_ID")

	_ = v.BindEnv("interlock.base_url", "INTERLOCK_BASE_URL")

	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT broker URL is required when MQTT is enabled")
	}
	if c.Polling.DefaultInterval <= 0 {
		return fmt.Errorf("polling default interval must be positive")
	}
	for name, ep := range c.Gateway.Modbus {
		if ep.Address == "" {
			return fmt.Errorf("modbus endpoint %q: address is required", name)
		}
		if ep.SlaveID <= 0 || ep.SlaveID > 247 {
			return fmt.Errorf("modbus endpoint %q: slave id %d out of range", name, ep.SlaveID)
		}
	}
	for name, ep := range c.Gateway.S7 {
		if ep.Address == "" {
			return fmt.Errorf("s7 endpoint %q: address is required", name)
		}
	}
	for name, ep := range c.Gateway.OPCUA {
		if ep.EndpointURL == "" {
			return fmt.Errorf("opcua endpoint %q: endpoint url is required", name)
		}
	}
	return nil
}
