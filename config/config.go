package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	API        APIConfig        `json:"api"`
	Storage    StorageConfig    `json:"storage"`
	Bus        BusConfig        `json:"bus"`
	MonteCarlo MonteCarloConfig `json:"monteCarlo"`
	Logging    LogConfig        `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type APIConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	RequestTimeout string `json:"requestTimeout"` // Duration string
}

type StorageConfig struct {
	Type     string         `json:"type"` // memory, redis or postgres
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
}

type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"keyPrefix"`
	TTL       string `json:"ttl"` // Duration string, empty = records never expire
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type BusConfig struct {
	Type            string `json:"type"`            // nats, mqtt, kafka or rabbit
	EventBus        string `json:"eventBus"`        // logical bus events publish to
	InboundSubject  string `json:"inboundSubject"`  // queue carrying webhook envelopes
	OutboundSubject string `json:"outboundSubject"` // queue carrying raw security rules
	QueueGroup      string `json:"queueGroup"`      // shared consumer group for workers

	NATS   NATSConfig   `json:"nats"`
	MQTT   MQTTConfig   `json:"mqtt"`
	Kafka  KafkaConfig  `json:"kafka"`
	Rabbit RabbitConfig `json:"rabbit"`
}

type NATSConfig struct {
	URLs     []string  `json:"urls"`
	ClientID string    `json:"clientId"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	TLS      TLSConfig `json:"tls"`
}

type MQTTConfig struct {
	Broker   string    `json:"broker"`
	ClientID string    `json:"clientId"`
	Username string    `json:"username"`
	Password string    `json:"password"`
	TLS      TLSConfig `json:"tls"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"groupId"`
}

type RabbitConfig struct {
	URL string `json:"url"`
}

type TLSConfig struct {
	Enable   bool   `json:"enable"`
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
	CAFile   string `json:"caFile"`
}

type MonteCarloConfig struct {
	APIKey        string `json:"apiKey"`
	WebhookSecret string `json:"webhookSecret"`
	BaseURL       string `json:"baseUrl"`
}

type LogConfig struct {
	Level      string `json:"level"`      // debug, info, warn, error
	OutputPath string `json:"outputPath"` // file path or "stdout"
	Encoding   string `json:"encoding"`   // json or console
	MaxSize    int    `json:"maxSize"`    // megabytes before rotation
	MaxAge     int    `json:"maxAge"`     // days to retain rotated files
	MaxBackups int    `json:"maxBackups"` // rotated files to retain
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	Address        string `json:"address"`
	Path           string `json:"path"`
	UpdateInterval string `json:"updateInterval"` // Duration string
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults for the API server
	if config.API.Host == "" {
		config.API.Host = "0.0.0.0"
	}
	if config.API.Port == 0 {
		config.API.Port = 8000
	}
	if config.API.RequestTimeout == "" {
		config.API.RequestTimeout = "30s"
	}

	// Set defaults for storage
	if config.Storage.Type == "" {
		config.Storage.Type = "memory"
	}
	if config.Storage.Redis.Address == "" {
		config.Storage.Redis.Address = "localhost:6379"
	}
	if config.Storage.Redis.KeyPrefix == "" {
		config.Storage.Redis.KeyPrefix = "lily:record:"
	}

	// Set defaults for the event bus
	if config.Bus.Type == "" {
		config.Bus.Type = "nats"
	}
	if config.Bus.EventBus == "" {
		config.Bus.EventBus = "atlan-lily-bus"
	}
	if config.Bus.InboundSubject == "" {
		config.Bus.InboundSubject = "lily.inbound.events"
	}
	if config.Bus.OutboundSubject == "" {
		config.Bus.OutboundSubject = "lily.outbound.rules"
	}
	if config.Bus.QueueGroup == "" {
		config.Bus.QueueGroup = "lily-workers"
	}
	if len(config.Bus.NATS.URLs) == 0 {
		config.Bus.NATS.URLs = []string{"nats://localhost:4222"}
	}
	if config.Bus.NATS.ClientID == "" {
		config.Bus.NATS.ClientID = "lily"
	}
	if config.Bus.MQTT.ClientID == "" {
		config.Bus.MQTT.ClientID = "lily"
	}
	if config.Bus.Kafka.GroupID == "" {
		config.Bus.Kafka.GroupID = config.Bus.QueueGroup
	}

	// Set defaults for the Monte Carlo client
	if config.MonteCarlo.BaseURL == "" {
		config.MonteCarlo.BaseURL = "https://api.getmontecarlo.com/v1"
	}

	// Set defaults for logging
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.OutputPath == "" {
		config.Logging.OutputPath = "stdout"
	}
	if config.Logging.Encoding == "" {
		config.Logging.Encoding = "json"
	}
	if config.Logging.MaxSize <= 0 {
		config.Logging.MaxSize = 100
	}
	if config.Logging.MaxAge <= 0 {
		config.Logging.MaxAge = 28
	}
	if config.Logging.MaxBackups <= 0 {
		config.Logging.MaxBackups = 7
	}

	// Set defaults for metrics
	if config.Metrics.Address == "" {
		config.Metrics.Address = ":2112"
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	if config.Metrics.UpdateInterval == "" {
		config.Metrics.UpdateInterval = "15s"
	}

	// Validate the configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", cfg.API.Port)
	}
	if _, err := time.ParseDuration(cfg.API.RequestTimeout); err != nil {
		return fmt.Errorf("invalid api request timeout: %w", err)
	}

	// Validate storage config
	switch cfg.Storage.Type {
	case "memory":
	case "redis":
		if cfg.Storage.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
		if cfg.Storage.Redis.TTL != "" {
			if _, err := time.ParseDuration(cfg.Storage.Redis.TTL); err != nil {
				return fmt.Errorf("invalid redis ttl: %w", err)
			}
		}
	case "postgres":
		if cfg.Storage.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", cfg.Storage.Type)
	}

	// Validate bus config
	switch cfg.Bus.Type {
	case "nats":
		if len(cfg.Bus.NATS.URLs) == 0 {
			return fmt.Errorf("nats server urls are required")
		}
		if err := validateTLS(cfg.Bus.NATS.TLS); err != nil {
			return err
		}
	case "mqtt":
		if cfg.Bus.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker address is required")
		}
		if err := validateTLS(cfg.Bus.MQTT.TLS); err != nil {
			return err
		}
	case "kafka":
		if len(cfg.Bus.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka broker addresses are required")
		}
	case "rabbit":
		if cfg.Bus.Rabbit.URL == "" {
			return fmt.Errorf("rabbitmq url is required")
		}
	default:
		return fmt.Errorf("invalid bus type: %s", cfg.Bus.Type)
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

func validateTLS(tls TLSConfig) error {
	if !tls.Enable {
		return nil
	}
	if tls.CertFile == "" {
		return fmt.Errorf("tls cert file is required when tls is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("tls key file is required when tls is enabled")
	}
	if tls.CAFile == "" {
		return fmt.Errorf("tls ca file is required when tls is enabled")
	}
	return nil
}

// RequestTimeout returns the parsed API request timeout
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// RedisTTL returns the parsed record TTL, zero meaning no expiry
func (c *Config) RedisTTL() time.Duration {
	if c.Storage.Redis.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Storage.Redis.TTL)
	if err != nil {
		return 0
	}
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(storageType, busType, metricsAddr, metricsPath string, metricsInterval time.Duration) {
	if storageType != "" {
		c.Storage.Type = storageType
	}
	if busType != "" {
		c.Bus.Type = busType
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
}
