package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"gopkg.in/yaml.v3"
)

// Config holds session manager configuration
type Config struct {
	LogLevel       string          `yaml:"log_level" default:"info"`
	ConnectTimeout time.Duration   `yaml:"connect_timeout" default:"30s"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`

	// Features restricts negotiation to the named features; empty means all.
	Features []string `yaml:"features"`
	// Streaming lists the streaming sub-features requested on every link.
	Streaming []string `yaml:"streaming"`

	EventQueueSize         int `yaml:"event_queue_size" default:"256"`
	FileTransferBufferSize int `yaml:"file_transfer_buffer_size" default:"65536"`
}

// ReconnectConfig configures automatic reconnection after a link loss
type ReconnectConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	InitialDelay time.Duration `yaml:"initial_delay" default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" default:"30s"`
	Multiplier   float64       `yaml:"multiplier" default:"2"`
	MaxRetries   int           `yaml:"max_retries" default:"0"` // 0 = unlimited
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Streaming = []string{"ecg", "acc", "ppg", "ppi", "gyro", "magnetometer"}
	return cfg
}

// Load reads a YAML config file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0")
	}
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect.initial_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay must be >= reconnect.initial_delay")
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %v", c.Reconnect.Multiplier)
	}
	if c.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("reconnect.max_retries must be >= 0")
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("event_queue_size must be > 0")
	}
	if c.FileTransferBufferSize <= 0 {
		return fmt.Errorf("file_transfer_buffer_size must be > 0")
	}
	if _, err := c.FeatureSet(); err != nil {
		return err
	}
	if _, err := c.StreamingFeatures(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
}

// FeatureSet returns the enabled features. Empty Features enables all of them.
func (c *Config) FeatureSet() (map[device.Feature]bool, error) {
	set := make(map[device.Feature]bool)
	if len(c.Features) == 0 {
		for _, f := range device.AllFeatures() {
			set[f] = true
		}
		return set, nil
	}
	for _, name := range c.Features {
		f, err := device.ParseFeature(name)
		if err != nil {
			return nil, fmt.Errorf("features: %w", err)
		}
		set[f] = true
	}
	return set, nil
}

// StreamingFeatures returns the requested streaming sub-features.
func (c *Config) StreamingFeatures() ([]device.StreamingFeature, error) {
	fs, err := device.ParseStreamingFeatures(c.Streaming)
	if err != nil {
		return nil, fmt.Errorf("streaming: %w", err)
	}
	return fs, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
