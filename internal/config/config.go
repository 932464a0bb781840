package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/studentmarks-service/internal/protocol"
)

// Defaults applied to zero-valued fields
const (
	DefaultSourcePort    = 5000
	DefaultSourceTimeout = 2.0 // seconds
	DefaultBufferSize    = protocol.MaxResponseSize
	DefaultHTTPAddress   = "0.0.0.0"
	DefaultHTTPPort      = 8000
	DefaultAllowedOrigin = "http://localhost:3000"
	DefaultResponderBind = "127.0.0.1"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultLogOutput     = "stdout"
)

// Config represents the complete service configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	HTTP    HTTPConfig    `yaml:"http"`
	Refresh RefreshConfig `yaml:"refresh"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig describes the remote mark-list server
type SourceConfig struct {
	Host       string  `yaml:"host"`
	Port       int     `yaml:"port"`
	Timeout    float64 `yaml:"timeout"`     // seconds
	BufferSize int     `yaml:"buffer_size"` // bytes, capped at the protocol maximum
}

// HTTPConfig contains REST API server configuration
type HTTPConfig struct {
	Address        string   `yaml:"address"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RefreshConfig controls periodic reloading of the mark list
type RefreshConfig struct {
	Interval int `yaml:"interval"` // seconds, 0 disables
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Override adjusts a loaded configuration before it is validated, e.g. from
// command-line flags
type Override func(*Config)

// Load reads and parses the configuration file. Overrides run after defaults
// are applied and before validation.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyDefaults()

	for _, override := range overrides {
		override(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults fills zero-valued fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Source.Port == 0 {
		c.Source.Port = DefaultSourcePort
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}
	if c.Source.BufferSize == 0 {
		c.Source.BufferSize = DefaultBufferSize
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = DefaultHTTPAddress
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.AllowedOrigins == nil {
		c.HTTP.AllowedOrigins = []string{DefaultAllowedOrigin}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Refresh.Validate(); err != nil {
		return fmt.Errorf("refresh config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates source configuration
func (s *SourceConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %f", s.Timeout)
	}

	if s.BufferSize < protocol.CountFieldSize || s.BufferSize > protocol.MaxResponseSize {
		return fmt.Errorf("buffer_size must be between %d and %d bytes, got %d",
			protocol.CountFieldSize, protocol.MaxResponseSize, s.BufferSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	for _, origin := range h.AllowedOrigins {
		if origin == "" {
			return fmt.Errorf("allowed_origins cannot contain empty entries")
		}
	}

	return nil
}

// Validate validates refresh configuration
func (r *RefreshConfig) Validate() error {
	if r.Interval < 0 {
		return fmt.Errorf("interval cannot be negative, got %d", r.Interval)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr or a file path
	return nil
}

// Address returns the source server as host:port
func (s *SourceConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetTimeoutDuration returns the source reply timeout as a time.Duration
func (s *SourceConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout * float64(time.Second))
}

// GetIntervalDuration returns the refresh interval as a time.Duration
func (r *RefreshConfig) GetIntervalDuration() time.Duration {
	return time.Duration(r.Interval) * time.Second
}

// MarkListConfig is the configuration of the development mark-list responder
type MarkListConfig struct {
	BindAddress string                   `yaml:"bind_address"`
	Port        int                      `yaml:"port"`
	Records     []protocol.StudentRecord `yaml:"records"`
}

// LoadMarkList reads the responder configuration and the records it serves
func LoadMarkList(path string) (*MarkListConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mark list %s: %w", path, err)
	}

	var list MarkListConfig
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse mark list %s: %w", path, err)
	}

	if list.BindAddress == "" {
		list.BindAddress = DefaultResponderBind
	}
	if list.Port == 0 {
		list.Port = DefaultSourcePort
	}

	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("mark list validation failed: %w", err)
	}

	return &list, nil
}

// Validate checks that every record fits the wire format
func (m *MarkListConfig) Validate() error {
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}

	if _, err := protocol.EncodeResponse(m.Records); err != nil {
		return fmt.Errorf("records: %w", err)
	}

	return nil
}
