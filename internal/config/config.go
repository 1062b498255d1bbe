// Package config loads voxnav settings from a YAML file and VOXNAV_*
// environment variables. Command-line flags override both.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Transports accepted by the serve command.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"
)

// Config holds every tunable of a voxnav session.
type Config struct {
	DB       string         `yaml:"db"`
	LogLevel string         `yaml:"log_level"`
	Registry RegistryConfig `yaml:"registry"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Resolver ResolverConfig `yaml:"resolver"`
	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
}

// RegistryConfig configures the element registry.
type RegistryConfig struct {
	MaxElements   int           `yaml:"max_elements"`
	MaxAge        time.Duration `yaml:"max_age"`
	Quantum       int           `yaml:"quantum"`
	ScreenTopK    int           `yaml:"screen_top_k"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxPending    int           `yaml:"max_pending"`
}

// MatcherConfig configures the command matcher.
type MatcherConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
	MaxCorrections int     `yaml:"max_corrections"`
	MaxVocabulary  int     `yaml:"max_vocabulary"`
	Catalog        string  `yaml:"catalog"`
	WatchCatalog   bool    `yaml:"watch_catalog"`
}

// ResolverConfig configures target resolution.
type ResolverConfig struct {
	NameThreshold float64 `yaml:"name_threshold"`
	ConeAngle     float64 `yaml:"cone_angle"`
}

// EngineConfig configures event debouncing and the resolution workers.
type EngineConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
	MaxBuffer      int           `yaml:"max_buffer"`
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	LearnGate      float64       `yaml:"learn_gate"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	MCPAddr   string `yaml:"mcp_addr"`
	HTTPAddr  string `yaml:"http_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DB:       filepath.Join(defaultDir(), "voxnav.db"),
		LogLevel: "info",
		Registry: RegistryConfig{
			MaxElements:   5000,
			MaxAge:        30 * 24 * time.Hour,
			Quantum:       8,
			ScreenTopK:    10,
			StoreTimeout:  250 * time.Millisecond,
			RetryInterval: 2 * time.Second,
			MaxPending:    4096,
		},
		Matcher: MatcherConfig{
			FuzzyThreshold: 0.85,
			MaxCorrections: 1000,
			MaxVocabulary:  5000,
		},
		Resolver: ResolverConfig{
			NameThreshold: 0.7,
			ConeAngle:     45,
		},
		Engine: EngineConfig{
			DebounceWindow: 150 * time.Millisecond,
			MaxBuffer:      256,
			QueueSize:      16,
			Workers:        2,
			LearnGate:      0.6,
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			MCPAddr:   ":8080",
		},
	}
}

func defaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voxnav")
	}
	return "."
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

// Load reads the config file at path over the defaults and then applies
// environment overrides. An empty path means $VOXNAV_CONFIG, then
// DefaultPath; a missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv("VOXNAV_CONFIG"); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultPath()
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.DB = getEnv("VOXNAV_DB", c.DB)
	c.LogLevel = getEnv("VOXNAV_LOG_LEVEL", c.LogLevel)
	c.Matcher.Catalog = getEnv("VOXNAV_CATALOG", c.Matcher.Catalog)
	c.Matcher.WatchCatalog = getEnvAsBool("VOXNAV_WATCH_CATALOG", c.Matcher.WatchCatalog)
	c.Server.Transport = getEnv("VOXNAV_TRANSPORT", c.Server.Transport)
	c.Server.MCPAddr = getEnv("VOXNAV_MCP_ADDR", c.Server.MCPAddr)
	c.Server.HTTPAddr = getEnv("VOXNAV_HTTP_ADDR", c.Server.HTTPAddr)

	var errs []error
	ints := []struct {
		key string
		dst *int
	}{
		{"VOXNAV_MAX_ELEMENTS", &c.Registry.MaxElements},
		{"VOXNAV_QUANTUM", &c.Registry.Quantum},
		{"VOXNAV_SCREEN_TOP_K", &c.Registry.ScreenTopK},
		{"VOXNAV_MAX_PENDING", &c.Registry.MaxPending},
		{"VOXNAV_MAX_CORRECTIONS", &c.Matcher.MaxCorrections},
		{"VOXNAV_MAX_VOCABULARY", &c.Matcher.MaxVocabulary},
		{"VOXNAV_MAX_BUFFER", &c.Engine.MaxBuffer},
		{"VOXNAV_QUEUE_SIZE", &c.Engine.QueueSize},
		{"VOXNAV_WORKERS", &c.Engine.Workers},
	}
	for _, e := range ints {
		v, err := getEnvAsInt(e.key, *e.dst)
		errs = append(errs, err)
		*e.dst = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"VOXNAV_MAX_AGE", &c.Registry.MaxAge},
		{"VOXNAV_STORE_TIMEOUT", &c.Registry.StoreTimeout},
		{"VOXNAV_RETRY_INTERVAL", &c.Registry.RetryInterval},
		{"VOXNAV_DEBOUNCE", &c.Engine.DebounceWindow},
	}
	for _, e := range durations {
		v, err := getEnvAsDuration(e.key, *e.dst)
		errs = append(errs, err)
		*e.dst = v
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"VOXNAV_FUZZY_THRESHOLD", &c.Matcher.FuzzyThreshold},
		{"VOXNAV_NAME_THRESHOLD", &c.Resolver.NameThreshold},
		{"VOXNAV_CONE_ANGLE", &c.Resolver.ConeAngle},
		{"VOXNAV_LEARN_GATE", &c.Engine.LearnGate},
	}
	for _, e := range floats {
		v, err := getEnvAsFloat(e.key, *e.dst)
		errs = append(errs, err)
		*e.dst = v
	}
	return errors.Join(errs...)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db path cannot be empty"))
	}
	if c.Registry.MaxElements <= 0 {
		errs = append(errs, fmt.Errorf("registry.max_elements must be positive, got %d", c.Registry.MaxElements))
	}
	if c.Registry.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.store_timeout must be positive, got %s", c.Registry.StoreTimeout))
	}
	for name, v := range map[string]float64{
		"matcher.fuzzy_threshold": c.Matcher.FuzzyThreshold,
		"resolver.name_threshold": c.Resolver.NameThreshold,
		"engine.learn_gate":       c.Engine.LearnGate,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %g", name, v))
		}
	}
	if c.Resolver.ConeAngle <= 0 || c.Resolver.ConeAngle >= 90 {
		errs = append(errs, fmt.Errorf("resolver.cone_angle must be in (0, 90), got %g", c.Resolver.ConeAngle))
	}
	if c.Engine.Workers <= 0 || c.Engine.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.workers and engine.queue_size must be positive"))
	}
	if c.Server.Transport != TransportStdio && c.Server.Transport != TransportHTTP {
		errs = append(errs, fmt.Errorf("invalid transport type: %s (must be %q or %q)", c.Server.Transport, TransportStdio, TransportHTTP))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid value for %s: %q (expected integer)", key, value)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid value for %s: %q (expected number)", key, value)
	}
	return f, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid value for %s: %q (expected duration, e.g., '150ms', '2s')", key, value)
	}
	return d, nil
}
