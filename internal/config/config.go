// Package config loads stepdroid settings from defaults, an optional YAML
// file and STEPDROID_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STEPDROID_ENGINE_MAX_STEPS.
const EnvPrefix = "STEPDROID"

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DeviceConfig describes the browser-backed device surface.
type DeviceConfig struct {
	Width         int           `mapstructure:"width" yaml:"width"`
	Height        int           `mapstructure:"height" yaml:"height"`
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	ProfileDir    string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	ControlURL    string        `mapstructure:"control_url" yaml:"control_url"`
	HomeURL       string        `mapstructure:"home_url" yaml:"home_url"`
	Apps          []AppConfig   `mapstructure:"apps" yaml:"apps"`
	LoadTimeout   time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	LongPressHold time.Duration `mapstructure:"long_press_hold" yaml:"long_press_hold"`
}

// AppConfig registers the URL that launches an app identifier. A list is
// used because identifiers contain dots, which viper treats as key paths.
type AppConfig struct {
	ID  string `mapstructure:"id" yaml:"id"`
	URL string `mapstructure:"url" yaml:"url"`
}

// AppURLs returns the registered apps keyed by identifier.
func (d DeviceConfig) AppURLs() map[string]string {
	apps := make(map[string]string, len(d.Apps))
	for _, a := range d.Apps {
		apps[a.ID] = a.URL
	}
	return apps
}

// AIConfig selects the planner provider. An empty provider disables planning.
type AIConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Model             string  `mapstructure:"model" yaml:"model"`
	APIKey            string  `mapstructure:"api_key" yaml:"-"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// EngineConfig tunes dispatching and workflow interpretation.
type EngineConfig struct {
	MaxSteps            int           `mapstructure:"max_steps" yaml:"max_steps"`
	QueueSize           int           `mapstructure:"queue_size" yaml:"queue_size"`
	LaunchSettle        time.Duration `mapstructure:"launch_settle" yaml:"launch_settle"`
	Settle              time.Duration `mapstructure:"settle" yaml:"settle"`
	LongPressSettle     time.Duration `mapstructure:"long_press_settle" yaml:"long_press_settle"`
	DoubleTapGap        time.Duration `mapstructure:"double_tap_gap" yaml:"double_tap_gap"`
	VerifyDelay         time.Duration `mapstructure:"verify_delay" yaml:"verify_delay"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// RecordingConfig controls the GIF written after a run.
type RecordingConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Path      string `mapstructure:"path" yaml:"path"`
	FPS       int    `mapstructure:"fps" yaml:"fps"`
	MaxWidth  uint   `mapstructure:"max_width" yaml:"max_width"`
	MaxFrames int    `mapstructure:"max_frames" yaml:"max_frames"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stepdroid")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Device --
	v.SetDefault("device.width", 412)
	v.SetDefault("device.height", 915)
	v.SetDefault("device.headless", true)
	v.SetDefault("device.profile_dir", "")
	v.SetDefault("device.control_url", "")
	v.SetDefault("device.home_url", "about:blank")
	v.SetDefault("device.apps", []AppConfig{})
	v.SetDefault("device.load_timeout", "10s")
	v.SetDefault("device.long_press_hold", "600ms")

	// -- AI --
	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.requests_per_second", 0.5)
	v.SetDefault("ai.burst", 1)

	// -- Engine --
	v.SetDefault("engine.max_steps", 200)
	v.SetDefault("engine.queue_size", 16)
	v.SetDefault("engine.launch_settle", "2s")
	v.SetDefault("engine.settle", "500ms")
	v.SetDefault("engine.long_press_settle", "800ms")
	v.SetDefault("engine.double_tap_gap", "100ms")
	v.SetDefault("engine.verify_delay", "1s")
	v.SetDefault("engine.similarity_threshold", 0.95)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// -- Recording --
	v.SetDefault("recording.enabled", false)
	v.SetDefault("recording.path", "stepdroid-run.gif")
	v.SetDefault("recording.fps", 1)
	v.SetDefault("recording.max_width", 480)
	v.SetDefault("recording.max_frames", 500)
}

// NewViper returns a viper instance with defaults and environment overrides
// wired. A non-empty path is read as the config file.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads the configuration at path (optional) and validates it.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for sane values. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Device.Width <= 0 || c.Device.Height <= 0 {
		errs = append(errs, errors.New("device.width and device.height must be positive"))
	}
	switch c.AI.Provider {
	case "", "claude", "anthropic", "openai", "gpt":
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q is not supported", c.AI.Provider))
	}
	for i, a := range c.Device.Apps {
		if a.ID == "" || a.URL == "" {
			errs = append(errs, fmt.Errorf("device.apps[%d] needs both id and url", i))
		}
	}
	if c.AI.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("ai.requests_per_second must not be negative"))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, errors.New("engine.max_steps must be a positive integer"))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, errors.New("engine.queue_size must be a positive integer"))
	}
	if c.Engine.SimilarityThreshold <= 0 || c.Engine.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("engine.similarity_threshold must be in (0, 1]"))
	}
	if c.Recording.Enabled && c.Recording.Path == "" {
		errs = append(errs, errors.New("recording.path is required when recording is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
