package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Overpass  OverpassConfig  `mapstructure:"overpass"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	RequestTimeout int `mapstructure:"request_timeout"`
}

type OverpassConfig struct {
	// Servers is filled from OSM_SERVERS or overpass.servers, see ParseServers.
	// There is no default; an empty pool fails validation.
	Servers []string `mapstructure:"-"`
	// Attempts per query; zero means one per server.
	Attempts          int     `mapstructure:"attempts"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	SleepBetweenCalls int     `mapstructure:"sleep_between_calls_ms"`
	CellSizeKm        float64 `mapstructure:"cell_size_km"`
	MaxCells          int     `mapstructure:"max_cells"`
	UserAgent         string  `mapstructure:"user_agent"`
}

// Timeout is the per-request deadline for one interpreter call.
func (o OverpassConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// Sleep is the pause between tiled cell queries.
func (o OverpassConfig) Sleep() time.Duration {
	return time.Duration(o.SleepBetweenCalls) * time.Millisecond
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 190)
	v.SetDefault("server.request_timeout", 180)
	v.SetDefault("overpass.attempts", 0)
	v.SetDefault("overpass.timeout_seconds", 60)
	v.SetDefault("overpass.sleep_between_calls_ms", 0)
	v.SetDefault("overpass.cell_size_km", 0)
	v.SetDefault("overpass.max_cells", 400)
	v.SetDefault("overpass.user_agent", "streetblock/1.0")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: STREETBLOCK_OVERPASS_ATTEMPTS → overpass.attempts
	v.SetEnvPrefix("STREETBLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("overpass.servers", "STREETBLOCK_OVERPASS_SERVERS", "OSM_SERVERS")
	_ = v.BindEnv("log.level", "STREETBLOCK_LOG_LEVEL", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Overpass.Servers = ParseServers(v.Get("overpass.servers"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var serverSeparator = regexp.MustCompile(`\s*[,;\s]\s*`)

// ParseServers turns a delimited string (commas, semicolons or whitespace)
// or a list into an ordered list of non-empty server urls.
func ParseServers(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = []string{v}
	case []string:
		parts = v
	case []any:
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	var out []string
	for _, p := range parts {
		for _, s := range serverSeparator.Split(strings.TrimSpace(p), -1) {
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}
	if len(c.Overpass.Servers) == 0 {
		errs = append(errs, "overpass.servers (or OSM_SERVERS) must list at least one interpreter url")
	}
	for _, s := range c.Overpass.Servers {
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			errs = append(errs, fmt.Sprintf("overpass server %q must be an http(s) url", s))
		}
	}
	if c.Overpass.Attempts < 0 {
		errs = append(errs, "overpass.attempts must not be negative")
	}
	if c.Overpass.TimeoutSeconds <= 0 {
		errs = append(errs, "overpass.timeout_seconds must be positive")
	}
	if c.Overpass.SleepBetweenCalls < 0 {
		errs = append(errs, "overpass.sleep_between_calls_ms must not be negative")
	}
	if c.Overpass.CellSizeKm < 0 {
		errs = append(errs, "overpass.cell_size_km must not be negative")
	}
	if c.Overpass.MaxCells <= 0 {
		errs = append(errs, "overpass.max_cells must be positive")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
