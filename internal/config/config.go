// Package config loads am.toml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"am/internal/adapter/endpoint"
	"am/internal/adapter/logger"
	"am/internal/domain"
)

// Config is the contents of am.toml.
type Config struct {
	ListenAddress      string   `toml:"listen_address"`
	PrometheusVersion  string   `toml:"prometheus_version"`
	PushgatewayVersion string   `toml:"pushgateway_version"`
	PushgatewayEnabled bool     `toml:"pushgateway_enabled"`
	DataDir            string   `toml:"data_dir"`
	ScrapeInterval     Duration `toml:"scrape_interval"`
	EvaluationInterval Duration `toml:"evaluation_interval"`
	RuleFiles          []string `toml:"rule_files"`

	EphemeralWorkingDirectory bool     `toml:"ephemeral_working_directory"`
	WorkingDirectory          string   `toml:"working_directory"`
	ShutdownGrace             Duration `toml:"shutdown_grace"`
	AllowedOrigins            []string `toml:"allowed_origins"`

	Endpoints []EndpointConfig `toml:"endpoints"`
	Logging   LoggingConfig    `toml:"logging"`
}

// EndpointConfig is one [[endpoints]] table.
type EndpointConfig struct {
	URL            string   `toml:"url"`
	JobName        string   `toml:"job_name"`
	HonorLabels    bool     `toml:"honor_labels"`
	ScrapeInterval Duration `toml:"scrape_interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration decodes strings such as "15s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddress:             "127.0.0.1:6789",
		ScrapeInterval:            Duration{15 * time.Second},
		EvaluationInterval:        Duration{15 * time.Second},
		EphemeralWorkingDirectory: true,
		ShutdownGrace:             Duration{10 * time.Second},
		Logging:                   LoggingConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path over the defaults, expanding ${VAR} references. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	md, err := toml.Decode(expandEnvVars(string(data)), cfg)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: path, Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &domain.ConfigurationError{Field: path, Err: fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))}
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}"))
	})
}

// ApplyEnv overrides file values with AM_* environment variables.
func (c *Config) ApplyEnv() {
	for env, field := range map[string]*string{
		"AM_LISTEN_ADDRESS":      &c.ListenAddress,
		"AM_PROMETHEUS_VERSION":  &c.PrometheusVersion,
		"AM_PUSHGATEWAY_VERSION": &c.PushgatewayVersion,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return &domain.ConfigurationError{Field: "listen_address", Err: err}
	}
	for field, d := range map[string]Duration{
		"scrape_interval":     c.ScrapeInterval,
		"evaluation_interval": c.EvaluationInterval,
		"shutdown_grace":      c.ShutdownGrace,
	} {
		if d.Duration < 0 {
			return &domain.ConfigurationError{Field: field, Err: errors.New("must not be negative")}
		}
	}
	for field, v := range map[string]string{
		"prometheus_version":  c.PrometheusVersion,
		"pushgateway_version": c.PushgatewayVersion,
	} {
		if strings.ContainsAny(v, `/\ `) {
			return &domain.ConfigurationError{Field: field, Err: fmt.Errorf("invalid version %q", v)}
		}
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return &domain.ConfigurationError{Field: "logging.level", Err: err}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "text", "json":
	default:
		return &domain.ConfigurationError{Field: "logging.format", Err: fmt.Errorf("unknown format %q", c.Logging.Format)}
	}
	if _, err := endpoint.Resolve(c.EndpointSpecs()); err != nil {
		return err
	}
	return nil
}

// EndpointSpecs converts the [[endpoints]] tables.
func (c *Config) EndpointSpecs() []endpoint.Spec {
	specs := make([]endpoint.Spec, len(c.Endpoints))
	for i, e := range c.Endpoints {
		specs[i] = endpoint.Spec{
			URL:            e.URL,
			JobName:        e.JobName,
			HonorLabels:    e.HonorLabels,
			ScrapeInterval: e.ScrapeInterval.Duration,
		}
	}
	return specs
}
