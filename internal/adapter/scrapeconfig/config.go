// Package scrapeconfig renders the Prometheus configuration for a run.
package scrapeconfig

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"am/internal/domain"
)

// DefaultInterval is used for both the global scrape and evaluation
// intervals when none is configured.
const DefaultInterval = 15 * time.Second

// PushgatewayJob is the job scraping the local Pushgateway.
const PushgatewayJob = "am_pushgateway"

// Config is the subset of the Prometheus configuration file am generates.
type Config struct {
	Global        Global         `yaml:"global"`
	RuleFiles     []string       `yaml:"rule_files,omitempty"`
	ScrapeConfigs []ScrapeConfig `yaml:"scrape_configs"`
}

// Global holds the global section.
type Global struct {
	ScrapeInterval     model.Duration `yaml:"scrape_interval"`
	EvaluationInterval model.Duration `yaml:"evaluation_interval"`
}

// ScrapeConfig is a single scrape job.
type ScrapeConfig struct {
	JobName        string         `yaml:"job_name"`
	StaticConfigs  []StaticConfig `yaml:"static_configs"`
	MetricsPath    string         `yaml:"metrics_path"`
	Scheme         string         `yaml:"scheme"`
	Params         url.Values     `yaml:"params,omitempty"`
	HonorLabels    bool           `yaml:"honor_labels"`
	ScrapeInterval model.Duration `yaml:"scrape_interval,omitempty"`
}

// StaticConfig lists scrape targets as host:port.
type StaticConfig struct {
	Targets []string `yaml:"targets"`
}

// Build converts endpoints into a Config. Endpoints are expected to be
// normalized, with an explicit port and path.
func Build(endpoints []domain.Endpoint, opts domain.ScrapeOptions) Config {
	cfg := Config{
		Global: Global{
			ScrapeInterval:     model.Duration(orDefault(opts.ScrapeInterval)),
			EvaluationInterval: model.Duration(orDefault(opts.EvaluationInterval)),
		},
		RuleFiles: opts.RuleFiles,
	}

	for _, ep := range endpoints {
		sc := ScrapeConfig{
			JobName:        ep.JobName,
			StaticConfigs:  []StaticConfig{{Targets: []string{ep.URL.Host}}},
			MetricsPath:    ep.URL.Path,
			Scheme:         ep.URL.Scheme,
			HonorLabels:    ep.HonorLabels,
			ScrapeInterval: model.Duration(ep.ScrapeInterval),
		}
		if q := ep.URL.Query(); len(q) > 0 {
			sc.Params = q
		}
		cfg.ScrapeConfigs = append(cfg.ScrapeConfigs, sc)
	}

	if opts.PushgatewayTarget != "" {
		cfg.ScrapeConfigs = append(cfg.ScrapeConfigs, ScrapeConfig{
			JobName:       PushgatewayJob,
			StaticConfigs: []StaticConfig{{Targets: []string{opts.PushgatewayTarget}}},
			MetricsPath:   "/metrics",
			Scheme:        "http",
			HonorLabels:   true,
		})
	}
	return cfg
}

// Writer renders Config documents as YAML.
type Writer struct{}

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write renders the configuration for endpoints to w.
func (*Writer) Write(w io.Writer, endpoints []domain.Endpoint, opts domain.ScrapeOptions) error {
	if _, err := io.WriteString(w, "# Generated by am. Changes are overwritten on the next start.\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Build(endpoints, opts)); err != nil {
		return fmt.Errorf("encode scrape config: %w", err)
	}
	return enc.Close()
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}
