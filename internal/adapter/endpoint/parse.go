// Package endpoint parses the metrics endpoints given on the command line
// or in am.toml and probes them before startup.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode"

	"am/internal/domain"
)

// DefaultMetricsPath replaces an empty or root path.
const DefaultMetricsPath = "/metrics"

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Parse normalizes an endpoint string. Accepted forms:
//
//	:3000                    -> http://localhost:3000/metrics
//	localhost:3030           -> http://localhost:3030/metrics
//	localhost:3030/api/stats -> http://localhost:3030/api/stats
//	https://10.0.0.1         -> https://10.0.0.1:443/metrics
//
// The result always has an explicit port and a non-root path. Only http
// and https are accepted.
func Parse(raw string) (*url.URL, error) {
	u, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "endpoint", Err: fmt.Errorf("%q: %w", raw, err)}
	}
	return u, nil
}

func parse(s string) (*url.URL, error) {
	if s == "" {
		return nil, errors.New("empty endpoint")
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return nil, errors.New("contains whitespace")
	}
	if strings.HasPrefix(s, ":") {
		s = "localhost" + s
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	defaultPort, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q, want http or https", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	if u.User != nil {
		return nil, errors.New("credentials in endpoint URLs are not supported")
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), defaultPort)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultMetricsPath
		u.RawPath = ""
	}
	u.Fragment = ""
	return u, nil
}

// Spec is an endpoint as configured, before parsing.
type Spec struct {
	URL            string
	JobName        string
	HonorLabels    bool
	ScrapeInterval time.Duration
}

// Resolve parses specs in order. An empty job name becomes am_<index>.
// Job names must be unique.
func Resolve(specs []Spec) ([]domain.Endpoint, error) {
	endpoints := make([]domain.Endpoint, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		u, err := Parse(spec.URL)
		if err != nil {
			return nil, err
		}
		job := spec.JobName
		if job == "" {
			job = fmt.Sprintf("am_%d", i)
		}
		if seen[job] {
			return nil, &domain.ConfigurationError{Field: "endpoint", Err: fmt.Errorf("duplicate job name %q", job)}
		}
		seen[job] = true
		if spec.ScrapeInterval < 0 {
			return nil, &domain.ConfigurationError{Field: "endpoint", Err: fmt.Errorf("%s: negative scrape interval", job)}
		}
		endpoints = append(endpoints, domain.Endpoint{
			URL:            u,
			JobName:        job,
			HonorLabels:    spec.HonorLabels,
			ScrapeInterval: spec.ScrapeInterval,
		})
	}
	return endpoints, nil
}

// ParseAll parses plain endpoint strings with default job names.
func ParseAll(raws []string) ([]domain.Endpoint, error) {
	specs := make([]Spec, len(raws))
	for i, raw := range raws {
		specs[i] = Spec{URL: raw}
	}
	return Resolve(specs)
}
