package domain

import (
	"fmt"
	"net/url"
	"time"
)

// Endpoint is a metrics endpoint that the scrape engine polls.
type Endpoint struct {
	URL            *url.URL
	JobName        string
	HonorLabels    bool
	ScrapeInterval time.Duration // zero means "use the global interval"
}

// InstallTarget identifies a versioned release archive for one platform.
type InstallTarget struct {
	Owner   string
	Repo    string
	Version string
	OS      string
	Arch    string
}

// CacheKey is the directory name of an installed target under the data dir.
func (t InstallTarget) CacheKey() string {
	return fmt.Sprintf("%s-%s", t.Repo, t.Version)
}

// ArchiveDir is the single top-level directory inside the release archive.
func (t InstallTarget) ArchiveDir() string {
	return fmt.Sprintf("%s-%s.%s-%s", t.Repo, t.Version, t.OS, t.Arch)
}

// ArchiveName is the file name of the release archive.
func (t InstallTarget) ArchiveName() string {
	return t.ArchiveDir() + ".tar.gz"
}

// BinaryName is the file name of the tool's executable inside the archive.
func (t InstallTarget) BinaryName() string {
	if t.OS == "windows" {
		return t.Repo + ".exe"
	}
	return t.Repo
}

// DownloadURL returns the archive URL below the given release host,
// e.g. https://github.com.
func (t InstallTarget) DownloadURL(base string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/v%s/%s", base, t.Owner, t.Repo, t.Version, t.ArchiveName())
}

// ChecksumURL returns the URL of the release's sha256sums.txt.
func (t InstallTarget) ChecksumURL(base string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/v%s/sha256sums.txt", base, t.Owner, t.Repo, t.Version)
}

// Backend is one of the supervised metrics programs.
type Backend struct {
	Name       string
	Target     InstallTarget
	Port       int
	PathPrefix string
}

// Fixed internal ports of the backends.
const (
	PrometheusPort  = 9090
	PushgatewayPort = 9091
)

// ManagedProcess describes a child program and the directory it runs in.
type ManagedProcess struct {
	Name       string
	BinaryPath string
	Args       []string
	// WorkDir is the parent directory of the scoped working directory.
	// Empty means the system temp dir.
	WorkDir   string
	Ephemeral bool
}

// InstallRecord describes an installed cache entry.
type InstallRecord struct {
	Key     string
	Path    string
	Size    int64
	ModTime time.Time
}

// Leftover is a temporary file or directory of an install. Key is the
// cache key it belongs to, empty when the name carries none.
type Leftover struct {
	Key  string
	Path string
}

// ScrapeOptions are the global settings of the generated scrape config.
type ScrapeOptions struct {
	ScrapeInterval     time.Duration
	EvaluationInterval time.Duration
	RuleFiles          []string
	// PushgatewayTarget is the host:port of a local Pushgateway to scrape,
	// empty when it is disabled.
	PushgatewayTarget string
}
