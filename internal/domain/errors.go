package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrChecksumNotListed means the release checksum file has no entry
	// for the downloaded archive.
	ErrChecksumNotListed = errors.New("archive not listed in checksum file")
	// ErrChecksumMismatch means the archive digest differs from the listed one.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrLockHeld means another holder owns an install lock.
	ErrLockHeld = errors.New("lock is held by another process")
)

// ConfigurationError is a fatal problem with the inputs of a run: an
// unsupported host platform, an invalid endpoint, a bad config value.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DownloadError is a failed network fetch of a release asset.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IntegrityError means downloaded bytes failed verification. Reason is one
// of ErrChecksumNotListed or ErrChecksumMismatch.
type IntegrityError struct {
	Archive  string
	Expected string
	Actual   string
	Reason   error
}

func (e *IntegrityError) Error() string {
	if errors.Is(e.Reason, ErrChecksumMismatch) {
		return fmt.Sprintf("verify %s: %v (expected %s, got %s)", e.Archive, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("verify %s: %v", e.Archive, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return e.Reason }

// UnpackError is a failure to decompress or extract a verified archive.
type UnpackError struct {
	Archive string
	Err     error
}

func (e *UnpackError) Error() string {
	return fmt.Sprintf("unpack %s: %v", e.Archive, e.Err)
}

func (e *UnpackError) Unwrap() error { return e.Err }

// SpawnError means a child process could not be started at all.
type SpawnError struct {
	Name string
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ProcessExitError is an abnormal exit of a supervised child. Stdout and
// Stderr hold the captured output.
type ProcessExitError struct {
	Name     string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ProcessExitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exited with code %d", e.Name, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\n--- stderr ---\n%s", s)
	}
	if s := strings.TrimSpace(e.Stdout); s != "" {
		fmt.Fprintf(&b, "\n--- stdout ---\n%s", s)
	}
	return b.String()
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// ProxyUpstreamError is a per-request failure to reach a backend. It is
// answered with 502 and never ends the proxy.
type ProxyUpstreamError struct {
	Route    string
	Upstream string
	Err      error
}

func (e *ProxyUpstreamError) Error() string {
	return fmt.Sprintf("proxy %s -> %s: %v", e.Route, e.Upstream, e.Err)
}

func (e *ProxyUpstreamError) Unwrap() error { return e.Err }

// EndpointHealthCheckError is a failed best-effort pre-flight probe.
type EndpointHealthCheckError struct {
	URL string
	Err error
}

func (e *EndpointHealthCheckError) Error() string {
	return fmt.Sprintf("health check %s: %v", e.URL, e.Err)
}

func (e *EndpointHealthCheckError) Unwrap() error { return e.Err }

// TaskError attributes a fatal error to the coordinator task that reported it.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
