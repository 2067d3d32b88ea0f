package domain

import (
	"context"
	"io"
)

// VersionResolver finds the latest released version of a tool.
type VersionResolver interface {
	Latest(ctx context.Context, owner, repo string) (string, error)
}

// Downloader fetches a release archive into a private temp file and
// verifies it against the release checksum file. The returned cleanup
// removes the temp file; it is safe to call more than once.
type Downloader interface {
	Download(ctx context.Context, target InstallTarget) (archivePath string, cleanup func(), err error)
}

// Extractor unpacks the target binary (and adjacent files) of a verified
// archive into targetDir.
type Extractor interface {
	Extract(archivePath string, target InstallTarget, targetDir string) error
}

// InstallStore owns the version-keyed cache directory.
type InstallStore interface {
	IsInstalled(target InstallTarget) bool
	InstallDir(target InstallTarget) string
	BinaryPath(target InstallTarget) string
	// StagingDir creates a fresh directory on the same filesystem as the
	// cache so it can be renamed into place.
	StagingDir(target InstallTarget) (string, error)
	Commit(stagingDir string, target InstallTarget) error
	List() ([]InstallRecord, error)
	Remove(key string) error
	// Leftovers lists staging directories and partial downloads. They
	// belong to an install in progress as long as its key's lock is held.
	Leftovers() ([]Leftover, error)
	RemoveLeftover(l Leftover) error
	LockPath(key string) string
}

// Locker provides cross-process exclusion keyed by a lock file path.
// Lock blocks until the lock is held or ctx is done. TryLock returns
// ErrLockHeld instead of waiting.
type Locker interface {
	Lock(ctx context.Context, path string) (unlock func() error, err error)
	TryLock(path string) (unlock func() error, err error)
}

// ProcessSupervisor runs a child program to completion in a scoped
// working directory.
type ProcessSupervisor interface {
	// Prepare acquires the scoped working directory. release must always
	// be called; it removes the directory when proc.Ephemeral is set.
	Prepare(proc ManagedProcess) (dir string, release func(), err error)
	// Run spawns the child inside dir and blocks until it exits or ctx is
	// done.
	Run(ctx context.Context, proc ManagedProcess, dir string) error
}

// ConfigWriter renders the scrape engine configuration.
type ConfigWriter interface {
	Write(w io.Writer, endpoints []Endpoint, opts ScrapeOptions) error
}

// HealthChecker performs a best-effort probe of a metrics endpoint.
type HealthChecker interface {
	Check(ctx context.Context, ep Endpoint) error
}

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
