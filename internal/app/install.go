package app

import (
	"context"
	"fmt"
	"os"

	"am/internal/domain"
	"am/internal/metrics"
)

// Installer makes release binaries available in the install cache.
type Installer struct {
	resolver   domain.VersionResolver
	downloader domain.Downloader
	extractor  domain.Extractor
	store      domain.InstallStore
	locker     domain.Locker
	logger     domain.Logger
	metrics    *metrics.Metrics
}

// NewInstaller creates an Installer. m may be nil.
func NewInstaller(
	rv domain.VersionResolver,
	dl domain.Downloader,
	ex domain.Extractor,
	st domain.InstallStore,
	lk domain.Locker,
	lg domain.Logger,
	m *metrics.Metrics,
) *Installer {
	return &Installer{
		resolver:   rv,
		downloader: dl,
		extractor:  ex,
		store:      st,
		locker:     lk,
		logger:     lg,
		metrics:    m,
	}
}

// EnsureInstalled returns the binary path of target, installing it first
// if needed. An empty version resolves to the latest release. A cached
// install is never downloaded again.
func (i *Installer) EnsureInstalled(ctx context.Context, target domain.InstallTarget) (string, error) {
	if target.Version == "" {
		v, err := i.resolver.Latest(ctx, target.Owner, target.Repo)
		if err != nil {
			return "", err
		}
		i.logger.Info("resolved latest release", "repo", target.Repo, "version", v)
		target.Version = v
	}

	if i.store.IsInstalled(target) {
		i.logger.Debug("using cached install", "key", target.CacheKey())
		i.observe(target, "cached")
		return i.store.BinaryPath(target), nil
	}

	unlock, err := i.locker.Lock(ctx, i.store.LockPath(target.CacheKey()))
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", target.CacheKey(), err)
	}
	defer func() {
		if err := unlock(); err != nil {
			i.logger.Warn("release install lock failed", "key", target.CacheKey(), "err", err)
		}
	}()

	// Another process may have finished while we waited for the lock.
	if i.store.IsInstalled(target) {
		i.observe(target, "cached")
		return i.store.BinaryPath(target), nil
	}

	if err := i.install(ctx, target); err != nil {
		i.observe(target, "failed")
		return "", err
	}
	i.observe(target, "installed")
	i.logger.Info("installed release", "repo", target.Repo, "version", target.Version, "dir", i.store.InstallDir(target))
	return i.store.BinaryPath(target), nil
}

func (i *Installer) install(ctx context.Context, target domain.InstallTarget) error {
	archive, cleanup, err := i.downloader.Download(ctx, target)
	if err != nil {
		return err
	}
	defer cleanup()

	staging, err := i.store.StagingDir(target)
	if err != nil {
		return err
	}
	if err := i.extractor.Extract(archive, target, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	return i.store.Commit(staging, target)
}

func (i *Installer) observe(target domain.InstallTarget, result string) {
	if i.metrics == nil {
		return
	}
	i.metrics.Installs.WithLabelValues(target.Repo, result).Inc()
}
