package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"am/internal/domain"
)

// FileStore manages the version-keyed install cache in a directory. Each
// install lives in <dataDir>/<repo>-<version>/. Hidden entries hold locks
// and in-flight staging directories.
type FileStore struct {
	dataDir string
}

// NewFileStore creates a store rooted at dataDir.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

// Root returns the data directory.
func (s *FileStore) Root() string {
	return s.dataDir
}

// InstallDir returns the cache directory of target.
func (s *FileStore) InstallDir(target domain.InstallTarget) string {
	return filepath.Join(s.dataDir, target.CacheKey())
}

// BinaryPath returns the path of target's executable.
func (s *FileStore) BinaryPath(target domain.InstallTarget) string {
	return filepath.Join(s.InstallDir(target), target.BinaryName())
}

// IsInstalled reports whether target's binary is present in the cache.
func (s *FileStore) IsInstalled(target domain.InstallTarget) bool {
	info, err := os.Stat(s.BinaryPath(target))
	return err == nil && info.Mode().IsRegular()
}

// StagingDir creates an empty directory next to the cache entries.
func (s *FileStore) StagingDir(target domain.InstallTarget) (string, error) {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.dataDir, stagingPrefix+target.CacheKey()+"-*")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// Commit moves a fully populated staging directory into place. The rename
// is atomic, so readers never see a partial entry.
func (s *FileStore) Commit(stagingDir string, target domain.InstallTarget) error {
	dest := s.InstallDir(target)
	if err := os.Rename(stagingDir, dest); err != nil {
		if s.IsInstalled(target) {
			// Someone outside the lock protocol won the race.
			_ = os.RemoveAll(stagingDir)
			return nil
		}
		_ = os.RemoveAll(stagingDir)
		return fmt.Errorf("move %s into cache: %w", target.CacheKey(), err)
	}
	return nil
}

// List returns the installed entries sorted by key.
func (s *FileStore) List() ([]domain.InstallRecord, error) {
	entries, err := os.ReadDir(s.dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var records []domain.InstallRecord
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.dataDir, e.Name())
		records = append(records, domain.InstallRecord{
			Key:     e.Name(),
			Path:    path,
			Size:    dirSize(path),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// Remove deletes the install with the given key.
func (s *FileStore) Remove(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid install key %q", key)
	}
	return os.RemoveAll(filepath.Join(s.dataDir, key))
}

// Temp entry prefixes. Both are followed by the cache key and a random
// suffix, e.g. .staging-prometheus-2.47.0-123456.
const (
	stagingPrefix  = ".staging-"
	downloadPrefix = ".download-"
)

// Leftovers lists staging directories and partial downloads with the
// cache key parsed from their names.
func (s *FileStore) Leftovers() ([]domain.Leftover, error) {
	var out []domain.Leftover
	for _, prefix := range []string{stagingPrefix, downloadPrefix} {
		matches, err := filepath.Glob(filepath.Join(s.dataDir, prefix+"*"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			out = append(out, domain.Leftover{
				Key:  leftoverKey(strings.TrimPrefix(filepath.Base(m), prefix)),
				Path: m,
			})
		}
	}
	return out, nil
}

// RemoveLeftover deletes a temp entry. The caller holds the key's lock.
func (s *FileStore) RemoveLeftover(l domain.Leftover) error {
	if filepath.Dir(l.Path) != filepath.Clean(s.dataDir) {
		return fmt.Errorf("leftover %s is outside the data dir", l.Path)
	}
	return os.RemoveAll(l.Path)
}

// leftoverKey drops the random suffix from "<key>-<random>".
func leftoverKey(rest string) string {
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return ""
	}
	return rest[:i]
}

// LockPath returns the lock file guarding the install with the given key.
func (s *FileStore) LockPath(key string) string {
	return filepath.Join(s.dataDir, ".locks", key+".lock")
}

func dirSize(root string) int64 {
	var size int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size
}
