package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"am/internal/domain"
)

var testTarget = domain.InstallTarget{Owner: "prometheus", Repo: "prometheus", Version: "2.47.0", OS: "linux", Arch: "amd64"}

func TestPaths(t *testing.T) {
	s := NewFileStore("/data/am")
	assert.Equal(t, "/data/am/prometheus-2.47.0", s.InstallDir(testTarget))
	assert.Equal(t, "/data/am/prometheus-2.47.0/prometheus", s.BinaryPath(testTarget))
	assert.Equal(t, "/data/am/.locks/prometheus-2.47.0.lock", s.LockPath(testTarget.CacheKey()))
}

func TestStagingCommit(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "am"))
	assert.False(t, s.IsInstalled(testTarget))

	staging, err := s.StagingDir(testTarget)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "prometheus"), []byte("bin"), 0o755))

	// Not visible until committed.
	assert.False(t, s.IsInstalled(testTarget))

	require.NoError(t, s.Commit(staging, testTarget))
	assert.True(t, s.IsInstalled(testTarget))
	_, err = os.Stat(staging)
	assert.True(t, os.IsNotExist(err))
}

func TestCommit_AlreadyInstalled(t *testing.T) {
	s := NewFileStore(t.TempDir())
	require.NoError(t, os.MkdirAll(s.InstallDir(testTarget), 0o755))
	require.NoError(t, os.WriteFile(s.BinaryPath(testTarget), []byte("old"), 0o755))
	// A non-empty destination makes rename fail.
	require.NoError(t, os.WriteFile(filepath.Join(s.InstallDir(testTarget), "LICENSE"), []byte("l"), 0o644))

	staging, err := s.StagingDir(testTarget)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "prometheus"), []byte("new"), 0o755))

	require.NoError(t, s.Commit(staging, testTarget))
	data, err := os.ReadFile(s.BinaryPath(testTarget))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	_, err = os.Stat(staging)
	assert.True(t, os.IsNotExist(err))
}

func TestListRemoveLeftovers(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)

	for _, key := range []string{"pushgateway-1.6.1", "prometheus-2.47.0"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, key), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, key, "bin"), []byte("12345"), 0o755))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".locks"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".staging-prometheus-2.48.0-123"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".download-prometheus-2.48.0-456"), []byte("partial"), 0o644))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "prometheus-2.47.0", records[0].Key)
	assert.Equal(t, "pushgateway-1.6.1", records[1].Key)
	assert.Equal(t, int64(5), records[0].Size)

	require.NoError(t, s.Remove("prometheus-2.47.0"))
	records, err = s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)

	leftovers, err := s.Leftovers()
	require.NoError(t, err)
	require.Len(t, leftovers, 2)
	for _, l := range leftovers {
		assert.Equal(t, "prometheus-2.48.0", l.Key, l.Path)
		require.NoError(t, s.RemoveLeftover(l))
		_, err = os.Stat(l.Path)
		assert.True(t, os.IsNotExist(err))
	}
	_, err = os.Stat(filepath.Join(root, ".locks"))
	assert.NoError(t, err, "lock directory is kept")
}

func TestLeftovers_KeyFromStagingDir(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	target := domain.InstallTarget{Repo: "pushgateway", Version: "1.6.1"}

	dir, err := s.StagingDir(target)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".download-1234"), nil, 0o644))

	leftovers, err := s.Leftovers()
	require.NoError(t, err)
	require.Len(t, leftovers, 2)
	keys := map[string]string{}
	for _, l := range leftovers {
		keys[l.Path] = l.Key
	}
	assert.Equal(t, "pushgateway-1.6.1", keys[dir])
	assert.Equal(t, "", keys[filepath.Join(root, ".download-1234")])

	assert.Error(t, s.RemoveLeftover(domain.Leftover{Path: filepath.Join(t.TempDir(), "elsewhere")}))
}

func TestRemove_RejectsUnsafeKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())
	for _, key := range []string{"", ".locks", "../etc", `a\b`} {
		assert.Error(t, s.Remove(key), key)
	}
}

func TestList_MissingDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	records, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}
