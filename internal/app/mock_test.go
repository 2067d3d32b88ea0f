package app

import (
	"context"
	"io"
	"net/netip"
	"path/filepath"
	"sync"
	"time"

	"am/internal/domain"
)

// mockLogger records log messages by level.
type mockLogger struct {
	mu      sync.Mutex
	entries []string
}

func (m *mockLogger) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, level+": "+msg)
}

func (m *mockLogger) Debug(msg string, args ...any) { m.record("debug", msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.record("info", msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.record("warn", msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.record("error", msg) }

func (m *mockLogger) has(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e == level+": "+msg {
			return true
		}
	}
	return false
}

// mockResolver returns a fixed version.
type mockResolver struct {
	version string
	err     error
	calls   int
}

func (m *mockResolver) Latest(_ context.Context, owner, repo string) (string, error) {
	m.calls++
	return m.version, m.err
}

// mockStore is an in-memory InstallStore rooted at dir.
type mockStore struct {
	mu        sync.Mutex
	dir       string
	installed map[string]bool
	records   []domain.InstallRecord
	removed   []string
	leftovers []domain.Leftover
	cleared   []string
}

func newMockStore(dir string) *mockStore {
	return &mockStore{dir: dir, installed: make(map[string]bool)}
}

func (m *mockStore) IsInstalled(t domain.InstallTarget) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installed[t.CacheKey()]
}
func (m *mockStore) InstallDir(t domain.InstallTarget) string {
	return filepath.Join(m.dir, t.CacheKey())
}
func (m *mockStore) BinaryPath(t domain.InstallTarget) string {
	return filepath.Join(m.InstallDir(t), t.BinaryName())
}
func (m *mockStore) StagingDir(t domain.InstallTarget) (string, error) {
	return filepath.Join(m.dir, ".staging-"+t.CacheKey()), nil
}
func (m *mockStore) Commit(_ string, t domain.InstallTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installed[t.CacheKey()] = true
	return nil
}
func (m *mockStore) List() ([]domain.InstallRecord, error) { return m.records, nil }
func (m *mockStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	return nil
}
func (m *mockStore) Leftovers() ([]domain.Leftover, error) { return m.leftovers, nil }
func (m *mockStore) RemoveLeftover(l domain.Leftover) error {
	m.cleared = append(m.cleared, l.Path)
	return nil
}
func (m *mockStore) LockPath(key string) string {
	return filepath.Join(m.dir, ".locks", key+".lock")
}

// mockLocker records lock paths and hands out no-op unlocks. Paths in
// busy fail TryLock.
type mockLocker struct {
	mu    sync.Mutex
	paths []string
	held  int
	busy  map[string]bool
}

func (m *mockLocker) Lock(_ context.Context, path string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	m.held++
	return m.unlock, nil
}

func (m *mockLocker) TryLock(path string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[path] {
		return nil, domain.ErrLockHeld
	}
	m.paths = append(m.paths, path)
	m.held++
	return m.unlock, nil
}

func (m *mockLocker) unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held--
	return nil
}

// mockSupervisor records Run calls. runFn decides the outcome; when nil
// Run blocks until ctx is done.
type mockSupervisor struct {
	mu       sync.Mutex
	dir      string
	runFn    func(ctx context.Context, proc domain.ManagedProcess) error
	procs    []domain.ManagedProcess
	launched []time.Time
	released int
}

func (m *mockSupervisor) Prepare(proc domain.ManagedProcess) (string, func(), error) {
	return m.dir, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.released++
	}, nil
}

func (m *mockSupervisor) Run(ctx context.Context, proc domain.ManagedProcess, _ string) error {
	m.mu.Lock()
	m.procs = append(m.procs, proc)
	m.launched = append(m.launched, time.Now())
	fn := m.runFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, proc)
	}
	<-ctx.Done()
	return nil
}

func (m *mockSupervisor) calls() []domain.ManagedProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ManagedProcess(nil), m.procs...)
}

// mockWriter records what it was asked to render.
type mockWriter struct {
	mu        sync.Mutex
	endpoints []domain.Endpoint
	opts      domain.ScrapeOptions
}

func (m *mockWriter) Write(w io.Writer, endpoints []domain.Endpoint, opts domain.ScrapeOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints = endpoints
	m.opts = opts
	_, err := io.WriteString(w, "scrape_configs: []\n")
	return err
}

// mockChecker returns err for every endpoint.
type mockChecker struct {
	err error
}

func (m *mockChecker) Check(context.Context, domain.Endpoint) error { return m.err }

// fakeFrontend publishes addr after delay and then serves until ctx is
// done. A non-nil bindErr is returned without publishing.
type fakeFrontend struct {
	addr    netip.AddrPort
	delay   time.Duration
	bindErr error

	mu          sync.Mutex
	publishedAt time.Time
}

func (f *fakeFrontend) Serve(ctx context.Context, onBound func(netip.AddrPort)) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil
	}
	f.mu.Lock()
	f.publishedAt = time.Now()
	f.mu.Unlock()
	onBound(f.addr)
	<-ctx.Done()
	return nil
}
