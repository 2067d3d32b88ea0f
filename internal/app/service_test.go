package app

import (
	"context"
	"errors"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"am/internal/adapter/lock"
	"am/internal/adapter/store"
	"am/internal/domain"
)

func newTestService(t *testing.T, sv *mockSupervisor, cw *mockWriter, st *mockStore, lk *mockLocker) *Service {
	t.Helper()
	in := NewInstaller(&mockResolver{}, nil, nil, st, lk, &mockLogger{}, nil)
	return NewService(in, sv, cw, &mockChecker{err: errors.New("connection refused")}, st, lk, &mockLogger{})
}

// cachedBackends returns backends whose binaries the store reports as installed.
func cachedBackends(st *mockStore, withPushgateway bool) []domain.Backend {
	backends := []domain.Backend{PrometheusBackend("2.47.0", "linux", "amd64")}
	if withPushgateway {
		backends = append(backends, PushgatewayBackend("1.6.1", "linux", "amd64"))
	}
	for _, b := range backends {
		st.installed[b.Target.CacheKey()] = true
	}
	return backends
}

func testEndpoints(t *testing.T) []domain.Endpoint {
	t.Helper()
	u, err := url.Parse("http://localhost:3000/metrics")
	if err != nil {
		t.Fatal(err)
	}
	return []domain.Endpoint{{URL: u, JobName: "am_0"}}
}

func TestStart_LaunchWaitsForReadiness(t *testing.T) {
	const delay = 150 * time.Millisecond

	st := newMockStore(t.TempDir())
	exitErr := &domain.ProcessExitError{Name: "prometheus", ExitCode: 1}
	sv := &mockSupervisor{dir: t.TempDir(), runFn: func(context.Context, domain.ManagedProcess) error { return exitErr }}
	svc := newTestService(t, sv, &mockWriter{}, st, &mockLocker{})
	fe := &fakeFrontend{addr: testAddr, delay: delay}

	start := time.Now()
	err := svc.Start(context.Background(), StartConfig{
		Endpoints: testEndpoints(t),
		Backends:  cachedBackends(st, false),
		Frontend:  fe,
		Ephemeral: true,
	})
	if !errors.Is(err, exitErr) {
		t.Fatalf("Start() = %v, want the backend exit error", err)
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()
	if len(sv.launched) != 1 {
		t.Fatalf("launched %d backends, want 1", len(sv.launched))
	}
	if waited := sv.launched[0].Sub(start); waited < delay {
		t.Errorf("backend launched after %v, before the proxy bound (%v)", waited, delay)
	}
	fe.mu.Lock()
	defer fe.mu.Unlock()
	if sv.launched[0].Before(fe.publishedAt) {
		t.Error("backend launched before the address was published")
	}
}

func TestStart_PrometheusArguments(t *testing.T) {
	st := newMockStore(t.TempDir())
	sv := &mockSupervisor{dir: t.TempDir(), runFn: func(context.Context, domain.ManagedProcess) error {
		return errors.New("stop")
	}}
	cw := &mockWriter{}
	svc := newTestService(t, sv, cw, st, &mockLocker{})

	_ = svc.Start(context.Background(), StartConfig{
		Endpoints: testEndpoints(t),
		Backends:  cachedBackends(st, false),
		Frontend:  &fakeFrontend{addr: testAddr},
		WorkDir:   "/var/tmp/am",
		Ephemeral: true,
	})

	calls := sv.calls()
	if len(calls) != 1 {
		t.Fatalf("got %d launches, want 1", len(calls))
	}
	proc := calls[0]
	if proc.Name != "prometheus" || proc.WorkDir != "/var/tmp/am" || !proc.Ephemeral {
		t.Errorf("unexpected process %+v", proc)
	}
	if proc.BinaryPath != st.BinaryPath(PrometheusBackend("2.47.0", "linux", "amd64").Target) {
		t.Errorf("binary = %q", proc.BinaryPath)
	}

	configPath := filepath.Join(sv.dir, "prometheus.yml")
	for _, want := range []string{
		"--config.file=" + configPath,
		"--web.listen-address=:9090",
		"--web.enable-lifecycle",
		"--web.enable-remote-write-receiver",
		"--web.external-url=http://127.0.0.1:6789/prometheus",
		"--storage.tsdb.path=" + filepath.Join(sv.dir, "data"),
	} {
		if !slices.Contains(proc.Args, want) {
			t.Errorf("args %v missing %q", proc.Args, want)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("scrape config not written: %v", err)
	}
	if !strings.Contains(string(data), "scrape_configs") {
		t.Errorf("unexpected config %q", data)
	}
	if len(cw.endpoints) != 1 || cw.endpoints[0].JobName != "am_0" {
		t.Errorf("writer got endpoints %+v", cw.endpoints)
	}
	if cw.opts.PushgatewayTarget != "" {
		t.Errorf("pushgateway target %q set without pushgateway", cw.opts.PushgatewayTarget)
	}
}

func TestStart_PushgatewayIsScraped(t *testing.T) {
	st := newMockStore(t.TempDir())
	sv := &mockSupervisor{dir: t.TempDir()}
	cw := &mockWriter{}
	svc := newTestService(t, sv, cw, st, &mockLocker{})

	ctx, interrupt := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Start(ctx, StartConfig{
			Endpoints: testEndpoints(t),
			Backends:  cachedBackends(st, true),
			Frontend:  &fakeFrontend{addr: testAddr},
		})
	}()

	deadline := time.After(5 * time.Second)
	for len(sv.calls()) < 2 {
		select {
		case <-deadline:
			t.Fatal("backends were not launched")
		case <-time.After(10 * time.Millisecond):
		}
	}
	interrupt()
	if err := <-done; err != nil {
		t.Fatalf("Start() after interrupt = %v, want nil", err)
	}

	var pushgateway *domain.ManagedProcess
	for _, p := range sv.calls() {
		if p.Name == PushgatewayName {
			pushgateway = &p
		}
	}
	if pushgateway == nil {
		t.Fatal("pushgateway not launched")
	}
	if !slices.Contains(pushgateway.Args, "--web.external-url=http://127.0.0.1:6789/pushgateway") {
		t.Errorf("pushgateway args %v", pushgateway.Args)
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.opts.PushgatewayTarget != "localhost:9091" {
		t.Errorf("pushgateway target = %q, want localhost:9091", cw.opts.PushgatewayTarget)
	}
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.released != 2 {
		t.Errorf("released %d working directories, want 2", sv.released)
	}
}

func TestStart_BindFailureAbortsRun(t *testing.T) {
	st := newMockStore(t.TempDir())
	sv := &mockSupervisor{dir: t.TempDir()}
	svc := newTestService(t, sv, &mockWriter{}, st, &mockLocker{})
	bindErr := errors.New("bind 127.0.0.1:6789: address already in use")

	err := svc.Start(context.Background(), StartConfig{
		Backends: cachedBackends(st, true),
		Frontend: &fakeFrontend{bindErr: bindErr},
	})
	if !errors.Is(err, bindErr) {
		t.Fatalf("Start() = %v, want bind error", err)
	}
	var taskErr *domain.TaskError
	if !errors.As(err, &taskErr) {
		t.Errorf("err = %T, want *domain.TaskError", err)
	}
	if n := len(sv.calls()); n != 0 {
		t.Errorf("%d backends launched without a bound proxy", n)
	}
}

func TestProxy_InterruptIsSuccess(t *testing.T) {
	svc := newTestService(t, &mockSupervisor{}, &mockWriter{}, newMockStore(t.TempDir()), &mockLocker{})
	ctx, interrupt := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer interrupt()

	if err := svc.Proxy(ctx, &fakeFrontend{addr: testAddr}); err != nil {
		t.Errorf("Proxy() = %v, want nil", err)
	}
}

func TestPruneInstalls(t *testing.T) {
	st := newMockStore(t.TempDir())
	st.records = []domain.InstallRecord{{Key: "prometheus-2.47.0"}, {Key: "pushgateway-1.6.1"}}
	lk := &mockLocker{}
	svc := newTestService(t, &mockSupervisor{}, &mockWriter{}, st, lk)

	n, err := svc.PruneInstalls(context.Background())
	if err != nil {
		t.Fatalf("PruneInstalls() error: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if !slices.Equal(st.removed, []string{"prometheus-2.47.0", "pushgateway-1.6.1"}) {
		t.Errorf("removed %v", st.removed)
	}
	if len(lk.paths) != 2 || lk.paths[0] != st.LockPath("prometheus-2.47.0") {
		t.Errorf("locks taken %v", lk.paths)
	}
	if lk.held != 0 {
		t.Errorf("%d locks still held", lk.held)
	}
}

func TestPruneInstalls_KeepsLeftoversOfRunningInstall(t *testing.T) {
	st := newMockStore(t.TempDir())
	st.leftovers = []domain.Leftover{
		{Key: "prometheus-2.47.0", Path: "/data/.staging-prometheus-2.47.0-1"},
		{Key: "pushgateway-1.6.1", Path: "/data/.download-pushgateway-1.6.1-2"},
		{Path: "/data/.download-3"},
	}
	lk := &mockLocker{busy: map[string]bool{st.LockPath("prometheus-2.47.0"): true}}
	svc := newTestService(t, &mockSupervisor{}, &mockWriter{}, st, lk)

	if _, err := svc.PruneInstalls(context.Background()); err != nil {
		t.Fatalf("PruneInstalls() error: %v", err)
	}
	want := []string{"/data/.download-pushgateway-1.6.1-2", "/data/.download-3"}
	if !slices.Equal(st.cleared, want) {
		t.Errorf("cleared %v, want %v", st.cleared, want)
	}
	if lk.held != 0 {
		t.Errorf("%d locks still held", lk.held)
	}
}

func TestPruneInstalls_RealLockProtectsStaging(t *testing.T) {
	dataDir := t.TempDir()
	st := store.NewFileStore(dataDir)
	locker := lock.NewFileLocker()
	svc := NewService(nil, &mockSupervisor{}, &mockWriter{}, &mockChecker{}, st, locker, &mockLogger{})

	unlock, err := locker.Lock(context.Background(), st.LockPath(promTarget.CacheKey()))
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}
	defer unlock()
	inFlight, err := st.StagingDir(promTarget)
	if err != nil {
		t.Fatalf("StagingDir() error: %v", err)
	}
	stale, err := st.StagingDir(domain.InstallTarget{Repo: "pushgateway", Version: "1.6.1"})
	if err != nil {
		t.Fatalf("StagingDir() error: %v", err)
	}

	if _, err := svc.PruneInstalls(context.Background()); err != nil {
		t.Fatalf("PruneInstalls() error: %v", err)
	}
	if _, err := os.Stat(inFlight); err != nil {
		t.Errorf("staging dir of a locked install was removed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale staging dir still present: %v", err)
	}
}

func TestListInstalls(t *testing.T) {
	st := newMockStore(t.TempDir())
	st.records = []domain.InstallRecord{{Key: "prometheus-2.47.0", Size: 42}}
	svc := newTestService(t, &mockSupervisor{}, &mockWriter{}, st, &mockLocker{})

	records, err := svc.ListInstalls()
	if err != nil || len(records) != 1 || records[0].Size != 42 {
		t.Errorf("ListInstalls() = %v, %v", records, err)
	}
}

func TestExternalURL(t *testing.T) {
	tests := []struct {
		addr   string
		prefix string
		want   string
	}{
		{"127.0.0.1:6789", "/prometheus", "http://127.0.0.1:6789/prometheus"},
		{"0.0.0.0:8080", "/pushgateway", "http://localhost:8080/pushgateway"},
		{"[::]:6789", "/prometheus", "http://localhost:6789/prometheus"},
		{"[::1]:6789", "/prometheus", "http://[::1]:6789/prometheus"},
	}
	for _, tt := range tests {
		got := ExternalURL(netip.MustParseAddrPort(tt.addr), tt.prefix)
		if got != tt.want {
			t.Errorf("ExternalURL(%s, %s) = %q, want %q", tt.addr, tt.prefix, got, tt.want)
		}
	}
}

func TestPushgatewayArgs(t *testing.T) {
	got := PushgatewayArgs(9091, "http://127.0.0.1:6789/pushgateway")
	want := []string{
		"--web.listen-address=:9091",
		"--web.enable-lifecycle",
		"--web.route-prefix=/",
		"--web.external-url=http://127.0.0.1:6789/pushgateway",
	}
	if !slices.Equal(got, want) {
		t.Errorf("PushgatewayArgs() = %v, want %v", got, want)
	}
}
