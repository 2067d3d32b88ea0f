package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"am/internal/domain"
)

// Backend names and upstream coordinates of the supervised programs.
const (
	PrometheusName  = "prometheus"
	PushgatewayName = "pushgateway"

	releaseOwner = "prometheus"
)

// PrometheusBackend describes the Prometheus backend for a platform. An
// empty version means the latest release.
func PrometheusBackend(version, goos, goarch string) domain.Backend {
	return domain.Backend{
		Name:       PrometheusName,
		Target:     domain.InstallTarget{Owner: releaseOwner, Repo: PrometheusName, Version: version, OS: goos, Arch: goarch},
		Port:       domain.PrometheusPort,
		PathPrefix: "/prometheus",
	}
}

// PushgatewayBackend describes the Pushgateway backend for a platform.
func PushgatewayBackend(version, goos, goarch string) domain.Backend {
	return domain.Backend{
		Name:       PushgatewayName,
		Target:     domain.InstallTarget{Owner: releaseOwner, Repo: PushgatewayName, Version: version, OS: goos, Arch: goarch},
		Port:       domain.PushgatewayPort,
		PathPrefix: "/pushgateway",
	}
}

// Frontend is the HTTP entry point. Serve reports the bound address to
// onBound and blocks until ctx is done.
type Frontend interface {
	Serve(ctx context.Context, onBound func(netip.AddrPort)) error
}

// StartConfig holds the resolved inputs of a start run.
type StartConfig struct {
	Endpoints []domain.Endpoint
	Backends  []domain.Backend
	Scrape    domain.ScrapeOptions
	Frontend  Frontend
	// WorkDir is the parent of the backends' scoped working directories.
	WorkDir   string
	Ephemeral bool
}

// Service orchestrates the am lifecycle.
type Service struct {
	installer  *Installer
	supervisor domain.ProcessSupervisor
	writer     domain.ConfigWriter
	checker    domain.HealthChecker
	store      domain.InstallStore
	locker     domain.Locker
	logger     domain.Logger
}

// NewService creates the application service with all dependencies injected.
func NewService(
	in *Installer,
	sv domain.ProcessSupervisor,
	cw domain.ConfigWriter,
	hc domain.HealthChecker,
	st domain.InstallStore,
	lk domain.Locker,
	lg domain.Logger,
) *Service {
	return &Service{
		installer:  in,
		supervisor: sv,
		writer:     cw,
		checker:    hc,
		store:      st,
		locker:     lk,
		logger:     lg,
	}
}

// Start runs the proxy and every configured backend until ctx is done or
// one of them fails. Backends are installed while the proxy binds and are
// launched only once the proxy's address is known.
func (s *Service) Start(ctx context.Context, cfg StartConfig) error {
	runID := uuid.NewString()
	s.logger.Info("starting", "run", runID, "endpoints", len(cfg.Endpoints), "backends", len(cfg.Backends))

	checkCtx, stopChecks := context.WithCancel(ctx)
	var checks sync.WaitGroup
	checks.Add(1)
	go func() {
		defer checks.Done()
		s.checkEndpoints(checkCtx, cfg.Endpoints)
	}()
	defer func() {
		stopChecks()
		checks.Wait()
	}()

	for _, b := range cfg.Backends {
		if b.Name == PushgatewayName {
			cfg.Scrape.PushgatewayTarget = net.JoinHostPort("localhost", strconv.Itoa(b.Port))
		}
	}

	gate := NewReadinessGate()
	tasks := []Task{s.proxyTask(cfg.Frontend, gate)}
	for _, b := range cfg.Backends {
		tasks = append(tasks, Task{
			Name: b.Name,
			Run: func(ctx context.Context) error {
				return s.runBackend(ctx, b, gate, cfg)
			},
		})
	}
	return Coordinate(ctx, s.logger, tasks...)
}

// Proxy runs only the HTTP front end, for example against a remote
// Prometheus.
func (s *Service) Proxy(ctx context.Context, frontend Frontend) error {
	return Coordinate(ctx, s.logger, s.proxyTask(frontend, NewReadinessGate()))
}

func (s *Service) proxyTask(frontend Frontend, gate *ReadinessGate) Task {
	return Task{
		Name: "proxy",
		Run: func(ctx context.Context) error {
			err := frontend.Serve(ctx, func(addr netip.AddrPort) {
				if err := gate.Publish(addr); err != nil {
					s.logger.Warn("publish proxy address", "err", err)
				}
			})
			cause := err
			if cause == nil {
				cause = errors.New("proxy stopped")
			}
			gate.Fail(cause)
			return err
		},
	}
}

func (s *Service) runBackend(ctx context.Context, b domain.Backend, gate *ReadinessGate, cfg StartConfig) error {
	bin, err := s.installer.EnsureInstalled(ctx, b.Target)
	if err != nil {
		return err
	}

	addr, err := gate.Wait(ctx)
	if err != nil {
		return err
	}
	external := ExternalURL(addr, b.PathPrefix)

	proc := domain.ManagedProcess{
		Name:       b.Name,
		BinaryPath: bin,
		WorkDir:    cfg.WorkDir,
		Ephemeral:  cfg.Ephemeral,
	}
	dir, release, err := s.supervisor.Prepare(proc)
	if err != nil {
		return err
	}
	defer release()

	switch b.Name {
	case PrometheusName:
		configPath := filepath.Join(dir, "prometheus.yml")
		if err := s.writeScrapeConfig(configPath, cfg.Endpoints, cfg.Scrape); err != nil {
			return err
		}
		proc.Args = PrometheusArgs(configPath, filepath.Join(dir, "data"), b.Port, external)
	default:
		proc.Args = PushgatewayArgs(b.Port, external)
	}

	s.logger.Info("launching backend", "backend", b.Name, "external_url", external)
	return s.supervisor.Run(ctx, proc, dir)
}

func (s *Service) writeScrapeConfig(path string, endpoints []domain.Endpoint, opts domain.ScrapeOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scrape config: %w", err)
	}
	if err := s.writer.Write(f, endpoints, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("write scrape config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close scrape config: %w", err)
	}
	s.logger.Debug("wrote scrape config", "path", path, "jobs", len(endpoints))
	return nil
}

// checkEndpoints probes every endpoint once. Failures are warnings only.
func (s *Service) checkEndpoints(ctx context.Context, endpoints []domain.Endpoint) {
	for _, ep := range endpoints {
		if err := s.checker.Check(ctx, ep); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("endpoint not reachable, scraping it anyway", "job", ep.JobName, "err", err)
		}
	}
}

// ListInstalls returns the cached releases.
func (s *Service) ListInstalls() ([]domain.InstallRecord, error) {
	return s.store.List()
}

// PruneInstalls removes every cached release, taking each entry's install
// lock first, and clears leftovers of interrupted installs. Leftovers whose
// install lock is held belong to a running install and are kept. It
// returns the number of removed entries.
func (s *Service) PruneInstalls(ctx context.Context) (int, error) {
	records, err := s.store.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range records {
		if err := s.removeLocked(ctx, rec.Key); err != nil {
			return removed, err
		}
		s.logger.Info("removed install", "key", rec.Key)
		removed++
	}

	leftovers, err := s.store.Leftovers()
	if err != nil {
		return removed, fmt.Errorf("list temp files: %w", err)
	}
	var errs []error
	for _, l := range leftovers {
		errs = append(errs, s.removeLeftover(l))
	}
	if err := errors.Join(errs...); err != nil {
		return removed, fmt.Errorf("clean temp files: %w", err)
	}
	return removed, nil
}

func (s *Service) removeLeftover(l domain.Leftover) (err error) {
	if l.Key != "" {
		unlock, err := s.locker.TryLock(s.store.LockPath(l.Key))
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Info("install in progress, keeping temp files", "key", l.Key, "path", l.Path)
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, unlock())
		}()
	}
	return s.store.RemoveLeftover(l)
}

func (s *Service) removeLocked(ctx context.Context, key string) (err error) {
	unlock, err := s.locker.Lock(ctx, s.store.LockPath(key))
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer func() {
		err = errors.Join(err, unlock())
	}()
	if err := s.store.Remove(key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ExternalURL is the address under which a backend is reachable through
// the proxy. An unspecified bind address is reported as localhost.
func ExternalURL(addr netip.AddrPort, prefix string) string {
	host := addr.Addr().String()
	if addr.Addr().IsUnspecified() {
		host = "localhost"
	}
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(int(addr.Port()))),
		Path:   prefix,
	}
	return u.String()
}

// PrometheusArgs builds the Prometheus command line.
func PrometheusArgs(configPath, dataPath string, port int, externalURL string) []string {
	return []string{
		"--config.file=" + configPath,
		"--web.listen-address=:" + strconv.Itoa(port),
		"--web.enable-lifecycle",
		"--web.enable-remote-write-receiver",
		"--web.route-prefix=/",
		"--web.external-url=" + externalURL,
		"--storage.tsdb.path=" + dataPath,
	}
}

// PushgatewayArgs builds the Pushgateway command line.
func PushgatewayArgs(port int, externalURL string) []string {
	return []string{
		"--web.listen-address=:" + strconv.Itoa(port),
		"--web.enable-lifecycle",
		"--web.route-prefix=/",
		"--web.external-url=" + externalURL,
	}
}
