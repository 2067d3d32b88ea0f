package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"am/internal/adapter/downloader"
	"am/internal/adapter/endpoint"
	"am/internal/adapter/extractor"
	"am/internal/adapter/lock"
	"am/internal/adapter/logger"
	"am/internal/adapter/platform"
	"am/internal/adapter/release"
	"am/internal/adapter/scrapeconfig"
	"am/internal/adapter/store"
	"am/internal/adapter/supervisor"
	"am/internal/app"
	"am/internal/config"
	"am/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	verbose     bool
	configFile  string
	dataDirFlag string

	rootCmd = &cobra.Command{
		Use:   "am",
		Short: "Run a local Prometheus stack in front of your metrics endpoints",
		Long: `am downloads, verifies and runs Prometheus (and optionally Pushgateway)
for the metrics endpoints you give it, and serves everything behind a single
local HTTP address.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "path to am.toml (default: $AM_CONFIG_FILE or ./am.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "install cache directory (default: $AM_DATA_DIR or the per-user data dir)")

	rootCmd.AddCommand(newStartCmd(), newProxyCmd(), newExploreCmd(), newSystemCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "am: %v\n", err)
	os.Exit(1)
}

// environment is the resolved configuration shared by all commands.
type environment struct {
	cfg     *config.Config
	log     *slog.Logger
	plat    *platform.Platform
	dataDir string
}

// loadEnvironment resolves am.toml, environment overrides and logging.
// Command flags are applied by the caller before validate.
func loadEnvironment() (*environment, error) {
	plat, err := platform.New()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(plat.ResolveConfigFile(configFile))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return &environment{
		cfg:     cfg,
		plat:    plat,
		dataDir: plat.ResolveDataDir(dataDirFlag, cfg.DataDir),
	}, nil
}

// validate checks the configuration and sets up the logger.
func (e *environment) validate() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	log, err := logger.NewStderr(logger.Options{Level: e.cfg.Logging.Level, Format: e.cfg.Logging.Format})
	if err != nil {
		return err
	}
	e.log = log
	return nil
}

// wiring holds the constructed service graph.
type wiring struct {
	svc     *app.Service
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func (e *environment) wire() *wiring {
	userAgent := "am/" + version
	reg, m := metrics.NewRegistry()

	st := store.NewFileStore(e.dataDir)
	locker := lock.NewFileLocker()
	installer := app.NewInstaller(
		release.NewResolver(nil, userAgent),
		downloader.NewHTTPDownloader(nil, e.dataDir, userAgent, e.log),
		extractor.NewTarExtractor(e.log),
		st,
		locker,
		e.log,
		m,
	)
	svc := app.NewService(
		installer,
		supervisor.New(e.log, e.cfg.ShutdownGrace.Duration),
		scrapeconfig.NewWriter(),
		endpoint.NewHTTPChecker(nil),
		st,
		locker,
		e.log,
	)
	return &wiring{svc: svc, reg: reg, metrics: m}
}

// interrupted reports whether err only reflects the operator stopping a
// command that has no clean-shutdown path of its own.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
