package main

import (
	"time"

	"github.com/spf13/cobra"

	"am/internal/adapter/endpoint"
	"am/internal/adapter/proxy"
	"am/internal/app"
	"am/internal/domain"
)

type startFlags struct {
	listenAddress      string
	prometheusVersion  string
	pushgatewayVersion string
	pushgateway        bool
	ephemeral          bool
	scrapeInterval     time.Duration
}

func newStartCmd() *cobra.Command {
	var f startFlags
	cmd := &cobra.Command{
		Use:   "start [endpoint...]",
		Short: "Start Prometheus for the given metrics endpoints",
		Long: `Start Prometheus, and optionally Pushgateway, scraping the given endpoints.

An endpoint may be a bare port (:3000), a host (127.0.0.1), host:port,
host:port/path or a full http(s) URL. The path defaults to /metrics.`,
		Example: `  am start :3000
  am start localhost:3030/api/metrics https://10.0.0.5:9100
  am start --pushgateway :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			applyStartFlags(cmd, &f, env)
			if err := env.validate(); err != nil {
				return err
			}
			return runStart(cmd, env, args)
		},
	}

	cmd.Flags().StringVarP(&f.listenAddress, "listen-address", "l", "127.0.0.1:6789", "address the proxy listens on")
	cmd.Flags().StringVar(&f.prometheusVersion, "prometheus-version", "", "Prometheus version (default: latest)")
	cmd.Flags().StringVar(&f.pushgatewayVersion, "pushgateway-version", "", "Pushgateway version (default: latest)")
	cmd.Flags().BoolVar(&f.pushgateway, "pushgateway", false, "also run Pushgateway")
	cmd.Flags().BoolVar(&f.ephemeral, "ephemeral", true, "remove working directories when backends exit")
	cmd.Flags().DurationVar(&f.scrapeInterval, "scrape-interval", 15*time.Second, "global scrape interval")
	return cmd
}

// applyStartFlags lets explicitly set flags win over env and am.toml.
func applyStartFlags(cmd *cobra.Command, f *startFlags, env *environment) {
	flags := cmd.Flags()
	if flags.Changed("listen-address") {
		env.cfg.ListenAddress = f.listenAddress
	}
	if flags.Changed("prometheus-version") {
		env.cfg.PrometheusVersion = f.prometheusVersion
	}
	if flags.Changed("pushgateway-version") {
		env.cfg.PushgatewayVersion = f.pushgatewayVersion
	}
	if flags.Changed("pushgateway") {
		env.cfg.PushgatewayEnabled = f.pushgateway
	}
	if flags.Changed("ephemeral") {
		env.cfg.EphemeralWorkingDirectory = f.ephemeral
	}
	if flags.Changed("scrape-interval") {
		env.cfg.ScrapeInterval.Duration = f.scrapeInterval
	}
}

func runStart(cmd *cobra.Command, env *environment, args []string) error {
	cfg := env.cfg

	specs := cfg.EndpointSpecs()
	for _, a := range args {
		specs = append(specs, endpoint.Spec{URL: a})
	}
	endpoints, err := endpoint.Resolve(specs)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		env.log.Warn("no endpoints given, Prometheus will only scrape itself through the proxy")
	}

	vos, varch, err := env.plat.VendorOSArch()
	if err != nil {
		return err
	}
	backends := []domain.Backend{app.PrometheusBackend(cfg.PrometheusVersion, vos, varch)}
	if cfg.PushgatewayEnabled {
		backends = append(backends, app.PushgatewayBackend(cfg.PushgatewayVersion, vos, varch))
	}

	routes := make([]proxy.Route, 0, len(backends))
	for _, b := range backends {
		routes = append(routes, proxy.LocalRoute(b))
	}

	w := env.wire()
	frontend := proxy.New(proxy.Config{
		ListenAddress:  cfg.ListenAddress,
		AllowedOrigins: cfg.AllowedOrigins,
	}, routes, env.log, w.reg, w.metrics)

	printBanner(cmd.ErrOrStderr(), cfg.ListenAddress, backends, endpoints)

	return w.svc.Start(cmd.Context(), app.StartConfig{
		Endpoints: endpoints,
		Backends:  backends,
		Scrape: domain.ScrapeOptions{
			ScrapeInterval:     cfg.ScrapeInterval.Duration,
			EvaluationInterval: cfg.EvaluationInterval.Duration,
			RuleFiles:          cfg.RuleFiles,
		},
		Frontend:  frontend,
		WorkDir:   cfg.WorkingDirectory,
		Ephemeral: cfg.EphemeralWorkingDirectory,
	})
}
