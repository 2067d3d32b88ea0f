package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"am/internal/adapter/proxy"
	"am/internal/domain"
)

func newProxyCmd() *cobra.Command {
	var listenAddress, pushgatewayURL string
	cmd := &cobra.Command{
		Use:   "proxy <prometheus-url>",
		Short: "Serve the explorer in front of an existing Prometheus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-address") {
				env.cfg.ListenAddress = listenAddress
			}
			if err := env.validate(); err != nil {
				return err
			}

			routes, err := remoteRoutes(args[0], pushgatewayURL)
			if err != nil {
				return err
			}

			w := env.wire()
			frontend := proxy.New(proxy.Config{
				ListenAddress:  env.cfg.ListenAddress,
				AllowedOrigins: env.cfg.AllowedOrigins,
			}, routes, env.log, w.reg, w.metrics)

			env.log.Info("proxying remote prometheus", "upstream", routes[0].Upstream.String())
			return w.svc.Proxy(cmd.Context(), frontend)
		},
	}
	cmd.Flags().StringVarP(&listenAddress, "listen-address", "l", "127.0.0.1:6789", "address the proxy listens on")
	cmd.Flags().StringVar(&pushgatewayURL, "pushgateway-url", "", "also proxy /pushgateway to this URL")
	return cmd
}

// remoteRoutes builds the proxy routes for upstreams given as URLs.
func remoteRoutes(prometheusURL, pushgatewayURL string) ([]proxy.Route, error) {
	u, err := parseUpstream(prometheusURL)
	if err != nil {
		return nil, err
	}
	routes := []proxy.Route{{Name: "prometheus", Prefix: "/prometheus", Upstream: u}}
	if pushgatewayURL != "" {
		pu, err := parseUpstream(pushgatewayURL)
		if err != nil {
			return nil, err
		}
		routes = append(routes, proxy.Route{Name: "pushgateway", Prefix: "/pushgateway", Upstream: pu})
	}
	return routes, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme != "http" && u.Scheme != "https" || u.Host == "") {
		err = fmt.Errorf("want an absolute http or https URL")
	}
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "upstream", Err: fmt.Errorf("%q: %w", raw, err)}
	}
	return u, nil
}
