package main

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newExploreCmd() *cobra.Command {
	var listenAddress string
	var noBrowser bool
	cmd := &cobra.Command{
		Use:     "explore",
		Aliases: []string{"explorer"},
		Short:   "Open the explorer of a running am",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			base := "http://" + env.cfg.ListenAddress
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if err := checkRunning(ctx, http.DefaultClient, base); err != nil {
				return fmt.Errorf("no am found at %s (run `am start` or `am proxy` first): %w", base, err)
			}

			target := base + "/explorer/"
			fmt.Fprintln(cmd.OutOrStdout(), target)
			if !noBrowser {
				if err := openBrowser(target); err != nil {
					env.log.Warn("could not open a browser", "err", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&listenAddress, "listen-address", "l", "127.0.0.1:6789", "address of the running am")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "only print the explorer URL")
	return cmd
}

// checkRunning asks the health endpoint of an am proxy at base.
func checkRunning(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func openBrowser(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
