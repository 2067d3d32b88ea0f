package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"am/internal/domain"
)

const banner = `
   __ _ _ __ ___
  / _' | '_ ' _ \
 | (_| | | | | | |
  \__,_|_| |_| |_|
`

func printBanner(w io.Writer, listenAddress string, backends []domain.Backend, endpoints []domain.Endpoint) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	faint := color.New(color.Faint)

	cyan.Fprint(w, banner)
	fmt.Fprintln(w)
	green.Fprintf(w, "  explorer     http://%s/explorer/\n", listenAddress)
	for _, b := range backends {
		version := b.Target.Version
		if version == "" {
			version = "latest"
		}
		green.Fprintf(w, "  %-12s http://%s%s/", b.Name, listenAddress, b.PathPrefix)
		faint.Fprintf(w, "  (%s)\n", version)
	}
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  scraping     %s", ep.URL)
		faint.Fprintf(w, "  job=%s\n", ep.JobName)
	}
	fmt.Fprintln(w)
}
