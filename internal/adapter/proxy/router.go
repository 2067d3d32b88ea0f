package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"am/internal/assets"
	"am/internal/domain"
)

// Route forwards everything below Prefix to Upstream with the prefix
// removed.
type Route struct {
	Name     string
	Prefix   string
	Upstream *url.URL
}

// LocalRoute returns the route of a backend listening on loopback.
func LocalRoute(b domain.Backend) Route {
	return Route{
		Name:     b.Name,
		Prefix:   b.PathPrefix,
		Upstream: &url.URL{Scheme: "http", Host: net.JoinHostPort("127.0.0.1", strconv.Itoa(b.Port))},
	}
}

// Handler builds the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	// Proxied paths are relayed as sent; Pushgateway grouping keys may
	// contain empty segments.
	r := mux.NewRouter().SkipClean(true)

	r.Handle("/", http.RedirectHandler("/explorer/", http.StatusFound)).Methods(http.MethodGet, http.MethodHead)

	explorer := http.StripPrefix("/explorer/", http.FileServerFS(assets.Explorer()))
	r.Handle("/explorer", http.RedirectHandler("/explorer/", http.StatusMovedPermanently))
	r.PathPrefix("/explorer/").Handler(s.instrument("explorer", explorer)).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc("/api/health", health).Methods(http.MethodGet, http.MethodHead)
	if s.reg != nil {
		r.Handle("/api/metrics", promhttp.InstrumentMetricHandler(s.reg,
			promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg}))).Methods(http.MethodGet)
	}

	for _, rt := range s.routes {
		h := s.instrument(rt.Name, http.StripPrefix(rt.Prefix, s.reverseProxy(rt)))
		r.Handle(rt.Prefix, h)
		r.PathPrefix(rt.Prefix + "/").Handler(h)
	}

	chain := alice.New(s.recoveryMiddleware, s.loggingMiddleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		chain = chain.Append(cors.New(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{
				http.MethodGet, http.MethodHead, http.MethodPost,
				http.MethodPut, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
		}).Handler)
	}
	return chain.Then(r)
}

func (s *Server) reverseProxy(rt Route) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(rt.Upstream)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				// Client went away.
				return
			}
			upErr := &domain.ProxyUpstreamError{Route: rt.Name, Upstream: rt.Upstream.String(), Err: err}
			s.logger.Warn("upstream unavailable", "route", rt.Name, "path", r.URL.Path, "err", upErr)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}

// instrument records per-route request counts and latencies.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(s.metrics.ProxyDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(s.metrics.ProxyRequests.MustCurryWith(labels), next))
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
