package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pinba-platform/pinba2/internal/engine"
	"github.com/pinba-platform/pinba2/internal/metrics"
)

// serveMetrics starts a background HTTP server exposing /metrics for e, and
// returns a function that shuts it down.
func serveMetrics(addr string, e *engine.Engine, log *zap.SugaredLogger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(e.StatsSource())); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server stopped", "error", err)
		}
	}()

	return func() {
		_ = srv.Shutdown(context.Background())
	}, nil
}
