package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/groutine"
	"github.com/srg/blesync/internal/opqueue"
)

// metricsRegistry holds the queue collectors. A private registry keeps the Go runtime
// collectors of the default one out of the output.
func metricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(opqueue.MetricsCollectors()...)
	return registry
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// serveMetrics exposes /metrics on addr until the returned stop function is called.
func serveMetrics(addr string, logger *logrus.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler(metricsRegistry()))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := groutine.Go(context.Background(), "metrics-server", func(context.Context) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	})
	logger.WithField("addr", listener.Addr().String()).Info("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	}, nil
}
