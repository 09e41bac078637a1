package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pior/cachewire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a TOML configuration file")
		addr        = flag.String("addr", "", "Listen address, overrides the configuration file")
		metricsAddr = flag.String("metrics", ":9464", "Address of the /metrics endpoint, empty to disable")
	)
	flag.Parse()

	logger := cachewire.NewLogger("cachewire-server", os.Stdout)

	config := cachewire.DefaultServerConfig()
	if *configPath != "" {
		var err error
		config, err = cachewire.LoadServerConfig(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid configuration")
		}
	}
	if *addr != "" {
		config.Addr = *addr
	}

	registry := prometheus.NewRegistry()
	metrics, err := cachewire.NewMetrics(registry, "cachewire")
	if err != nil {
		logger.Fatal().Err(err).Msg("registering metrics")
	}
	config.Metrics = metrics
	config.Logger = &logger

	server := cachewire.NewServer(config, cachewire.NewMemoryHandler())

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		logger.Fatal().Err(err).Msg("server stopped")
	case sig := <-signals:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("forced shutdown")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}

	stats := server.Stats()
	logger.Info().
		Uint64("accepted", stats.Accepted).
		Uint64("messages", stats.Messages).
		Uint64("exceptions", stats.Exceptions).
		Msg("stopped")
}
