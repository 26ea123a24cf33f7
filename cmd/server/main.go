package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bridgeguard-backend/internal/api"
	"bridgeguard-backend/internal/bus"
	"bridgeguard-backend/internal/classifier"
	"bridgeguard-backend/internal/config"
	"bridgeguard-backend/internal/ingest"
	"bridgeguard-backend/internal/metrics"
	"bridgeguard-backend/internal/mqtt"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	if err := run(logger); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run returns only after in-flight HTTP requests, MQTT workers and NATS
// handlers are done; the deferred closes then tear down transports before
// the stores those ingests write to.
func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ingestMetrics, err := metrics.NewIngest(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pipeline := ingest.NewPipeline(stores, stores, stores, classifier.New(cfg.Classifier.URL, cfg.Classifier.Timeout()))
	pipeline.Metrics = ingestMetrics
	pipeline.Logger = logger

	if cfg.NATS.Enabled {
		natsClient, err := bus.NewClient(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer natsClient.Close()
		pipeline.Events = natsClient
		pipeline.EventSubject = cfg.NATS.EventSubject
		if _, err := natsClient.ServeIngest(cfg.NATS.IngestSubject, cfg.NATS.QueueGroup, pipeline); err != nil {
			return fmt.Errorf("subscribe to nats %s: %w", cfg.NATS.IngestSubject, err)
		}
		logger.Info("nats ingest subscribed", slog.String("subject", cfg.NATS.IngestSubject), slog.String("queue", cfg.NATS.QueueGroup))
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to mqtt: %w", err)
		}
		defer mqttClient.Close()
		sub := mqtt.NewSubscriber(mqttClient.Native(), mqtt.SubscriberConfig{
			Topic:   cfg.MQTT.Topic,
			QoS:     byte(cfg.MQTT.QoS),
			Workers: 4,
		}, logger)
		if err := sub.Subscribe(); err != nil {
			return err
		}
		workerCtx, cancelWorkers := context.WithCancel(ctx)
		var workers sync.WaitGroup
		workers.Add(1)
		go func() {
			defer workers.Done()
			sub.Run(workerCtx, pipeline)
		}()
		// Runs before mqttClient.Close so queued readings are ingested and
		// acked on a live connection.
		defer func() {
			cancelWorkers()
			workers.Wait()
		}()
	}

	handler := &api.Handler{
		Ingester: pipeline,
		Store:    stores,
		Timeout:  5 * time.Second,
		Logger:   logger,
	}

	requestTimeout := cfg.HTTP.RequestTimeout()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	handler.RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}

	logger.Info("bridgeguard listening",
		slog.String("port", cfg.HTTP.Port),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("classifier", cfg.Classifier.URL))
	return serve(ctx, srv, ln, shutdownTimeout)
}

// An ingest can spend the classifier timeout plus four store deadlines.
const shutdownTimeout = 30 * time.Second

// serve runs srv on ln until ctx is done, then shuts it down and returns only
// once in-flight requests have completed or timeout has passed.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
