// Package app собирает сервис бронирования: хранилище, брокер, менеджеры,
// HTTP API, метрики, gRPC health и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/hotel-booking/internal/health"
	"github.com/vladislavdragonenkov/hotel-booking/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/hotel-booking/internal/version"
)

const (
	grpcStopTimeout     = 5 * time.Second
	healthWatchInterval = 10 * time.Second
)

// ConfigureLogging настраивает формат и уровень logrus.
func ConfigureLogging(cfg Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Option настраивает App.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	logger     *log.Entry
}

// WithRegistry направляет метрики в отдельный реестр вместо глобального.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
			o.gatherer = reg
		}
	}
}

// WithLogger задаёт корневой logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// App — собранный сервис.
type App struct {
	cfg    Config
	logger *log.Entry
	deps   *Dependencies

	health     *healthcheck.Handler
	grpcHealth *health.Server
	grpcServer *grpc.Server
	apiServer  *http.Server
	metricsSrv *http.Server
}

// New создаёт зависимости и серверы, но ничего не слушает.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		logger:     log.WithField("component", "app"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	deps, err := NewDependencies(ctx, cfg, o.registerer, o.logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		logger:     o.logger,
		deps:       deps,
		health:     healthcheck.NewHandler(version.GetVersion()),
		grpcHealth: health.NewServer(),
	}
	deps.RegisterHealth(a.health, cfg.OutboxMaxPending)

	a.apiServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.APIHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.metricsSrv = &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           a.metricsHandler(o.gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.grpcServer = a.newGRPCServer(o.registerer)
	return a, nil
}

// Run собирает приложение и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.WithError(err).Warn("close dependencies")
		}
	}()
	return a.Run(ctx)
}

// Dependencies отдаёт собранные зависимости (для тестов и утилит).
func (a *App) Dependencies() *Dependencies { return a.deps }

// APIHandler возвращает REST API /api/v1.
func (a *App) APIHandler() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Rooms:          a.deps.Rooms,
		Reservations:   a.deps.Reservations,
		Payments:       a.deps.Payments,
		Pricing:        a.deps.Pricing,
		Services:       a.deps.Repos.Services,
		Idempotency:    a.deps.Idempotency,
		Auth:           a.deps.Auth,
		Logger:         a.logger.WithField("layer", "http"),
		RequestTimeout: a.cfg.RequestTimeout,
	})
}

func (a *App) metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", a.health)
	mux.HandleFunc("/readyz", a.health.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return mux
}

func (a *App) newGRPCServer(registerer prometheus.Registerer) *grpc.Server {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			a.logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(srv, a.grpcHealth)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)
	return srv
}

// Run запускает воркеры и серверы; возвращает ctx.Err() после остановки по сигналу.
func (a *App) Run(ctx context.Context) error {
	listeners, err := listenAll(a.cfg.HTTPAddr, a.cfg.MetricsAddr, a.cfg.GRPCAddr)
	if err != nil {
		return err
	}
	apiLis, metricsLis, grpcLis := listeners[0], listeners[1], listeners[2]

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var wg sync.WaitGroup
	for name, run := range a.deps.Workers() {
		wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer wg.Done()
			logger := a.logger.WithField("worker", name)
			logger.Info("worker started")
			run(workersCtx)
			logger.Info("worker stopped")
		}(name, run)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watchHealth(workersCtx)
	}()

	errCh := make(chan error, 3)
	go func() {
		a.logger.WithField("addr", apiLis.Addr().String()).Info("HTTP API слушает")
		errCh <- serveHTTP(a.apiServer, apiLis)
	}()
	go func() {
		a.logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
		errCh <- serveHTTP(a.metricsSrv, metricsLis)
	}()
	go func() {
		a.logger.Infof("gRPC health слушает %s", grpcLis.Addr())
		if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.WithError(runErr).Error("server failed")
		}
	}

	a.shutdown()
	stopWorkers()
	wg.Wait()
	return runErr
}

// watchHealth переводит gRPC health в NOT_SERVING, пока есть unhealthy компоненты.
func (a *App) watchHealth(ctx context.Context) {
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if a.health.Evaluate(ctx).Status == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		a.grpcHealth.SetServingStatus("", status)
	}
	update()

	ticker := time.NewTicker(healthWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func (a *App) shutdown() {
	a.grpcHealth.Shutdown()

	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		a.logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		a.grpcServer.Stop()
	}

	shutdownHTTP(a.apiServer, a.cfg.ShutdownTimeout, a.logger)
	shutdownHTTP(a.metricsSrv, a.cfg.ShutdownTimeout, a.logger)
}

// Close освобождает соединения с внешними системами.
func (a *App) Close() error {
	return a.deps.Close()
}

func listenAll(addrs ...string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		listeners = append(listeners, lis)
	}
	return listeners, nil
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server %s: %w", srv.Addr, err)
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
