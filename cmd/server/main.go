package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/blob"
	"clinic-admin-api/internal/clinic"
	"clinic-admin-api/internal/config"
	gweb "clinic-admin-api/internal/grpcweb"
	"clinic-admin-api/internal/handler"
	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/logging"
	"clinic-admin-api/internal/metrics"
	"clinic-admin-api/internal/middleware"
	"clinic-admin-api/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage
	backend, err := cfg.Backend(ctx, logger)
	if err != nil {
		return err
	}
	defer backend.Close()
	if d, ok := backend.(*kv.Dir); ok {
		if err := d.Watch(ctx, nil); err != nil {
			logger.WarnContext(ctx, "data dir watch disabled", "err", err)
		}
	}
	logger.InfoContext(ctx, "store opened", "driver", cfg.StoreDriver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pub, err := cfg.Publisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	st := store.New(backend,
		store.WithLogger(logger),
		store.WithMetrics(m),
		store.WithPublisher(pub),
	)

	seed, err := auth.DefaultSeed()
	if err != nil {
		return err
	}
	if seed, err = config.LoadSeed(cfg.SeedFile, seed); err != nil {
		return err
	}
	if _, err := st.Init(ctx, seed); err != nil {
		return err
	}

	var backups blob.Store
	if b, err := cfg.Backups(ctx); err != nil {
		logger.WarnContext(ctx, "backups disabled", "err", err)
	} else {
		backups = b
	}

	as := auth.New(st, cfg.JWTSecret, cfg.TokenTTL)
	h := handler.New(st, as, clinic.New(st, nil),
		handler.WithBackups(backups),
		handler.WithLogger(logger),
	)

	// grpc server
	rl := middleware.NewRateLimiter(5, 10)
	defer rl.Close()
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.Observe(m, logger),
			middleware.RateLimit(rl),
			middleware.Auth(as),
		),
	)
	handler.Register(srv, h)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("grpc listening", "port", cfg.GRPCPort)
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc", "err", err)
		}
	}()

	// grpc-web bridge -> forwards browser requests to grpc on localhost
	bridge, err := gweb.New("localhost:"+cfg.GRPCPort, logger)
	if err != nil {
		return err
	}
	defer bridge.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := backend.Keys(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.Handle("/", bridge.Handler())

	httpSrv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("grpc-web listening", "port", cfg.WebPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http", "err", err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	srv.GracefulStop()
	return nil
}
