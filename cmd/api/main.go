package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/postroom/internal/auth"
	"github.com/austindbirch/postroom/internal/config"
	"github.com/austindbirch/postroom/internal/db"
	"github.com/austindbirch/postroom/internal/health"
	"github.com/austindbirch/postroom/internal/logging"
	"github.com/austindbirch/postroom/internal/metrics"
	"github.com/austindbirch/postroom/internal/publish"
	"github.com/austindbirch/postroom/internal/subscribers"
	"github.com/austindbirch/postroom/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("postroom-api")

	shutdown, err := tracing.InitTracing(ctx, "postroom-api")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("db migrate failed")
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	validator, err := auth.NewJWTValidator(cfg.Auth.PublicKeyPEM, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		logger.Plain().WithError(err).Fatal("auth validator setup failed")
	}

	svc := publish.NewService(
		publish.NewPgStore(pool),
		subscribers.NewRepo(pool),
		logger,
		cfg.Idempotency.MaxKeyLength,
	)
	handler := publish.NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", health.HTTPHandler(pool))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(validator.HTTPMiddleware)
		r.Post("/admin/newsletters", handler.SubmitNewsletter)
	})

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: r}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("api HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("api HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down api service")
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("api service stopped")
}
