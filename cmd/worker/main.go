package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/postroom/internal/config"
	"github.com/austindbirch/postroom/internal/db"
	"github.com/austindbirch/postroom/internal/issues"
	"github.com/austindbirch/postroom/internal/logging"
	"github.com/austindbirch/postroom/internal/mailer"
	"github.com/austindbirch/postroom/internal/metrics"
	"github.com/austindbirch/postroom/internal/queue"
	"github.com/austindbirch/postroom/internal/tracing"
	"github.com/austindbirch/postroom/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger := logging.New("postroom-worker")

	shutdown, err := tracing.InitTracing(ctx, "postroom-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	sender, err := buildSender(cfg, logger)
	if err != nil {
		logger.Plain().WithError(err).Fatal("mailer setup failed")
	}

	q := queue.New(pool)
	catalog := issues.NewCatalog(pool)

	startQueueDepthMonitor(ctx, q, cfg.Worker.QueueDepthInterval, logger)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		w := worker.New(q, catalog, sender, logger, cfg.Worker.EmptyQueueBackoff, cfg.Worker.ErrorBackoff)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Plain().WithError(err).Error("delivery loop exited")
			}
		}()
	}
	logger.Plain().WithField("workers", cfg.Worker.Count).Info("worker service started")

	<-ctx.Done()
	logger.Plain().Info("Shutting down worker service")
	wg.Wait()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

// buildSender picks the mail transport from MAIL_MODE.
func buildSender(cfg config.Config, logger *logging.Logger) (mailer.Sender, error) {
	if cfg.Mail.Mode == "dev" {
		return mailer.NewDevSender(logger), nil
	}
	return mailer.NewPostmarkSender(cfg.Mail)
}

// startQueueDepthMonitor samples the delivery queue depth on a fixed interval
// and publishes it as a gauge.
func startQueueDepthMonitor(ctx context.Context, q *queue.Queue, interval time.Duration, logger *logging.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := q.Depth(ctx)
				if err != nil {
					logger.Plain().WithError(err).Error("Failed to read queue depth")
					continue
				}
				metrics.UpdateQueueDepth(float64(depth))
			}
		}
	}()
}
