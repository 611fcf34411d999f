package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/app"
	"github.com/Qzief/arufkuy-store/internal/config"
	"github.com/Qzief/arufkuy-store/internal/httpx"
	kafkax "github.com/Qzief/arufkuy-store/internal/kafka"
	"github.com/Qzief/arufkuy-store/internal/logging"
	"github.com/Qzief/arufkuy-store/internal/orders"
	"github.com/Qzief/arufkuy-store/internal/provider"
	"github.com/Qzief/arufkuy-store/internal/tasks"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Config{
		ServiceName: cfg.ServiceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	// Scheduler: inline worker pool, or hand jobs to cmd/reconciler via Kafka
	var (
		sched tasks.Scheduler
		stop  func(context.Context) error
	)
	switch cfg.Scheduler {
	case config.SchedulerKafka:
		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentReceived, 1024, log)
		prod.Start(ctx)
		sched = &tasks.KafkaScheduler{Producer: prod, ServiceName: cfg.ServiceName}
		stop = func(context.Context) error {
			prod.Close()
			prod.WaitClosed()
			return nil
		}
	default:
		pool := tasks.NewPool(cfg.Workers, cfg.QueueSize, cfg.TaskTimeout, a.Service.HandleJob, log)
		pool.Start()
		sched = pool
		stop = pool.Stop
	}
	log.Info("scheduler ready", zap.String("scheduler", cfg.Scheduler))

	// Router & handlers
	router := httpx.NewRouter(cfg.ServiceName, log)
	(&httpx.WebhookHandler{Scheduler: sched, Log: log}).Register(router)
	(&httpx.DiagnosticsHandler{
		Tokens:  a.Tokens,
		Store:   a.Store,
		Audit:   a.Audit,
		Env:     a.EnvChecks(),
		Limiter: httpx.NewIPLimiter(cfg.DiagRPS, cfg.DiagBurst),
		Log:     log,
	}).Register(router)
	ph := &httpx.ProviderHandler{Log: log}
	if p, err := provider.New(cfg, nil, log); err != nil {
		log.Warn("payment provider proxy disabled", zap.Error(err))
		ph.ConfigErr = err
	} else {
		ph.Provider = p
	}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	// no new webhooks past this point; let scheduled jobs finish
	if err := stop(ctx2); err != nil {
		log.Warn("scheduler did not drain", zap.Error(err))
	}
	cancel()
}
