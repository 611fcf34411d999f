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
		ServiceName: cfg.ServiceName + "-reconciler",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the reconciler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, orders.TopicPaymentReceived, cfg.Workers, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("reconciler consumer started",
			zap.String("group", cfg.KafkaGroup),
			zap.String("topic", orders.TopicPaymentReceived),
			zap.Int("workers", cfg.Workers))
		if err := cons.Start(ctx, tasks.ConsumerHandler(a.Service.HandleJob, cfg.TaskTimeout, log)); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// health + metrics only
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpx.NewRouter(cfg.ServiceName+"-reconciler", log), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	select {
	case <-done:
	case <-ctx2.Done():
		log.Warn("consumer did not stop in time")
	}
}
