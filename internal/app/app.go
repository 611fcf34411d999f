// Package app assembles the reconciliation stack from Config. Both binaries
// share it: cmd/api runs the Service inline, cmd/reconciler off Kafka.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Qzief/arufkuy-store/internal/audit"
	"github.com/Qzief/arufkuy-store/internal/config"
	"github.com/Qzief/arufkuy-store/internal/credentials"
	"github.com/Qzief/arufkuy-store/internal/docstore"
	"github.com/Qzief/arufkuy-store/internal/fulfillment"
	kafkax "github.com/Qzief/arufkuy-store/internal/kafka"
	"github.com/Qzief/arufkuy-store/internal/orders"
	"github.com/Qzief/arufkuy-store/internal/postgres"
	"github.com/Qzief/arufkuy-store/internal/redisx"
)

type App struct {
	Config  config.Config
	Log     *zap.Logger
	Tokens  *credentials.Provider
	Store   *docstore.Client
	Audit   audit.Recorder
	Service *fulfillment.Service

	closers []func()
}

// New connects the optional backends named in cfg. Redis and Postgres are
// pinged here so a misconfigured deployment fails at boot, not per webhook.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	hc := &http.Client{Timeout: 15 * time.Second}
	a := &App{
		Config: cfg,
		Log:    log,
		Tokens: credentials.NewProvider(credentials.OptionsFromConfig(cfg), hc),
		Store:  docstore.NewClient(cfg.FirestoreBaseURL, cfg.ProjectID, hc),
	}

	switch cfg.AuditBackend {
	case config.AuditPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		rec := &audit.PostgresRecorder{DB: pool}
		if err := rec.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Audit = rec
	default:
		a.Audit = &audit.DocstoreRecorder{Store: a.Store}
	}

	svc := &fulfillment.Service{
		Tokens:            a.Tokens,
		Orders:            &orders.Repo{Store: a.Store, PendingLimit: cfg.PendingLimit},
		Audit:             audit.BestEffort{Recorder: a.Audit, Log: log},
		DedupTTL:          cfg.DedupTTL,
		ConditionalWrites: cfg.ConditionalWrites,
		ServiceName:       cfg.ServiceName,
		Log:               log,
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		if err := redisx.Ping(ctx, rdb); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		svc.Dedup = &redisx.RedisDedup{RDB: rdb}
		if cfg.OrderLock {
			svc.Locker = &redisx.RedisLocker{RDB: rdb, Wait: 5 * time.Second}
		}
		log.Info("redis dedup enabled", zap.String("addr", cfg.RedisAddr), zap.Bool("order_lock", cfg.OrderLock))
	} else {
		svc.Dedup = redisx.NewMemoryDedup()
		if cfg.OrderLock {
			svc.Locker = &redisx.MemoryLocker{Wait: 5 * time.Second}
		}
		log.Info("REDIS_ADDR not set, using in-process dedup")
	}

	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentReconciled, 1024, log)
		prod.Start(ctx)
		a.closers = append(a.closers, func() {
			prod.Close()
			prod.WaitClosed()
		})
		svc.Outcomes = prod
	}

	a.Service = svc
	return a, nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// EnvChecks reports which secrets are present, for diagnostics.
func (a *App) EnvChecks() map[string]bool {
	return map[string]bool{
		"MAYAR_API_KEY":            a.Config.MayarAPIKey != "",
		"MAYAR_BASE_URL":           a.Config.MayarBaseURL != "",
		"FIREBASE_SERVICE_ACCOUNT": a.Config.ServiceAccount != "",
	}
}
