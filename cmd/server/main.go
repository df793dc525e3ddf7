package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	rd "github.com/redis/go-redis/v9"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/forkline/reconciliation/internal/application/dispatcher"
	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/config"
	"github.com/forkline/reconciliation/internal/domain/event"
	httpserver "github.com/forkline/reconciliation/internal/interfaces/http"
	"github.com/forkline/reconciliation/internal/infrastructure/persistence/repository"
	"github.com/forkline/reconciliation/internal/recon"
	"github.com/forkline/reconciliation/pkg/database"
	"github.com/forkline/reconciliation/pkg/redis"
	"github.com/forkline/reconciliation/pkg/utils"
)

// sugaredLogger adapts *zap.SugaredLogger to the HTTP server's Logger
// interface, whose (msg, keysAndValues) signatures map to Infow/Errorw.
type sugaredLogger struct{ s *zap.SugaredLogger }

func (l sugaredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l sugaredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// Environment overrides from .env when present
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting delivery reconciliation service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Database and migrations
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	orderFeed := repository.NewOrderRepository(db.DB, logger)
	deliveryFeed := repository.NewDeliveryRepository(db.DB, logger)
	recordRepo := repository.NewRecordRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Event dispatcher with sinks for the ledger and notification boundary
	events := dispatcher.New(logger)
	defer events.Close()
	registerEventSinks(events, logger)

	// Tolerance policy from configuration
	policy, err := cfg.Recon.TolerancePolicy()
	if err != nil {
		logger.Fatal("Invalid tolerance policy", zap.Error(err))
	}

	engine, err := recon.NewEngine(orderFeed, deliveryFeed, recordRepo, auditRepo, events, policy, logger)
	if err != nil {
		logger.Fatal("Failed to initialize reconciliation engine", zap.Error(err))
	}

	// Distributed batch lock; skipped when no redis address configured
	var batchLock *redis.BatchLock
	if cfg.Redis.Addr != "" {
		rdb := rd.NewClient(&rd.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		batchLock = redis.NewBatchLock(rdb)
		logger.Info("Batch lock enabled", zap.String("redis_addr", cfg.Redis.Addr))
	} else {
		logger.Warn("No redis configured; duplicate batch triggers are not guarded across processes")
	}

	// A typed nil pointer must not reach the port interface.
	var lock port.BatchLock
	if batchLock != nil {
		lock = batchLock
	}

	orchestrator, err := recon.NewOrchestrator(engine, orderFeed, deliveryFeed, lock, cfg.Recon.OrchestratorConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize batch orchestrator", zap.Error(err))
	}

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		engine,
		orchestrator,
		recordRepo,
		auditRepo,
		sugaredLogger{logger.Sugar()},
	)

	// Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// registerEventSinks subscribes the downstream boundaries. The ledger and
// supplier notification integrations are log-only here; the adjustments
// pipeline consumes the same events off the dispatcher.
func registerEventSinks(events dispatcher.Dispatcher, logger *zap.Logger) {
	events.SubscribeNamed(event.TypeReconciliationCompleted, "ledger", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Reconciliation completed",
			zap.String("order_id", evt.OrderID),
			zap.Any("payload", evt.Payload))
		return nil
	})
	events.SubscribeNamed(event.TypeReconciliationDisputed, "supplier-notify", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Reconciliation disputed",
			zap.String("order_id", evt.OrderID),
			zap.Any("payload", evt.Payload))
		return nil
	})
	events.SubscribeNamed(event.TypeReconciliationResolved, "ledger", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Dispute resolved",
			zap.String("order_id", evt.OrderID),
			zap.Any("payload", evt.Payload))
		return nil
	})
	events.SubscribeNamed(event.TypeReconciliationFailed, "ops-alert", func(ctx context.Context, evt *event.Event) error {
		logger.Warn("Reconciliation failed",
			zap.String("order_id", evt.OrderID),
			zap.Any("payload", evt.Payload))
		return nil
	})
}
