// Command reconcile-batch runs one supplier batch to completion and exits.
// It is the cron entrypoint; the server exposes the same run over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/forkline/reconciliation/internal/application/dispatcher"
	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/config"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/forkline/reconciliation/internal/infrastructure/persistence/repository"
	"github.com/forkline/reconciliation/internal/recon"
	"github.com/forkline/reconciliation/internal/report"
	"github.com/forkline/reconciliation/pkg/database"
	"github.com/forkline/reconciliation/pkg/redis"
	"github.com/forkline/reconciliation/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	supplierID := flag.String("supplier", "", "supplier to reconcile")
	fromStr := flag.String("from", "", "period start (RFC3339 or YYYY-MM-DD)")
	toStr := flag.String("to", "", "period end (RFC3339 or YYYY-MM-DD)")
	reportPath := flag.String("report", "", "optional xlsx report output path")
	flag.Parse()

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

	ws, err := parseWorkingSet(*supplierID, *fromStr, *toStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

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

	orderFeed := repository.NewOrderRepository(db.DB, logger)
	deliveryFeed := repository.NewDeliveryRepository(db.DB, logger)
	recordRepo := repository.NewRecordRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	events := dispatcher.New(logger)
	defer events.Close()

	policy, err := cfg.Recon.TolerancePolicy()
	if err != nil {
		logger.Fatal("Invalid tolerance policy", zap.Error(err))
	}

	engine, err := recon.NewEngine(orderFeed, deliveryFeed, recordRepo, auditRepo, events, policy, logger)
	if err != nil {
		logger.Fatal("Failed to initialize reconciliation engine", zap.Error(err))
	}

	var lock port.BatchLock
	if cfg.Redis.Addr != "" {
		rdb := rd.NewClient(&rd.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		lock = redis.NewBatchLock(rdb)
	}

	orchestrator, err := recon.NewOrchestrator(engine, orderFeed, deliveryFeed, lock, cfg.Recon.OrchestratorConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize batch orchestrator", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := orchestrator.ProcessBatch(ctx, ws)
	if err != nil {
		logger.Fatal("Batch failed", zap.Error(err))
	}

	if *reportPath != "" {
		records, err := collectRecords(ctx, orderFeed, recordRepo, ws)
		if err != nil {
			logger.Error("Failed to collect records for report", zap.Error(err))
		} else if err := report.NewExporter(logger).Export(result, records, *reportPath); err != nil {
			logger.Error("Failed to export report", zap.Error(err))
		}
	}

	fmt.Printf("batch %s: processed=%d succeeded=%d disputed=%d failed=%d pending=%d cancelled=%v\n",
		result.BatchID, result.ProcessedCount, result.SucceededCount,
		result.DisputedCount, result.FailedCount, result.PendingDeliveryCount, result.Cancelled)

	if result.FailedCount > 0 || result.Cancelled {
		os.Exit(1)
	}
}

func parseWorkingSet(supplierID, fromStr, toStr string) (recon.WorkingSet, error) {
	if supplierID == "" {
		return recon.WorkingSet{}, fmt.Errorf("-supplier is required")
	}
	from, err := parseTime(fromStr)
	if err != nil {
		return recon.WorkingSet{}, fmt.Errorf("-from: %w", err)
	}
	to, err := parseTime(toStr)
	if err != nil {
		return recon.WorkingSet{}, fmt.Errorf("-to: %w", err)
	}
	return recon.WorkingSet{SupplierID: supplierID, From: from, To: to}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// collectRecords re-lists the working set and loads each order's record so
// the report reflects exactly the orders the batch enumerated.
func collectRecords(ctx context.Context, orders port.OrderFeed, records port.RecordRepository, ws recon.WorkingSet) ([]*entity.ReconciliationRecord, error) {
	ids, err := orders.ListOrdersDue(ctx, ws.SupplierID, ws.From, ws.To)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.ReconciliationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := records.GetByOrderID(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
