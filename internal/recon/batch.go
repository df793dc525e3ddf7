package recon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkingSet describes one batch run: every order for a supplier that became
// due for reconciliation within the period.
type WorkingSet struct {
	SupplierID string
	From       time.Time
	To         time.Time
}

// Validate rejects an unusable working set before any order is claimed.
func (ws WorkingSet) Validate() error {
	if ws.SupplierID == "" {
		return &ConfigurationError{Field: "supplier_id", Reason: "must not be empty"}
	}
	if !ws.To.After(ws.From) {
		return &ConfigurationError{Field: "period", Reason: "end must be after start"}
	}
	return nil
}

// LockKey identifies the working set for the duplicate-trigger guard.
func (ws WorkingSet) LockKey() string {
	return fmt.Sprintf("recon:batch:%s:%d:%d", ws.SupplierID, ws.From.Unix(), ws.To.Unix())
}

// BatchResult enumerates every order's outcome for one run. No order silently
// disappears: an order is counted exactly once and failures carry their error.
type BatchResult struct {
	BatchID              string            `json:"batch_id"`
	SupplierID           string            `json:"supplier_id"`
	ProcessedCount       int               `json:"processed_count"`
	SucceededCount       int               `json:"succeeded_count"`
	FailedCount          int               `json:"failed_count"`
	DisputedCount        int               `json:"disputed_count"`
	PendingDeliveryCount int               `json:"pending_delivery_count"`
	PerOrderErrors       map[string]string `json:"per_order_errors"`
	Cancelled            bool              `json:"cancelled"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          time.Time         `json:"completed_at"`
}

// OrchestratorConfig bounds the batch run.
type OrchestratorConfig struct {
	// Workers is the size of the bounded worker pool.
	Workers int

	// LockTTL bounds how long a crashed run can block a re-trigger.
	LockTTL time.Duration
}

// DefaultOrchestratorConfig returns 8 workers and a 30 minute lock, matching
// the target of finishing a supplier's daily batch well inside 30 minutes.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Workers: 8,
		LockTTL: 30 * time.Minute,
	}
}

// Validate rejects nonsensical orchestrator configuration.
func (c OrchestratorConfig) Validate() error {
	if c.Workers < 1 {
		return &ConfigurationError{Field: "workers", Reason: "must be at least 1"}
	}
	if c.LockTTL <= 0 {
		return &ConfigurationError{Field: "lock_ttl", Reason: "must be positive"}
	}
	return nil
}

// Orchestrator drives a working set of orders through the engine with a
// bounded worker pool. Individual order failures never abort the batch;
// configuration errors abort it before any order is claimed.
type Orchestrator struct {
	engine     *Engine
	orders     port.OrderFeed
	deliveries port.DeliveryFeed
	lock       port.BatchLock
	config     OrchestratorConfig
	logger     *zap.Logger
	now        Clock
}

// batchRun holds per-run state so concurrent batches on the same
// orchestrator never share receipt pools.
type batchRun struct {
	o  *Orchestrator
	ws WorkingSet

	poolMu sync.Mutex
	pools  map[string]*ReceiptPool
}

// NewOrchestrator creates an orchestrator. lock may be nil when no
// distributed duplicate-trigger guard is configured.
func NewOrchestrator(
	engine *Engine,
	orders port.OrderFeed,
	deliveries port.DeliveryFeed,
	lock port.BatchLock,
	config OrchestratorConfig,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		engine:     engine,
		orders:     orders,
		deliveries: deliveries,
		lock:       lock,
		config:     config,
		logger:     logger,
		now:        engine.now,
	}, nil
}

// ProcessBatch reconciles every order in the working set. The run supports
// cooperative cancellation: on a cancelled context no new order is claimed;
// an order already claimed runs to a terminal state and persists it before
// its worker stops.
func (o *Orchestrator) ProcessBatch(ctx context.Context, ws WorkingSet) (*BatchResult, error) {
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	if err := o.engine.Policy().Validate(); err != nil {
		return nil, err
	}

	if o.lock != nil {
		token, ok, err := o.lock.Acquire(ctx, ws.LockKey(), o.config.LockTTL)
		if err != nil {
			return nil, &TransientError{Op: "batch lock", Err: err}
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBatchAlreadyRunning, ws.LockKey())
		}
		defer func() {
			if err := o.lock.Release(context.WithoutCancel(ctx), ws.LockKey(), token); err != nil {
				o.logger.Warn("Failed to release batch lock", zap.String("key", ws.LockKey()), zap.Error(err))
			}
		}()
	}

	orderIDs, err := o.listWorkingSet(ctx, ws)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		BatchID:        uuid.NewString(),
		SupplierID:     ws.SupplierID,
		PerOrderErrors: make(map[string]string),
		StartedAt:      o.now(),
	}
	run := &batchRun{o: o, ws: ws, pools: make(map[string]*ReceiptPool)}

	o.logger.Info("Batch started",
		zap.String("batch_id", result.BatchID),
		zap.String("supplier_id", ws.SupplierID),
		zap.Int("orders", len(orderIDs)),
		zap.Int("workers", o.config.Workers))

	type orderOutcome struct {
		orderID string
		outcome *Outcome
		err     error
	}

	jobs := make(chan string)
	outcomes := make(chan orderOutcome)

	workers := o.config.Workers
	if workers > len(orderIDs) {
		workers = len(orderIDs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderID := range jobs {
				out, err := run.processOne(ctx, orderID)
				outcomes <- orderOutcome{orderID: orderID, outcome: out, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		seen := make(map[string]bool, len(orderIDs))
		for _, id := range orderIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			select {
			case <-ctx.Done():
				return
			case jobs <- id:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for oo := range outcomes {
		result.ProcessedCount++
		switch {
		case oo.err != nil:
			result.FailedCount++
			result.PerOrderErrors[oo.orderID] = oo.err.Error()
		case oo.outcome.Status == OutcomeCompleted:
			result.SucceededCount++
		case oo.outcome.Status == OutcomeDisputed:
			result.DisputedCount++
		case oo.outcome.Status == OutcomePendingDelivery:
			result.PendingDeliveryCount++
		case oo.outcome.Status == OutcomeFailed:
			result.FailedCount++
			result.PerOrderErrors[oo.orderID] = "marked failed in a previous run"
		}
	}

	result.Cancelled = ctx.Err() != nil
	result.CompletedAt = o.now()

	o.logger.Info("Batch finished",
		zap.String("batch_id", result.BatchID),
		zap.Int("processed", result.ProcessedCount),
		zap.Int("succeeded", result.SucceededCount),
		zap.Int("disputed", result.DisputedCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("pending_delivery", result.PendingDeliveryCount),
		zap.Bool("cancelled", result.Cancelled))

	return result, nil
}

// processOne runs the full pipeline for a single order against the run's
// shared receipt pools.
func (r *batchRun) processOne(ctx context.Context, orderID string) (*Outcome, error) {
	order, err := r.o.fetchOrder(ctx, orderID)
	if err != nil {
		return r.o.engine.failUnfetchable(ctx, orderID, err)
	}

	pool, err := r.poolFor(ctx, order.RestaurantID)
	if err != nil {
		return r.o.engine.failOrder(ctx, order, err)
	}

	return r.o.engine.ReconcileWithPool(ctx, order, pool)
}

// poolFor returns the receipt pool for a supplier/restaurant pair, fetching
// it once per run. Pools are scoped to the run so a receipt consumed by one
// order stays consumed for the whole batch.
func (r *batchRun) poolFor(ctx context.Context, restaurantID string) (*ReceiptPool, error) {
	r.poolMu.Lock()
	defer r.poolMu.Unlock()

	if pool, ok := r.pools[restaurantID]; ok {
		return pool, nil
	}

	// Receipts may arrive up to a full lookback window after the last order
	// in the period.
	from := r.ws.From
	to := r.ws.To.Add(r.o.engine.Policy().LookbackWindow)

	var receipts []*entity.DeliveryReceipt
	err := withRetry(ctx, r.o.engine.Policy(), func(ctx context.Context) error {
		rs, err := r.o.deliveries.ListReceipts(ctx, r.ws.SupplierID, restaurantID, from, to)
		if err != nil {
			return &TransientError{Op: "delivery feed", Err: err}
		}
		receipts = rs
		return nil
	})
	if err != nil {
		return nil, err
	}

	pool := NewReceiptPool(receipts)
	r.pools[restaurantID] = pool
	return pool, nil
}

func (o *Orchestrator) fetchOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	var order *entity.Order
	err := withRetry(ctx, o.engine.Policy(), func(ctx context.Context) error {
		ord, err := o.orders.GetOrder(ctx, orderID)
		if err != nil {
			return &TransientError{Op: "order feed", Err: err}
		}
		order = ord
		return nil
	})
	return order, err
}

func (o *Orchestrator) listWorkingSet(ctx context.Context, ws WorkingSet) ([]string, error) {
	var ids []string
	err := withRetry(ctx, o.engine.Policy(), func(ctx context.Context) error {
		listed, err := o.orders.ListOrdersDue(ctx, ws.SupplierID, ws.From, ws.To)
		if err != nil {
			return &TransientError{Op: "order feed", Err: err}
		}
		ids = listed
		return nil
	})
	return ids, err
}
