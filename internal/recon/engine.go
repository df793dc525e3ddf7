package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/forkline/reconciliation/internal/application/dispatcher"
	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/forkline/reconciliation/internal/domain/event"
	"github.com/forkline/reconciliation/internal/domain/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock supplies the current time so tests and tenants can pin it.
type Clock func() time.Time

// OutcomeStatus summarizes where one order's reconciliation run ended.
type OutcomeStatus string

const (
	OutcomeCompleted       OutcomeStatus = "COMPLETED"
	OutcomeDisputed        OutcomeStatus = "DISPUTED"
	OutcomeFailed          OutcomeStatus = "FAILED"
	OutcomePendingDelivery OutcomeStatus = "PENDING_DELIVERY"
)

// Outcome is the result of reconciling a single order. FromCache marks an
// idempotent re-run that returned the stored terminal result untouched.
type Outcome struct {
	Status    OutcomeStatus
	Record    *entity.ReconciliationRecord
	FromCache bool
}

// Engine drives the reconciliation pipeline for a single order: match,
// detect, score, resolve, transition. It is an explicit value with injected
// dependencies so isolated instances can run per tenant and in tests.
type Engine struct {
	orders     port.OrderFeed
	deliveries port.DeliveryFeed
	records    port.RecordRepository
	audits     port.AuditRepository
	events     dispatcher.Dispatcher
	policy     TolerancePolicy
	matcher    *Matcher
	detector   *Detector
	scorer     *Scorer
	resolver   *Resolver
	logger     *zap.Logger
	now        Clock
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now Clock) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. The tolerance policy is validated here; an
// invalid policy is a configuration error and nothing gets processed.
func NewEngine(
	orders port.OrderFeed,
	deliveries port.DeliveryFeed,
	records port.RecordRepository,
	audits port.AuditRepository,
	events dispatcher.Dispatcher,
	policy TolerancePolicy,
	logger *zap.Logger,
	opts ...Option,
) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		orders:     orders,
		deliveries: deliveries,
		records:    records,
		audits:     audits,
		events:     events,
		policy:     policy,
		matcher:    NewMatcher(logger),
		detector:   NewDetector(policy),
		scorer:     NewScorer(),
		resolver:   NewResolver(policy),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the engine's base tolerance policy.
func (e *Engine) Policy() TolerancePolicy {
	return e.policy
}

// ReconcileOrder reconciles a single order synchronously, building its own
// receipt pool over the order's lookback window. This is the on-demand
// re-check trigger; batches use ReconcileWithPool so receipts are claimed
// across the whole working set.
func (e *Engine) ReconcileOrder(ctx context.Context, orderID string) (*Outcome, error) {
	order, err := e.fetchOrder(ctx, orderID)
	if err != nil {
		return e.failUnfetchable(ctx, orderID, err)
	}

	receipts, err := e.fetchReceipts(ctx, order)
	if err != nil {
		return e.failOrder(ctx, order, err)
	}

	return e.ReconcileWithPool(ctx, order, NewReceiptPool(receipts))
}

// ReconcileWithPool runs the pipeline for one order against a shared receipt
// pool. Steps are strictly sequential; the pool claim is the only shared
// state touched. Re-running an order whose record is already terminal is a
// no-op that returns the cached result and appends a single audit entry.
// A cancelled context stops the run before the claim; a claimed order runs
// to a terminal state and persists it regardless of cancellation.
func (e *Engine) ReconcileWithPool(ctx context.Context, order *entity.Order, pool *ReceiptPool) (*Outcome, error) {
	rec, err := e.loadOrCreateRecord(ctx, order.ID, order.SupplierID)
	if err != nil {
		return nil, err
	}

	cached, err := e.cachedOutcome(ctx, rec)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	if err := validateOrder(order); err != nil {
		return e.failWithRecord(ctx, rec, err)
	}

	match := e.matcher.Match(order, pool)
	if match.Candidate == nil {
		windowEnd := order.OrderedAt.Add(e.policy.LookbackWindow)
		if e.now().Before(windowEnd) {
			// Match miss inside the window is not an error and not a state
			// change: the order waits for its delivery.
			if err := e.appendAudit(ctx, rec, rec.State, rec.State, "MATCH_MISS",
				fmt.Sprintf("no delivery candidate yet; window open until %s", windowEnd.Format(time.RFC3339))); err != nil {
				return nil, err
			}
			return &Outcome{Status: OutcomePendingDelivery, Record: rec}, nil
		}
		return e.disputeMissingDelivery(ctx, order, rec, windowEnd)
	}

	if err := e.claim(ctx, rec); err != nil {
		return nil, err
	}

	// The order is claimed: its remaining transitions and writes must land
	// even if the batch run is cancelled. Cancellation is honored between
	// orders, at the claim.
	ctx = context.WithoutCancel(ctx)

	if err := validateReceipt(order.ID, match.Receipt); err != nil {
		return e.failWithRecord(ctx, rec, err)
	}

	discrepancies := e.detector.Detect(order, match.Receipt)
	confidence := e.scorer.Score(discrepancies)
	resolutions, autoResolvable := e.resolver.Resolve(order, match.Receipt, discrepancies, confidence)

	rec.Candidate = match.Candidate
	rec.Discrepancies = discrepancies
	rec.Resolutions = resolutions
	rec.Confidence = confidence
	rec.AutoResolvable = autoResolvable

	if match.Candidate.TieBreak != "" {
		if err := e.appendAudit(ctx, rec, rec.State, rec.State, "MATCH_TIE_BREAK", match.Candidate.TieBreak); err != nil {
			return nil, err
		}
	}

	if autoResolvable {
		if err := e.fire(ctx, rec, workflow.TriggerAutoResolve, "engine",
			fmt.Sprintf("all %d discrepancies auto-resolved, confidence %.2f", len(discrepancies), confidence)); err != nil {
			return nil, err
		}
		if err := e.persist(ctx, rec); err != nil {
			return nil, err
		}
		e.emit(ctx, event.TypeReconciliationCompleted, rec)
		return &Outcome{Status: OutcomeCompleted, Record: rec}, nil
	}

	if err := e.fire(ctx, rec, workflow.TriggerDispute, "engine",
		fmt.Sprintf("%d of %d discrepancies require manual review, confidence %.2f",
			countManual(resolutions), len(discrepancies), confidence)); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	e.emit(ctx, event.TypeReconciliationDisputed, rec)
	return &Outcome{Status: OutcomeDisputed, Record: rec}, nil
}

// ResolveDisputed applies a human resolution to a disputed record. One
// resolution is required per outstanding discrepancy; the automated
// confidence score is frozen and the human decision is audited separately.
func (e *Engine) ResolveDisputed(ctx context.Context, orderID string, resolutions map[int]entity.Resolution, resolvedBy string) (*entity.ReconciliationRecord, error) {
	rec, err := e.getRecord(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if workflow.State(rec.State) != workflow.StateDisputed {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotDisputed, orderID, rec.State)
	}

	outstanding := rec.OutstandingDiscrepancies()
	for _, idx := range outstanding {
		res, ok := resolutions[idx]
		if !ok {
			return nil, fmt.Errorf("%w: discrepancy %d unresolved", ErrIncompleteResolution, idx)
		}
		if !res.Action.IsValid() || res.Action == entity.ActionManualReview {
			return nil, fmt.Errorf("%w: discrepancy %d has invalid action %s", ErrIncompleteResolution, idx, res.Action)
		}
	}

	for _, idx := range outstanding {
		res := resolutions[idx]
		res.ResolvedBy = resolvedBy
		rec.Resolutions[idx] = res
	}
	rec.HumanResolvedBy = resolvedBy

	// The transition and its write land together even if the caller
	// disconnects mid-request.
	ctx = context.WithoutCancel(ctx)

	if err := e.fire(ctx, rec, workflow.TriggerResolve, resolvedBy,
		fmt.Sprintf("human resolution for %d discrepancies", len(outstanding))); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}

	e.emit(ctx, event.TypeReconciliationResolved, rec)
	e.logger.Info("Disputed record resolved",
		zap.String("order_id", orderID),
		zap.String("resolved_by", resolvedBy))
	return rec, nil
}

// ReopenFailed is the administrative override out of FAILED, used after
// upstream data has been corrected. The record returns to PROCESSING and the
// next run resumes it.
func (e *Engine) ReopenFailed(ctx context.Context, orderID, actor string) (*entity.ReconciliationRecord, error) {
	rec, err := e.getRecord(ctx, orderID)
	if err != nil {
		return nil, err
	}

	m := workflow.NewReconciliationMachine(workflow.State(rec.State), func(ctx context.Context) bool { return actor != "" })
	prev := rec.State
	if err := m.Fire(ctx, workflow.TriggerAdminReopen); err != nil {
		return nil, err
	}
	rec.State = m.State().String()
	rec.UpdatedAt = e.now()

	ctx = context.WithoutCancel(ctx)
	if err := e.appendAuditAs(ctx, rec, actor, prev, rec.State, workflow.TriggerAdminReopen.String(), "administrative reopen after upstream correction"); err != nil {
		rec.State = prev
		return nil, err
	}

	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// --- pipeline steps ---

func (e *Engine) fetchOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	var order *entity.Order
	err := withRetry(ctx, e.policy, func(ctx context.Context) error {
		o, err := e.orders.GetOrder(ctx, orderID)
		if err != nil {
			return &TransientError{Op: "order feed", Err: err}
		}
		order = o
		return nil
	})
	return order, err
}

func (e *Engine) fetchReceipts(ctx context.Context, order *entity.Order) ([]*entity.DeliveryReceipt, error) {
	from := order.OrderedAt
	to := order.OrderedAt.Add(e.policy.LookbackWindow)

	var receipts []*entity.DeliveryReceipt
	err := withRetry(ctx, e.policy, func(ctx context.Context) error {
		rs, err := e.deliveries.ListReceipts(ctx, order.SupplierID, order.RestaurantID, from, to)
		if err != nil {
			return &TransientError{Op: "delivery feed", Err: err}
		}
		receipts = rs
		return nil
	})
	return receipts, err
}

func (e *Engine) loadOrCreateRecord(ctx context.Context, orderID, supplierID string) (*entity.ReconciliationRecord, error) {
	var rec *entity.ReconciliationRecord
	err := withRetry(ctx, e.policy, func(ctx context.Context) error {
		r, err := e.records.GetByOrderID(ctx, orderID)
		if err != nil {
			return &TransientError{Op: "record store", Err: err}
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	now := e.now()
	rec = &entity.ReconciliationRecord{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		SupplierID: supplierID,
		State:      workflow.StateNotStarted.String(),
		Confidence: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) getRecord(ctx context.Context, orderID string) (*entity.ReconciliationRecord, error) {
	var rec *entity.ReconciliationRecord
	err := withRetry(ctx, e.policy, func(ctx context.Context) error {
		r, err := e.records.GetByOrderID(ctx, orderID)
		if err != nil {
			return &TransientError{Op: "record store", Err: err}
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: order %s", ErrRecordNotFound, orderID)
	}
	return rec, nil
}

// cachedOutcome returns the stored result for records that already reached a
// settled state, or (nil, nil) when the record is still live. The audit trail
// gains exactly one no-op entry per re-run.
func (e *Engine) cachedOutcome(ctx context.Context, rec *entity.ReconciliationRecord) (*Outcome, error) {
	var status OutcomeStatus
	switch workflow.State(rec.State) {
	case workflow.StateCompleted:
		status = OutcomeCompleted
	case workflow.StateDisputed:
		status = OutcomeDisputed
	case workflow.StateFailed:
		status = OutcomeFailed
	default:
		return nil, nil
	}

	if err := e.appendAudit(ctx, rec, rec.State, rec.State, "REPROCESS",
		fmt.Sprintf("already %s; cached result returned", rec.State)); err != nil {
		return nil, err
	}
	return &Outcome{Status: status, Record: rec, FromCache: true}, nil
}

// claim moves a fresh record into PROCESSING and emits the started event.
// Records already in PROCESSING (crashed run, admin reopen) are resumed as-is.
// A cancelled context refuses new claims; a claim that starts writes its
// audit entry and record detached, so the store never sees half a transition.
func (e *Engine) claim(ctx context.Context, rec *entity.ReconciliationRecord) error {
	if workflow.State(rec.State) == workflow.StateProcessing {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.fire(ctx, rec, workflow.TriggerClaim, "engine", "claimed for reconciliation"); err != nil {
		return err
	}
	if err := e.persist(ctx, rec); err != nil {
		return err
	}
	e.emit(ctx, event.TypeReconciliationStarted, rec)
	return nil
}

func (e *Engine) disputeMissingDelivery(ctx context.Context, order *entity.Order, rec *entity.ReconciliationRecord, windowEnd time.Time) (*Outcome, error) {
	if err := e.claim(ctx, rec); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	missing := entity.Discrepancy{
		Type:        entity.DiscrepancyProduct,
		Severity:    entity.SeverityHigh,
		Expected:    fmt.Sprintf("delivery for order %s", order.OrderNumber),
		Actual:      "no delivery received",
		Description: fmt.Sprintf("missing delivery: no candidate within lookback window ending %s", windowEnd.Format(time.RFC3339)),
	}
	rec.Discrepancies = []entity.Discrepancy{missing}
	rec.Confidence = e.scorer.Score(rec.Discrepancies)
	rec.Resolutions = []entity.Resolution{{
		Action: entity.ActionManualReview,
		Notes:  "missing delivery requires human follow-up with supplier",
	}}
	rec.AutoResolvable = false

	if err := e.fire(ctx, rec, workflow.TriggerDispute, "engine", "delivery missing after lookback window"); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	e.emit(ctx, event.TypeReconciliationDisputed, rec)
	return &Outcome{Status: OutcomeDisputed, Record: rec}, nil
}

// failUnfetchable marks an order failed when even its order record could not
// be loaded from the data layer, so the batch result still enumerates it.
func (e *Engine) failUnfetchable(ctx context.Context, orderID string, cause error) (*Outcome, error) {
	rec, err := e.loadOrCreateRecord(ctx, orderID, "")
	if err != nil {
		return nil, cause
	}
	cached, err := e.cachedOutcome(ctx, rec)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return e.failWithRecord(ctx, rec, cause)
}

func (e *Engine) failOrder(ctx context.Context, order *entity.Order, cause error) (*Outcome, error) {
	rec, err := e.loadOrCreateRecord(ctx, order.ID, order.SupplierID)
	if err != nil {
		return nil, cause
	}
	cached, err := e.cachedOutcome(ctx, rec)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return e.failWithRecord(ctx, rec, cause)
}

func (e *Engine) failWithRecord(ctx context.Context, rec *entity.ReconciliationRecord, cause error) (*Outcome, error) {
	if err := e.claim(ctx, rec); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.fire(ctx, rec, workflow.TriggerFail, "engine", cause.Error()); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, rec); err != nil {
		return nil, err
	}
	e.emit(ctx, event.TypeReconciliationFailed, rec)
	e.logger.Warn("Order reconciliation failed",
		zap.String("order_id", rec.OrderID),
		zap.Error(cause))
	return &Outcome{Status: OutcomeFailed, Record: rec}, cause
}

// --- persistence, audit, events ---

func (e *Engine) fire(ctx context.Context, rec *entity.ReconciliationRecord, trigger workflow.Trigger, actor, detail string) error {
	m := workflow.NewReconciliationMachine(workflow.State(rec.State), nil)
	prev := rec.State
	if err := m.Fire(ctx, trigger); err != nil {
		e.logger.Error("Rejected illegal state transition",
			zap.String("order_id", rec.OrderID),
			zap.String("from", prev),
			zap.String("trigger", trigger.String()),
			zap.Error(err))
		return err
	}
	rec.State = m.State().String()
	rec.UpdatedAt = e.now()
	if err := e.appendAuditAs(ctx, rec, actor, prev, rec.State, trigger.String(), detail); err != nil {
		// The trail is authoritative: a transition whose entry cannot be
		// appended does not happen.
		rec.State = prev
		return err
	}
	return nil
}

func (e *Engine) appendAudit(ctx context.Context, rec *entity.ReconciliationRecord, prev, next, trigger, detail string) error {
	return e.appendAuditAs(ctx, rec, "engine", prev, next, trigger, detail)
}

func (e *Engine) appendAuditAs(ctx context.Context, rec *entity.ReconciliationRecord, actor, prev, next, trigger, detail string) error {
	entry := &entity.TransitionEntry{
		RecordID:      rec.ID,
		PreviousState: prev,
		NewState:      next,
		Trigger:       trigger,
		Actor:         actor,
		Detail:        detail,
		Timestamp:     e.now(),
	}
	err := withRetry(ctx, e.policy, func(ctx context.Context) error {
		if err := e.audits.Append(ctx, entry); err != nil {
			return &TransientError{Op: "audit store", Err: err}
		}
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to append audit entry",
			zap.String("record_id", rec.ID),
			zap.String("trigger", trigger),
			zap.Error(err))
	}
	return err
}

func (e *Engine) persist(ctx context.Context, rec *entity.ReconciliationRecord) error {
	return withRetry(ctx, e.policy, func(ctx context.Context) error {
		if err := e.records.Upsert(ctx, rec); err != nil {
			return &TransientError{Op: "record store", Err: err}
		}
		return nil
	})
}

func (e *Engine) emit(ctx context.Context, t event.Type, rec *entity.ReconciliationRecord) {
	evt := event.New(t, rec.ID, rec.OrderID, map[string]interface{}{
		"confidence":         rec.Confidence,
		"auto_resolvable":    rec.AutoResolvable,
		"state":              rec.State,
		"resolution_summary": resolutionSummary(rec.Resolutions),
	})
	if err := e.events.Dispatch(ctx, evt); err != nil {
		e.logger.Error("Failed to dispatch reconciliation event",
			zap.String("event_type", t.String()),
			zap.String("record_id", rec.ID),
			zap.Error(err))
	}
}

func resolutionSummary(resolutions []entity.Resolution) map[string]int {
	summary := make(map[string]int, 4)
	for _, r := range resolutions {
		summary[string(r.Action)]++
	}
	return summary
}

func countManual(resolutions []entity.Resolution) int {
	n := 0
	for _, r := range resolutions {
		if r.Action == entity.ActionManualReview {
			n++
		}
	}
	return n
}
