package recon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forkline/reconciliation/internal/domain/entity"
)

var testTime = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testOrder(id string, items ...entity.OrderLineItem) *entity.Order {
	return &entity.Order{
		ID:           id,
		SupplierID:   "sup-1",
		RestaurantID: "rest-1",
		OrderNumber:  "PO-" + id,
		Items:        items,
		OrderedAt:    testTime,
	}
}

func orderLine(code, qty, price string) entity.OrderLineItem {
	return entity.OrderLineItem{ProductCode: code, Quantity: dec(qty), UnitPrice: dec(price)}
}

func testReceipt(id, orderRef string, items ...entity.DeliveryLineItem) *entity.DeliveryReceipt {
	return &entity.DeliveryReceipt{
		ID:           id,
		OrderRef:     orderRef,
		SupplierID:   "sup-1",
		RestaurantID: "rest-1",
		Items:        items,
		DeliveredAt:  testTime.Add(4 * time.Hour),
	}
}

func deliveryLine(code, qty, price string) entity.DeliveryLineItem {
	return entity.DeliveryLineItem{ProductCode: code, Quantity: dec(qty), UnitPrice: dec(price)}
}

// --- in-memory port fakes ---

type fakeOrderFeed struct {
	mu     sync.Mutex
	orders map[string]*entity.Order
	due    []string
	// failGets counts down to zero; while positive, GetOrder fails.
	failGets int
}

func newFakeOrderFeed(orders ...*entity.Order) *fakeOrderFeed {
	f := &fakeOrderFeed{orders: make(map[string]*entity.Order)}
	for _, o := range orders {
		f.orders[o.ID] = o
		f.due = append(f.due, o.ID)
	}
	return f
}

func (f *fakeOrderFeed) GetOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets > 0 {
		f.failGets--
		return nil, fmt.Errorf("order feed unavailable")
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return o, nil
}

func (f *fakeOrderFeed) ListOrdersDue(ctx context.Context, supplierID string, from, to time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.due...), nil
}

type fakeDeliveryFeed struct {
	mu       sync.Mutex
	receipts []*entity.DeliveryReceipt
	calls    int
}

func newFakeDeliveryFeed(receipts ...*entity.DeliveryReceipt) *fakeDeliveryFeed {
	return &fakeDeliveryFeed{receipts: receipts}
}

func (f *fakeDeliveryFeed) ListReceipts(ctx context.Context, supplierID, restaurantID string, from, to time.Time) ([]*entity.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]*entity.DeliveryReceipt{}, f.receipts...), nil
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[string]*entity.ReconciliationRecord
	// failUpserts counts down to zero; while positive, Upsert fails.
	failUpserts int
	// failGets counts down to zero; while positive, GetByOrderID fails.
	failGets int
	// onUpsert runs after each successful write, outside the lock.
	onUpsert func(*entity.ReconciliationRecord)
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*entity.ReconciliationRecord)}
}

// Like the sqlite driver, the fake refuses to execute on a cancelled context.
func (f *fakeRecordRepo) Upsert(ctx context.Context, record *entity.ReconciliationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if f.failUpserts > 0 {
		f.failUpserts--
		f.mu.Unlock()
		return fmt.Errorf("record store unavailable")
	}
	cp := *record
	f.records[record.OrderID] = &cp
	hook := f.onUpsert
	f.mu.Unlock()
	if hook != nil {
		hook(&cp)
	}
	return nil
}

func (f *fakeRecordRepo) GetByOrderID(ctx context.Context, orderID string) (*entity.ReconciliationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGets > 0 {
		f.failGets--
		return nil, fmt.Errorf("record store unavailable")
	}
	rec, ok := f.records[orderID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordRepo) ListBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]*entity.ReconciliationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ReconciliationRecord
	for _, rec := range f.records {
		if rec.SupplierID == supplierID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*entity.TransitionEntry
	// failAppends counts down to zero; while positive, Append fails.
	failAppends int
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (f *fakeAuditRepo) Append(ctx context.Context, entry *entity.TransitionEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppends > 0 {
		f.failAppends--
		return fmt.Errorf("audit store unavailable")
	}
	cp := *entry
	cp.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAuditRepo) GetByRecordID(ctx context.Context, recordID string) ([]*entity.TransitionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.TransitionEntry
	for _, e := range f.entries {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) byTrigger(trigger string) []*entity.TransitionEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.TransitionEntry
	for _, e := range f.entries {
		if e.Trigger == trigger {
			out = append(out, e)
		}
	}
	return out
}

type fakeBatchLock struct {
	mu   sync.Mutex
	held map[string]string
}

func newFakeBatchLock() *fakeBatchLock {
	return &fakeBatchLock{held: make(map[string]string)}
}

func (f *fakeBatchLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.held[key]; taken {
		return "", false, nil
	}
	token := fmt.Sprintf("tok-%d", len(f.held)+1)
	f.held[key] = token
	return token, true, nil
}

func (f *fakeBatchLock) Release(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

// testPolicy shrinks the retry backoff so failure paths stay fast.
func testPolicy() TolerancePolicy {
	p := DefaultTolerancePolicy()
	p.RetryBackoff = time.Millisecond
	p.RetryBackoffMax = 2 * time.Millisecond
	return p
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
