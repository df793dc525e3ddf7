package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forkline/reconciliation/internal/application/dispatcher"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/forkline/reconciliation/internal/recon"
)

var handlerTestTime = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type stubOrderFeed struct {
	orders map[string]*entity.Order
}

func (s *stubOrderFeed) GetOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return o, nil
}

func (s *stubOrderFeed) ListOrdersDue(ctx context.Context, supplierID string, from, to time.Time) ([]string, error) {
	var ids []string
	for id := range s.orders {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubDeliveryFeed struct {
	receipts []*entity.DeliveryReceipt
}

func (s *stubDeliveryFeed) ListReceipts(ctx context.Context, supplierID, restaurantID string, from, to time.Time) ([]*entity.DeliveryReceipt, error) {
	return s.receipts, nil
}

type stubRecordRepo struct {
	mu      sync.Mutex
	records map[string]*entity.ReconciliationRecord
}

func (s *stubRecordRepo) Upsert(ctx context.Context, record *entity.ReconciliationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.OrderID] = &cp
	return nil
}

func (s *stubRecordRepo) GetByOrderID(ctx context.Context, orderID string) (*entity.ReconciliationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[orderID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *stubRecordRepo) ListBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]*entity.ReconciliationRecord, error) {
	return nil, nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	entries []*entity.TransitionEntry
}

func (s *stubAuditRepo) Append(ctx context.Context, entry *entity.TransitionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepo) GetByRecordID(ctx context.Context, recordID string) ([]*entity.TransitionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries, nil
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

func handlerLine(code, qty, price string) entity.OrderLineItem {
	q, _ := decimal.NewFromString(qty)
	p, _ := decimal.NewFromString(price)
	return entity.OrderLineItem{ProductCode: code, Quantity: q, UnitPrice: p}
}

func newTestServer(t *testing.T, orders map[string]*entity.Order, receipts ...*entity.DeliveryReceipt) *Server {
	t.Helper()

	policy := recon.DefaultTolerancePolicy()
	policy.RetryBackoff = time.Millisecond
	policy.RetryBackoffMax = 2 * time.Millisecond

	events := dispatcher.New(zap.NewNop())
	t.Cleanup(func() { events.Close() })

	records := &stubRecordRepo{records: make(map[string]*entity.ReconciliationRecord)}
	audits := &stubAuditRepo{}

	engine, err := recon.NewEngine(
		&stubOrderFeed{orders: orders},
		&stubDeliveryFeed{receipts: receipts},
		records,
		audits,
		events,
		policy,
		zap.NewNop(),
		recon.WithClock(func() time.Time { return handlerTestTime.Add(time.Hour) }),
	)
	require.NoError(t, err)

	return NewServer(DefaultServerConfig(), engine, nil, records, audits, nopLogger{})
}

func TestHandlers_ReconcileOrder(t *testing.T) {
	clean := &entity.Order{
		ID:           "ord-1",
		SupplierID:   "sup-1",
		RestaurantID: "rest-1",
		OrderNumber:  "PO-ord-1",
		Items:        []entity.OrderLineItem{handlerLine("TOMATO", "10", "2.50")},
		OrderedAt:    handlerTestTime,
	}
	malformed := &entity.Order{
		ID:           "ord-bad",
		SupplierID:   "sup-1",
		RestaurantID: "rest-1",
		OrderNumber:  "PO-ord-bad",
		Items:        []entity.OrderLineItem{handlerLine("TOMATO", "-3", "2.50")},
		OrderedAt:    handlerTestTime,
	}
	receiptFor := func(orderRef string) *entity.DeliveryReceipt {
		return &entity.DeliveryReceipt{
			ID:           "rcpt-" + orderRef,
			OrderRef:     orderRef,
			SupplierID:   "sup-1",
			RestaurantID: "rest-1",
			Items: []entity.DeliveryLineItem{{
				ProductCode: "TOMATO",
				Quantity:    decimal.NewFromInt(10),
				UnitPrice:   decimal.RequireFromString("2.50"),
			}},
			DeliveredAt: handlerTestTime.Add(30 * time.Minute),
		}
	}

	t.Run("completed outcome returns 200", func(t *testing.T) {
		server := newTestServer(t, map[string]*entity.Order{"ord-1": clean}, receiptFor("ord-1"))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/orders/ord-1/reconcile", nil)
		server.Router().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("failed outcome returns 422 with the record", func(t *testing.T) {
		server := newTestServer(t, map[string]*entity.Order{"ord-bad": malformed}, receiptFor("ord-bad"))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/orders/ord-bad/reconcile", nil)
		server.Router().ServeHTTP(w, req)

		require.Equal(t, http.StatusUnprocessableEntity, w.Code,
			"a failed reconciliation must be visible from the status code alone")

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Error)

		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var outcome OutcomeResponse
		require.NoError(t, json.Unmarshal(data, &outcome))
		assert.Equal(t, string(recon.OutcomeFailed), outcome.Status)
		require.NotNil(t, outcome.Record)
	})

	t.Run("unknown record returns 404", func(t *testing.T) {
		server := newTestServer(t, map[string]*entity.Order{"ord-1": clean}, receiptFor("ord-1"))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/records/ord-missing", nil)
		server.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
