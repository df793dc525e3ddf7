package recon

import (
	"fmt"
	"sort"
	"sync"

	"github.com/forkline/reconciliation/internal/domain/entity"
	"go.uber.org/zap"
)

// ReceiptPool holds the delivery receipts a batch run may match against,
// scoped per run and per supplier. It is the only shared mutable state
// between workers: a receipt can be claimed by at most one order, so every
// claim happens under the pool mutex.
type ReceiptPool struct {
	mu       sync.Mutex
	receipts []*entity.DeliveryReceipt
	claimed  map[string]string // receipt id -> order id
}

// NewReceiptPool creates a pool over the given receipts.
func NewReceiptPool(receipts []*entity.DeliveryReceipt) *ReceiptPool {
	return &ReceiptPool{
		receipts: receipts,
		claimed:  make(map[string]string),
	}
}

// ClaimedBy returns the order that claimed a receipt, if any.
func (p *ReceiptPool) ClaimedBy(receiptID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	orderID, ok := p.claimed[receiptID]
	return orderID, ok
}

// Remaining returns the number of unclaimed receipts.
func (p *ReceiptPool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.receipts) - len(p.claimed)
}

// MatchResult is the outcome of matching one order against the pool.
// A nil Candidate is a match miss, not an error: the order stays pending
// delivery until the lookback window elapses.
type MatchResult struct {
	Candidate *entity.MatchCandidate
	Receipt   *entity.DeliveryReceipt
}

// Matcher pairs orders with delivery receipts.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match selects and claims at most one receipt from the pool for the order.
// Priority: an explicit order reference wins; otherwise the unclaimed receipt
// whose computed total is closest to the order total, ties broken by earliest
// delivery timestamp and then by receipt id so the decision is reproducible.
func (m *Matcher) Match(order *entity.Order, pool *ReceiptPool) MatchResult {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if r := m.matchByOrderRef(order, pool); r.Candidate != nil {
		return r
	}
	return m.matchByTotalValue(order, pool)
}

func (m *Matcher) matchByOrderRef(order *entity.Order, pool *ReceiptPool) MatchResult {
	for _, receipt := range pool.receipts {
		if _, taken := pool.claimed[receipt.ID]; taken {
			continue
		}
		if receipt.OrderRef == "" {
			continue
		}
		if receipt.OrderRef == order.ID || receipt.OrderRef == order.OrderNumber {
			pool.claimed[receipt.ID] = order.ID
			m.logger.Debug("Matched delivery by order reference",
				zap.String("order_id", order.ID),
				zap.String("receipt_id", receipt.ID))
			return MatchResult{
				Candidate: &entity.MatchCandidate{
					OrderID:   order.ID,
					ReceiptID: receipt.ID,
					Method:    entity.MatchByOrderRef,
				},
				Receipt: receipt,
			}
		}
	}
	return MatchResult{}
}

func (m *Matcher) matchByTotalValue(order *entity.Order, pool *ReceiptPool) MatchResult {
	orderTotal := order.TotalValue()

	candidates := make([]*entity.DeliveryReceipt, 0, len(pool.receipts))
	for _, receipt := range pool.receipts {
		if _, taken := pool.claimed[receipt.ID]; taken {
			continue
		}
		candidates = append(candidates, receipt)
	}
	if len(candidates) == 0 {
		return MatchResult{}
	}

	// Closest total first, then earliest delivery, then id ordering. The id
	// tie-break keeps ambiguous pools deterministic across runs.
	sort.Slice(candidates, func(i, j int) bool {
		di := candidates[i].TotalValue().Sub(orderTotal).Abs()
		dj := candidates[j].TotalValue().Sub(orderTotal).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		if !candidates[i].DeliveredAt.Equal(candidates[j].DeliveredAt) {
			return candidates[i].DeliveredAt.Before(candidates[j].DeliveredAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	best := candidates[0]
	pool.claimed[best.ID] = order.ID

	tieBreak := ""
	if len(candidates) > 1 {
		next := candidates[1]
		sameTotal := next.TotalValue().Sub(orderTotal).Abs().Equal(best.TotalValue().Sub(orderTotal).Abs())
		if sameTotal && next.DeliveredAt.Equal(best.DeliveredAt) {
			tieBreak = fmt.Sprintf("identical total and timestamp; selected %s over %s by id ordering", best.ID, next.ID)
			m.logger.Info("Ambiguous delivery match resolved deterministically",
				zap.String("order_id", order.ID),
				zap.String("selected_receipt", best.ID),
				zap.String("runner_up", next.ID))
		}
	}

	m.logger.Debug("Matched delivery by total value",
		zap.String("order_id", order.ID),
		zap.String("receipt_id", best.ID))

	return MatchResult{
		Candidate: &entity.MatchCandidate{
			OrderID:   order.ID,
			ReceiptID: best.ID,
			Method:    entity.MatchByTotalValue,
			TieBreak:  tieBreak,
		},
		Receipt: best,
	}
}
