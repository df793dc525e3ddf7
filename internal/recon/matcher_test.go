package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/reconciliation/internal/domain/entity"
)

func TestMatcher_MatchByOrderRef(t *testing.T) {
	m := NewMatcher(testLogger())

	order := testOrder("ord-1", orderLine("TOMATO", "10", "2.50"))

	t.Run("explicit order id reference wins over closer total", func(t *testing.T) {
		exact := testReceipt("rcpt-exact", "", deliveryLine("TOMATO", "10", "2.50"))
		referenced := testReceipt("rcpt-ref", "ord-1", deliveryLine("TOMATO", "7", "2.50"))
		pool := NewReceiptPool([]*entity.DeliveryReceipt{exact, referenced})

		result := m.Match(order, pool)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, "rcpt-ref", result.Candidate.ReceiptID)
		assert.Equal(t, entity.MatchByOrderRef, result.Candidate.Method)
	})

	t.Run("order number reference also matches", func(t *testing.T) {
		referenced := testReceipt("rcpt-po", "PO-ord-1", deliveryLine("TOMATO", "10", "2.50"))
		pool := NewReceiptPool([]*entity.DeliveryReceipt{referenced})

		result := m.Match(order, pool)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, "rcpt-po", result.Candidate.ReceiptID)
		assert.Equal(t, entity.MatchByOrderRef, result.Candidate.Method)
	})

	t.Run("reference to another order falls back to total value", func(t *testing.T) {
		other := testReceipt("rcpt-other", "ord-99", deliveryLine("TOMATO", "10", "2.50"))
		pool := NewReceiptPool([]*entity.DeliveryReceipt{other})

		result := m.Match(order, pool)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, entity.MatchByTotalValue, result.Candidate.Method)
	})
}

func TestMatcher_MatchByTotalValue(t *testing.T) {
	m := NewMatcher(testLogger())
	order := testOrder("ord-1", orderLine("TOMATO", "10", "2.50")) // total 25.00

	t.Run("closest total wins", func(t *testing.T) {
		near := testReceipt("rcpt-near", "", deliveryLine("TOMATO", "9", "2.50"))  // 22.50
		far := testReceipt("rcpt-far", "", deliveryLine("TOMATO", "20", "2.50"))   // 50.00
		pool := NewReceiptPool([]*entity.DeliveryReceipt{far, near})

		result := m.Match(order, pool)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, "rcpt-near", result.Candidate.ReceiptID)
		assert.Empty(t, result.Candidate.TieBreak)
	})

	t.Run("equal totals break ties by earlier delivery", func(t *testing.T) {
		early := testReceipt("rcpt-b", "", deliveryLine("TOMATO", "10", "2.50"))
		late := testReceipt("rcpt-a", "", deliveryLine("TOMATO", "10", "2.50"))
		late.DeliveredAt = early.DeliveredAt.Add(2 * time.Hour)
		pool := NewReceiptPool([]*entity.DeliveryReceipt{late, early})

		result := m.Match(order, pool)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, "rcpt-b", result.Candidate.ReceiptID)
		assert.Empty(t, result.Candidate.TieBreak)
	})

	t.Run("identical total and timestamp break ties by id and record the decision", func(t *testing.T) {
		first := testReceipt("rcpt-a", "", deliveryLine("TOMATO", "10", "2.50"))
		second := testReceipt("rcpt-b", "", deliveryLine("TOMATO", "10", "2.50"))
		pool := NewReceiptPool([]*entity.DeliveryReceipt{second, first})

		result := m.Match(order, pool)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, "rcpt-a", result.Candidate.ReceiptID)
		assert.NotEmpty(t, result.Candidate.TieBreak, "ambiguous match must document its tie-break")
	})

	t.Run("empty pool is a miss, not an error", func(t *testing.T) {
		pool := NewReceiptPool(nil)
		result := m.Match(order, pool)
		assert.Nil(t, result.Candidate)
		assert.Nil(t, result.Receipt)
	})
}

func TestReceiptPool_ClaimAtMostOnce(t *testing.T) {
	m := NewMatcher(testLogger())

	receipt := testReceipt("rcpt-1", "", deliveryLine("TOMATO", "10", "2.50"))
	pool := NewReceiptPool([]*entity.DeliveryReceipt{receipt})

	first := testOrder("ord-1", orderLine("TOMATO", "10", "2.50"))
	second := testOrder("ord-2", orderLine("TOMATO", "10", "2.50"))

	r1 := m.Match(first, pool)
	require.NotNil(t, r1.Candidate)

	r2 := m.Match(second, pool)
	assert.Nil(t, r2.Candidate, "a claimed receipt must not match a second order")

	owner, ok := pool.ClaimedBy("rcpt-1")
	require.True(t, ok)
	assert.Equal(t, "ord-1", owner)
	assert.Equal(t, 0, pool.Remaining())
}
