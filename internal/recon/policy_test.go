package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkline/reconciliation/internal/domain/entity"
)

func TestResolver_LowSeverityApproves(t *testing.T) {
	r := NewResolver(testPolicy())

	order := testOrder("ord-1", orderLine("FLOUR", "100", "1.00"))
	receipt := testReceipt("rcpt-1", "ord-1", deliveryLine("FLOUR", "98", "1.00"))
	discrepancies := []entity.Discrepancy{{
		Type:        entity.DiscrepancyQuantity,
		Severity:    entity.SeverityLow,
		ProductCode: "FLOUR",
	}}

	resolutions, auto := r.Resolve(order, receipt, discrepancies, 0.95)
	require.Len(t, resolutions, 1)
	assert.Equal(t, entity.ActionApprove, resolutions[0].Action)
	assert.True(t, auto)
}

func TestResolver_AutoAdjustWithinCeiling(t *testing.T) {
	r := NewResolver(testPolicy())

	// Price is whitelisted by default; 100 x 0.05 = 5.00 adjustment, under the
	// 25.00 ceiling.
	order := testOrder("ord-1", orderLine("FLOUR", "100", "1.00"))
	receipt := testReceipt("rcpt-1", "ord-1", deliveryLine("FLOUR", "100", "1.05"))
	discrepancies := []entity.Discrepancy{{
		Type:        entity.DiscrepancyPrice,
		Severity:    entity.SeverityMedium,
		ProductCode: "FLOUR",
	}}

	resolutions, auto := r.Resolve(order, receipt, discrepancies, 0.85)
	require.Len(t, resolutions, 1)
	assert.Equal(t, entity.ActionAdjust, resolutions[0].Action)
	require.NotNil(t, resolutions[0].AdjustmentAmount)
	assert.True(t, resolutions[0].AdjustmentAmount.Equal(dec("5.00")),
		"adjustment should be the signed delivered-minus-ordered line difference, got %s", resolutions[0].AdjustmentAmount)
	assert.True(t, auto)
}

func TestResolver_AdjustmentOverCeilingEscalates(t *testing.T) {
	r := NewResolver(testPolicy())

	// 100 x 0.50 = 50.00 exceeds the 25.00 ceiling.
	order := testOrder("ord-1", orderLine("FLOUR", "100", "1.00"))
	receipt := testReceipt("rcpt-1", "ord-1", deliveryLine("FLOUR", "100", "1.50"))
	discrepancies := []entity.Discrepancy{{
		Type:        entity.DiscrepancyPrice,
		Severity:    entity.SeverityHigh,
		ProductCode: "FLOUR",
	}}

	resolutions, auto := r.Resolve(order, receipt, discrepancies, 0.70)
	require.Len(t, resolutions, 1)
	assert.Equal(t, entity.ActionManualReview, resolutions[0].Action)
	assert.False(t, auto)
}

func TestResolver_NonWhitelistedTypeEscalates(t *testing.T) {
	r := NewResolver(testPolicy())

	// Quantity is not whitelisted for auto adjustment by default, so medium
	// severity goes to review even for a tiny money difference.
	order := testOrder("ord-1", orderLine("FLOUR", "100", "1.00"))
	receipt := testReceipt("rcpt-1", "ord-1", deliveryLine("FLOUR", "90", "1.00"))
	discrepancies := []entity.Discrepancy{{
		Type:        entity.DiscrepancyQuantity,
		Severity:    entity.SeverityMedium,
		ProductCode: "FLOUR",
	}}

	resolutions, auto := r.Resolve(order, receipt, discrepancies, 0.85)
	require.Len(t, resolutions, 1)
	assert.Equal(t, entity.ActionManualReview, resolutions[0].Action)
	assert.False(t, auto)
}

func TestResolver_SingleReviewDisputesWholeRecord(t *testing.T) {
	r := NewResolver(testPolicy())

	order := testOrder("ord-1",
		orderLine("FLOUR", "100", "1.00"),
		orderLine("SUGAR", "50", "2.00"))
	receipt := testReceipt("rcpt-1", "ord-1",
		deliveryLine("FLOUR", "99", "1.00"),
		deliveryLine("SUGAR", "30", "2.00"))
	discrepancies := []entity.Discrepancy{
		{Type: entity.DiscrepancyQuantity, Severity: entity.SeverityLow, ProductCode: "FLOUR"},
		{Type: entity.DiscrepancyQuantity, Severity: entity.SeverityHigh, ProductCode: "SUGAR"},
	}

	resolutions, auto := r.Resolve(order, receipt, discrepancies, 0.65)
	require.Len(t, resolutions, 2)
	assert.Equal(t, entity.ActionApprove, resolutions[0].Action)
	assert.Equal(t, entity.ActionManualReview, resolutions[1].Action)
	assert.False(t, auto, "one manual review disputes the whole record")
}

func TestResolver_TenantOverrideWhitelistsQuantity(t *testing.T) {
	policy := testPolicy().Merge(&TenantOverride{
		AutoAdjustTypes: map[entity.DiscrepancyType]bool{
			entity.DiscrepancyPrice:    true,
			entity.DiscrepancyQuantity: true,
		},
	})
	r := NewResolver(policy)

	order := testOrder("ord-1", orderLine("FLOUR", "100", "1.00"))
	receipt := testReceipt("rcpt-1", "ord-1", deliveryLine("FLOUR", "90", "1.00"))
	discrepancies := []entity.Discrepancy{{
		Type:        entity.DiscrepancyQuantity,
		Severity:    entity.SeverityMedium,
		ProductCode: "FLOUR",
	}}

	resolutions, auto := r.Resolve(order, receipt, discrepancies, 0.85)
	require.Len(t, resolutions, 1)
	assert.Equal(t, entity.ActionAdjust, resolutions[0].Action)
	require.NotNil(t, resolutions[0].AdjustmentAmount)
	assert.True(t, resolutions[0].AdjustmentAmount.Equal(dec("-10.00")))
	assert.True(t, auto)
}
