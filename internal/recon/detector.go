package recon

import (
	"fmt"

	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Detector compares a matched order/receipt pair line by line and produces the
// ordered list of discrepancies. An empty list means a perfect match. The
// comparison is pure: no I/O, no clock, no logging.
type Detector struct {
	policy TolerancePolicy
}

// NewDetector creates a detector running against the given tolerance policy.
func NewDetector(policy TolerancePolicy) *Detector {
	return &Detector{policy: policy}
}

// Detect walks the order's lines in order, then reports extra delivered lines.
// Every discrepancy traces to exactly one line item comparison.
func (d *Detector) Detect(order *entity.Order, receipt *entity.DeliveryReceipt) []entity.Discrepancy {
	var out []entity.Discrepancy

	for _, ordered := range order.Items {
		delivered, ok := receipt.Line(ordered.ProductCode)
		if !ok {
			out = append(out, entity.Discrepancy{
				Type:        entity.DiscrepancyProduct,
				Severity:    entity.SeverityHigh,
				ProductCode: ordered.ProductCode,
				Expected:    fmt.Sprintf("%s x %s @ %s", ordered.ProductCode, ordered.Quantity, ordered.UnitPrice),
				Actual:      "not delivered",
				Description: fmt.Sprintf("ordered product %s missing from delivery", ordered.ProductCode),
				SuggestedResolution: "confirm short shipment with supplier or await partial delivery",
			})
			continue
		}

		if disc, ok := d.compareQuantity(ordered, delivered); ok {
			out = append(out, disc)
		}
		if disc, ok := d.comparePrice(ordered, delivered); ok {
			out = append(out, disc)
		}
		if delivered.QualityFlag != nil {
			out = append(out, entity.Discrepancy{
				Type:        entity.DiscrepancyQuality,
				Severity:    delivered.QualityFlag.Severity,
				ProductCode: ordered.ProductCode,
				Expected:    "acceptable quality",
				Actual:      delivered.QualityFlag.Code,
				Description: fmt.Sprintf("quality flag %s on product %s: %s", delivered.QualityFlag.Code, ordered.ProductCode, delivered.QualityFlag.Note),
			})
		}
	}

	// Extra delivered lines are informational, never blocking.
	for _, delivered := range receipt.Items {
		if _, ok := order.Line(delivered.ProductCode); !ok {
			out = append(out, entity.Discrepancy{
				Type:          entity.DiscrepancyProduct,
				Severity:      entity.SeverityLow,
				ProductCode:   delivered.ProductCode,
				Expected:      "not ordered",
				Actual:        fmt.Sprintf("%s x %s @ %s", delivered.ProductCode, delivered.Quantity, delivered.UnitPrice),
				Description:   fmt.Sprintf("delivered product %s was not on the order", delivered.ProductCode),
				Informational: true,
			})
		}
	}

	return out
}

func (d *Detector) compareQuantity(ordered entity.OrderLineItem, delivered entity.DeliveryLineItem) (entity.Discrepancy, bool) {
	if ordered.Quantity.Equal(delivered.Quantity) {
		return entity.Discrepancy{}, false
	}

	deviation := relativeDeviation(ordered.Quantity, delivered.Quantity)
	severity := classify(deviation, d.policy.QuantityLowThreshold, d.policy.QuantityMediumThreshold)

	return entity.Discrepancy{
		Type:        entity.DiscrepancyQuantity,
		Severity:    severity,
		ProductCode: ordered.ProductCode,
		Expected:    ordered.Quantity.String(),
		Actual:      delivered.Quantity.String(),
		Description: fmt.Sprintf("quantity deviation %.1f%% on product %s (ordered %s, delivered %s)",
			deviation*100, ordered.ProductCode, ordered.Quantity, delivered.Quantity),
		SuggestedResolution: "adjust invoiced quantity to delivered quantity",
	}, true
}

func (d *Detector) comparePrice(ordered entity.OrderLineItem, delivered entity.DeliveryLineItem) (entity.Discrepancy, bool) {
	// A difference under one minor currency unit is rounding noise from
	// upstream conversions, not a price change.
	diff := ordered.UnitPrice.Sub(delivered.UnitPrice).Abs()
	if diff.LessThan(d.policy.MinorUnit) {
		return entity.Discrepancy{}, false
	}

	deviation := relativeDeviation(ordered.UnitPrice, delivered.UnitPrice)
	severity := classify(deviation, d.policy.PriceLowThreshold, d.policy.PriceMediumThreshold)

	return entity.Discrepancy{
		Type:        entity.DiscrepancyPrice,
		Severity:    severity,
		ProductCode: ordered.ProductCode,
		Expected:    ordered.UnitPrice.String(),
		Actual:      delivered.UnitPrice.String(),
		Description: fmt.Sprintf("price deviation %.2f%% on product %s (ordered %s, delivered %s)",
			deviation*100, ordered.ProductCode, ordered.UnitPrice, delivered.UnitPrice),
		SuggestedResolution: "adjust line total by the signed price difference",
	}, true
}

// relativeDeviation computes |expected - actual| / expected.
func relativeDeviation(expected, actual decimal.Decimal) float64 {
	if expected.IsZero() {
		return 1
	}
	dev, _ := actual.Sub(expected).Abs().Div(expected.Abs()).Float64()
	return dev
}

// classify maps a relative deviation onto a severity class. The boundaries
// are inclusive on the upper side: d == low boundary is already medium.
func classify(deviation, low, medium float64) entity.Severity {
	switch {
	case deviation < low:
		return entity.SeverityLow
	case deviation < medium:
		return entity.SeverityMedium
	default:
		return entity.SeverityHigh
	}
}
