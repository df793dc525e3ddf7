package recon

import (
	"fmt"

	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Resolver maps each discrepancy to a resolution action and computes the
// aggregate auto-resolvable flag. Like the detector, it is a pure computation.
type Resolver struct {
	policy TolerancePolicy
}

// NewResolver creates a resolver running against the given tolerance policy.
func NewResolver(policy TolerancePolicy) *Resolver {
	return &Resolver{policy: policy}
}

// Resolve produces one resolution per discrepancy, in order. Low severity is
// approved as within tolerance. Medium and high severity escalate to manual
// review unless the tenant whitelisted the discrepancy type for auto
// adjustment and the signed adjustment stays under the configured ceiling.
// The aggregate flag is true iff no discrepancy required manual review; a
// single manual review disputes the whole record.
func (r *Resolver) Resolve(order *entity.Order, receipt *entity.DeliveryReceipt, discrepancies []entity.Discrepancy, confidence float64) ([]entity.Resolution, bool) {
	resolutions := make([]entity.Resolution, 0, len(discrepancies))
	autoResolvable := true

	for _, disc := range discrepancies {
		res := r.resolveOne(order, receipt, disc, confidence)
		if res.Action == entity.ActionManualReview {
			autoResolvable = false
		}
		resolutions = append(resolutions, res)
	}

	return resolutions, autoResolvable
}

func (r *Resolver) resolveOne(order *entity.Order, receipt *entity.DeliveryReceipt, disc entity.Discrepancy, confidence float64) entity.Resolution {
	if disc.Severity == entity.SeverityLow {
		return entity.Resolution{
			Action: entity.ActionApprove,
			Notes:  "within tolerance",
		}
	}

	if r.policy.AutoAdjustTypes[disc.Type] {
		amount := adjustmentAmount(order, receipt, disc.ProductCode)
		if amount.Abs().LessThanOrEqual(r.policy.AutoAdjustCeiling) {
			return entity.Resolution{
				Action:           entity.ActionAdjust,
				AdjustmentAmount: &amount,
				Notes:            fmt.Sprintf("auto-adjusted %s by %s (ceiling %s)", disc.ProductCode, amount, r.policy.AutoAdjustCeiling),
			}
		}
	}

	return entity.Resolution{
		Action: entity.ActionManualReview,
		Notes:  fmt.Sprintf("%s severity %s discrepancy on %s requires review (confidence %.2f)", disc.Severity, disc.Type, disc.ProductCode, confidence),
	}
}

// adjustmentAmount is the signed difference between the delivered line value
// and the ordered line value for one product. A side with no matching line
// contributes zero.
func adjustmentAmount(order *entity.Order, receipt *entity.DeliveryReceipt, productCode string) decimal.Decimal {
	orderedValue := decimal.Zero
	if li, ok := order.Line(productCode); ok {
		orderedValue = li.LineTotal()
	}
	deliveredValue := decimal.Zero
	if receipt != nil {
		if li, ok := receipt.Line(productCode); ok {
			deliveredValue = li.LineTotal()
		}
	}
	return deliveredValue.Sub(orderedValue)
}
