package entity

import (
	"github.com/shopspring/decimal"
)

// DiscrepancyType classifies what differs between an ordered and a delivered line.
type DiscrepancyType string

const (
	DiscrepancyQuantity DiscrepancyType = "QUANTITY"
	DiscrepancyPrice    DiscrepancyType = "PRICE"
	DiscrepancyProduct  DiscrepancyType = "PRODUCT"
	DiscrepancyQuality  DiscrepancyType = "QUALITY"
)

// IsValid returns true for one of the defined discrepancy types.
func (t DiscrepancyType) IsValid() bool {
	switch t {
	case DiscrepancyQuantity, DiscrepancyPrice, DiscrepancyProduct, DiscrepancyQuality:
		return true
	default:
		return false
	}
}

// Severity classifies how far outside tolerance a discrepancy falls.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// IsValid returns true for one of the defined severity classes.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Penalty returns the confidence penalty for the severity class.
// Every confidence score must be reconstructable from these three values.
func (s Severity) Penalty() float64 {
	switch s {
	case SeverityLow:
		return 0.05
	case SeverityMedium:
		return 0.15
	case SeverityHigh:
		return 0.30
	default:
		return 0
	}
}

// Discrepancy is a single typed difference between an ordered and a delivered line.
// Each discrepancy traces to exactly one line item comparison.
type Discrepancy struct {
	Type                DiscrepancyType `json:"type"`
	Severity            Severity        `json:"severity"`
	ProductCode         string          `json:"product_code"`
	Expected            string          `json:"expected"`
	Actual              string          `json:"actual"`
	Description         string          `json:"description"`
	SuggestedResolution string          `json:"suggested_resolution,omitempty"`
	Informational       bool            `json:"informational,omitempty"`
}

// ResolutionAction is the per-discrepancy outcome of the resolution policy.
type ResolutionAction string

const (
	ActionApprove      ResolutionAction = "APPROVE"
	ActionAdjust       ResolutionAction = "ADJUST"
	ActionReject       ResolutionAction = "REJECT"
	ActionManualReview ResolutionAction = "MANUAL_REVIEW"
)

// IsValid returns true for one of the defined resolution actions.
func (a ResolutionAction) IsValid() bool {
	switch a {
	case ActionApprove, ActionAdjust, ActionReject, ActionManualReview:
		return true
	default:
		return false
	}
}

// Resolution records how a single discrepancy was settled, automatically or by a human.
type Resolution struct {
	Action           ResolutionAction `json:"action"`
	AdjustmentAmount *decimal.Decimal `json:"adjustment_amount,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	ResolvedBy       string           `json:"resolved_by,omitempty"`
}

// IsAutomatic reports whether the resolution closed the discrepancy without a human.
func (r Resolution) IsAutomatic() bool {
	return r.ResolvedBy == "" && (r.Action == ActionApprove || r.Action == ActionAdjust)
}
