package recon

import (
	"time"

	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// TolerancePolicy holds the tenant-configurable thresholds the detector,
// resolution policy and orchestrator run against. Zero values are invalid;
// start from DefaultTolerancePolicy and override per tenant.
type TolerancePolicy struct {
	// Quantity deviation class boundaries: d < QuantityLowThreshold is low,
	// d < QuantityMediumThreshold is medium, anything above is high.
	QuantityLowThreshold    float64
	QuantityMediumThreshold float64

	// Price deviation class boundaries, same shape as quantity.
	PriceLowThreshold    float64
	PriceMediumThreshold float64

	// MinorUnit is the absolute price difference below which two prices are
	// considered equal. Guards against floating point noise from upstream.
	MinorUnit decimal.Decimal

	// LookbackWindow is how long after the order date a delivery may still be
	// matched to it. Once fully elapsed with no candidate, the order is
	// disputed as missing delivery.
	LookbackWindow time.Duration

	// AutoAdjustTypes whitelists discrepancy types the tenant allows to be
	// auto-adjusted instead of escalated, subject to AutoAdjustCeiling.
	AutoAdjustTypes map[entity.DiscrepancyType]bool

	// AutoAdjustCeiling is the maximum absolute adjustment amount that may be
	// applied without a human decision.
	AutoAdjustCeiling decimal.Decimal

	// RetryAttempts and the backoff curve applied to transient data-layer
	// failures before an order is marked failed.
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}

// DefaultTolerancePolicy returns the documented defaults: 5%/15% quantity
// bands, 2%/10% price bands, one cent minor unit, 7 day lookback, price-only
// auto-adjust up to 25.00, and 3 retry attempts at 200ms exponential backoff
// capped at 5s.
func DefaultTolerancePolicy() TolerancePolicy {
	return TolerancePolicy{
		QuantityLowThreshold:    0.05,
		QuantityMediumThreshold: 0.15,
		PriceLowThreshold:       0.02,
		PriceMediumThreshold:    0.10,
		MinorUnit:               decimal.New(1, -2),
		LookbackWindow:          7 * 24 * time.Hour,
		AutoAdjustTypes: map[entity.DiscrepancyType]bool{
			entity.DiscrepancyPrice: true,
		},
		AutoAdjustCeiling: decimal.NewFromInt(25),
		RetryAttempts:     3,
		RetryBackoff:      200 * time.Millisecond,
		RetryBackoffMax:   5 * time.Second,
	}
}

// Validate rejects nonsensical thresholds before any order is claimed.
func (p TolerancePolicy) Validate() error {
	if p.QuantityLowThreshold <= 0 || p.QuantityLowThreshold >= 1 {
		return &ConfigurationError{Field: "quantity_low_threshold", Reason: "must be in (0, 1)"}
	}
	if p.QuantityMediumThreshold <= p.QuantityLowThreshold || p.QuantityMediumThreshold >= 1 {
		return &ConfigurationError{Field: "quantity_medium_threshold", Reason: "must be in (quantity_low_threshold, 1)"}
	}
	if p.PriceLowThreshold <= 0 || p.PriceLowThreshold >= 1 {
		return &ConfigurationError{Field: "price_low_threshold", Reason: "must be in (0, 1)"}
	}
	if p.PriceMediumThreshold <= p.PriceLowThreshold || p.PriceMediumThreshold >= 1 {
		return &ConfigurationError{Field: "price_medium_threshold", Reason: "must be in (price_low_threshold, 1)"}
	}
	if p.MinorUnit.Sign() <= 0 {
		return &ConfigurationError{Field: "minor_unit", Reason: "must be positive"}
	}
	if p.LookbackWindow <= 0 {
		return &ConfigurationError{Field: "lookback_window", Reason: "must be positive"}
	}
	if p.AutoAdjustCeiling.Sign() < 0 {
		return &ConfigurationError{Field: "auto_adjust_ceiling", Reason: "must not be negative"}
	}
	for t := range p.AutoAdjustTypes {
		if !t.IsValid() {
			return &ConfigurationError{Field: "auto_adjust_types", Reason: "unknown discrepancy type " + string(t)}
		}
	}
	if p.RetryAttempts < 1 {
		return &ConfigurationError{Field: "retry_attempts", Reason: "must be at least 1"}
	}
	if p.RetryBackoff <= 0 || p.RetryBackoffMax < p.RetryBackoff {
		return &ConfigurationError{Field: "retry_backoff", Reason: "base must be positive and not exceed the cap"}
	}
	return nil
}

// TenantOverride is a partial policy; nil fields keep the base value.
type TenantOverride struct {
	QuantityLowThreshold    *float64
	QuantityMediumThreshold *float64
	PriceLowThreshold       *float64
	PriceMediumThreshold    *float64
	LookbackWindow          *time.Duration
	AutoAdjustTypes         map[entity.DiscrepancyType]bool
	AutoAdjustCeiling       *decimal.Decimal
}

// Merge returns the policy with the tenant override applied on top.
func (p TolerancePolicy) Merge(o *TenantOverride) TolerancePolicy {
	if o == nil {
		return p
	}
	merged := p
	if o.QuantityLowThreshold != nil {
		merged.QuantityLowThreshold = *o.QuantityLowThreshold
	}
	if o.QuantityMediumThreshold != nil {
		merged.QuantityMediumThreshold = *o.QuantityMediumThreshold
	}
	if o.PriceLowThreshold != nil {
		merged.PriceLowThreshold = *o.PriceLowThreshold
	}
	if o.PriceMediumThreshold != nil {
		merged.PriceMediumThreshold = *o.PriceMediumThreshold
	}
	if o.LookbackWindow != nil {
		merged.LookbackWindow = *o.LookbackWindow
	}
	if o.AutoAdjustTypes != nil {
		merged.AutoAdjustTypes = o.AutoAdjustTypes
	}
	if o.AutoAdjustCeiling != nil {
		merged.AutoAdjustCeiling = *o.AutoAdjustCeiling
	}
	return merged
}
