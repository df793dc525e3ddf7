package config

import (
	"fmt"

	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/forkline/reconciliation/internal/recon"
	"github.com/shopspring/decimal"
)

// TolerancePolicy builds the engine policy from the loaded configuration.
// Money-valued thresholds are parsed from strings so the config file never
// introduces binary float noise into price comparisons.
func (c ReconConfig) TolerancePolicy() (recon.TolerancePolicy, error) {
	policy := recon.DefaultTolerancePolicy()

	policy.QuantityLowThreshold = c.QuantityLowThreshold
	policy.QuantityMediumThreshold = c.QuantityMediumThreshold
	policy.PriceLowThreshold = c.PriceLowThreshold
	policy.PriceMediumThreshold = c.PriceMediumThreshold
	policy.LookbackWindow = c.LookbackWindow
	policy.RetryAttempts = c.RetryAttempts
	policy.RetryBackoff = c.RetryBackoff
	policy.RetryBackoffMax = c.RetryBackoffMax

	minorUnit, err := decimal.NewFromString(c.MinorUnit)
	if err != nil {
		return recon.TolerancePolicy{}, fmt.Errorf("recon.minor_unit: %w", err)
	}
	policy.MinorUnit = minorUnit

	ceiling, err := decimal.NewFromString(c.AutoAdjustCeiling)
	if err != nil {
		return recon.TolerancePolicy{}, fmt.Errorf("recon.auto_adjust_ceiling: %w", err)
	}
	policy.AutoAdjustCeiling = ceiling

	types := make(map[entity.DiscrepancyType]bool, len(c.AutoAdjustTypes))
	for _, t := range c.AutoAdjustTypes {
		types[entity.DiscrepancyType(t)] = true
	}
	policy.AutoAdjustTypes = types

	if err := policy.Validate(); err != nil {
		return recon.TolerancePolicy{}, err
	}
	return policy, nil
}

// OrchestratorConfig builds the batch bounds from the loaded configuration.
func (c ReconConfig) OrchestratorConfig() recon.OrchestratorConfig {
	return recon.OrchestratorConfig{
		Workers: c.BatchWorkers,
		LockTTL: c.BatchLockTTL,
	}
}
