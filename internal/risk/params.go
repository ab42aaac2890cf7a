package risk

import "fmt"

// SizingMethod selects how position sizes are derived.
type SizingMethod string

const (
	SizingFixed     SizingMethod = "fixed_amount"
	SizingPercent   SizingMethod = "percentage_balance"
	SizingRiskBased SizingMethod = "risk_based"
	SizingKelly     SizingMethod = "kelly_criterion"
)

// Profile names a predefined parameter set.
type Profile string

const (
	ProfileConservative Profile = "conservative"
	ProfileModerate     Profile = "moderate"
	ProfileAggressive   Profile = "aggressive"
)

// Params are the tunable risk limits. Fractions are of current balance.
type Params struct {
	MaxRiskPerTrade     float64
	MaxPortfolioRisk    float64
	MaxConcurrentTrades int
	MaxDailyLoss        float64

	StopLossPct   float64
	TakeProfitPct float64

	TrailingStopEnabled  bool
	TrailingStopDistance float64

	SizingMethod SizingMethod
	FixedAmount  float64
	BalancePct   float64
}

// DefaultParams returns the baseline limits.
func DefaultParams() Params {
	return Params{
		MaxRiskPerTrade:      0.01,
		MaxPortfolioRisk:     0.05,
		MaxConcurrentTrades:  3,
		MaxDailyLoss:         0.03,
		StopLossPct:          0.02,
		TakeProfitPct:        0.04,
		TrailingStopEnabled:  true,
		TrailingStopDistance: 0.015,
		SizingMethod:         SizingRiskBased,
		FixedAmount:          50.0,
		BalancePct:           0.05,
	}
}

// ProfileParams returns the parameter set for a named profile.
func ProfileParams(p Profile) (Params, error) {
	switch p {
	case ProfileConservative:
		params := DefaultParams()
		params.MaxRiskPerTrade = 0.005
		params.MaxPortfolioRisk = 0.02
		params.MaxConcurrentTrades = 2
		params.MaxDailyLoss = 0.015
		params.StopLossPct = 0.015
		params.TakeProfitPct = 0.03
		params.BalancePct = 0.03
		return params, nil
	case ProfileModerate:
		return DefaultParams(), nil
	case ProfileAggressive:
		params := DefaultParams()
		params.MaxRiskPerTrade = 0.02
		params.MaxPortfolioRisk = 0.08
		params.MaxConcurrentTrades = 4
		params.MaxDailyLoss = 0.05
		params.StopLossPct = 0.03
		params.TakeProfitPct = 0.06
		params.BalancePct = 0.08
		return params, nil
	default:
		return Params{}, fmt.Errorf("risk: unknown profile %q", p)
	}
}
