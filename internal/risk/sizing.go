package risk

import (
	"fmt"
	"math"

	"github.com/lmoura/cryptopilot/internal/domain"
)

const (
	// maxPositionValuePct caps any single position at this fraction of balance.
	maxPositionValuePct = 0.10

	// maxRiskValuePct caps the risk of any single position at this fraction.
	maxRiskValuePct = 0.05

	// kellyWindow is how many recent trades feed the Kelly estimate.
	kellyWindow = 50

	// kellyCap bounds the Kelly fraction.
	kellyCap = 0.25
)

// LimitedBy names the ceiling that clamped a size result.
type LimitedBy string

const (
	LimitedByNone          LimitedBy = ""
	LimitedByPositionValue LimitedBy = "max_position_value_10_percent"
	LimitedByRiskValue     LimitedBy = "max_risk_5_percent"
)

// SizeResult carries the computed quantity and the inputs that produced it.
type SizeResult struct {
	Quantity      float64
	Method        SizingMethod
	Balance       float64
	RiskPerUnit   float64
	Confidence    float64
	PositionValue float64
	ActualRisk    float64
	RiskPct       float64
	LimitedBy     LimitedBy
}

// CalculatePositionSize derives the quantity for a new entry using the
// configured sizing method, scales it by signal confidence and clamps it to
// the two hard ceilings. The binding ceiling, if any, is recorded in
// LimitedBy.
func (e *Engine) CalculatePositionSize(balance, entry, stop, confidence float64) (SizeResult, error) {
	if entry <= 0 || stop <= 0 {
		return SizeResult{}, fmt.Errorf("risk: %w: entry=%f stop=%f", domain.ErrInvalidOrder, entry, stop)
	}
	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit == 0 {
		return SizeResult{}, fmt.Errorf("risk: %w: stop equals entry", domain.ErrInvalidOrder)
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 1
	}

	res := SizeResult{
		Method:      e.params.SizingMethod,
		Balance:     balance,
		RiskPerUnit: riskPerUnit,
		Confidence:  confidence,
	}

	var qty float64
	switch e.params.SizingMethod {
	case SizingFixed:
		qty = e.params.FixedAmount / entry * confidence
	case SizingPercent:
		qty = balance * e.params.BalancePct / entry * confidence
	case SizingRiskBased:
		qty = balance * e.params.MaxRiskPerTrade / riskPerUnit * confidence
	case SizingKelly:
		// Confidence is already folded into the Kelly fraction.
		qty = e.kellySize(balance, entry, riskPerUnit, confidence)
	default:
		return SizeResult{}, fmt.Errorf("risk: unknown sizing method %q", e.params.SizingMethod)
	}

	if maxQty := balance * maxPositionValuePct / entry; qty > maxQty {
		qty = maxQty
		res.LimitedBy = LimitedByPositionValue
	}
	if maxRisk := balance * maxRiskValuePct; qty*riskPerUnit > maxRisk {
		qty = maxRisk / riskPerUnit
		res.LimitedBy = LimitedByRiskValue
	}

	res.Quantity = qty
	res.PositionValue = qty * entry
	res.ActualRisk = qty * riskPerUnit
	if balance > 0 {
		res.RiskPct = res.ActualRisk / balance
	}
	return res, nil
}

// kellySize estimates the Kelly fraction from the trailing trade history.
// With no history it falls back to risk-based sizing; with a one-sided
// history (no wins or no losses yet) it allocates a flat 1% of balance.
func (e *Engine) kellySize(balance, entry, riskPerUnit, confidence float64) float64 {
	e.mu.RLock()
	recent := e.history
	if len(recent) > kellyWindow {
		recent = recent[len(recent)-kellyWindow:]
	}
	var wins, losses int
	var winPctSum, lossPctSum float64
	for _, t := range recent {
		if t.PnL > 0 {
			wins++
			winPctSum += t.PnLPct
		} else {
			losses++
			lossPctSum += t.PnLPct
		}
	}
	e.mu.RUnlock()

	if len(recent) == 0 {
		return balance * e.params.MaxRiskPerTrade / riskPerUnit
	}
	if wins == 0 || losses == 0 {
		return balance * 0.01 / entry
	}

	probWin := float64(wins) / float64(len(recent))
	avgWinPct := winPctSum / float64(wins)
	avgLossPct := math.Abs(lossPctSum / float64(losses))

	b := 1.0
	if avgLossPct > 0 {
		b = avgWinPct / avgLossPct
	}
	fraction := (b*probWin - (1 - probWin)) / b
	fraction = math.Max(0, math.Min(kellyCap, fraction*confidence))

	return balance * fraction / entry
}
