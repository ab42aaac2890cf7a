package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmoura/cryptopilot/internal/domain"
)

func openPosition(symbol string, entry, stop, target, qty float64) domain.Position {
	return domain.Position{
		ID:         "pos-" + symbol,
		Symbol:     symbol,
		Side:       domain.OrderSideBuy,
		EntryPrice: entry,
		Quantity:   qty,
		StopLoss:   stop,
		TakeProfit: target,
		Strategy:   "trend_following",
		OpenedAt:   time.Now().UTC(),
	}
}

func TestStopLossTakeProfit(t *testing.T) {
	e := newTestEngine(t, nil) // 2% stop, 4% target

	stop, target := e.StopLossTakeProfit(100, domain.OrderSideBuy, 0, 0)
	assert.InDelta(t, 98.0, stop, 1e-9)
	assert.InDelta(t, 104.0, target, 1e-9)

	stop, target = e.StopLossTakeProfit(100, domain.OrderSideSell, 0, 0)
	assert.InDelta(t, 102.0, stop, 1e-9)
	assert.InDelta(t, 96.0, target, 1e-9)
}

func TestStopLossTakeProfit_CustomLevels(t *testing.T) {
	e := newTestEngine(t, nil)

	// Absolute overrides replace the percentage distances.
	stop, target := e.StopLossTakeProfit(100, domain.OrderSideBuy, 95, 120)
	assert.InDelta(t, 95.0, stop, 1e-9)
	assert.InDelta(t, 120.0, target, 1e-9)

	// A single override leaves the other level at its default.
	stop, target = e.StopLossTakeProfit(100, domain.OrderSideBuy, 95, 0)
	assert.InDelta(t, 95.0, stop, 1e-9)
	assert.InDelta(t, 104.0, target, 1e-9)

	stop, target = e.StopLossTakeProfit(100, domain.OrderSideBuy, 0, 120)
	assert.InDelta(t, 98.0, stop, 1e-9)
	assert.InDelta(t, 120.0, target, 1e-9)
}

func TestRegisterEntryAndExit(t *testing.T) {
	e := newTestEngine(t, nil)
	e.StartSession(10_000)

	e.RegisterEntry(openPosition("BTC/USDT", 100, 98, 104, 5))

	pos, ok := e.Position("BTC/USDT")
	require.True(t, ok)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)
	assert.Len(t, e.OpenPositions(), 1)

	rec, ok := e.RegisterExit(context.Background(), "BTC/USDT", 104, domain.ExitReasonTakeProfit)
	require.True(t, ok)
	assert.InDelta(t, 20.0, rec.PnL, 1e-9) // (104-100)*5
	assert.InDelta(t, 0.04, rec.PnLPct, 1e-9)
	assert.Equal(t, domain.ExitReasonTakeProfit, rec.Reason)
	assert.True(t, rec.Win())

	_, ok = e.Position("BTC/USDT")
	assert.False(t, ok)

	snap := e.Summary(10_020, nil)
	assert.Equal(t, 1, snap.DailyTrades)
	assert.Equal(t, 1, snap.TotalTrades)
	assert.InDelta(t, 20.0, snap.DailyPnL, 1e-9)
	assert.InDelta(t, 1.0, snap.WinRate, 1e-9)
}

func TestRegisterExit_NoOpenPosition(t *testing.T) {
	e := newTestEngine(t, nil)

	_, ok := e.RegisterExit(context.Background(), "ETH/USDT", 100, domain.ExitReasonSignal)
	assert.False(t, ok)
}

func TestShouldExit_BoundariesInclusive(t *testing.T) {
	e := newTestEngine(t, nil)
	e.RegisterEntry(openPosition("BTC/USDT", 100, 98, 104, 1))

	reason, exit := e.ShouldExit("BTC/USDT", 98)
	require.True(t, exit)
	assert.Equal(t, domain.ExitReasonStopLoss, reason)

	reason, exit = e.ShouldExit("BTC/USDT", 104)
	require.True(t, exit)
	assert.Equal(t, domain.ExitReasonTakeProfit, reason)

	_, exit = e.ShouldExit("BTC/USDT", 100)
	assert.False(t, exit)

	_, exit = e.ShouldExit("ETH/USDT", 50)
	assert.False(t, exit)
}

func TestShouldExit_StopWinsWhenLevelsOverlap(t *testing.T) {
	e := newTestEngine(t, nil)
	e.RegisterEntry(openPosition("BTC/USDT", 100, 100, 100, 1))

	reason, exit := e.ShouldExit("BTC/USDT", 100)
	require.True(t, exit)
	assert.Equal(t, domain.ExitReasonStopLoss, reason)
}

func TestUpdateTrailingStops_OnlyTightens(t *testing.T) {
	e := newTestEngine(t, func(p *Params) {
		p.TrailingStopDistance = 0.015
	})
	e.RegisterEntry(openPosition("BTC/USDT", 100, 98, 200, 1))

	// 110 * (1 - 0.015) = 108.35 > 98: stop rises.
	updates := e.UpdateTrailingStops(map[string]float64{"BTC/USDT": 110})
	require.Len(t, updates, 1)
	assert.InDelta(t, 98.0, updates[0].OldStop, 1e-9)
	assert.InDelta(t, 108.35, updates[0].NewStop, 1e-9)

	pos, _ := e.Position("BTC/USDT")
	assert.InDelta(t, 108.35, pos.StopLoss, 1e-9)

	// Price falls back; the stop must not loosen.
	updates = e.UpdateTrailingStops(map[string]float64{"BTC/USDT": 105})
	assert.Empty(t, updates)
	pos, _ = e.Position("BTC/USDT")
	assert.InDelta(t, 108.35, pos.StopLoss, 1e-9)
}

func TestUpdateTrailingStops_Disabled(t *testing.T) {
	e := newTestEngine(t, func(p *Params) {
		p.TrailingStopEnabled = false
	})
	e.RegisterEntry(openPosition("BTC/USDT", 100, 98, 200, 1))

	updates := e.UpdateTrailingStops(map[string]float64{"BTC/USDT": 150})
	assert.Nil(t, updates)
}

func TestValidateTrade_Approved(t *testing.T) {
	e := newTestEngine(t, nil)
	e.StartSession(10_000)

	rej := e.ValidateTrade(10_000, 100, 90, 5)
	assert.Nil(t, rej)

	// Validation mutates nothing.
	assert.Empty(t, e.OpenPositions())
}

func TestValidateTrade_InsufficientBalance(t *testing.T) {
	e := newTestEngine(t, nil)

	rej := e.ValidateTrade(1_000, 100, 99, 10) // value 1000 > 950
	require.NotNil(t, rej)
	assert.Equal(t, ReasonInsufficientBalance, rej.Reason)
	assert.InDelta(t, 1000.0, rej.Value, 1e-9)
	assert.InDelta(t, 950.0, rej.Limit, 1e-9)
	assert.Contains(t, rej.Error(), "insufficient_balance")
}

func TestValidateTrade_MaxConcurrent(t *testing.T) {
	e := newTestEngine(t, nil) // cap 3
	e.RegisterEntry(openPosition("BTC/USDT", 100, 99, 110, 1))
	e.RegisterEntry(openPosition("ETH/USDT", 100, 99, 110, 1))
	e.RegisterEntry(openPosition("SOL/USDT", 100, 99, 110, 1))

	rej := e.ValidateTrade(10_000, 100, 99, 1)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonMaxConcurrent, rej.Reason)
}

func TestValidateTrade_TradeRiskExceeded(t *testing.T) {
	e := newTestEngine(t, nil) // 1% per trade

	// 15 units with a 10-wide stop risks 150 on 10000 = 1.5%.
	rej := e.ValidateTrade(10_000, 100, 90, 15)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonTradeRisk, rej.Reason)
	assert.InDelta(t, 0.015, rej.Value, 1e-9)
}

func TestValidateTrade_PortfolioRiskExceeded(t *testing.T) {
	e := newTestEngine(t, nil) // 5% portfolio
	e.RegisterEntry(openPosition("ETH/USDT", 100, 90, 120, 46)) // risk 460

	// New trade risks 90; 550 total on 10000 = 5.5%.
	rej := e.ValidateTrade(10_000, 100, 90, 9)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonPortfolioRisk, rej.Reason)
}

func TestValidateTrade_DailyLossReached(t *testing.T) {
	e := newTestEngine(t, nil) // 3% daily loss
	e.StartSession(10_000)

	e.RegisterEntry(openPosition("BTC/USDT", 100, 90, 120, 30))
	_, ok := e.RegisterExit(context.Background(), "BTC/USDT", 90, domain.ExitReasonStopLoss)
	require.True(t, ok) // -300 = 3% of session start

	rej := e.ValidateTrade(9_700, 100, 99, 1)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonDailyLoss, rej.Reason)
	assert.InDelta(t, 0.03, rej.Value, 1e-9)
}

func TestReserveSerializesConcurrentEntries(t *testing.T) {
	e := newTestEngine(t, func(p *Params) {
		p.MaxConcurrentTrades = 1
	})

	// Both entries pass every limit in isolation; only one may hold the
	// single slot no matter how the goroutines interleave.
	start := make(chan struct{})
	rejections := make(chan *Rejection, 2)
	var wg sync.WaitGroup
	for _, sym := range []string{"BTC/USDT", "ETH/USDT"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			<-start
			res, rej := e.Reserve(sym, 10_000, 100, 98, 10)
			if rej == nil {
				res.Confirm(openPosition(sym, 100, 98, 104, 10))
			}
			rejections <- rej
		}(sym)
	}
	close(start)
	wg.Wait()
	close(rejections)

	var rejected int
	for rej := range rejections {
		if rej != nil {
			rejected++
			assert.Equal(t, ReasonMaxConcurrent, rej.Reason)
		}
	}
	assert.Equal(t, 1, rejected)
	assert.Len(t, e.OpenPositions(), 1)
}

func TestReserveReleaseFreesCapacity(t *testing.T) {
	e := newTestEngine(t, func(p *Params) {
		p.MaxConcurrentTrades = 1
	})

	res, rej := e.Reserve("BTC/USDT", 10_000, 100, 98, 10)
	require.Nil(t, rej)

	_, rej = e.Reserve("ETH/USDT", 10_000, 100, 98, 10)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonMaxConcurrent, rej.Reason)

	res.Release()
	res.Release() // idempotent

	res2, rej := e.Reserve("ETH/USDT", 10_000, 100, 98, 10)
	require.Nil(t, rej)
	res2.Confirm(openPosition("ETH/USDT", 100, 98, 104, 10))

	assert.Len(t, e.OpenPositions(), 1)
	_, ok := e.Position("ETH/USDT")
	assert.True(t, ok)
}

func TestReserveCountsHeldRiskInPortfolioLimit(t *testing.T) {
	e := newTestEngine(t, func(p *Params) {
		p.MaxPortfolioRisk = 0.015
	})

	// First reservation holds 100 at risk on a 10k balance.
	_, rej := e.Reserve("BTC/USDT", 10_000, 100, 90, 10)
	require.Nil(t, rej)

	// The second would push portfolio risk to 2%, past the 1.5% cap, even
	// though no position is registered yet.
	_, rej = e.Reserve("ETH/USDT", 10_000, 100, 90, 10)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonPortfolioRisk, rej.Reason)
}

func TestSummary_EquityAndPortfolioRisk(t *testing.T) {
	e := newTestEngine(t, nil)
	e.RegisterEntry(openPosition("BTC/USDT", 100, 98, 104, 10)) // risk 20

	snap := e.Summary(10_000, map[string]float64{"BTC/USDT": 103})
	assert.Equal(t, 1, snap.OpenPositions)
	assert.InDelta(t, 30.0, snap.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 10_030.0, snap.Equity, 1e-9)
	assert.InDelta(t, 0.002, snap.PortfolioRiskPct, 1e-9)
}

func TestProfileParams(t *testing.T) {
	conservative, err := ProfileParams(ProfileConservative)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, conservative.MaxRiskPerTrade, 1e-9)
	assert.InDelta(t, 0.02, conservative.MaxPortfolioRisk, 1e-9)
	assert.Equal(t, 2, conservative.MaxConcurrentTrades)
	assert.InDelta(t, 0.015, conservative.MaxDailyLoss, 1e-9)

	moderate, err := ProfileParams(ProfileModerate)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), moderate)

	aggressive, err := ProfileParams(ProfileAggressive)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, aggressive.MaxRiskPerTrade, 1e-9)
	assert.Equal(t, 4, aggressive.MaxConcurrentTrades)
	assert.InDelta(t, 0.05, aggressive.MaxDailyLoss, 1e-9)

	_, err = ProfileParams(Profile("reckless"))
	assert.Error(t, err)
}

func TestSeedHistoryRefreshesStats(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SeedHistory([]domain.TradeRecord{
		{PnL: 10, PnLPct: 0.01},
		{PnL: 20, PnLPct: 0.02},
		{PnL: -5, PnLPct: -0.005},
		{PnL: -15, PnLPct: -0.015},
	})

	snap := e.Summary(10_000, nil)
	assert.Equal(t, 4, snap.TotalTrades)
	assert.InDelta(t, 0.5, snap.WinRate, 1e-9)
	assert.InDelta(t, 15.0, snap.AvgWin, 1e-9)
	assert.InDelta(t, -10.0, snap.AvgLoss, 1e-9)
}
