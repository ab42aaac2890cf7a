package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySymbol(t *testing.T) {
	assert.Equal(t, AssetClassLargeCap, ClassifySymbol("BTC/USDT"))
	assert.Equal(t, AssetClassLargeCap, ClassifySymbol("SOL/USDT"))
	assert.Equal(t, AssetClassMidCap, ClassifySymbol("DOGE/USDT"))
	assert.Equal(t, AssetClassMidCap, ClassifySymbol("AVAX/BTC"))
	assert.Equal(t, AssetClassLargeCap, ClassifySymbol("BTC"), "bare base symbol")
}

func TestPositionMath(t *testing.T) {
	p := Position{
		Side:       OrderSideBuy,
		EntryPrice: 100,
		Quantity:   5,
		StopLoss:   96,
	}

	assert.InDelta(t, 500.0, p.Value(), 1e-9)
	assert.InDelta(t, 20.0, p.RiskAmount(), 1e-9)
	assert.InDelta(t, 25.0, p.UnrealizedPnL(105), 1e-9)
	assert.InDelta(t, -10.0, p.UnrealizedPnL(98), 1e-9)

	short := Position{Side: OrderSideSell, EntryPrice: 100, Quantity: 5, StopLoss: 104}
	assert.InDelta(t, 20.0, short.RiskAmount(), 1e-9)
	assert.InDelta(t, 25.0, short.UnrealizedPnL(95), 1e-9)
}

func TestTickSpread(t *testing.T) {
	assert.InDelta(t, 0.2, Tick{Bid: 99.9, Ask: 100.1}.Spread(), 1e-9)
	assert.Zero(t, Tick{Price: 100}.Spread())
}

func TestTradeRecordWin(t *testing.T) {
	assert.True(t, TradeRecord{PnL: 1}.Win())
	assert.False(t, TradeRecord{PnL: 0}.Win())
	assert.False(t, TradeRecord{PnL: -1}.Win())
}
