// Package account renders periodic account summaries: balance, equity,
// open positions, and session statistics.
package account

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/exchange"
	"github.com/lmoura/cryptopilot/internal/feed"
	"github.com/lmoura/cryptopilot/internal/risk"
)

// DefaultInterval is how often the reporter prints a summary when no
// interval is configured.
const DefaultInterval = 5 * time.Minute

// Reporter periodically renders an account summary table. It satisfies the
// orchestrator's Reporter interface.
type Reporter struct {
	gateway  exchange.Gateway
	engine   *risk.Engine
	feed     *feed.Feed
	interval time.Duration
	out      io.Writer
	logger   *slog.Logger
}

// NewReporter creates a Reporter writing to stdout.
func NewReporter(gw exchange.Gateway, engine *risk.Engine, f *feed.Feed, interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		gateway:  gw,
		engine:   engine,
		feed:     f,
		interval: interval,
		out:      os.Stdout,
		logger:   logger.With(slog.String("component", "reporter")),
	}
}

// SetOutput redirects the rendered tables, used by tests.
func (r *Reporter) SetOutput(w io.Writer) {
	r.out = w
}

// Run prints a summary every interval until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Report(ctx); err != nil {
				r.logger.Warn("account report failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Report fetches the balance, builds a snapshot, and renders it.
func (r *Reporter) Report(ctx context.Context) error {
	balance, err := r.gateway.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("account: fetch balance: %w", err)
	}

	positions := r.engine.OpenPositions()
	prices := make(map[string]float64, len(positions))
	for _, pos := range positions {
		if tick, ok := r.feed.CurrentPrice(pos.Symbol); ok {
			prices[pos.Symbol] = tick.Price
		}
	}

	snap := r.engine.Summary(balance, prices)
	r.render(snap, positions, prices)
	return nil
}

func (r *Reporter) render(snap domain.AccountSnapshot, positions []domain.Position, prices map[string]float64) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("ACCOUNT SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Balance", fmt.Sprintf("$%.2f", snap.Balance)},
		{"Equity", fmt.Sprintf("$%.2f", snap.Equity)},
		{"Unrealized PnL", fmt.Sprintf("$%+.2f", snap.UnrealizedPnL)},
		{"Daily PnL", fmt.Sprintf("$%+.2f", snap.DailyPnL)},
		{"Daily Trades", snap.DailyTrades},
		{"Total Trades", snap.TotalTrades},
		{"Win Rate", fmt.Sprintf("%.1f%%", snap.WinRate*100)},
		{"Avg Win / Loss", fmt.Sprintf("$%.2f / $%.2f", snap.AvgWin, snap.AvgLoss)},
		{"Portfolio Risk", fmt.Sprintf("%.2f%%", snap.PortfolioRiskPct*100)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()

	if len(positions) == 0 {
		return
	}

	pt := table.NewWriter()
	pt.SetOutputMirror(r.out)
	pt.SetTitle("OPEN POSITIONS")
	pt.SetStyle(table.StyleRounded)
	pt.AppendHeader(table.Row{"Symbol", "Side", "Entry", "Last", "Qty", "PnL", "Stop", "Target", "Strategy"})

	for _, pos := range positions {
		last := prices[pos.Symbol]
		pnl := 0.0
		lastStr := "-"
		if last > 0 {
			pnl = pos.UnrealizedPnL(last)
			lastStr = fmt.Sprintf("%.4f", last)
		}
		pt.AppendRow(table.Row{
			pos.Symbol,
			pos.Side,
			fmt.Sprintf("%.4f", pos.EntryPrice),
			lastStr,
			fmt.Sprintf("%.6f", pos.Quantity),
			fmt.Sprintf("$%+.2f", pnl),
			fmt.Sprintf("%.4f", pos.StopLoss),
			fmt.Sprintf("%.4f", pos.TakeProfit),
			pos.Strategy,
		})
	}
	pt.Render()
}
