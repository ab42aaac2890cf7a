package exchange

import (
	"context"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// SimStreamer emits synthetic ticks from a SimGateway at a fixed cadence,
// standing in for the exchange websocket in simulation mode. Run blocks
// until ctx is cancelled and returns nil, mirroring the real stream client.
type SimStreamer struct {
	gw       *SimGateway
	interval time.Duration
}

// NewSimStreamer creates a SimStreamer. interval defaults to one second.
func NewSimStreamer(gw *SimGateway, interval time.Duration) *SimStreamer {
	if interval <= 0 {
		interval = time.Second
	}
	return &SimStreamer{gw: gw, interval: interval}
}

// Run delivers one tick per pair per interval until ctx is cancelled.
func (s *SimStreamer) Run(ctx context.Context, pairs []string, onTick func(domain.Tick)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, pair := range pairs {
				tick, err := s.gw.FetchTicker(ctx, pair)
				if err != nil {
					continue
				}
				tick.Source = domain.TickSourceStream
				onTick(tick)
			}
		}
	}
}
