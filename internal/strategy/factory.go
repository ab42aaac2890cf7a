package strategy

import (
	"fmt"
	"sort"

	"github.com/lmoura/cryptopilot/internal/domain"
)

type constructor func(Params) Strategy

// strategiesByClass limits which strategies run on which asset tier.
// Slow-moving large caps get the crossover and reversion plays; the more
// volatile mid caps add plain momentum.
var strategiesByClass = map[domain.AssetClass]map[string]constructor{
	domain.AssetClassLargeCap: {
		"trend_following": func(p Params) Strategy { return NewTrendFollowing(p) },
		"mean_reversion":  func(p Params) Strategy { return NewMeanReversion(p) },
	},
	domain.AssetClassMidCap: {
		"trend_following": func(p Params) Strategy { return NewTrendFollowing(p) },
		"mean_reversion":  func(p Params) Strategy { return NewMeanReversion(p) },
		"simple_momentum": func(p Params) Strategy { return NewSimpleMomentum(p) },
	},
}

// New builds the named strategy for a symbol, honouring the symbol's asset
// class. Unknown names list what is available for the tier.
func New(symbol, name string, params Params) (Strategy, error) {
	class := domain.ClassifySymbol(symbol)
	available := strategiesByClass[class]
	ctor, ok := available[name]
	if !ok {
		return nil, fmt.Errorf("strategy: %w: %q for %s (%s), available: %v",
			domain.ErrUnknownStrategy, name, symbol, class, Available(class))
	}
	return ctor(params), nil
}

// Available returns the strategy names usable for an asset class.
func Available(class domain.AssetClass) []string {
	names := make([]string, 0, len(strategiesByClass[class]))
	for name := range strategiesByClass[class] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
