package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/domain/track"
	"github.com/osa030/seedbox/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig creates a chain of every registered filter enabled in cfg.
// The local track filter is always part of the chain.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	chain := NewChain()
	for _, name := range RegisteredNames() {
		if name != LocalTrackFilterName && !cfg.IsFilterEnabled(name) {
			zlog.Debug().Msgf("filter disabled: %s", name)
			continue
		}

		f := registry[name]()
		var settings map[string]any
		if fc, ok := cfg.Filters[name]; ok {
			settings = fc.Settings
		}
		if err := f.ValidateConfig(settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}

		chain.Add(f)
		zlog.Info().Msgf("registered filter: name=%s description=%s", f.Name(), f.Description())
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track, seen *Seen) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t, seen)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply returns the incoming tracks that pass every filter, in order.
// existing is the list the accepted tracks will be stored next to.
func (c *Chain) Apply(ctx context.Context, existing, incoming []track.Track) []track.Track {
	seen := NewSeen(existing)
	accepted := make([]track.Track, 0, len(incoming))
	rejected := make(map[string]int)

	for _, t := range incoming {
		result := c.Execute(ctx, t, seen)
		if !result.Accepted {
			rejected[result.Code]++
			continue
		}
		seen.Add(t)
		accepted = append(accepted, t)
	}

	if len(rejected) > 0 {
		codes := make([]string, 0, len(rejected))
		for code := range rejected {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			zlog.Debug().Msgf("filtered tracks: code=%s count=%d", code, rejected[code])
		}
	}
	return accepted
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
