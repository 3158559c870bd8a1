package filter

import (
	"context"

	"github.com/osa030/seedbox/internal/domain/track"
)

// UnplayableTrackFilter rejects tracks the API marked unplayable in the configured market.
type UnplayableTrackFilter struct{}

// NewUnplayableTrackFilter creates a new unplayable track filter.
func NewUnplayableTrackFilter() *UnplayableTrackFilter {
	return &UnplayableTrackFilter{}
}

func (f *UnplayableTrackFilter) Name() string {
	return "unplayable_track_filter"
}

func (f *UnplayableTrackFilter) Description() string {
	return "Rejects tracks that are not playable in the configured market"
}

func (f *UnplayableTrackFilter) ReturnCodes() []string {
	return []string{"unplayable_track"}
}

func (f *UnplayableTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *UnplayableTrackFilter) Check(ctx context.Context, t track.Track, seen *Seen) Result {
	// Tracks without relinking info are assumed playable
	if t.IsPlayable != nil && !*t.IsPlayable {
		return Reject("unplayable_track")
	}
	return Accept()
}

func init() {
	Register("unplayable_track_filter", func() Filter { return NewUnplayableTrackFilter() })
}
