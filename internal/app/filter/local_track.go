package filter

import (
	"context"
	"strings"

	"github.com/osa030/seedbox/internal/domain/track"
)

// LocalTrackFilterName is the config name of LocalTrackFilter.
const LocalTrackFilterName = "local_track_filter"

// LocalTrackFilter rejects local files, which have no playable reference.
type LocalTrackFilter struct{}

// NewLocalTrackFilter creates a new local track filter.
func NewLocalTrackFilter() *LocalTrackFilter {
	return &LocalTrackFilter{}
}

func (f *LocalTrackFilter) Name() string {
	return LocalTrackFilterName
}

func (f *LocalTrackFilter) Description() string {
	return "Rejects local files and tracks without a URI"
}

func (f *LocalTrackFilter) ReturnCodes() []string {
	return []string{"local_track"}
}

func (f *LocalTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *LocalTrackFilter) Check(ctx context.Context, t track.Track, seen *Seen) Result {
	if t.URI == "" || t.IsLocal || strings.HasPrefix(t.URI, track.LocalURIPrefix) {
		return Reject("local_track")
	}
	return Accept()
}

func init() {
	Register(LocalTrackFilterName, func() Filter { return NewLocalTrackFilter() })
}
