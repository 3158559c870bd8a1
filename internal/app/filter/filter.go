// Package filter provides the ingestion filter chain applied before tracks are stored.
package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/seedbox/internal/domain/track"
)

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "local_track", "unplayable_track", "duplicate_track"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for ingestion filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check against the tracks seen so far.
	Check(ctx context.Context, t track.Track, seen *Seen) Result
}

// Seen holds the tracks already stored plus those accepted earlier in the same batch.
type Seen struct {
	uris   map[string]bool
	tracks []track.Track
}

// NewSeen creates a Seen set from the tracks already stored.
func NewSeen(existing []track.Track) *Seen {
	s := &Seen{uris: make(map[string]bool, len(existing))}
	for _, t := range existing {
		s.Add(t)
	}
	return s
}

// Add records t as seen.
func (s *Seen) Add(t track.Track) {
	s.uris[t.URI] = true
	s.tracks = append(s.tracks, t)
}

// Has reports whether a track with uri was seen.
func (s *Seen) Has(uri string) bool {
	return s.uris[uri]
}

// Tracks returns the seen tracks in order.
func (s *Seen) Tracks() []track.Track {
	return s.tracks
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// RegisteredNames returns the registered filter names in a stable order.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeSettings decodes, defaults and validates filter settings into config.
func decodeSettings(settings map[string]any, config any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	// Set defaults
	if err := defaults.Set(config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	// Validate using validator
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
