// Package recommend turns a seed selection and the target parameters into a
// recommendations request.
package recommend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/seedbox/internal/domain/seed"
)

const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 20
)

var (
	// ErrInvalidSeed is returned when the combined artist and track seed count is 0 or above seed.MaxSeeds.
	ErrInvalidSeed = errors.New("invalid seed selection")
	// ErrInvalidLimit is returned for a limit outside MinLimit..MaxLimit.
	ErrInvalidLimit = errors.New("invalid recommendation count")
)

// Payload is a recommendations request.
// Targets holds only enabled parameters, keyed "target_<name>", on a 0.0-1.0 scale.
type Payload struct {
	SeedArtists []string           `json:"seed_artists"`
	SeedTracks  []string           `json:"seed_tracks"`
	Limit       int                `json:"limit"`
	Targets     map[string]float64 `json:"targets"`
}

// Values flattens the payload into query-string form with sorted keys.
func (p Payload) Values() map[string]string {
	values := map[string]string{
		"limit":        strconv.Itoa(p.Limit),
		"seed_artists": strings.Join(p.SeedArtists, ","),
		"seed_tracks":  strings.Join(p.SeedTracks, ","),
	}
	for k, v := range p.Targets {
		values[k] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return values
}

// String renders the payload for logging.
func (p Payload) String() string {
	values := p.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, values[k]))
	}
	return strings.Join(parts, " ")
}

// Build validates the seed count and limit and assembles the payload.
func Build(seeds *seed.Set, params *Parameters, limit int) (Payload, error) {
	if seeds == nil || !seeds.Valid() {
		count := 0
		if seeds != nil {
			count = seeds.Count()
		}
		return Payload{}, errors.Wrapf(ErrInvalidSeed, "%d seeds given, need 1 to %d", count, seed.MaxSeeds)
	}
	if limit < MinLimit || limit > MaxLimit {
		return Payload{}, errors.Wrapf(ErrInvalidLimit, "%d not in %d..%d", limit, MinLimit, MaxLimit)
	}

	targets := make(map[string]float64)
	if params != nil {
		for _, p := range AllParameters() {
			if target, ok := params.Get(p); ok && target.Enabled {
				targets[p.Key()] = float64(target.Value) / 100
			}
		}
	}

	return Payload{
		SeedArtists: seeds.ArtistURIs(),
		SeedTracks:  seeds.TrackURIs(),
		Limit:       limit,
		Targets:     targets,
	}, nil
}
