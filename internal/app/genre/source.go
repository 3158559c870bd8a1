package genre

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/infra/lastfm"
)

// TagSource supplies genre-like tags for an artist by name.
type TagSource interface {
	Tags(ctx context.Context, artistName string) ([]string, error)

	// Name returns the source type (used in config).
	Name() string
}

// SourceChain asks each source in order and returns the first non-empty answer.
type SourceChain struct {
	sources []TagSource
}

// NewSourceChain creates a new source chain.
func NewSourceChain(sources ...TagSource) *SourceChain {
	return &SourceChain{sources: sources}
}

// Tags implements TagSource. Failing sources are skipped.
func (c *SourceChain) Tags(ctx context.Context, artistName string) ([]string, error) {
	var lastErr error
	for i, s := range c.sources {
		tags, err := s.Tags(ctx, artistName)
		if err != nil {
			zlog.Debug().Msgf("tag source failed, trying next: index=%d source=%s error=%v", i+1, s.Name(), err)
			lastErr = err
			continue
		}
		if len(tags) > 0 {
			return tags, nil
		}
	}
	if lastErr != nil {
		return nil, errors.Wrap(lastErr, "all tag sources failed or were empty")
	}
	return []string{}, nil
}

// Name implements TagSource.
func (c *SourceChain) Name() string {
	return "chain"
}

// LastFmClient defines the Last.fm operation used for genre fallback.
type LastFmClient interface {
	ArtistTopTags(ctx context.Context, artistName string, limit int) ([]lastfm.Tag, error)
}

// LastFmSourceConfig is decoded from the source settings map.
type LastFmSourceConfig struct {
	APIKey   string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	TagCount int    `yaml:"tag_count" mapstructure:"tag_count" default:"3" validate:"gte=1,lte=20"`
	MinCount int    `yaml:"min_count" mapstructure:"min_count" default:"0" validate:"gte=0,lte=100"`
}

// LastFmSource uses an artist's top Last.fm tags as genres.
type LastFmSource struct {
	client LastFmClient
	config LastFmSourceConfig
}

// NewLastFmSource creates a LastFmSource from raw settings.
func NewLastFmSource(settings map[string]any) (*LastFmSource, error) {
	config, err := decodeSettings[LastFmSourceConfig](settings)
	if err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFmSource{client: client, config: config}, nil
}

// Tags implements TagSource.
func (s *LastFmSource) Tags(ctx context.Context, artistName string) ([]string, error) {
	tags, err := s.client.ArtistTopTags(ctx, artistName, s.config.TagCount)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		// Last.fm reports tag weight on a 0..100 scale relative to the top tag
		if t.Count < s.config.MinCount {
			continue
		}
		names = append(names, t.Name)
	}
	return names, nil
}

// Name implements TagSource.
func (s *LastFmSource) Name() string {
	return "lastfm"
}

// StaticSourceConfig is decoded from the source settings map.
type StaticSourceConfig struct {
	Genres map[string][]string `yaml:"genres" mapstructure:"genres" validate:"required"`
}

// StaticSource answers from a fixed artist name to genres table.
type StaticSource struct {
	genres map[string][]string
}

// NewStaticSource creates a StaticSource from raw settings.
// Artist names are matched case-insensitively.
func NewStaticSource(settings map[string]any) (*StaticSource, error) {
	config, err := decodeSettings[StaticSourceConfig](settings)
	if err != nil {
		return nil, err
	}

	genres := make(map[string][]string, len(config.Genres))
	for name, g := range config.Genres {
		genres[strings.ToLower(strings.TrimSpace(name))] = g
	}
	return &StaticSource{genres: genres}, nil
}

// Tags implements TagSource.
func (s *StaticSource) Tags(_ context.Context, artistName string) ([]string, error) {
	return append([]string{}, s.genres[strings.ToLower(strings.TrimSpace(artistName))]...), nil
}

// Name implements TagSource.
func (s *StaticSource) Name() string {
	return "static"
}

func decodeSettings[T any](settings map[string]any) (T, error) {
	var config T
	if len(settings) == 0 {
		return config, errors.New("settings are required")
	}
	if err := mapstructure.Decode(settings, &config); err != nil {
		return config, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return config, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return config, errors.Wrap(err, "validation failed")
	}
	return config, nil
}
