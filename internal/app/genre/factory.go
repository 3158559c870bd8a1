package genre

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/infra/config"
)

// NewFallbackFromConfig builds the fallback tag source chain from configuration.
// It returns nil when no sources are configured.
func NewFallbackFromConfig(cfg *config.Config) (TagSource, error) {
	if len(cfg.Genres.Sources) == 0 {
		return nil, nil
	}

	var sources []TagSource
	for i, scfg := range cfg.Genres.Sources {
		var source TagSource
		var err error
		zlog.Debug().Msgf("creating genre source: index=%d type=%s", i+1, scfg.Type)
		switch scfg.Type {
		case "lastfm":
			source, err = NewLastFmSource(scfg.Settings)

		case "static":
			source, err = NewStaticSource(scfg.Settings)

		default:
			return nil, errors.Newf("unsupported genre source type: %s (source index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create genre source (index %d, type %s)", i, scfg.Type)
		}

		sources = append(sources, source)
		zlog.Info().Msgf("registered genre source: index=%d type=%s", i+1, scfg.Type)
	}

	return NewSourceChain(sources...), nil
}
