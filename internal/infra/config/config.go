// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server          ServerConfig            `yaml:"server"`
	Spotify         SpotifyConfig           `yaml:"spotify"`
	Library         LibraryConfig           `yaml:"library"`
	Recommendations RecommendationsConfig   `yaml:"recommendations"`
	Genres          GenresConfig            `yaml:"genres"`
	Filters         map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr          string `yaml:"addr" default:":8080"`
	APIToken      string `yaml:"api_token"`
	WebsocketPath string `yaml:"websocket_path" default:"/events" validate:"startswith=/"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
	MaxRetries   int    `yaml:"max_retries" default:"1" validate:"gte=1,lte=10"`
	RetryDelayMs int    `yaml:"retry_delay_ms" default:"1000" validate:"gte=0,lte=30000"`
}

// LibraryConfig represents library browsing configuration.
type LibraryConfig struct {
	LikedPageSize  int `yaml:"liked_page_size" default:"50" validate:"gte=1,lte=50"`
	SearchPageSize int `yaml:"search_page_size" default:"20" validate:"gte=1,lte=50"`
}

// RecommendationsConfig represents recommendation request configuration.
type RecommendationsConfig struct {
	DefaultCount int `yaml:"default_count" default:"20" validate:"gte=1,lte=100"`
}

// GenresConfig represents genre lookup configuration.
type GenresConfig struct {
	Sources []SourceConfig `yaml:"sources" validate:"dive"`
}

// SourceConfig represents a single fallback tag source.
type SourceConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("SEEDBOX_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.setLastFmAPIKey(v)
	}
}

// setLastFmAPIKey injects the key into the first lastfm source, adding one if none is configured.
func (c *Config) setLastFmAPIKey(key string) {
	for i := range c.Genres.Sources {
		if c.Genres.Sources[i].Type == "lastfm" {
			if c.Genres.Sources[i].Settings == nil {
				c.Genres.Sources[i].Settings = make(map[string]any)
			}
			c.Genres.Sources[i].Settings["api_key"] = key
			return
		}
	}
	c.Genres.Sources = append(c.Genres.Sources, SourceConfig{
		Type:     "lastfm",
		Settings: map[string]any{"api_key": key},
	})
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// RetryDelay returns the base delay between Spotify API retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Spotify.RetryDelayMs) * time.Millisecond
}

// IsFilterEnabled checks if a filter is enabled.
// Filters missing from the configuration are enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return true
}
