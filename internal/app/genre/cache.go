// Package genre provides the artist genre lookup cache and track enrichment.
package genre

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/domain/track"
)

// BatchSize is the maximum number of artists the API resolves per lookup.
const BatchSize = 50

// ArtistLookup resolves the genres of a batch of artists.
type ArtistLookup interface {
	ArtistGenres(ctx context.Context, artistURIs []string) (map[string][]string, error)
}

// LookupFailure reports a failed batch lookup. Batches before it stay cached.
type LookupFailure struct {
	Batch int
	URIs  []string
	Err   error
}

func (e *LookupFailure) Error() string {
	return fmt.Sprintf("genre lookup failed for batch %d (%d artists): %v", e.Batch, len(e.URIs), e.Err)
}

func (e *LookupFailure) Unwrap() error {
	return e.Err
}

// Cache memoizes artist genre lookups for the lifetime of a session.
// Entries are never evicted or overwritten.
type Cache struct {
	mu       sync.Mutex
	lookup   ArtistLookup
	fallback TagSource
	entries  map[string][]string
}

// Option configures a Cache.
type Option func(*Cache)

// WithFallback sets a tag source consulted for artists the API has no genres for.
func WithFallback(source TagSource) Option {
	return func(c *Cache) {
		c.fallback = source
	}
}

// NewCache creates an empty cache backed by lookup.
func NewCache(lookup ArtistLookup, opts ...Option) *Cache {
	c := &Cache{
		lookup:  lookup,
		entries: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the genres of every requested artist, fetching only the
// artists not cached yet in batches of BatchSize.
func (c *Cache) Resolve(ctx context.Context, artistURIs []string) (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resolve(ctx, artistURIs, nil)
}

// Enrich returns a copy of tracks with Genres set to the ordered, deduplicated
// union of their artists' genres. Order and length are preserved.
func (c *Cache) Enrich(ctx context.Context, tracks []track.Track) ([]track.Track, error) {
	var uris []string
	names := make(map[string]string)
	for _, t := range tracks {
		for _, a := range t.Artists {
			if _, ok := names[a.URI]; ok || a.URI == "" {
				continue
			}
			names[a.URI] = a.Name
			uris = append(uris, a.URI)
		}
	}

	c.mu.Lock()
	resolved, err := c.resolve(ctx, uris, names)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	enriched := make([]track.Track, len(tracks))
	for i, t := range tracks {
		var genres []string
		seen := make(map[string]bool)
		for _, a := range t.Artists {
			for _, g := range resolved[a.URI] {
				if seen[g] {
					continue
				}
				seen[g] = true
				genres = append(genres, g)
			}
		}
		enriched[i] = t.WithGenres(genres)
	}
	return enriched, nil
}

// Len returns the number of cached artists.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// resolve must be called with c.mu held. names is optional and enables the fallback.
func (c *Cache) resolve(ctx context.Context, artistURIs []string, names map[string]string) (map[string][]string, error) {
	requested := make([]string, 0, len(artistURIs))
	seen := make(map[string]bool, len(artistURIs))
	var missing []string
	for _, uri := range artistURIs {
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		requested = append(requested, uri)
		if _, ok := c.entries[uri]; !ok {
			missing = append(missing, uri)
		}
	}

	for i, start := 0, 0; start < len(missing); i, start = i+1, start+BatchSize {
		end := start + BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		zlog.Debug().Msgf("looking up artist genres: batch=%d size=%d", i, len(batch))
		result, err := c.lookup.ArtistGenres(ctx, batch)
		if err != nil {
			return nil, &LookupFailure{
				Batch: i,
				URIs:  append([]string(nil), batch...),
				Err:   errors.Wrap(err, "artist lookup failed"),
			}
		}

		for uri, genres := range result {
			c.store(uri, genres)
		}
		for _, uri := range batch {
			if _, ok := c.entries[uri]; !ok {
				c.entries[uri] = []string{}
			}
			if len(c.entries[uri]) == 0 && names[uri] != "" {
				c.applyFallback(ctx, uri, names[uri])
			}
		}
	}

	mapping := make(map[string][]string, len(requested))
	for _, uri := range requested {
		mapping[uri] = append([]string{}, c.entries[uri]...)
	}
	return mapping, nil
}

// store adds an entry unless the artist is already cached.
func (c *Cache) store(uri string, genres []string) {
	if _, ok := c.entries[uri]; ok {
		return
	}
	if genres == nil {
		genres = []string{}
	}
	c.entries[uri] = append([]string{}, genres...)
}

func (c *Cache) applyFallback(ctx context.Context, uri, name string) {
	if c.fallback == nil {
		return
	}
	tags, err := c.fallback.Tags(ctx, name)
	if err != nil {
		zlog.Warn().Msgf("genre fallback failed: source=%s artist=%s error=%v", c.fallback.Name(), name, err)
		return
	}
	if len(tags) > 0 {
		c.entries[uri] = append([]string{}, tags...)
	}
}
