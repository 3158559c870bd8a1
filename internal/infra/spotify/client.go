// Package spotify provides a client for the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/seedbox/internal/domain/playlist"
	"github.com/osa030/seedbox/internal/domain/track"
)

const (
	// RecentLimit is the only page of recently played tracks the API serves.
	RecentLimit = 50
	// ArtistBatchSize is the maximum number of ids per artists lookup.
	ArtistBatchSize = 50
	// AddTracksBatchSize is the maximum number of items per playlist add.
	AddTracksBatchSize = 100
	// TrackBatchSize is the maximum number of ids per tracks lookup.
	TrackBatchSize = 50
	// MaxPageSize is the largest limit accepted by paginated endpoints.
	MaxPageSize = 50
)

// ErrAuthFailure marks errors caused by expired or invalid credentials.
var ErrAuthFailure = errors.New("spotify authorization failed")

// Scopes lists every permission the assistant needs.
var Scopes = []string{
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Device is a Spotify Connect playback device.
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
}

// New creates a new Spotify client authenticated with a refresh token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// Access token is fetched lazily from the refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	return NewWithHTTPClient(auth.Client(ctx, token), cfg), nil
}

// NewWithHTTPClient creates a client on top of an already authorized HTTP client.
func NewWithHTTPClient(httpClient *http.Client, cfg Config, opts ...spotify.ClientOption) *Client {
	market := cfg.Market
	if market == "" {
		market = "US"
	}
	// A single attempt unless retries are configured
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		retryDelay = 0
	}

	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// RecentlyPlayed returns the user's most recently played tracks.
func (c *Client) RecentlyPlayed(ctx context.Context) ([]track.Track, error) {
	var items []spotify.RecentlyPlayedItem
	err := c.retry(ctx, func() error {
		r, err := c.client.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: RecentLimit})
		if err != nil {
			return err
		}
		items = r
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to get recently played tracks")
	}

	tracks := make([]track.Track, 0, len(items))
	for i := range items {
		tracks = append(tracks, convertSimpleTrack(&items[i].Track))
	}
	return tracks, nil
}

// SavedTracks returns one page of the user's liked songs.
func (c *Client) SavedTracks(ctx context.Context, limit, offset int) ([]track.Track, bool, error) {
	limit = clampLimit(limit)

	var page *spotify.SavedTrackPage
	err := c.retry(ctx, func() error {
		p, err := c.client.CurrentUsersTracks(ctx,
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, false, wrap(err, "failed to get saved tracks")
	}

	tracks := make([]track.Track, 0, len(page.Tracks))
	for i := range page.Tracks {
		tracks = append(tracks, convertFullTrack(&page.Tracks[i].FullTrack))
	}
	return tracks, page.Next != "", nil
}

// AllPlaylists retrieves every playlist of the current user, following next links.
func (c *Client) AllPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	var page *spotify.SimplePlaylistPage
	err := c.retry(ctx, func() error {
		p, err := c.client.CurrentUsersPlaylists(ctx, spotify.Limit(MaxPageSize))
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to get playlists")
	}

	var playlists []playlist.Playlist
	for {
		for _, p := range page.Playlists {
			playlists = append(playlists, convertPlaylist(p))
		}

		err := c.retry(ctx, func() error {
			return c.client.NextPage(ctx, page)
		})
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, wrap(err, "failed to get next playlist page")
		}
	}

	zlog.Debug().Msgf("fetched playlists: count=%d", len(playlists))
	return playlists, nil
}

// AllPlaylistTracks retrieves all tracks from a playlist, following next links.
// Episodes and removed items are skipped; local files are returned marked IsLocal.
func (c *Client) AllPlaylistTracks(ctx context.Context, playlistRef string) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlistRef)
	if playlistID == "" {
		return nil, errors.New("invalid playlist reference")
	}

	var page *spotify.PlaylistItemPage
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(100),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to get playlist items")
	}

	var tracks []track.Track
	for {
		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track == nil {
				continue
			}
			t := convertFullTrack(item.Track.Track)
			t.IsLocal = t.IsLocal || item.IsLocal
			tracks = append(tracks, t)
		}

		err := c.retry(ctx, func() error {
			return c.client.NextPage(ctx, page)
		})
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, wrap(err, "failed to get next playlist items page")
		}
	}

	zlog.Debug().Msgf("fetched playlist tracks: playlist=%s count=%d", playlistID, len(tracks))
	return tracks, nil
}

// ArtistGenres looks up the genres of up to ArtistBatchSize artists in one request.
// Artists unknown to the API are absent from the result.
func (c *Client) ArtistGenres(ctx context.Context, artistURIs []string) (map[string][]string, error) {
	if len(artistURIs) == 0 {
		return map[string][]string{}, nil
	}
	if len(artistURIs) > ArtistBatchSize {
		return nil, errors.Newf("at most %d artists per lookup, got %d", ArtistBatchSize, len(artistURIs))
	}

	ids := make([]spotify.ID, len(artistURIs))
	for i, uri := range artistURIs {
		ids[i] = spotify.ID(extractID(uri, "artist"))
	}

	var artists []*spotify.FullArtist
	err := c.retry(ctx, func() error {
		a, err := c.client.GetArtists(ctx, ids...)
		if err != nil {
			return err
		}
		artists = a
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to get artists")
	}

	result := make(map[string][]string, len(artists))
	for _, a := range artists {
		if a == nil {
			continue
		}
		uri := string(a.URI)
		if uri == "" {
			uri = "spotify:artist:" + string(a.ID)
		}
		genres := a.Genres
		if genres == nil {
			genres = []string{}
		}
		result[uri] = genres
	}
	return result, nil
}

// SearchTracks runs a track search and reports whether more results exist.
func (c *Client) SearchTracks(ctx context.Context, query string, limit, offset int) ([]track.Track, bool, error) {
	result, err := c.search(ctx, query, spotify.SearchTypeTrack, limit, offset)
	if err != nil {
		return nil, false, err
	}
	if result.Tracks == nil {
		return []track.Track{}, false, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, convertFullTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, result.Tracks.Next != "", nil
}

// SearchArtists runs an artist search and reports whether more results exist.
func (c *Client) SearchArtists(ctx context.Context, query string, limit, offset int) ([]track.ArtistRef, bool, error) {
	result, err := c.search(ctx, query, spotify.SearchTypeArtist, limit, offset)
	if err != nil {
		return nil, false, err
	}
	if result.Artists == nil {
		return []track.ArtistRef{}, false, nil
	}

	artists := make([]track.ArtistRef, 0, len(result.Artists.Artists))
	for _, a := range result.Artists.Artists {
		artists = append(artists, track.ArtistRef{URI: string(a.URI), Name: a.Name})
	}
	return artists, result.Artists.Next != "", nil
}

func (c *Client) search(ctx context.Context, query string, st spotify.SearchType, limit, offset int) (*spotify.SearchResult, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	limit = clampLimit(limit)

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, st,
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to search")
	}
	return result, nil
}

// Recommendations requests recommended tracks for the given seeds and target attributes.
// targets is keyed by the API parameter name, e.g. "target_energy".
func (c *Client) Recommendations(ctx context.Context, seedArtists, seedTracks []string, limit int, targets map[string]float64) ([]track.Track, error) {
	seeds := spotify.Seeds{
		Artists: make([]spotify.ID, len(seedArtists)),
		Tracks:  make([]spotify.ID, len(seedTracks)),
	}
	for i, uri := range seedArtists {
		seeds.Artists[i] = spotify.ID(extractID(uri, "artist"))
	}
	for i, uri := range seedTracks {
		seeds.Tracks[i] = spotify.ID(extractTrackID(uri))
	}

	attrs, err := trackAttributes(targets)
	if err != nil {
		return nil, err
	}

	var recs *spotify.Recommendations
	err = c.retry(ctx, func() error {
		r, err := c.client.GetRecommendations(ctx, seeds, attrs,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		recs = r
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to get recommendations")
	}

	tracks := make([]track.Track, 0, len(recs.Tracks))
	for i := range recs.Tracks {
		tracks = append(tracks, convertSimpleTrack(&recs.Tracks[i]))
	}
	if err := c.markPlayable(ctx, tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// markPlayable sets IsPlayable on tracks from a market-scoped tracks lookup.
// Recommendations only carry simple tracks, which have no playability.
func (c *Client) markPlayable(ctx context.Context, tracks []track.Track) error {
	ids := make([]spotify.ID, len(tracks))
	for i, t := range tracks {
		ids[i] = spotify.ID(extractTrackID(t.URI))
	}

	for b, batch := range chunk(ids, TrackBatchSize) {
		var full []*spotify.FullTrack
		err := c.retry(ctx, func() error {
			res, err := c.client.GetTracks(ctx, batch, spotify.Market(c.market))
			if err != nil {
				return err
			}
			full = res
			return nil
		})
		if err != nil {
			return wrap(err, "failed to look up track playability")
		}

		// Results keep request order, even for relinked tracks
		offset := b * TrackBatchSize
		for j, ft := range full {
			if ft == nil || ft.IsPlayable == nil || offset+j >= len(tracks) {
				continue
			}
			playable := *ft.IsPlayable
			tracks[offset+j].IsPlayable = &playable
		}
	}
	return nil
}

// trackAttributes converts target parameters into the library's attribute builder.
func trackAttributes(targets map[string]float64) (*spotify.TrackAttributes, error) {
	attrs := spotify.NewTrackAttributes()
	for key, value := range targets {
		switch key {
		case "target_acousticness":
			attrs = attrs.TargetAcousticness(value)
		case "target_energy":
			attrs = attrs.TargetEnergy(value)
		case "target_liveness":
			attrs = attrs.TargetLiveness(value)
		case "target_danceability":
			attrs = attrs.TargetDanceability(value)
		case "target_instrumentalness":
			attrs = attrs.TargetInstrumentalness(value)
		default:
			return nil, errors.Newf("unsupported recommendation parameter: %s", key)
		}
	}
	return attrs, nil
}

// CreatePlaylist creates a new playlist for the current user and returns its ID.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	var user *spotify.PrivateUser
	err := c.retry(ctx, func() error {
		u, err := c.client.CurrentUser(ctx)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return "", wrap(err, "failed to get current user")
	}

	var created *spotify.FullPlaylist
	err = c.retry(ctx, func() error {
		p, err := c.client.CreatePlaylistForUser(ctx, user.ID, name, description, true, false)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return "", wrap(err, "failed to create playlist")
	}

	return string(created.ID), nil
}

// AddTracksToPlaylist adds tracks to a playlist.
// trackRefs can be Spotify IDs, URLs, or URIs.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackRefs []string) error {
	ids := make([]spotify.ID, len(trackRefs))
	for i, ref := range trackRefs {
		ids[i] = spotify.ID(extractTrackID(ref))
	}

	for _, batch := range chunk(ids, AddTracksBatchSize) {
		err := c.retry(ctx, func() error {
			_, err := c.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
			return err
		})
		if err != nil {
			return wrap(err, "failed to add tracks to playlist")
		}
	}

	return nil
}

// Devices lists the user's Spotify Connect devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var devices []spotify.PlayerDevice
	err := c.retry(ctx, func() error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		devices = d
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to get devices")
	}

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, Device{
			ID:     string(d.ID),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
		})
	}
	return result, nil
}

// Play starts playback of the given track URIs on the active device.
func (c *Client) Play(ctx context.Context, trackURIs []string) error {
	uris := make([]spotify.URI, len(trackURIs))
	for i, u := range trackURIs {
		uris[i] = spotify.URI("spotify:track:" + extractTrackID(u))
	}

	err := c.retry(ctx, func() error {
		return c.client.PlayOpt(ctx, &spotify.PlayOptions{URIs: uris})
	})
	if err != nil {
		return wrap(err, "failed to start playback")
	}
	return nil
}

// Queue appends a track to the active device's queue.
func (c *Client) Queue(ctx context.Context, trackURI string) error {
	err := c.retry(ctx, func() error {
		return c.client.QueueSong(ctx, spotify.ID(extractTrackID(trackURI)))
	})
	if err != nil {
		return wrap(err, "failed to add to queue")
	}
	return nil
}

// GetPlaylistURL returns the Spotify URL for a playlist.
func (c *Client) GetPlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Msgf("retrying spotify call (attempt %d/%d): %v", i+1, c.maxRetries, err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry canceled")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// isAuthFailure checks if an error was caused by rejected credentials.
func isAuthFailure(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}

// wrap wraps err with msg and marks credential problems with ErrAuthFailure.
func wrap(err error, msg string) error {
	wrapped := errors.Wrap(err, msg)
	if isAuthFailure(err) {
		return errors.Mark(wrapped, ErrAuthFailure)
	}
	return wrapped
}

// clampLimit keeps a page size inside the range the API accepts.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// chunk splits ids into consecutive batches of at most size elements.
func chunk(ids []spotify.ID, size int) [][]spotify.ID {
	var batches [][]spotify.ID
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID extracts the ID of the given kind ("track", "artist", "playlist")
// from a Spotify URI, an open.spotify.com URL, or a bare ID.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<kind>:ID
	prefix := "spotify:" + kind + ":"
	if strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}
