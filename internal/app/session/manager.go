// Package session provides the per-user session manager.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/app/filter"
	"github.com/osa030/seedbox/internal/app/genre"
	"github.com/osa030/seedbox/internal/app/library"
	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/playback"
	"github.com/osa030/seedbox/internal/app/recommend"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/domain/seed"
	"github.com/osa030/seedbox/internal/domain/track"
)

var (
	ErrSessionClosed     = errors.New("session is closed")
	ErrEmptyPlaylistName = errors.New("playlist name is empty")
	ErrNoRecommendations = errors.New("no recommendations to use")
	ErrUnknownTrack      = errors.New("track is not in any stored list")
	ErrUnknownArtist     = errors.New("artist is not in any stored list")
)

const exportDescription = "Created by seedbox"

// API is the Web API surface a session drives.
type API interface {
	library.Client
	genre.ArtistLookup
	playback.Player
	Recommendations(ctx context.Context, seedArtists, seedTracks []string, limit int, targets map[string]float64) ([]track.Track, error)
	CreatePlaylist(ctx context.Context, name, description string) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackRefs []string) error
	GetPlaylistURL(playlistID string) string
}

// Options configures new sessions.
type Options struct {
	Filters        *filter.Chain
	Fallback       genre.TagSource
	LikedPageSize  int
	SearchPageSize int
	DefaultCount   int
}

// Manager owns the state of one user session. A single mutex serializes
// every operation, so at most one mutation is in flight.
type Manager struct {
	mu sync.Mutex

	id        string
	createdAt time.Time
	closed    bool

	// Components
	api      API
	hub      *notification.Hub
	store    *library.Store
	genres   *genre.Cache
	seeds    *seed.Set
	params   *recommend.Parameters
	playback *playback.Controller

	// Form state
	search          search.Filters
	count           int
	recommendations []track.Track
	exports         []ExportView
}

// NewManager creates a session with empty state.
func NewManager(id string, api API, opts Options) *Manager {
	var cacheOpts []genre.Option
	if opts.Fallback != nil {
		cacheOpts = append(cacheOpts, genre.WithFallback(opts.Fallback))
	}
	count := opts.DefaultCount
	if count < recommend.MinLimit || count > recommend.MaxLimit {
		count = recommend.DefaultLimit
	}

	hub := notification.NewHub()
	cache := genre.NewCache(api, cacheOpts...)

	return &Manager{
		id:        id,
		createdAt: time.Now(),
		api:       api,
		hub:       hub,
		genres:    cache,
		store: library.NewStore(api, opts.Filters, cache, hub, library.Config{
			LikedPageSize:  opts.LikedPageSize,
			SearchPageSize: opts.SearchPageSize,
		}),
		seeds:           seed.NewSet(),
		params:          recommend.NewParameters(),
		playback:        playback.NewController(api),
		count:           count,
		recommendations: make([]track.Track, 0),
		exports:         make([]ExportView, 0),
	}
}

// ID returns the session ID.
func (m *Manager) ID() string {
	return m.id
}

// Hub returns the session's change event hub.
func (m *Manager) Hub() *notification.Hub {
	return m.hub
}

// CreatedAt returns when the session was opened.
func (m *Manager) CreatedAt() time.Time {
	return m.createdAt
}

// LoadLibrary fetches recent plays, the first liked page, the playlists and
// the tracks of the first playlist.
func (m *Manager) LoadLibrary(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return Snapshot{}, err
	}

	if _, err := m.store.FetchRecent(ctx); err != nil {
		return Snapshot{}, err
	}
	if len(m.store.Tracks(library.Liked())) == 0 {
		if _, _, err := m.store.FetchLikedPage(ctx); err != nil {
			return Snapshot{}, err
		}
	}
	playlists, err := m.store.FetchPlaylists(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if m.store.SelectedPlaylist() == "" && len(playlists) > 0 {
		if _, err := m.store.SelectPlaylist(ctx, playlists[0].Name); err != nil {
			return Snapshot{}, err
		}
	}

	zlog.Info().Msgf("library loaded: session_id=%s playlists=%d", m.id, len(playlists))
	return m.snapshotLocked(), nil
}

// MoreLiked appends the next page of liked songs.
func (m *Manager) MoreLiked(ctx context.Context) ([]track.Track, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return nil, false, err
	}
	return m.store.FetchLikedPage(ctx)
}

// SelectPlaylist selects a playlist by its disambiguated name.
func (m *Manager) SelectPlaylist(ctx context.Context, name string) ([]track.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return nil, err
	}
	return m.store.SelectPlaylist(ctx, name)
}

// AnnotateGenres enriches a stored list. source is a library source key
// ("liked", "recent", "search", "playlist:<name>") or "recommendations".
func (m *Manager) AnnotateGenres(ctx context.Context, source string) ([]track.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return nil, err
	}

	if source == "recommendations" {
		enriched, err := m.genres.Enrich(ctx, m.recommendations)
		if err != nil {
			return nil, err
		}
		m.recommendations = enriched
		m.publishLocked(notification.KindGenresAnnotated, source, len(enriched))
		return copyTracks(enriched), nil
	}

	key, err := library.ParseSourceKey(source)
	if err != nil {
		return nil, err
	}
	return m.store.AnnotateGenres(ctx, key)
}

// SetSearch replaces the search form. Changing the result type applies the
// clause rules of search.Filters.SetType.
func (m *Manager) SetSearch(filters search.Filters) (search.Filters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return search.Filters{}, err
	}
	if filters.EffectiveType() != m.search.EffectiveType() {
		filters.SetType(filters.EffectiveType())
	}
	m.search = filters
	return m.search, nil
}

// SearchFilters returns the current search form.
func (m *Manager) SearchFilters() search.Filters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.search
}

// SearchResult is the outcome of one search action.
type SearchResult struct {
	Query   string
	Type    search.ResultType
	Tracks  []track.Track
	Artists []track.ArtistRef
	HasMore bool
}

// Search runs the current search form. more appends the next page when the
// query is unchanged.
func (m *Manager) Search(ctx context.Context, more bool) (SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return SearchResult{}, err
	}

	query, err := m.search.Build()
	if err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{Query: query, Type: m.search.EffectiveType()}
	if result.Type == search.ResultArtists {
		result.Artists, result.HasMore, err = m.store.SearchArtists(ctx, query, more)
	} else {
		result.Tracks, result.HasMore, err = m.store.SearchTracks(ctx, query, more)
	}
	if err != nil {
		return SearchResult{}, err
	}

	zlog.Debug().Msgf("search: session_id=%s type=%s query=%s more=%t", m.id, result.Type, query, more)
	return result, nil
}

// StageGenre puts genre into the search form's genre clause.
func (m *Manager) StageGenre(genre string) (search.Filters, error) {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return search.Filters{}, errors.Wrap(search.ErrEmptyQuery, "genre is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return search.Filters{}, err
	}
	m.search.Stage(genre)
	return m.search, nil
}

// AddSeedTrack adds a seed track. The source label defaults to the first
// stored list holding the track.
func (m *Manager) AddSeedTrack(uri, source string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	if source == "" {
		source = m.sourceOfLocked(uri)
	}
	if source == "" {
		return false, errors.Wrapf(ErrUnknownTrack, "%s", uri)
	}

	added := m.seeds.AddTrack(uri, source)
	m.seedsChangedLocked(added)
	return added, nil
}

// RemoveSeedTrack removes a seed track.
func (m *Manager) RemoveSeedTrack(uri string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	removed := m.seeds.RemoveTrack(uri)
	m.seedsChangedLocked(removed)
	return removed, nil
}

// AddSeedArtist adds a seed artist. A blank name is looked up in the stored
// lists and artist search results.
func (m *Manager) AddSeedArtist(artist track.ArtistRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	if artist.Name == "" {
		found, ok := m.findArtistLocked(artist.URI)
		if !ok {
			return false, errors.Wrapf(ErrUnknownArtist, "%s", artist.URI)
		}
		artist = found
	}

	added := m.seeds.AddArtist(artist)
	m.seedsChangedLocked(added)
	return added, nil
}

// RemoveSeedArtist removes a seed artist.
func (m *Manager) RemoveSeedArtist(uri string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	removed := m.seeds.RemoveArtist(uri)
	m.seedsChangedLocked(removed)
	return removed, nil
}

// AddSeedGenre adds a genre to the seed set.
func (m *Manager) AddSeedGenre(genre string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	added := m.seeds.AddGenre(strings.TrimSpace(genre))
	m.seedsChangedLocked(added)
	return added, nil
}

// RemoveSeedGenre removes a genre from the seed set.
func (m *Manager) RemoveSeedGenre(genre string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	removed := m.seeds.RemoveGenre(genre)
	m.seedsChangedLocked(removed)
	return removed, nil
}

// ClearSeeds empties the seed set.
func (m *Manager) ClearSeeds() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	m.seeds.Clear()
	m.seedsChangedLocked(true)
	return nil
}

// SetParameter stores a parameter value on the 0-100 scale.
func (m *Manager) SetParameter(p recommend.Parameter, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if err := m.params.Set(p, value); err != nil {
		return err
	}
	m.publishLocked(notification.KindParametersChanged, "", 0)
	return nil
}

// EnableParameter toggles whether a parameter is sent.
func (m *Manager) EnableParameter(p recommend.Parameter, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	if err := m.params.Enable(p, enabled); err != nil {
		return err
	}
	m.publishLocked(notification.KindParametersChanged, "", 0)
	return nil
}

// SetRecommendationCount sets how many recommendations to request.
func (m *Manager) SetRecommendationCount(n int) error {
	if n < recommend.MinLimit || n > recommend.MaxLimit {
		return errors.Wrapf(recommend.ErrInvalidLimit, "%d not in %d..%d", n, recommend.MinLimit, recommend.MaxLimit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return err
	}
	m.count = n
	m.publishLocked(notification.KindParametersChanged, "", n)
	return nil
}

// Recommend builds a request from the seeds and parameters, fetches
// recommendations and annotates them with genres. The previous results
// are kept when any step fails.
func (m *Manager) Recommend(ctx context.Context) ([]track.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return nil, err
	}

	payload, err := recommend.Build(m.seeds, m.params, m.count)
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("requesting recommendations: session_id=%s %s", m.id, payload)

	tracks, err := m.api.Recommendations(ctx, payload.SeedArtists, payload.SeedTracks, payload.Limit, payload.Targets)
	if err != nil {
		return nil, err
	}

	available := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.IsAvailable() {
			available = append(available, t)
		}
	}

	enriched, err := m.genres.Enrich(ctx, available)
	if err != nil {
		return nil, err
	}

	m.recommendations = enriched
	zlog.Info().Msgf("recommendations received: session_id=%s count=%d", m.id, len(enriched))
	m.publishLocked(notification.KindRecommendationsChanged, "", len(enriched))
	return copyTracks(enriched), nil
}

// Recommendations returns the last recommendation results.
func (m *Manager) Recommendations() []track.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyTracks(m.recommendations)
}

// PlayTracks starts playback of uris. It reports false when no device is active.
func (m *Manager) PlayTracks(ctx context.Context, uris []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	return m.playback.Play(ctx, uris)
}

// PlayRecommendations plays the last recommendation results in order.
func (m *Manager) PlayRecommendations(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	if len(m.recommendations) == 0 {
		return false, ErrNoRecommendations
	}
	return m.playback.Play(ctx, track.URIs(m.recommendations))
}

// Queue adds uri to the active device's queue. It reports false when no device is active.
func (m *Manager) Queue(ctx context.Context, uri string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return false, err
	}
	return m.playback.Queue(ctx, uri)
}

// ExportPlaylist saves the recommendations as a new playlist.
func (m *Manager) ExportPlaylist(ctx context.Context, name string) (ExportView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ExportView{}, ErrEmptyPlaylistName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked(); err != nil {
		return ExportView{}, err
	}
	if len(m.recommendations) == 0 {
		return ExportView{}, ErrNoRecommendations
	}

	playlistID, err := m.api.CreatePlaylist(ctx, name, exportDescription)
	if err != nil {
		return ExportView{}, err
	}
	uris := track.URIs(m.recommendations)
	if err := m.api.AddTracksToPlaylist(ctx, playlistID, uris); err != nil {
		return ExportView{}, errors.Wrapf(err, "playlist %s was created but tracks were not added", playlistID)
	}

	export := ExportView{
		ID:    playlistID,
		Name:  name,
		URL:   m.api.GetPlaylistURL(playlistID),
		Count: len(uris),
	}
	m.exports = append(m.exports, export)
	zlog.Info().Msgf("playlist exported: session_id=%s playlist_id=%s name=%s tracks=%d", m.id, playlistID, name, len(uris))
	m.publishLocked(notification.KindPlaylistExported, name, len(uris))
	return export, nil
}

// Tracks returns a stored list by source key, or the recommendations.
func (m *Manager) Tracks(source string) ([]track.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if source == "recommendations" {
		return copyTracks(m.recommendations), nil
	}
	key, err := library.ParseSourceKey(source)
	if err != nil {
		return nil, err
	}
	return m.store.Tracks(key), nil
}

// TrackViews converts tracks for rendering, marking the seeded ones.
func (m *Manager) TrackViews(tracks []track.Track) []TrackView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return trackViews(tracks, m.seeds)
}

// Seeds returns the seed selection view.
func (m *Manager) Seeds() SeedView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newSeedView(m.seeds)
}

// Snapshot returns the full view model.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close ends the session and disconnects its subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.publishLocked(notification.KindSessionClosed, "", 0)
	m.hub.Close()
	zlog.Info().Msgf("session closed: session_id=%s", m.id)
}

// Closed reports whether Close was called.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) snapshotLocked() Snapshot {
	keys := []library.SourceKey{library.Liked(), library.Recent(), library.Search()}
	if selected := m.store.SelectedPlaylist(); selected != "" {
		keys = append(keys, library.PlaylistSource(selected))
	}

	lists := make([]ListView, 0, len(keys))
	for _, key := range keys {
		lists = append(lists, ListView{
			Source:    key.String(),
			HasMore:   m.store.HasMore(key),
			HasGenres: m.store.HasGenres(key),
			Tracks:    trackViews(m.store.Tracks(key), m.seeds),
		})
	}

	artists, hasMoreArtists := m.store.ArtistResults()
	state, device, queued := m.playback.Status()

	return Snapshot{
		ID:               m.id,
		Lists:            lists,
		Playlists:        playlistViews(m.store.Playlists(), m.store.SelectedPlaylist()),
		SelectedPlaylist: m.store.SelectedPlaylist(),
		Search: SearchView{
			Filters:        m.search,
			Query:          m.search.Query(),
			Disabled:       m.search.Disabled(),
			Artists:        artistViews(artists),
			HasMoreArtists: hasMoreArtists,
		},
		Seeds:               newSeedView(m.seeds),
		Parameters:          m.params.All(),
		RecommendationCount: m.count,
		CanRecommend:        m.seeds.Valid(),
		Recommendations:     trackViews(m.recommendations, m.seeds),
		Exports:             append([]ExportView{}, m.exports...),
		Playback:            PlaybackView{State: state.String(), Device: device, Queued: queued},
		CachedArtists:       m.genres.Len(),
	}
}

func (m *Manager) checkOpenLocked() error {
	if m.closed {
		return errors.Wrapf(ErrSessionClosed, "%s", m.id)
	}
	return nil
}

// sourceOfLocked returns the label of the first view holding uri.
func (m *Manager) sourceOfLocked(uri string) string {
	for _, t := range m.recommendations {
		if t.URI == uri {
			return "recommendations"
		}
	}
	keys := []library.SourceKey{library.Liked(), library.Recent(), library.Search()}
	for _, p := range m.store.Playlists() {
		keys = append(keys, library.PlaylistSource(p.Name))
	}
	for _, key := range keys {
		for _, t := range m.store.Tracks(key) {
			if t.URI == uri {
				if key.Kind() == library.SourcePlaylist {
					return key.Name()
				}
				return key.String()
			}
		}
	}
	return ""
}

func (m *Manager) findArtistLocked(uri string) (track.ArtistRef, bool) {
	artists, _ := m.store.ArtistResults()
	for _, a := range artists {
		if a.URI == uri {
			return a, true
		}
	}
	lists := [][]track.Track{m.recommendations}
	for _, key := range []library.SourceKey{library.Liked(), library.Recent(), library.Search()} {
		lists = append(lists, m.store.Tracks(key))
	}
	for _, p := range m.store.Playlists() {
		lists = append(lists, m.store.Tracks(library.PlaylistSource(p.Name)))
	}
	for _, tracks := range lists {
		for _, t := range tracks {
			for _, a := range t.Artists {
				if a.URI == uri {
					return a, true
				}
			}
		}
	}
	return track.ArtistRef{}, false
}

func (m *Manager) seedsChangedLocked(changed bool) {
	if changed {
		m.publishLocked(notification.KindSeedsChanged, "", m.seeds.Count())
	}
}

func (m *Manager) publishLocked(kind notification.Kind, source string, count int) {
	m.hub.Publish(notification.Event{Kind: kind, Source: source, Count: count})
}

func copyTracks(tracks []track.Track) []track.Track {
	return append([]track.Track{}, tracks...)
}
