package library

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/app/filter"
	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/domain/playlist"
	"github.com/osa030/seedbox/internal/domain/track"
)

var (
	// ErrUnknownPlaylist is returned for a playlist name not in the fetched list.
	ErrUnknownPlaylist = errors.New("unknown playlist")
	// ErrNothingStored is returned when annotating a source that has no list yet.
	ErrNothingStored = errors.New("nothing stored for source")
)

// Client defines the Web API reads the store needs.
type Client interface {
	RecentlyPlayed(ctx context.Context) ([]track.Track, error)
	SavedTracks(ctx context.Context, limit, offset int) ([]track.Track, bool, error)
	AllPlaylists(ctx context.Context) ([]playlist.Playlist, error)
	AllPlaylistTracks(ctx context.Context, playlistRef string) ([]track.Track, error)
	SearchTracks(ctx context.Context, query string, limit, offset int) ([]track.Track, bool, error)
	SearchArtists(ctx context.Context, query string, limit, offset int) ([]track.ArtistRef, bool, error)
}

// Enricher attaches genres to tracks.
type Enricher interface {
	Enrich(ctx context.Context, tracks []track.Track) ([]track.Track, error)
}

// Config holds page sizes.
type Config struct {
	LikedPageSize  int
	SearchPageSize int
}

// list is one stored track list with its paging state.
type list struct {
	tracks  []track.Track
	fetched int // raw items fetched from the API, the next offset
	hasMore bool
	genres  bool
	uri     string // playlist lists only
}

// artistResults is the stored artist search.
type artistResults struct {
	query   string
	artists []track.ArtistRef
	fetched int
	hasMore bool
}

// Store holds the track lists of one session.
// It is not safe for concurrent use; the owning session serializes access.
// A failed fetch leaves every stored list untouched.
type Store struct {
	client    Client
	filters   *filter.Chain
	enricher  Enricher
	publisher notification.Publisher
	config    Config

	lists       map[SourceKey]*list
	playlists   []playlist.Playlist
	selected    string
	searchQuery string
	artists     artistResults
}

// NewStore creates an empty store.
func NewStore(client Client, filters *filter.Chain, enricher Enricher, publisher notification.Publisher, cfg Config) *Store {
	if filters == nil {
		filters = filter.NewChain()
		filters.Add(filter.NewLocalTrackFilter())
	}
	if cfg.LikedPageSize <= 0 {
		cfg.LikedPageSize = 50
	}
	if cfg.SearchPageSize <= 0 {
		cfg.SearchPageSize = 20
	}
	return &Store{
		client:    client,
		filters:   filters,
		enricher:  enricher,
		publisher: publisher,
		config:    cfg,
		lists:     make(map[SourceKey]*list),
	}
}

// FetchRecent replaces the recently played list.
func (s *Store) FetchRecent(ctx context.Context) ([]track.Track, error) {
	items, err := s.client.RecentlyPlayed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch recently played")
	}

	l := &list{tracks: s.filters.Apply(ctx, nil, items), fetched: len(items)}
	s.lists[Recent()] = l
	s.publish(notification.KindLibraryChanged, Recent().String(), len(l.tracks))
	return copyTracks(l.tracks), nil
}

// FetchLikedPage appends the next page of liked songs and returns the new items.
func (s *Store) FetchLikedPage(ctx context.Context) ([]track.Track, bool, error) {
	current := s.list(Liked())

	items, hasMore, err := s.client.SavedTracks(ctx, s.config.LikedPageSize, current.fetched)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to fetch liked songs at offset %d", current.fetched)
	}

	accepted := s.filters.Apply(ctx, current.tracks, items)
	if current.genres {
		if accepted, err = s.enricher.Enrich(ctx, accepted); err != nil {
			return nil, false, err
		}
	}

	s.lists[Liked()] = &list{
		tracks:  append(copyTracks(current.tracks), accepted...),
		fetched: current.fetched + len(items),
		hasMore: hasMore,
		genres:  current.genres,
	}
	zlog.Debug().Msgf("fetched liked page: offset=%d received=%d stored=%d", current.fetched, len(items), len(accepted))
	s.publish(notification.KindLibraryChanged, Liked().String(), len(s.lists[Liked()].tracks))
	return copyTracks(accepted), hasMore, nil
}

// FetchPlaylists replaces the playlist list, making names unique.
// Stored tracks follow their playlist URI to its new name; lists of
// playlists that disappeared are dropped. The selection follows the URI too.
func (s *Store) FetchPlaylists(ctx context.Context) ([]playlist.Playlist, error) {
	fetched, err := s.client.AllPlaylists(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch playlists")
	}

	selectedURI := ""
	if idx := s.playlistIndex(s.selected); idx >= 0 {
		selectedURI = s.playlists[idx].URI
	}

	stored := make(map[string]*list)
	for key, l := range s.lists {
		if key.Kind() != SourcePlaylist {
			continue
		}
		delete(s.lists, key)
		if l.uri != "" {
			stored[l.uri] = l
		}
	}

	playlists := playlist.DisambiguateNames(fetched)
	s.selected = ""
	for i, p := range playlists {
		if l, ok := stored[p.URI]; ok {
			s.lists[PlaylistSource(p.Name)] = l
			if l.genres {
				playlists[i] = p.WithGenreFlag()
			}
		}
		if selectedURI != "" && p.URI == selectedURI {
			s.selected = p.Name
		}
	}

	s.playlists = playlists
	s.publish(notification.KindLibraryChanged, "playlists", len(playlists))
	return s.Playlists(), nil
}

// FetchPlaylistTracks fetches every track of the named playlist and replaces its list.
func (s *Store) FetchPlaylistTracks(ctx context.Context, name string) ([]track.Track, error) {
	idx := s.playlistIndex(name)
	if idx < 0 {
		return nil, errors.Wrapf(ErrUnknownPlaylist, "%q", name)
	}
	p := s.playlists[idx]

	items, err := s.client.AllPlaylistTracks(ctx, p.URI)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch tracks of playlist %q", name)
	}

	key := PlaylistSource(name)
	l := &list{tracks: s.filters.Apply(ctx, nil, items), fetched: len(items), uri: p.URI}
	s.lists[key] = l
	p.HasGenreAnnotations = false
	s.playlists[idx] = p
	s.publish(notification.KindLibraryChanged, key.String(), len(l.tracks))
	return copyTracks(l.tracks), nil
}

// SelectPlaylist makes name the selected playlist, fetching its tracks if not stored yet.
func (s *Store) SelectPlaylist(ctx context.Context, name string) ([]track.Track, error) {
	if s.playlistIndex(name) < 0 {
		return nil, errors.Wrapf(ErrUnknownPlaylist, "%q", name)
	}
	if l, ok := s.lists[PlaylistSource(name)]; ok {
		s.selected = name
		s.publish(notification.KindLibraryChanged, PlaylistSource(name).String(), len(l.tracks))
		return copyTracks(l.tracks), nil
	}

	tracks, err := s.FetchPlaylistTracks(ctx, name)
	if err != nil {
		return nil, err
	}
	s.selected = name
	return tracks, nil
}

// SearchTracks runs a track search. A fresh search (more=false or a changed
// query) replaces the results; more=true with the same query appends the next page.
func (s *Store) SearchTracks(ctx context.Context, query string, more bool) ([]track.Track, bool, error) {
	if query == "" {
		return nil, false, search.ErrEmptyQuery
	}

	current := s.list(Search())
	fresh := !more || query != s.searchQuery
	if fresh {
		current = &list{}
	}

	items, hasMore, err := s.client.SearchTracks(ctx, query, s.config.SearchPageSize, current.fetched)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to search tracks")
	}

	accepted := s.filters.Apply(ctx, current.tracks, items)
	if current.genres {
		if accepted, err = s.enricher.Enrich(ctx, accepted); err != nil {
			return nil, false, err
		}
	}

	s.lists[Search()] = &list{
		tracks:  append(copyTracks(current.tracks), accepted...),
		fetched: current.fetched + len(items),
		hasMore: hasMore,
		genres:  current.genres,
	}
	s.searchQuery = query
	zlog.Debug().Msgf("searched tracks: query=%s fresh=%t offset=%d received=%d", query, fresh, current.fetched, len(items))
	s.publish(notification.KindSearchChanged, Search().String(), len(s.lists[Search()].tracks))
	return copyTracks(accepted), hasMore, nil
}

// SearchArtists runs an artist search with the same replace/append rules as SearchTracks.
func (s *Store) SearchArtists(ctx context.Context, query string, more bool) ([]track.ArtistRef, bool, error) {
	if query == "" {
		return nil, false, search.ErrEmptyQuery
	}

	current := s.artists
	fresh := !more || query != current.query
	if fresh {
		current = artistResults{query: query}
	}

	items, hasMore, err := s.client.SearchArtists(ctx, query, s.config.SearchPageSize, current.fetched)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to search artists")
	}

	seen := make(map[string]bool, len(current.artists))
	for _, a := range current.artists {
		seen[a.URI] = true
	}
	accepted := make([]track.ArtistRef, 0, len(items))
	for _, a := range items {
		if a.URI == "" || seen[a.URI] {
			continue
		}
		seen[a.URI] = true
		accepted = append(accepted, a)
	}

	s.artists = artistResults{
		query:   query,
		artists: append(append([]track.ArtistRef(nil), current.artists...), accepted...),
		fetched: current.fetched + len(items),
		hasMore: hasMore,
	}
	s.publish(notification.KindSearchChanged, Search().String(), len(s.artists.artists))
	return append([]track.ArtistRef(nil), accepted...), hasMore, nil
}

// AnnotateGenres enriches the stored list for key with genres.
// The list is left as is when enrichment fails.
func (s *Store) AnnotateGenres(ctx context.Context, key SourceKey) ([]track.Track, error) {
	l, ok := s.lists[key]
	if !ok {
		return nil, errors.Wrapf(ErrNothingStored, "%s", key)
	}

	enriched, err := s.enricher.Enrich(ctx, l.tracks)
	if err != nil {
		return nil, err
	}

	s.lists[key] = &list{tracks: enriched, fetched: l.fetched, hasMore: l.hasMore, genres: true, uri: l.uri}
	if key.Kind() == SourcePlaylist {
		if idx := s.playlistIndex(key.Name()); idx >= 0 {
			s.playlists[idx] = s.playlists[idx].WithGenreFlag()
		}
	}
	s.publish(notification.KindGenresAnnotated, key.String(), len(enriched))
	return copyTracks(enriched), nil
}

// Tracks returns a copy of the stored list for key.
func (s *Store) Tracks(key SourceKey) []track.Track {
	if l, ok := s.lists[key]; ok {
		return copyTracks(l.tracks)
	}
	return []track.Track{}
}

// HasMore reports whether another page exists for key.
func (s *Store) HasMore(key SourceKey) bool {
	if l, ok := s.lists[key]; ok {
		return l.hasMore
	}
	return false
}

// HasGenres reports whether the list for key was genre annotated.
func (s *Store) HasGenres(key SourceKey) bool {
	if l, ok := s.lists[key]; ok {
		return l.genres
	}
	return false
}

// Playlists returns a copy of the fetched playlists.
func (s *Store) Playlists() []playlist.Playlist {
	return append([]playlist.Playlist{}, s.playlists...)
}

// SelectedPlaylist returns the selected playlist name, or "".
func (s *Store) SelectedPlaylist() string {
	return s.selected
}

// SearchQuery returns the query of the stored track search.
func (s *Store) SearchQuery() string {
	return s.searchQuery
}

// ArtistResults returns the stored artist search results.
func (s *Store) ArtistResults() ([]track.ArtistRef, bool) {
	return append([]track.ArtistRef{}, s.artists.artists...), s.artists.hasMore
}

// FindTrack looks up a stored track by URI across all lists.
func (s *Store) FindTrack(uri string) (track.Track, bool) {
	for _, key := range s.keys() {
		for _, t := range s.lists[key].tracks {
			if t.URI == uri {
				return t, true
			}
		}
	}
	return track.Track{}, false
}

// keys returns the stored keys, fixed sources first.
func (s *Store) keys() []SourceKey {
	keys := make([]SourceKey, 0, len(s.lists))
	for _, k := range []SourceKey{Liked(), Recent(), Search()} {
		if _, ok := s.lists[k]; ok {
			keys = append(keys, k)
		}
	}
	for _, p := range s.playlists {
		if _, ok := s.lists[PlaylistSource(p.Name)]; ok {
			keys = append(keys, PlaylistSource(p.Name))
		}
	}
	return keys
}

func (s *Store) list(key SourceKey) *list {
	if l, ok := s.lists[key]; ok {
		return l
	}
	return &list{}
}

func (s *Store) playlistIndex(name string) int {
	for i, p := range s.playlists {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) publish(kind notification.Kind, source string, count int) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(notification.Event{Kind: kind, Source: source, Count: count})
}

func copyTracks(tracks []track.Track) []track.Track {
	return append([]track.Track{}, tracks...)
}
