// Package library provides the Library Store: the per-session lists of tracks
// fetched from the user's library, keyed by source.
package library

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// SourceKind enumerates the fixed sources plus the dynamic playlist source.
type SourceKind int

const (
	SourceLiked SourceKind = iota
	SourceRecent
	SourceSearch
	SourcePlaylist
)

const playlistPrefix = "playlist:"

// ErrUnknownSource is returned for a source key that does not parse.
var ErrUnknownSource = errors.New("unknown library source")

// SourceKey identifies a stored track list. Playlist keys carry the
// disambiguated playlist name.
type SourceKey struct {
	kind SourceKind
	name string
}

// Liked is the liked songs source.
func Liked() SourceKey { return SourceKey{kind: SourceLiked} }

// Recent is the recently played source.
func Recent() SourceKey { return SourceKey{kind: SourceRecent} }

// Search is the track search results source.
func Search() SourceKey { return SourceKey{kind: SourceSearch} }

// PlaylistSource is the source for the playlist with the given display name.
func PlaylistSource(name string) SourceKey {
	return SourceKey{kind: SourcePlaylist, name: name}
}

// Kind returns the source kind.
func (k SourceKey) Kind() SourceKind { return k.kind }

// Name returns the playlist name for playlist sources and "" otherwise.
func (k SourceKey) Name() string { return k.name }

// String renders the key as "liked", "recent", "search" or "playlist:<name>".
func (k SourceKey) String() string {
	switch k.kind {
	case SourceLiked:
		return "liked"
	case SourceRecent:
		return "recent"
	case SourceSearch:
		return "search"
	default:
		return playlistPrefix + k.name
	}
}

// ParseSourceKey parses the String form of a key.
func ParseSourceKey(s string) (SourceKey, error) {
	switch s {
	case "liked":
		return Liked(), nil
	case "recent":
		return Recent(), nil
	case "search":
		return Search(), nil
	}
	if name, ok := strings.CutPrefix(s, playlistPrefix); ok && name != "" {
		return PlaylistSource(name), nil
	}
	return SourceKey{}, errors.Wrapf(ErrUnknownSource, "%q", s)
}
