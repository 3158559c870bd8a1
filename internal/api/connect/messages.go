package connect

import (
	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/app/session"
)

// Request and response bodies. They travel as google.protobuf.Struct.

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
}

type SelectPlaylistRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

type AnnotateGenresRequest struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
}

// SearchRequest runs a search. A nil Filters reuses the stored form.
type SearchRequest struct {
	SessionID string          `json:"session_id"`
	Filters   *search.Filters `json:"filters,omitempty"`
	More      bool            `json:"more"`
}

type SearchResponse struct {
	Query   string               `json:"query"`
	Type    search.ResultType    `json:"type"`
	Tracks  []session.TrackView  `json:"tracks"`
	Artists []session.ArtistView `json:"artists"`
	HasMore bool                 `json:"has_more"`
}

type StageGenreRequest struct {
	SessionID string `json:"session_id"`
	Genre     string `json:"genre"`
}

type SeedTrackRequest struct {
	SessionID string `json:"session_id"`
	URI       string `json:"uri"`
	Source    string `json:"source,omitempty"`
}

type SeedArtistRequest struct {
	SessionID string `json:"session_id"`
	URI       string `json:"uri"`
	Name      string `json:"name,omitempty"`
}

type SeedGenreRequest struct {
	SessionID string `json:"session_id"`
	Genre     string `json:"genre"`
}

// SeedResponse reports whether the seed set changed.
type SeedResponse struct {
	Changed bool             `json:"changed"`
	Seeds   session.SeedView `json:"seeds"`
}

// SetParameterRequest updates one parameter. Nil fields are left as they are.
type SetParameterRequest struct {
	SessionID string `json:"session_id"`
	Parameter string `json:"parameter"`
	Value     *int   `json:"value,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

type SetRecommendationCountRequest struct {
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

// TracksResponse carries a list of tracks.
type TracksResponse struct {
	Tracks  []session.TrackView `json:"tracks"`
	HasMore bool                `json:"has_more"`
}

// PlayRequest plays URIs, or the recommendations when URIs is empty.
type PlayRequest struct {
	SessionID string   `json:"session_id"`
	URIs      []string `json:"uris,omitempty"`
}

type QueueRequest struct {
	SessionID string `json:"session_id"`
	URI       string `json:"uri"`
}

// PlaybackResponse reports whether an active device took the request.
type PlaybackResponse struct {
	Played bool `json:"played"`
}

type ExportRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

// StreamMessage is one Subscribe message. The first carries the snapshot.
type StreamMessage struct {
	Event    *notification.Event `json:"event,omitempty"`
	Snapshot *session.Snapshot   `json:"snapshot,omitempty"`
}

type Empty struct{}
