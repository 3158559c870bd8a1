// Package connect provides the Connect RPC surface of the assistant.
package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/recommend"
	"github.com/osa030/seedbox/internal/app/session"
	"github.com/osa030/seedbox/internal/domain/track"
)

// ServiceName is the fully-qualified service name.
const ServiceName = "seedbox.v1.AssistantService"

// Procedure paths.
const (
	OpenSessionProcedure            = "/" + ServiceName + "/OpenSession"
	CloseSessionProcedure           = "/" + ServiceName + "/CloseSession"
	LoadLibraryProcedure            = "/" + ServiceName + "/LoadLibrary"
	MoreLikedProcedure              = "/" + ServiceName + "/MoreLiked"
	SelectPlaylistProcedure         = "/" + ServiceName + "/SelectPlaylist"
	AnnotateGenresProcedure         = "/" + ServiceName + "/AnnotateGenres"
	SearchProcedure                 = "/" + ServiceName + "/Search"
	StageGenreProcedure             = "/" + ServiceName + "/StageGenre"
	AddSeedTrackProcedure           = "/" + ServiceName + "/AddSeedTrack"
	RemoveSeedTrackProcedure        = "/" + ServiceName + "/RemoveSeedTrack"
	AddSeedArtistProcedure          = "/" + ServiceName + "/AddSeedArtist"
	RemoveSeedArtistProcedure       = "/" + ServiceName + "/RemoveSeedArtist"
	AddSeedGenreProcedure           = "/" + ServiceName + "/AddSeedGenre"
	RemoveSeedGenreProcedure        = "/" + ServiceName + "/RemoveSeedGenre"
	ClearSeedsProcedure             = "/" + ServiceName + "/ClearSeeds"
	SetParameterProcedure           = "/" + ServiceName + "/SetParameter"
	SetRecommendationCountProcedure = "/" + ServiceName + "/SetRecommendationCount"
	RecommendProcedure              = "/" + ServiceName + "/Recommend"
	PlayProcedure                   = "/" + ServiceName + "/Play"
	QueueProcedure                  = "/" + ServiceName + "/Queue"
	ExportProcedure                 = "/" + ServiceName + "/Export"
	SnapshotProcedure               = "/" + ServiceName + "/Snapshot"
	SubscribeProcedure              = "/" + ServiceName + "/Subscribe"
)

// subscribeBuffer is the per-subscriber event buffer.
const subscribeBuffer = 64

// AssistantService implements the AssistantService RPC.
type AssistantService struct {
	registry *session.Registry
}

// NewAssistantService creates a new AssistantService.
func NewAssistantService(registry *session.Registry) *AssistantService {
	return &AssistantService{registry: registry}
}

// Handler returns the service path prefix and its HTTP handler.
func (s *AssistantService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	routes := map[string]unaryFunc{
		OpenSessionProcedure:            s.openSession,
		CloseSessionProcedure:           s.closeSession,
		LoadLibraryProcedure:            withSession(s, loadLibrary),
		MoreLikedProcedure:              withSession(s, moreLiked),
		SelectPlaylistProcedure:         withSession(s, selectPlaylist),
		AnnotateGenresProcedure:         withSession(s, annotateGenres),
		SearchProcedure:                 withSession(s, runSearch),
		StageGenreProcedure:             withSession(s, stageGenre),
		AddSeedTrackProcedure:           withSession(s, addSeedTrack),
		RemoveSeedTrackProcedure:        withSession(s, removeSeedTrack),
		AddSeedArtistProcedure:          withSession(s, addSeedArtist),
		RemoveSeedArtistProcedure:       withSession(s, removeSeedArtist),
		AddSeedGenreProcedure:           withSession(s, addSeedGenre),
		RemoveSeedGenreProcedure:        withSession(s, removeSeedGenre),
		ClearSeedsProcedure:             withSession(s, clearSeeds),
		SetParameterProcedure:           withSession(s, setParameter),
		SetRecommendationCountProcedure: withSession(s, setRecommendationCount),
		RecommendProcedure:              withSession(s, recommendTracks),
		PlayProcedure:                   withSession(s, play),
		QueueProcedure:                  withSession(s, queue),
		ExportProcedure:                 withSession(s, export),
		SnapshotProcedure:               withSession(s, snapshot),
	}
	for procedure, fn := range routes {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn.handle, opts...))
	}
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, s.subscribe, opts...))
	return "/" + ServiceName + "/", mux
}

// unaryFunc handles a decoded Struct request and returns a JSON-tagged response.
type unaryFunc func(ctx context.Context, msg *structpb.Struct) (any, error)

func (fn unaryFunc) handle(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	result, err := fn(ctx, req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	msg, err := toStruct(result)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// sessionCarrier is implemented by every request addressed to a session.
type sessionCarrier interface {
	sessionID() string
}

func (r SessionRequest) sessionID() string                { return r.SessionID }
func (r SelectPlaylistRequest) sessionID() string         { return r.SessionID }
func (r AnnotateGenresRequest) sessionID() string         { return r.SessionID }
func (r SearchRequest) sessionID() string                 { return r.SessionID }
func (r StageGenreRequest) sessionID() string             { return r.SessionID }
func (r SeedTrackRequest) sessionID() string              { return r.SessionID }
func (r SeedArtistRequest) sessionID() string             { return r.SessionID }
func (r SeedGenreRequest) sessionID() string              { return r.SessionID }
func (r SetParameterRequest) sessionID() string           { return r.SessionID }
func (r SetRecommendationCountRequest) sessionID() string { return r.SessionID }
func (r PlayRequest) sessionID() string                   { return r.SessionID }
func (r QueueRequest) sessionID() string                  { return r.SessionID }
func (r ExportRequest) sessionID() string                 { return r.SessionID }

// withSession decodes Req, resolves its session and calls fn.
func withSession[Req sessionCarrier](s *AssistantService, fn func(context.Context, *session.Manager, Req) (any, error)) unaryFunc {
	return func(ctx context.Context, msg *structpb.Struct) (any, error) {
		var req Req
		if err := fromStruct(msg, &req); err != nil {
			return nil, errors.Mark(err, errBadRequest)
		}
		m, err := s.registry.Get(req.sessionID())
		if err != nil {
			return nil, err
		}
		return fn(ctx, m, req)
	}
}

func (s *AssistantService) openSession(_ context.Context, _ *structpb.Struct) (any, error) {
	m := s.registry.Open()
	return OpenSessionResponse{SessionID: m.ID()}, nil
}

func (s *AssistantService) closeSession(_ context.Context, msg *structpb.Struct) (any, error) {
	var req SessionRequest
	if err := fromStruct(msg, &req); err != nil {
		return nil, errors.Mark(err, errBadRequest)
	}
	if err := s.registry.Close(req.SessionID); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func loadLibrary(ctx context.Context, m *session.Manager, _ SessionRequest) (any, error) {
	return m.LoadLibrary(ctx)
}

func moreLiked(ctx context.Context, m *session.Manager, _ SessionRequest) (any, error) {
	tracks, hasMore, err := m.MoreLiked(ctx)
	if err != nil {
		return nil, err
	}
	return TracksResponse{Tracks: m.TrackViews(tracks), HasMore: hasMore}, nil
}

func selectPlaylist(ctx context.Context, m *session.Manager, req SelectPlaylistRequest) (any, error) {
	tracks, err := m.SelectPlaylist(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return TracksResponse{Tracks: m.TrackViews(tracks)}, nil
}

func annotateGenres(ctx context.Context, m *session.Manager, req AnnotateGenresRequest) (any, error) {
	tracks, err := m.AnnotateGenres(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	return TracksResponse{Tracks: m.TrackViews(tracks)}, nil
}

func runSearch(ctx context.Context, m *session.Manager, req SearchRequest) (any, error) {
	if req.Filters != nil {
		if _, err := m.SetSearch(*req.Filters); err != nil {
			return nil, err
		}
	}
	result, err := m.Search(ctx, req.More)
	if err != nil {
		return nil, err
	}
	return SearchResponse{
		Query:   result.Query,
		Type:    result.Type,
		Tracks:  m.TrackViews(result.Tracks),
		Artists: session.ArtistViews(result.Artists),
		HasMore: result.HasMore,
	}, nil
}

func stageGenre(_ context.Context, m *session.Manager, req StageGenreRequest) (any, error) {
	return m.StageGenre(req.Genre)
}

func addSeedTrack(_ context.Context, m *session.Manager, req SeedTrackRequest) (any, error) {
	changed, err := m.AddSeedTrack(req.URI, req.Source)
	if err != nil {
		return nil, err
	}
	return SeedResponse{Changed: changed, Seeds: m.Seeds()}, nil
}

func removeSeedTrack(_ context.Context, m *session.Manager, req SeedTrackRequest) (any, error) {
	return seedResponse(m)(m.RemoveSeedTrack(req.URI))
}

func addSeedArtist(_ context.Context, m *session.Manager, req SeedArtistRequest) (any, error) {
	changed, err := m.AddSeedArtist(track.ArtistRef{URI: req.URI, Name: req.Name})
	if err != nil {
		return nil, err
	}
	return SeedResponse{Changed: changed, Seeds: m.Seeds()}, nil
}

func removeSeedArtist(_ context.Context, m *session.Manager, req SeedArtistRequest) (any, error) {
	return seedResponse(m)(m.RemoveSeedArtist(req.URI))
}

func addSeedGenre(_ context.Context, m *session.Manager, req SeedGenreRequest) (any, error) {
	return seedResponse(m)(m.AddSeedGenre(req.Genre))
}

func removeSeedGenre(_ context.Context, m *session.Manager, req SeedGenreRequest) (any, error) {
	return seedResponse(m)(m.RemoveSeedGenre(req.Genre))
}

func clearSeeds(_ context.Context, m *session.Manager, _ SessionRequest) (any, error) {
	return seedResponse(m)(true, m.ClearSeeds())
}

// seedResponse wraps the result of a seed edit with the updated seed view.
func seedResponse(m *session.Manager) func(bool, error) (any, error) {
	return func(changed bool, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return SeedResponse{Changed: changed, Seeds: m.Seeds()}, nil
	}
}

func setParameter(_ context.Context, m *session.Manager, req SetParameterRequest) (any, error) {
	p, err := recommend.ParseParameter(req.Parameter)
	if err != nil {
		return nil, errors.Mark(err, errBadRequest)
	}
	if req.Value != nil {
		if err := m.SetParameter(p, *req.Value); err != nil {
			return nil, err
		}
	}
	if req.Enabled != nil {
		if err := m.EnableParameter(p, *req.Enabled); err != nil {
			return nil, err
		}
	}
	return m.Snapshot().Parameters, nil
}

func setRecommendationCount(_ context.Context, m *session.Manager, req SetRecommendationCountRequest) (any, error) {
	if err := m.SetRecommendationCount(req.Count); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func recommendTracks(ctx context.Context, m *session.Manager, _ SessionRequest) (any, error) {
	tracks, err := m.Recommend(ctx)
	if err != nil {
		return nil, err
	}
	return TracksResponse{Tracks: m.TrackViews(tracks)}, nil
}

func play(ctx context.Context, m *session.Manager, req PlayRequest) (any, error) {
	var played bool
	var err error
	if len(req.URIs) == 0 {
		played, err = m.PlayRecommendations(ctx)
	} else {
		played, err = m.PlayTracks(ctx, req.URIs)
	}
	if err != nil {
		return nil, err
	}
	return PlaybackResponse{Played: played}, nil
}

func queue(ctx context.Context, m *session.Manager, req QueueRequest) (any, error) {
	queued, err := m.Queue(ctx, req.URI)
	if err != nil {
		return nil, err
	}
	return PlaybackResponse{Played: queued}, nil
}

func export(ctx context.Context, m *session.Manager, req ExportRequest) (any, error) {
	return m.ExportPlaylist(ctx, req.Name)
}

func snapshot(_ context.Context, m *session.Manager, _ SessionRequest) (any, error) {
	return m.Snapshot(), nil
}

// subscribe streams the session snapshot followed by its change events until
// the client disconnects or the session closes.
func (s *AssistantService) subscribe(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	var body SessionRequest
	if err := fromStruct(req.Msg, &body); err != nil {
		return toConnectError(errors.Mark(err, errBadRequest))
	}
	m, err := s.registry.Get(body.SessionID)
	if err != nil {
		return toConnectError(err)
	}

	events := notification.NewChannelStream(subscribeBuffer)
	hub := m.Hub()
	subscriptionID, err := hub.Subscribe(events)
	if err != nil {
		return toConnectError(errors.Mark(errors.Wrapf(err, "%s", m.ID()), session.ErrSessionClosed))
	}
	defer hub.Unsubscribe(subscriptionID)

	snap := m.Snapshot()
	if err := send(stream, StreamMessage{Snapshot: &snap}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events.Events():
			if err := send(stream, StreamMessage{Event: &event}); err != nil {
				zlog.Debug().Msgf("subscriber gone: session_id=%s error=%v", m.ID(), err)
				return nil
			}
			if event.Kind == notification.KindSessionClosed {
				return nil
			}
		}
	}
}

func send(stream *connect.ServerStream[structpb.Struct], msg StreamMessage) error {
	body, err := toStruct(msg)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	return stream.Send(body)
}

// procedureName returns the method part of a procedure path.
func procedureName(procedure string) string {
	return procedure[strings.LastIndex(procedure, "/")+1:]
}
