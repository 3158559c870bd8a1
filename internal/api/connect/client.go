package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/seedbox/internal/app/session"
)

// Client calls the AssistantService.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption
}

// NewClient creates a client for the server at baseURL. A non-empty token
// is sent with every request.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	opts = append(opts, connect.WithInterceptors(NewTokenInterceptor(token)))
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		opts:       opts,
	}
}

// Call invokes a unary procedure, encoding req and decoding into resp.
func (c *Client) Call(ctx context.Context, procedure string, req, resp any) error {
	msg, err := toStruct(req)
	if err != nil {
		return err
	}
	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return fromStruct(res.Msg, resp)
}

// OpenSession opens a session and returns its ID.
func (c *Client) OpenSession(ctx context.Context) (string, error) {
	var resp OpenSessionResponse
	if err := c.Call(ctx, OpenSessionProcedure, Empty{}, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// CloseSession closes a session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.Call(ctx, CloseSessionProcedure, SessionRequest{SessionID: sessionID}, nil)
}

// LoadLibrary loads the library and returns the snapshot.
func (c *Client) LoadLibrary(ctx context.Context, sessionID string) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.Call(ctx, LoadLibraryProcedure, SessionRequest{SessionID: sessionID}, &snap)
	return snap, err
}

// Snapshot returns the session view model.
func (c *Client) Snapshot(ctx context.Context, sessionID string) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.Call(ctx, SnapshotProcedure, SessionRequest{SessionID: sessionID}, &snap)
	return snap, err
}

// Recommend requests recommendations.
func (c *Client) Recommend(ctx context.Context, sessionID string) ([]session.TrackView, error) {
	var resp TracksResponse
	err := c.Call(ctx, RecommendProcedure, SessionRequest{SessionID: sessionID}, &resp)
	return resp.Tracks, err
}

// Subscribe streams session messages to fn until the stream ends, ctx is
// canceled, or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, sessionID string, fn func(StreamMessage) error) error {
	msg, err := toStruct(SessionRequest{SessionID: sessionID})
	if err != nil {
		return err
	}
	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+SubscribeProcedure, c.opts...)
	stream, err := client.CallServerStream(ctx, connect.NewRequest(msg))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		var m StreamMessage
		if err := fromStruct(stream.Msg(), &m); err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && connect.CodeOf(err) != connect.CodeCanceled && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
