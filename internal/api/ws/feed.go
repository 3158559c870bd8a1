// Package ws serves session change events over websocket.
package ws

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/session"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	bufferSize   = 64
)

// Message is one feed message. The first carries the snapshot.
type Message struct {
	Event    *notification.Event `json:"event,omitempty"`
	Snapshot *session.Snapshot   `json:"snapshot,omitempty"`
}

// Feed streams a session's events to websocket clients.
// Clients connect with ?session_id=<id> and, when a token is set, either the
// X-Api-Token header or ?token=.
type Feed struct {
	registry *session.Registry
	token    string
	upgrader websocket.Upgrader
}

// NewFeed creates a feed over the sessions in registry.
func NewFeed(registry *session.Registry, token string) *Feed {
	return &Feed{
		registry: registry,
		token:    token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP implements http.Handler.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		http.Error(w, "missing or invalid API token", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	m, err := f.registry.Get(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	events := notification.NewChannelStream(bufferSize)
	hub := m.Hub()
	subscriptionID, err := hub.Subscribe(events)
	if err != nil {
		http.Error(w, "session is closed", http.StatusGone)
		return
	}
	defer hub.Unsubscribe(subscriptionID)

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Error().Msgf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	snap := m.Snapshot()
	if err := write(conn, Message{Snapshot: &snap}); err != nil {
		return
	}

	// Reads only drain control frames and notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case event := <-events.Events():
			if err := write(conn, Message{Event: &event}); err != nil {
				zlog.Debug().Msgf("websocket write failed: session_id=%s error=%v", m.ID(), err)
				return
			}
			if event.Kind == notification.KindSessionClosed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeTimeout))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (f *Feed) authorized(r *http.Request) bool {
	if f.token == "" {
		return true
	}
	token := r.Header.Get("X-Api-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(f.token)) == 1
}

func write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
