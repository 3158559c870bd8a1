// Package notification provides the hub for broadcasting session change events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Kind identifies what changed.
type Kind string

const (
	KindLibraryChanged         Kind = "library_changed"
	KindGenresAnnotated        Kind = "genres_annotated"
	KindSearchChanged          Kind = "search_changed"
	KindSeedsChanged           Kind = "seeds_changed"
	KindParametersChanged      Kind = "parameters_changed"
	KindRecommendationsChanged Kind = "recommendations_changed"
	KindPlaylistExported       Kind = "playlist_exported"
	KindSessionClosed          Kind = "session_closed"
)

// Event describes a single state change. Source names the library source key
// for library events and is empty otherwise.
type Event struct {
	SequenceNo uint64    `json:"sequence_no"`
	Kind       Kind      `json:"kind"`
	Source     string    `json:"source,omitempty"`
	Count      int       `json:"count"`
	Time       time.Time `json:"time"`
}

// Publisher receives change events.
type Publisher interface {
	Publish(Event)
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Event) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// sendTimeout bounds how long a slow subscriber can hold up a publish.
const sendTimeout = 500 * time.Millisecond

// Hub manages subscriptions and broadcasting for one session.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	closed        bool
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]*subscription),
	}
}

// ErrHubClosed is returned by Subscribe once the hub has been closed.
var ErrHubClosed = errors.New("notification hub is closed")

// Subscribe adds a new subscription and returns the subscription ID.
func (h *Hub) Subscribe(stream Stream) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrHubClosed
	}
	id := uuid.New().String()
	h.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id, nil
}

// Unsubscribe removes a subscription.
func (h *Hub) Unsubscribe(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscriptions, subscriptionID)
}

// Publish stamps the event with the next sequence number and sends it to all subscribers.
// Sends run in parallel; a subscriber that does not accept within sendTimeout misses the event.
func (h *Hub) Publish(event Event) {
	h.sequenceNoMu.Lock()
	h.sequenceNo++
	event.SequenceNo = h.sequenceNo
	h.sequenceNoMu.Unlock()

	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	h.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(event)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification send failed: subscription=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification send timed out: subscription=%s", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close removes all subscriptions and rejects later ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subscriptions = make(map[string]*subscription)
}

// ErrStreamFull is returned by ChannelStream when the subscriber is not keeping up.
var ErrStreamFull = errors.New("notification stream buffer is full")

// ChannelStream is a buffered Stream read by transport goroutines.
type ChannelStream struct {
	ch chan Event
}

// NewChannelStream creates a stream buffering up to size events.
func NewChannelStream(size int) *ChannelStream {
	return &ChannelStream{ch: make(chan Event, size)}
}

// Send implements Stream without blocking.
func (s *ChannelStream) Send(event Event) error {
	select {
	case s.ch <- event:
		return nil
	default:
		return ErrStreamFull
	}
}

// Events returns the receive side of the stream.
func (s *ChannelStream) Events() <-chan Event {
	return s.ch
}
