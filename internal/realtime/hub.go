package realtime

import (
	"context"
	"log/slog"
	"sync"

	"samaquiz-service/internal/domain"
	"samaquiz-service/internal/metrics"
)

// Hub is the connection registry. It tracks live sockets per session and
// fans session events out to them.
//
// Each session bucket has its own mutex; registration, removal and enqueueing
// for one session are serialized, while sessions never contend with each
// other beyond the map lookup. Socket writes happen outside any lock, on each
// client's writer goroutine.
type Hub struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	mu      sync.Mutex
	clients map[*Client]struct{}

	// lastVersion is the newest session version fanned out.
	lastVersion int64
	latest      *domain.QuizSession
	joined      int

	responseVersion  int64
	responseQuestion string
	responseCount    int
}

func NewHub() *Hub {
	return &Hub{buckets: make(map[string]*bucket)}
}

// lockBucket returns the locked bucket for a session, creating it if asked.
func (h *Hub) lockBucket(sessionID string, create bool) *bucket {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[sessionID]
	if !ok {
		if !create {
			return nil
		}
		b = &bucket{clients: make(map[*Client]struct{})}
		h.buckets[sessionID] = b
	}
	b.mu.Lock()
	return b
}

// Register adds a client to its session and queues the Ready message. State
// events are held back from the client until Replay sends its current phase;
// the session bucket keeps the newest snapshot seen meanwhile.
func (h *Hub) Register(c *Client, role Role, participantID string) {
	b := h.lockBucket(c.sessionID, true)
	defer b.mu.Unlock()

	c.role = role
	c.participantID = participantID
	c.attached = true
	c.pending = true
	b.clients[c] = struct{}{}
	metrics.ConnectionOpened(string(role))

	if ready, err := encode(readyMessage(role)); err == nil {
		c.enqueue(ready)
	}
}

// Replay queues the phase of session, or of the newest state the hub has
// fanned out since the client registered if that is fresher. Afterwards the
// client receives state events newer than the replayed version.
func (h *Hub) Replay(c *Client, session domain.QuizSession) {
	b := h.lockBucket(c.sessionID, false)
	if b == nil {
		return
	}
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; !ok || !c.pending {
		return
	}

	snapshot := session
	if b.latest != nil && b.latest.Version > snapshot.Version {
		snapshot = *b.latest
	}
	c.pending = false
	c.replayed = snapshot.Version
	if msg, ok := PhaseMessage(snapshot); ok {
		if payload, err := encode(msg); err == nil {
			c.enqueue(payload)
		}
	}
}

// Attach registers a client and replays session in one step. Callers loading
// the session themselves Register first and load afterwards.
func (h *Hub) Attach(c *Client, role Role, participantID string, session domain.QuizSession) {
	h.Register(c, role, participantID)
	h.Replay(c, session)
}

// Unregister removes a client. It is idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[c.sessionID]
	if !ok {
		c.Close()
		return
	}
	b.mu.Lock()
	b.removeLocked(c)
	if len(b.clients) == 0 {
		delete(h.buckets, c.sessionID)
	}
	b.mu.Unlock()
	c.Close()
}

// CountParticipants returns the number of live participant sockets.
func (h *Hub) CountParticipants(sessionID string) int {
	b := h.lockBucket(sessionID, false)
	if b == nil {
		return 0
	}
	defer b.mu.Unlock()
	count := 0
	for c := range b.clients {
		if c.role == RoleParticipant {
			count++
		}
	}
	return count
}

// Publish lets the hub act as the in-process event publisher.
func (h *Hub) Publish(_ context.Context, event domain.SessionEvent) error {
	h.Dispatch(event)
	return nil
}

// Dispatch fans an event out to the session's sockets. Events older than what
// the session already saw are dropped so sockets never observe state going
// backwards.
func (h *Hub) Dispatch(event domain.SessionEvent) {
	b := h.lockBucket(event.SessionID, false)
	if b == nil {
		return
	}
	defer b.mu.Unlock()

	if !b.acceptLocked(event) {
		slog.Debug("dropping stale session event", "session_id", event.SessionID, "kind", event.Kind, "version", event.Version)
		return
	}
	msg, ok := MessageForEvent(event)
	if !ok {
		return
	}
	payload, err := encode(msg)
	if err != nil {
		slog.Error("encode ws message", "type", msg.Type, "error", err)
		return
	}

	for c := range b.clients {
		if event.Kind.IsState() && (c.pending || event.Version <= c.replayed) {
			continue
		}
		if !c.enqueue(payload) {
			b.removeLocked(c)
			c.Close()
			metrics.ConnectionDropped()
			slog.Warn("dropping slow websocket", "session_id", event.SessionID, "role", c.role)
		}
	}
	metrics.MessageBroadcast(string(msg.Type))
}

func (b *bucket) acceptLocked(event domain.SessionEvent) bool {
	switch {
	case event.Kind == domain.EventJoined:
		if event.Count <= b.joined {
			return false
		}
		b.joined = event.Count
	case event.Kind == domain.EventResponse:
		if event.Version < b.lastVersion {
			return false
		}
		if event.Version == b.responseVersion && event.QuestionID == b.responseQuestion && event.Count <= b.responseCount {
			return false
		}
		b.responseVersion = event.Version
		b.responseQuestion = event.QuestionID
		b.responseCount = event.Count
	default:
		if event.Version < b.lastVersion {
			return false
		}
		b.lastVersion = event.Version
		if event.Session != nil && (b.latest == nil || event.Session.Version >= b.latest.Version) {
			b.latest = event.Session
		}
	}
	return true
}

func (b *bucket) removeLocked(c *Client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	if c.attached {
		c.attached = false
		metrics.ConnectionClosed(string(c.role))
	}
}
