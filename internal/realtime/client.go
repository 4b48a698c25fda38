package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnOptions tunes the websocket keepalive.
type ConnOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// Client is one socket attached to a session. Outbound messages are queued on
// a bounded channel and written by a single writer goroutine.
type Client struct {
	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Guarded by the session bucket lock.
	role          Role
	participantID string
	replayed      int64
	pending       bool
	attached      bool
}

func NewClient(sessionID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		sessionID: sessionID,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
}

func (c *Client) SessionID() string { return c.sessionID }

// Messages exposes queued outbound payloads.
func (c *Client) Messages() <-chan []byte { return c.send }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close stops the client. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks. It reports false when the client is closed or its
// buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Serve pumps messages between the client and conn until either side stops.
func (c *Client) Serve(conn *websocket.Conn, opts ConnOptions) {
	opts = opts.withDefaults()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(conn, opts)
	}()

	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	for {
		// Sockets only speak after Auth to keep the connection alive.
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read error", "session_id", c.sessionID, "error", err)
			}
			break
		}
	}
	c.Close()
	<-writerDone
}

func (c *Client) writeLoop(conn *websocket.Conn, opts ConnOptions) {
	ticker := time.NewTicker(opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Close()
		conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("ws write error", "session_id", c.sessionID, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.WriteWait))
			return
		}
	}
}
