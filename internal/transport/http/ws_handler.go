package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"samaquiz-service/internal/app"
	"samaquiz-service/internal/auth"
	"samaquiz-service/internal/domain"
	"samaquiz-service/internal/realtime"
)

// WSOptions tunes websocket handling.
type WSOptions struct {
	Conn        realtime.ConnOptions
	AuthTimeout time.Duration
	SendBuffer  int
}

type WSHandler struct {
	service  *app.QuizService
	hub      *realtime.Hub
	verifier *auth.Verifier
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *realtime.Hub, verifier *auth.Verifier, opts WSOptions) *WSHandler {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	return &WSHandler{
		service:  service,
		hub:      hub,
		verifier: verifier,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request, waits for the Auth message and attaches the
// socket to its session. Unknown sessions and malformed Auth close the socket.
func (h *WSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Param("id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	ctx := c.Request.Context()

	session, err := h.service.Session(ctx, sessionID)
	if err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, "unknown session")
		return
	}

	role, participantID, ok := h.authenticate(c, conn, session)
	if !ok {
		closeConn(conn, websocket.ClosePolicyViolation, "expected Auth message")
		return
	}

	// Register before reloading: a change published after the reload is then
	// either held for the replay or already part of the reloaded session.
	client := realtime.NewClient(session.ID, h.opts.SendBuffer)
	h.hub.Register(client, role, participantID)
	if fresh, err := h.service.Session(ctx, sessionID); err == nil {
		session = fresh
	}
	h.hub.Replay(client, session)
	slog.Info("websocket attached", "session_id", session.ID, "role", role, "participant_id", participantID)

	client.Serve(conn, h.opts.Conn)
	h.hub.Unregister(client)
	slog.Info("websocket detached", "session_id", session.ID, "role", role)
}

// authenticate reads the first message. A missing or unverifiable token
// yields Participant access; only the session owner's token grants Host.
func (h *WSHandler) authenticate(c *gin.Context, conn *websocket.Conn, session domain.QuizSession) (realtime.Role, string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.AuthTimeout))
	var msg realtime.ClientMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != realtime.MessageAuth {
		return "", "", false
	}
	_ = conn.SetReadDeadline(time.Time{})

	role := realtime.RoleParticipant
	if msg.Value != nil && *msg.Value != "" {
		requester, err := h.verifier.Parse(*msg.Value)
		if err == nil && requester.UserID == session.UserID {
			role = realtime.RoleHost
		}
	}

	var participantID string
	if role == realtime.RoleParticipant && msg.ParticipantID != "" {
		participant, err := h.service.Participant(c.Request.Context(), msg.ParticipantID)
		if err == nil && participant.SessionID == session.ID {
			participantID = participant.ID
		}
	}
	return role, participantID, true
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	conn.Close()
}
