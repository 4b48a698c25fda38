package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"samaquiz-service/internal/app"
	"samaquiz-service/internal/domain"
	"samaquiz-service/internal/metrics"
)

// SessionHandler serves the quiz session REST endpoints.
type SessionHandler struct {
	service *app.QuizService
}

func NewSessionHandler(service *app.QuizService) *SessionHandler {
	return &SessionHandler{service: service}
}

type leadersResponse struct {
	Leaders []domain.LeaderEntry `json:"leaders"`
}

func init() {
	binding.EnableDecoderDisallowUnknownFields = true
}

// decodeBody binds a JSON body; unknown fields are rejected.
func decodeBody(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return domain.InvalidForm("Failed to validate request")
	}
	return nil
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var in app.CreateSessionInput
	if err := decodeBody(c, &in); err != nil {
		writeError(c, err)
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), c.Param("id"), in, requesterFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.service.GetSession(c.Request.Context(), c.Param("id"), requesterFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) UpdateSession(c *gin.Context) {
	var patch app.SessionPatch
	if err := decodeBody(c, &patch); err != nil {
		writeError(c, err)
		return
	}
	session, err := h.service.UpdateSession(c.Request.Context(), c.Param("id"), patch, requesterFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Join(c *gin.Context) {
	var in app.JoinInput
	if err := decodeBody(c, &in); err != nil {
		writeError(c, err)
		return
	}
	result, err := h.service.Join(c.Request.Context(), c.Param("id"), in, requesterFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *SessionHandler) GetParticipant(c *gin.Context) {
	participant, err := h.service.Participant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) SubmitResponse(c *gin.Context) {
	var in app.ResponseInput
	if err := decodeBody(c, &in); err != nil {
		writeError(c, err)
		return
	}
	result, err := h.service.SubmitResponse(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.ResponseScored(result.IsCorrect)
	c.JSON(http.StatusCreated, result)
}

func (h *SessionHandler) Leaders(c *gin.Context) {
	leaders, err := h.service.Leaders(c.Request.Context(), c.Param("id"), requesterFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, leadersResponse{Leaders: leaders})
}

func (h *SessionHandler) ParticipantCount(c *gin.Context) {
	count, err := h.service.ParticipantCount(c.Request.Context(), c.Param("id"), requesterFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}
