package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"samaquiz-service/internal/domain"
)

// ErrorBody is the envelope for every failed API call.
type ErrorBody struct {
	Status  int              `json:"status"`
	Message string           `json:"message"`
	Code    domain.ErrorCode `json:"code"`
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// toErrorBody maps service errors to the envelope. Anything unrecognized is a
// 500 and its details stay in the log.
func toErrorBody(err error) ErrorBody {
	var derr *domain.Error
	switch {
	case errors.As(err, &derr):
		return ErrorBody{Status: statusForKind(derr.Kind), Message: derr.Message, Code: derr.Code}
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		return ErrorBody{Status: http.StatusNotFound, Message: "Not found", Code: domain.CodeNone}
	}
	return ErrorBody{Status: http.StatusInternalServerError, Message: "Internal server error", Code: domain.CodeNone}
}

func writeError(c *gin.Context, err error) {
	body := toErrorBody(err)
	if body.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(body.Status, body)
}
