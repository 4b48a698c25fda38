package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"samaquiz-service/internal/app"
	"samaquiz-service/internal/auth"
	"samaquiz-service/internal/metrics"
	"samaquiz-service/internal/realtime"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	WS             WSOptions
}

// NewRouter wires the REST, websocket, health and metrics endpoints.
func NewRouter(service *app.QuizService, hub *realtime.Hub, verifier *auth.Verifier, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), metrics.Middleware(), corsMiddleware(opts.AllowedOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessions := NewSessionHandler(service)
	ws := NewWSHandler(service, hub, verifier, opts.WS)

	api := router.Group("/api")
	api.GET("/ws/:id", ws.ServeWS)

	authed := api.Group("", Authenticate(verifier))
	authed.POST("/quiz_sessions/:id/sessions", sessions.CreateSession)
	authed.GET("/quiz_sessions/:id", sessions.GetSession)
	authed.PATCH("/quiz_sessions/:id", sessions.UpdateSession)
	authed.POST("/quiz_sessions/:id/join", sessions.Join)
	authed.GET("/quiz_sessions/:id/queries/leaders", sessions.Leaders)
	authed.GET("/quiz_sessions/:id/queries/participant_count", sessions.ParticipantCount)
	authed.GET("/participants/:id", sessions.GetParticipant)
	authed.POST("/quiz_responses", sessions.SubmitResponse)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
