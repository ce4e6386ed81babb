package http

import (
	"net/http"

	stderrors "errors"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/ws"
	"watchparty/pkg/errors"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessionService ports.SessionService
	syncService    ports.SyncService
	broadcaster    *ws.Broadcaster
	metrics        *monitoring.PrometheusCollector
}

func NewSessionHandler(
	sessionService ports.SessionService,
	syncService ports.SyncService,
	broadcaster *ws.Broadcaster,
	metrics *monitoring.PrometheusCollector,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		syncService:    syncService,
		broadcaster:    broadcaster,
		metrics:        metrics,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1/sessions")
	api.Use(authMiddleware)
	{
		api.POST("", h.CreateSession)
		api.GET("", h.ListSessions)
		api.GET("/:id", h.GetSession)
		api.PUT("/:id/video", h.SetVideo)
	}
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"required,min=1,max=200"`
}

type SetVideoRequest struct {
	Provider string `json:"provider" binding:"required,max=50"`
	VideoID  string `json:"video_id" binding:"required,max=200"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), req.Title, userID)
	if err != nil {
		if stderrors.Is(err, domain.ErrUserNotFound) {
			c.Error(errors.NewUnauthorizedError("unknown user"))
			return
		}
		c.Error(errors.NewInternalError("failed to create session"))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSessionCreated()
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	session, err := h.sessionService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if stderrors.Is(err, domain.ErrSessionNotFound) {
			c.Error(errors.NewNotFoundError("session"))
			return
		}
		c.Error(errors.NewInternalError("failed to load session"))
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.ListActiveSessions(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalError("failed to list sessions"))
		return
	}

	if sessions == nil {
		sessions = []*domain.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SetVideo is the REST mirror of assigning a video before anyone connects.
// Live connections are notified the same way as over the wire protocol.
func (h *SessionHandler) SetVideo(c *gin.Context) {
	var req SetVideoRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	sessionID := domain.SessionID(c.Param("id"))
	session, err := h.syncService.SetVideo(c.Request.Context(), sessionID, userID, req.Provider, req.VideoID)
	if err != nil {
		switch {
		case stderrors.Is(err, domain.ErrSessionNotFound):
			c.Error(errors.NewNotFoundError("session"))
		case stderrors.Is(err, domain.ErrSessionInactive):
			c.Error(errors.NewSessionEndedError())
		case stderrors.Is(err, domain.ErrNotHost):
			c.Error(errors.NewForbiddenError("only the host may assign the video"))
		case stderrors.Is(err, domain.ErrUnknownProvider):
			c.Error(errors.NewInvalidInputError("unknown video provider"))
		case stderrors.Is(err, domain.ErrVideoNotResolved):
			c.Error(errors.NewUpstreamError("failed to resolve video metadata"))
		default:
			c.Error(errors.NewInternalError("failed to set video"))
		}
		return
	}

	h.broadcaster.Broadcast(sessionID, ws.TypeVideoUpdate, ws.NewVideoUpdatePayload(session.Video))
	h.broadcaster.Broadcast(sessionID, ws.TypeVideoSync, ws.NewVideoSyncPayload(&session.Playback))

	c.JSON(http.StatusOK, session)
}

func currentUserID(c *gin.Context) (domain.UserID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	userID, ok := val.(domain.UserID)
	return userID, ok
}
