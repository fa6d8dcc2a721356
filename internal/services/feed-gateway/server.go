package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pulseboard/feedsync/internal/domain/notification"
	"github.com/pulseboard/feedsync/internal/feed"
	"go.uber.org/zap"
)

// Server is the HTTP surface UI consumers talk to: session lifecycle, feed
// snapshots and the two read-state mutators. Failures inside the engine are
// logged, not surfaced as hard errors; the feed degrades to stale data.
type Server struct {
	log      *zap.Logger
	sessions *feed.Sessions
	router   *gin.Engine
}

func NewServer(log *zap.Logger, sessions *feed.Sessions, jwtSecret string) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		log:      log.With(zap.String("component", "feed-gateway.http")),
		sessions: sessions,
		router:   router,
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "feed-gateway"})
	})

	v1 := router.Group("/v1")
	v1.Use(Auth(jwtSecret, s.log))
	{
		v1.POST("/session", s.handleStartSession)
		v1.DELETE("/session", s.handleStopSession)

		v1.GET("/feed", s.handleSnapshot)
		v1.POST("/feed/refresh", s.handleRefresh)

		v1.POST("/notifications/:id/read", s.handleMarkAsRead)
		v1.POST("/notifications/read-all", s.handleMarkAllAsRead)
	}

	return s
}

// Handler exposes the router for the HTTP server (wrapped with otelhttp in
// the binary's wiring).
func (s *Server) Handler() http.Handler { return s.router }

type startSessionRequest struct {
	Alerts bool `json:"alerts"`
}

type feedResponse struct {
	SessionID   string                       `json:"session_id,omitempty"`
	Items       []*notification.Notification `json:"items"`
	UnreadCount int                          `json:"unread_count"`
	Loading     bool                         `json:"loading"`
}

func snapshot(sess *feed.Session) feedResponse {
	items, unread, loading := sess.Engine.Snapshot()
	if items == nil {
		items = []*notification.Notification{}
	}
	return feedResponse{
		Items:       items,
		UnreadCount: unread,
		Loading:     loading,
	}
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}

	uid := recipientID(c)
	sess, err := s.sessions.Start(c.Request.Context(), uid, req.Alerts)
	if err != nil {
		// The session is open with an empty window; refresh re-triggers
		// the load.
		s.log.Warn("initial load failed", zap.Int64("recipient_id", uid), zap.Error(err))
	}

	resp := snapshot(sess)
	resp.SessionID = sess.ID
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStopSession(c *gin.Context) {
	if !s.sessions.Stop(recipientID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) session(c *gin.Context) *feed.Session {
	sess := s.sessions.Get(recipientID(c))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return nil
	}
	return sess
}

func (s *Server) handleSnapshot(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	c.JSON(http.StatusOK, snapshot(sess))
}

func (s *Server) handleRefresh(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	if err := sess.Engine.Load(c.Request.Context()); err != nil {
		s.log.Warn("refresh failed", zap.Int64("recipient_id", sess.RecipientID), zap.Error(err))
	}
	c.JSON(http.StatusOK, snapshot(sess))
}

func (s *Server) handleMarkAsRead(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	sess.Engine.MarkAsRead(c.Request.Context(), id)
	c.JSON(http.StatusOK, snapshot(sess))
}

func (s *Server) handleMarkAllAsRead(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	sess.Engine.MarkAllAsRead(c.Request.Context())
	c.JSON(http.StatusOK, snapshot(sess))
}
