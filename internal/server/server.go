package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maximilianalessandronmartin/taskquest/internal/hub"
	"github.com/maximilianalessandronmartin/taskquest/internal/notify"
	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/util"
)

type (
	// Server implements the HTTP API server for task timers
	Server struct {
		timers  *service.TimerService
		notes   *notify.Service
		hub     *hub.Hub
		sockets util.Set[*Client]
		metrics bool
		mu      sync.Mutex
	}

	// Dependencies are the components the HTTP handlers call into
	Dependencies struct {
		Timers        *service.TimerService
		Notifications *notify.Service
		Hub           *hub.Hub
		Metrics       bool
	}
)

// UserHeader carries the id of the authenticated acting user
const UserHeader = "X-User-ID"

var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrInternal    = errors.New("internal error")
)

// NewServer creates a new HTTP API server
func NewServer(deps Dependencies) *Server {
	return &Server{
		timers:  deps.Timers,
		notes:   deps.Notifications,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		sockets: util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization, "+UserHeader,
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	if s.metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Task timer endpoints
	tasks := router.Group("/tasks/:taskID")
	{
		tasks.GET("", s.getTask)
		tasks.POST("/timer/start", s.startTimer)
		tasks.POST("/timer/pause", s.pauseTimer)
		tasks.POST("/timer/reset", s.resetTimer)
		tasks.POST("/timer/update", s.updateTimer)
	}

	// Notification endpoints
	notes := router.Group("/notifications")
	{
		notes.GET("", s.listNotifications)
		notes.POST("/read", s.markAllRead)
		notes.POST("/:notificationID/read", s.markRead)
		notes.DELETE("/:notificationID", s.deleteNotification)
	}

	// WebSocket
	router.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func actingUser(c *gin.Context) api.UserID {
	return api.UserID(c.GetHeader(UserHeader))
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", msg))
		msg = ErrInternal.Error()
	}
	c.JSON(status, api.ErrorResponse{
		Error:  msg,
		Status: status,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUserRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, notify.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTimerState),
		errors.Is(err, ErrInvalidJSON):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
