package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

func (s *Server) listNotifications(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	res, err := s.notes.Unread(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NotificationsResponse{
		Notifications: res,
		Count:         len(res),
	})
}

func (s *Server) markAllRead(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := s.notes.MarkAllRead(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MarkReadResponse{Count: n})
}

func (s *Server) markRead(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	err := s.notes.MarkRead(c.Request.Context(), user, notificationID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteNotification(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	err := s.notes.Delete(c.Request.Context(), user, notificationID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func requireUser(c *gin.Context) (api.UserID, bool) {
	user := actingUser(c)
	if user == "" {
		writeError(c, service.ErrUserRequired)
		return "", false
	}
	return user, true
}

func notificationID(c *gin.Context) api.NotificationID {
	return api.NotificationID(c.Param("notificationID"))
}
