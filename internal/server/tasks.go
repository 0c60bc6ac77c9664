package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

func (s *Server) getTask(c *gin.Context) {
	view, err := s.timers.GetTask(
		c.Request.Context(), taskID(c), actingUser(c),
	)
	s.respondTask(c, view, err)
}

func (s *Server) startTimer(c *gin.Context) {
	view, err := s.timers.StartTimer(
		c.Request.Context(), taskID(c), actingUser(c),
	)
	s.respondTask(c, view, err)
}

func (s *Server) pauseTimer(c *gin.Context) {
	view, err := s.timers.PauseTimer(
		c.Request.Context(), taskID(c), actingUser(c),
	)
	s.respondTask(c, view, err)
}

func (s *Server) resetTimer(c *gin.Context) {
	view, err := s.timers.ResetTimer(
		c.Request.Context(), taskID(c), actingUser(c),
	)
	s.respondTask(c, view, err)
}

func (s *Server) updateTimer(c *gin.Context) {
	var req api.TimerUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		return
	}
	view, err := s.timers.UpdateTimer(
		c.Request.Context(), taskID(c), &req, actingUser(c),
	)
	s.respondTask(c, view, err)
}

func (s *Server) respondTask(c *gin.Context, view *api.TaskView, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func taskID(c *gin.Context) api.TaskID {
	return api.TaskID(c.Param("taskID"))
}
