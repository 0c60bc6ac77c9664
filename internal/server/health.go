package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maximilianalessandronmartin/taskquest"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// HealthHealthy is reported while the server is accepting requests
const HealthHealthy = "healthy"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: taskquest.Name,
		Version: taskquest.Version,
		Status:  HealthHealthy,
	})
}
