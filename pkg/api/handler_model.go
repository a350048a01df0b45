package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listModelsHandler handles GET /api/v1/models.
func (s *Server) listModelsHandler(c *gin.Context) {
	list, err := s.deps.Registry.List(c.Request.Context())
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

type enableModelRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// enableModelHandler handles POST /api/v1/models/:name/enable.
func (s *Server) enableModelHandler(c *gin.Context) {
	name := c.Param("name")

	var req enableModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := s.deps.Registry.SetEnabled(c.Request.Context(), name, *req.Enabled); err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"name": name, "enabled": *req.Enabled})
}
