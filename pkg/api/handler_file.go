package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// filePayload is one parsed document. Parsing happens upstream (the frontend
// runs the document parser); the backend receives text plus structure.
type filePayload struct {
	OriginalName string           `json:"originalName" binding:"required"`
	MimeType     string           `json:"mimeType"`
	Size         int64            `json:"size"`
	PlainText    string           `json:"plainText"`
	Sections     []models.Section `json:"sections"`
	Tables       []models.Table   `json:"tables"`
}

type uploadFilesRequest struct {
	Files []filePayload `json:"files" binding:"required,min=1"`
}

// uploadFilesHandler handles POST /api/v1/sessions/:id/files.
func (s *Server) uploadFilesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req uploadFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	// Files attach to live sessions only.
	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}

	files := make([]*models.File, len(req.Files))
	for i, payload := range req.Files {
		files[i] = &models.File{
			OriginalName: payload.OriginalName,
			MimeType:     payload.MimeType,
			Size:         payload.Size,
			PlainText:    payload.PlainText,
			Sections:     payload.Sections,
			Tables:       payload.Tables,
		}
	}

	stored, err := s.deps.Files.Add(ctx, sessionID, files)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, stored)
}

// listFilesHandler handles GET /api/v1/sessions/:id/files.
func (s *Server) listFilesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := s.deps.Sessions.Get(ctx, sessionID); err != nil {
		mapServiceError(c, err)
		return
	}
	files, err := s.deps.Files.List(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, files)
}
