package handler

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/service"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/response"
)

type noteAccessService interface {
	ListForStudent(ctx context.Context, studentID string) ([]dto.NoteAccessItem, error)
	ResolveDownload(token string) (*service.NoteDownload, error)
}

// NoteHandler exposes class notes gated by payment.
type NoteHandler struct {
	notes noteAccessService
}

// NewNoteHandler constructs the handler.
func NewNoteHandler(notes noteAccessService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// List godoc
// @Summary Notes of the student's group with unlock decisions
// @Tags Notes
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/notes [get]
func (h *NoteHandler) List(c *gin.Context) {
	items, err := h.notes.ListForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Download godoc
// @Summary Download an unlocked note file
// @Tags Notes
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /notes/download [get]
func (h *NoteHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.notes.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read note file"))
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(download.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, download.Filename),
	})
}
