package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classforge/timetable-api/internal/dto"
	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
	"github.com/classforge/timetable-api/pkg/response"
)

type timetableOrchestrator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Commit(ctx context.Context, id string, req dto.CommitTimetableRequest) error
	List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error)
	Get(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id, format string) ([]byte, string, error)
}

// TimetableHandler exposes timetable generation and lifecycle endpoints.
type TimetableHandler struct {
	service timetableOrchestrator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc timetableOrchestrator) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate builds a conflict-free weekly timetable for a batch and stores it
// as a draft.
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	resp, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Commit promotes a draft timetable to active or published.
func (h *TimetableHandler) Commit(c *gin.Context) {
	var req dto.CommitTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid commit payload"))
		return
	}
	if err := h.service.Commit(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

// List returns timetable headers for a batch.
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Get returns one timetable with its week slots.
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable)
}

// Delete removes a draft timetable.
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export streams a timetable as CSV or PDF.
func (h *TimetableHandler) Export(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.Export(c.Request.Context(), id, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	extension := "csv"
	if contentType == "application/pdf" {
		extension = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timetable-%s.%s", id, extension))
	c.Data(http.StatusOK, contentType, payload)
}
