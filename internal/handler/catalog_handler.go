package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
	"github.com/classforge/timetable-api/pkg/response"
)

type batchCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context) ([]models.Batch, error)
}

type classroomCatalog interface {
	ListActive(ctx context.Context) ([]models.Classroom, error)
}

type subjectCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type facultyCatalog interface {
	ListActive(ctx context.Context) ([]models.Faculty, error)
}

// CatalogHandler exposes read endpoints for the scheduling inputs: batches,
// classrooms, and faculties.
type CatalogHandler struct {
	batches    batchCatalog
	classrooms classroomCatalog
	subjects   subjectCatalog
	faculties  facultyCatalog
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(batches batchCatalog, classrooms classroomCatalog, subjects subjectCatalog, faculties facultyCatalog) *CatalogHandler {
	return &CatalogHandler{batches: batches, classrooms: classrooms, subjects: subjects, faculties: faculties}
}

// ListBatches returns every batch with its subject bindings omitted.
func (h *CatalogHandler) ListBatches(c *gin.Context) {
	batches, err := h.batches.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches)
}

// GetBatch returns one batch with resolved subject and faculty bindings.
func (h *CatalogHandler) GetBatch(c *gin.Context) {
	batch, err := h.batches.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "batch not found"))
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch)
}

// ListClassrooms returns active classrooms ordered by capacity.
func (h *CatalogHandler) ListClassrooms(c *gin.Context) {
	classrooms, err := h.classrooms.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classrooms)
}

// GetSubject returns one subject.
func (h *CatalogHandler) GetSubject(c *gin.Context) {
	subject, err := h.subjects.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "subject not found"))
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject)
}

// ListFaculties returns active faculty members.
func (h *CatalogHandler) ListFaculties(c *gin.Context) {
	faculties, err := h.faculties.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculties)
}
