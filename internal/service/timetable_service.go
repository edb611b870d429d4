package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/classforge/timetable-api/internal/dto"
	"github.com/classforge/timetable-api/internal/engine"
	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
	"github.com/classforge/timetable-api/pkg/export"
)

type batchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type classroomLister interface {
	ListActive(ctx context.Context) ([]models.Classroom, error)
}

type subjectResolver interface {
	ListByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error)
}

type facultyLister interface {
	ListActive(ctx context.Context) ([]models.Faculty, error)
}

type timetableStore interface {
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, timetable *models.Timetable) error
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.Timetable, error)
	ListCommitted(ctx context.Context) ([]models.Timetable, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
	Delete(ctx context.Context, id string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// engineRepository adapts the sqlx repositories to the engine's read-only
// Repository contract.
type engineRepository struct {
	batches    batchReader
	classrooms classroomLister
	timetables timetableStore
}

func (r *engineRepository) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := r.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

func (r *engineRepository) ListActiveClassrooms(ctx context.Context) ([]models.Classroom, error) {
	return r.classrooms.ListActive(ctx)
}

func (r *engineRepository) ListCommittedTimetables(ctx context.Context) ([]models.Timetable, error) {
	return r.timetables.ListCommitted(ctx)
}

// TimetableServiceConfig tunes generation and caching behaviour.
type TimetableServiceConfig struct {
	AllowCapacityFallback bool
	CacheTTL              time.Duration
}

// TimetableService orchestrates timetable generation and lifecycle: engine
// runs, draft persistence, commit-time revalidation, and exports.
type TimetableService struct {
	batches    batchReader
	classrooms classroomLister
	subjects   subjectResolver
	faculties  facultyLister
	timetables timetableStore
	tx         txProvider
	engine     *engine.Engine
	validator  *validator.Validate
	logger     *zap.Logger
	cache      Cache
	metrics    *MetricsService
	cacheTTL   time.Duration
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
}

// NewTimetableService wires the timetable pipeline.
func NewTimetableService(
	batches batchReader,
	classrooms classroomLister,
	subjects subjectResolver,
	faculties facultyLister,
	timetables timetableStore,
	tx txProvider,
	grid engine.Grid,
	cfg TimetableServiceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
	cache Cache,
	metrics *MetricsService,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	repo := &engineRepository{batches: batches, classrooms: classrooms, timetables: timetables}
	return &TimetableService{
		batches:    batches,
		classrooms: classrooms,
		subjects:   subjects,
		faculties:  faculties,
		timetables: timetables,
		tx:         tx,
		engine:     engine.New(repo, grid, engine.Config{AllowCapacityFallback: cfg.AllowCapacityFallback}, logger),
		validator:  validate,
		logger:     logger,
		cache:      cache,
		metrics:    metrics,
		cacheTTL:   cfg.CacheTTL,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
	}
}

// Generate runs the engine for a batch and persists the result as a draft
// timetable.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}

	result, err := s.engine.Generate(ctx, req.BatchID)
	if err != nil {
		s.observeGeneration(appErrors.FromError(err).Code)
		return nil, err
	}
	s.observeGeneration("success")

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record := &models.Timetable{
		BatchID:   req.BatchID,
		Status:    models.TimetableStatusDraft,
		WeekSlots: result.Options[0].WeekSlots,
	}
	if err = s.timetables.CreateWithTx(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist draft timetable")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit draft timetable")
		return nil, err
	}

	s.invalidate(ctx, req.BatchID, record.ID)
	s.logger.Info("draft timetable generated",
		zap.String("batch_id", req.BatchID),
		zap.String("timetable_id", record.ID),
		zap.Int("placements", len(record.WeekSlots)),
		zap.Strings("warnings", result.Warnings))

	options := make([]dto.TimetableOption, 0, len(result.Options))
	for _, option := range result.Options {
		options = append(options, dto.TimetableOption{
			Name:        option.Name,
			Description: option.Description,
			WeekSlots:   option.WeekSlots,
		})
	}
	return &dto.GenerateTimetableResponse{
		TimetableID: record.ID,
		BatchID:     req.BatchID,
		Status:      record.Status,
		Options:     options,
		Warnings:    result.Warnings,
	}, nil
}

// Commit promotes a draft to active or published. The draft is revalidated
// against the latest committed timetables so a stale draft cannot overwrite
// bookings made since it was generated.
func (s *TimetableService) Commit(ctx context.Context, id string, req dto.CommitTimetableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid commit payload")
	}

	timetable, err := s.findTimetable(ctx, id)
	if err != nil {
		return err
	}
	if timetable.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be committed")
	}

	committed, err := s.timetables.ListCommitted(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed timetables")
	}
	index := engine.BuildConflictIndex(committed)
	report := engine.NewValidator(s.engine.Grid()).ValidateAgainstIndex(index, timetable.WeekSlots)
	if !report.Valid() {
		s.logger.Warn("stale draft rejected at commit",
			zap.String("timetable_id", id),
			zap.Int("violations", len(report.Violations)))
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("draft conflicts with timetables committed since generation (%d violations); regenerate", len(report.Violations)))
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.timetables.UpdateStatus(ctx, tx, id, req.Status); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable status")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit status change")
		return err
	}

	s.invalidate(ctx, timetable.BatchID, id)
	return nil
}

// List returns timetable headers for a batch.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	if query.BatchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batchId is required")
	}
	timetables, err := s.timetables.ListByBatch(ctx, query.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return timetables, nil
}

// Get returns one timetable with its week slots, cached when possible.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Timetable, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}

	key := timetableCacheKey(id)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var cached models.Timetable
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	timetable, err := s.findTimetable(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(timetable); err == nil {
			s.cache.Set(ctx, key, string(payload), s.cacheTTL)
		}
	}
	return timetable, nil
}

// Delete removes a draft timetable.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	timetable, err := s.findTimetable(ctx, id)
	if err != nil {
		return err
	}
	if timetable.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	if err := s.timetables.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	s.invalidate(ctx, timetable.BatchID, id)
	return nil
}

// Export renders a timetable as CSV or PDF bytes.
func (s *TimetableService) Export(ctx context.Context, id, format string) ([]byte, string, error) {
	timetable, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	subjectNames, facultyNames, classroomNames := s.displayNames(ctx, timetable.WeekSlots)

	dataset := export.Dataset{
		Headers: []string{"Day", "Start", "End", "Subject", "Faculty", "Classroom", "Type"},
	}
	for _, slot := range timetable.WeekSlots {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Day":       slot.Day,
			"Start":     slot.StartTime,
			"End":       slot.EndTime,
			"Subject":   orID(subjectNames, slot.SubjectID),
			"Faculty":   orID(facultyNames, slot.FacultyID),
			"Classroom": orID(classroomNames, slot.ClassroomID),
			"Type":      string(slot.Type),
		})
	}

	switch format {
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, fmt.Sprintf("Weekly timetable %s", timetable.BatchID))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// displayNames resolves slot IDs to human-readable labels for exports. A
// failed lookup leaves the raw ID in place rather than failing the export.
func (s *TimetableService) displayNames(ctx context.Context, slots []models.Placement) (map[string]string, map[string]string, map[string]string) {
	subjectNames := map[string]string{}
	facultyNames := map[string]string{}
	classroomNames := map[string]string{}

	if s.subjects != nil {
		seen := map[string]struct{}{}
		var ids []string
		for _, slot := range slots {
			if _, ok := seen[slot.SubjectID]; !ok {
				seen[slot.SubjectID] = struct{}{}
				ids = append(ids, slot.SubjectID)
			}
		}
		if subjects, err := s.subjects.ListByIDs(ctx, ids); err == nil {
			for id, subject := range subjects {
				subjectNames[id] = subject.Code
			}
		} else {
			s.logger.Warn("subject lookup failed for export", zap.Error(err))
		}
	}
	if s.faculties != nil {
		if faculties, err := s.faculties.ListActive(ctx); err == nil {
			for _, faculty := range faculties {
				facultyNames[faculty.ID] = faculty.FullName
			}
		} else {
			s.logger.Warn("faculty lookup failed for export", zap.Error(err))
		}
	}
	if classrooms, err := s.classrooms.ListActive(ctx); err == nil {
		for _, classroom := range classrooms {
			classroomNames[classroom.ID] = classroom.Name
		}
	} else {
		s.logger.Warn("classroom lookup failed for export", zap.Error(err))
	}

	return subjectNames, facultyNames, classroomNames
}

func orID(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

func (s *TimetableService) findTimetable(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return timetable, nil
}

func (s *TimetableService) invalidate(ctx context.Context, batchID, timetableID string) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, timetableCacheKey(timetableID), batchTimetablesCacheKey(batchID))
}

func (s *TimetableService) observeGeneration(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveGeneration(outcome)
	}
}

func timetableCacheKey(id string) string {
	return "timetable:" + id
}

func batchTimetablesCacheKey(batchID string) string {
	return "timetables:batch:" + batchID
}
