package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
)

// Repository provides the read-only inputs of a scheduling run. Drafts must
// be excluded from ListCommittedTimetables so iterative generation does not
// block itself.
type Repository interface {
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	ListActiveClassrooms(ctx context.Context) ([]models.Classroom, error)
	ListCommittedTimetables(ctx context.Context) ([]models.Timetable, error)
}

// Option is one generated timetable candidate.
type Option struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	WeekSlots   []models.Placement `json:"weekSlots"`
}

// Result carries the generated options plus soft warnings such as capacity
// fallbacks.
type Result struct {
	Options  []Option `json:"options"`
	Warnings []string `json:"warnings"`
}

// Config tunes engine policy.
type Config struct {
	AllowCapacityFallback bool
}

// Engine orchestrates a scheduling run: load inputs, build the conflict index
// and room pool, run the greedy scheduler, and validate the outcome before
// returning it.
type Engine struct {
	repo   Repository
	grid   Grid
	cfg    Config
	logger *zap.Logger
}

// New wires an engine. A zero grid is replaced by the default grid.
func New(repo Repository, grid Grid, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grid.SlotCount() == 0 {
		grid = DefaultGrid()
	}
	return &Engine{repo: repo, grid: grid, cfg: cfg, logger: logger}
}

// Grid exposes the engine's time grid for validators and renderers.
func (e *Engine) Grid() Grid {
	return e.grid
}

// Generate produces a conflict-free weekly timetable for the batch, or a
// precise scheduling error. The result wraps a single option today; the list
// shape leaves room for future multi-option generation.
func (e *Engine) Generate(ctx context.Context, batchID string) (*Result, error) {
	batch, err := e.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if err := validateBindings(batch); err != nil {
		return nil, err
	}
	if err := e.checkWeeklyCapacity(batch); err != nil {
		return nil, err
	}

	classrooms, err := e.repo.ListActiveClassrooms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}
	pool := NewResourcePool(classrooms)

	committed, err := e.repo.ListCommittedTimetables(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed timetables")
	}
	index := BuildConflictIndex(committed)

	scheduler := NewScheduler(e.grid, index, pool, e.cfg.AllowCapacityFallback, e.logger)
	placements, warnings, err := scheduler.Build(ctx, batch)
	if err != nil {
		return nil, err
	}

	report := NewValidator(e.grid).ValidateSchedule(batch, placements)
	if !report.Valid() {
		e.logger.Error("generated schedule failed validation",
			zap.String("batch_id", batch.ID),
			zap.Any("violations", report.Violations))
		return nil, appErrors.Clone(appErrors.ErrInternal, "generated schedule failed self-validation")
	}
	if external := NewValidator(e.grid).ValidateAgainstIndex(index, placements); !external.Valid() {
		e.logger.Error("generated schedule collides with committed timetables",
			zap.String("batch_id", batch.ID),
			zap.Any("violations", external.Violations))
		return nil, appErrors.Clone(appErrors.ErrInternal, "generated schedule collides with committed timetables")
	}

	return &Result{
		Options: []Option{{
			Name:        fmt.Sprintf("Weekly timetable for %s", batch.Code),
			Description: "hardest-first greedy placement, best-fit rooms",
			WeekSlots:   placements,
		}},
		Warnings: warnings,
	}, nil
}

// validateBindings aborts the run when a binding lacks a resolved subject or
// faculty, reporting every offending index at once.
func validateBindings(batch *models.Batch) error {
	if len(batch.Bindings) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch %s has no subjects to schedule", batch.Code))
	}
	var broken []string
	for i, binding := range batch.Bindings {
		if binding.Subject == nil || binding.Faculty == nil {
			broken = append(broken, fmt.Sprintf("%d", i))
		}
	}
	if len(broken) > 0 {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("bindings at indices [%s] are missing subject or faculty", strings.Join(broken, ", ")))
	}
	for i, binding := range batch.Bindings {
		if binding.Subject.HoursPerWeek <= 0 {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("binding %d: subject %s has non-positive weekly hours", i, binding.Subject.Code))
		}
	}
	return nil
}

// checkWeeklyCapacity rejects demand that cannot fit the grid before any
// placement work happens.
func (e *Engine) checkWeeklyCapacity(batch *models.Batch) error {
	total := 0
	for _, binding := range batch.Bindings {
		total += binding.Subject.HoursPerWeek
	}
	capacity := e.grid.UsableSlotsPerWeek()
	if total > capacity {
		return appErrors.Clone(appErrors.ErrHoursExceedCapacity,
			fmt.Sprintf("batch %s requires %d weekly hours but the grid offers %d slots", batch.Code, total, capacity))
	}
	return nil
}
