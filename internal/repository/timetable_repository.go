package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classforge/timetable-api/internal/models"
)

// TimetableRepository provides persistence for generated timetables and
// their week slots.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

type slotRow struct {
	models.TimetableSlot
	Position int `db:"position"`
}

// CreateWithTx stores a timetable header and its slots inside the provided
// transaction. Slot order is preserved via an explicit position column.
func (r *TimetableRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, timetable *models.Timetable) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	timetable.UpdatedAt = now

	const headerQuery = `INSERT INTO timetables (id, batch_id, status, created_at, updated_at) VALUES (:id, :batch_id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, headerQuery, timetable); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}

	const slotQuery = `INSERT INTO timetable_slots (id, timetable_id, position, day_of_week, start_time, end_time, subject_id, faculty_id, classroom_id, subject_type, created_at) VALUES (:id, :timetable_id, :position, :day_of_week, :start_time, :end_time, :subject_id, :faculty_id, :classroom_id, :subject_type, :created_at)`
	for i, placement := range timetable.WeekSlots {
		row := slotRow{
			TimetableSlot: models.TimetableSlot{
				ID:          uuid.NewString(),
				TimetableID: timetable.ID,
				Placement:   placement,
				CreatedAt:   now,
			},
			Position: i,
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, slotQuery, &row); err != nil {
			return fmt.Errorf("create timetable slot: %w", err)
		}
	}
	return nil
}

// FindByID loads a timetable header with its slots.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, batch_id, status, created_at, updated_at FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}

	slots, err := r.loadSlots(ctx, id)
	if err != nil {
		return nil, err
	}
	timetable.WeekSlots = slots
	return &timetable, nil
}

// ListByBatch returns timetable headers for a batch, newest first.
func (r *TimetableRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Timetable, error) {
	const query = `SELECT id, batch_id, status, created_at, updated_at FROM timetables WHERE batch_id = $1 ORDER BY created_at DESC`
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query, batchID); err != nil {
		return nil, fmt.Errorf("list timetables by batch: %w", err)
	}
	return timetables, nil
}

// ListCommitted returns every active or published timetable with slots
// resolved. Drafts are excluded so in-progress generation never blocks
// itself.
func (r *TimetableRepository) ListCommitted(ctx context.Context) ([]models.Timetable, error) {
	const query = `SELECT id, batch_id, status, created_at, updated_at FROM timetables WHERE status IN ('active', 'published') ORDER BY created_at ASC`
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, query); err != nil {
		return nil, fmt.Errorf("list committed timetables: %w", err)
	}
	for i := range timetables {
		slots, err := r.loadSlots(ctx, timetables[i].ID)
		if err != nil {
			return nil, err
		}
		timetables[i].WeekSlots = slots
	}
	return timetables, nil
}

// UpdateStatus flips a timetable's lifecycle status.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error {
	const query = `UPDATE timetables SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("timetable %s not found", id)
	}
	return nil
}

// Delete removes a timetable and its slots.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetable_slots WHERE timetable_id = $1`, id); err != nil {
		return fmt.Errorf("delete timetable slots: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	return nil
}

func (r *TimetableRepository) loadSlots(ctx context.Context, timetableID string) ([]models.Placement, error) {
	const query = `SELECT day_of_week, start_time, end_time, subject_id, faculty_id, classroom_id, subject_type FROM timetable_slots WHERE timetable_id = $1 ORDER BY position ASC`
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, timetableID); err != nil {
		return nil, fmt.Errorf("load timetable slots: %w", err)
	}
	return placements, nil
}
