package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/classforge/timetable-api/internal/models"
)

// BatchRepository provides persistence for batches and their subject
// bindings.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

type bindingRow struct {
	ID        string `db:"id"`
	BatchID   string `db:"batch_id"`
	SubjectID string `db:"subject_id"`
	FacultyID string `db:"faculty_id"`

	SubID    sql.NullString `db:"sub_id"`
	SubCode  sql.NullString `db:"sub_code"`
	SubName  sql.NullString `db:"sub_name"`
	SubType  sql.NullString `db:"sub_type"`
	SubHours sql.NullInt64  `db:"sub_hours"`

	FacID     sql.NullString `db:"fac_id"`
	FacName   sql.NullString `db:"fac_name"`
	FacActive sql.NullBool   `db:"fac_active"`
}

// FindByID loads a batch with its bindings resolved. Bindings whose subject
// or faculty row is missing keep nil references; the engine rejects those
// with the offending indices.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const batchQuery = `SELECT id, name, code, strength, created_at, updated_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, batchQuery, id); err != nil {
		return nil, err
	}

	const bindingQuery = `SELECT bs.id, bs.batch_id, bs.subject_id, bs.faculty_id,
		s.id AS sub_id, s.code AS sub_code, s.name AS sub_name, s.type AS sub_type, s.hours_per_week AS sub_hours,
		f.id AS fac_id, f.full_name AS fac_name, f.active AS fac_active
		FROM batch_subjects bs
		LEFT JOIN subjects s ON s.id = bs.subject_id
		LEFT JOIN faculties f ON f.id = bs.faculty_id
		WHERE bs.batch_id = $1
		ORDER BY bs.created_at ASC, bs.id ASC`
	var rows []bindingRow
	if err := r.db.SelectContext(ctx, &rows, bindingQuery, id); err != nil {
		return nil, fmt.Errorf("load batch bindings: %w", err)
	}

	batch.Bindings = make([]models.BatchSubject, 0, len(rows))
	for _, row := range rows {
		bindingItem := models.BatchSubject{
			ID:        row.ID,
			BatchID:   row.BatchID,
			SubjectID: row.SubjectID,
			FacultyID: row.FacultyID,
		}
		if row.SubID.Valid {
			bindingItem.Subject = &models.Subject{
				ID:           row.SubID.String,
				Code:         row.SubCode.String,
				Name:         row.SubName.String,
				Type:         models.SubjectType(row.SubType.String),
				HoursPerWeek: int(row.SubHours.Int64),
			}
		}
		if row.FacID.Valid {
			bindingItem.Faculty = &models.Faculty{
				ID:       row.FacID.String,
				FullName: row.FacName.String,
				Active:   row.FacActive.Bool,
			}
		}
		batch.Bindings = append(batch.Bindings, bindingItem)
	}

	return &batch, nil
}

// List returns all batches ordered by code.
func (r *BatchRepository) List(ctx context.Context) ([]models.Batch, error) {
	const query = `SELECT id, name, code, strength, created_at, updated_at FROM batches ORDER BY code ASC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}
