package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/classforge/timetable-api/internal/models"
)

// SubjectRepository provides lookups for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID loads a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, code, name, type, hours_per_week, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ListByIDs loads subjects for the given ids keyed by id.
func (r *SubjectRepository) ListByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error) {
	if len(ids) == 0 {
		return map[string]models.Subject{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, code, name, type, hours_per_week, created_at, updated_at FROM subjects WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build subject query: %w", err)
	}
	query = r.db.Rebind(query)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	result := make(map[string]models.Subject, len(subjects))
	for _, subject := range subjects {
		result[subject.ID] = subject
	}
	return result, nil
}
