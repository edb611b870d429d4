package models

import "time"

// SubjectType classifies how a subject is delivered and scheduled.
type SubjectType string

const (
	SubjectTypeTheory    SubjectType = "theory"
	SubjectTypeLab       SubjectType = "lab"
	SubjectTypePractical SubjectType = "practical"
	SubjectTypeSeminar   SubjectType = "seminar"
)

// Subject represents an academic subject with its weekly hour demand.
type Subject struct {
	ID           string      `db:"id" json:"id"`
	Code         string      `db:"code" json:"code"`
	Name         string      `db:"name" json:"name"`
	Type         SubjectType `db:"type" json:"type"`
	HoursPerWeek int         `db:"hours_per_week" json:"hours_per_week"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// IsLab reports whether the subject must be scheduled as one contiguous block.
func (s Subject) IsLab() bool {
	return s.Type == SubjectTypeLab
}

// BlockDuration is the number of consecutive slots one occurrence spans.
func (s Subject) BlockDuration() int {
	if s.IsLab() {
		return s.HoursPerWeek
	}
	return 1
}

// Occurrences is the number of independent blocks placed per week.
func (s Subject) Occurrences() int {
	if s.IsLab() {
		return 1
	}
	return s.HoursPerWeek
}
