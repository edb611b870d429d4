package models

import "time"

// Batch represents a cohort of students sharing one timetable.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	Strength  int       `db:"strength" json:"strength"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Bindings []BatchSubject `db:"-" json:"bindings,omitempty"`
}

// BatchSubject pairs a subject with the faculty assigned to teach it for a
// batch. Subject and Faculty are resolved by the repository; either being nil
// marks a broken binding and aborts a scheduling run.
type BatchSubject struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Subject *Subject `db:"-" json:"subject,omitempty"`
	Faculty *Faculty `db:"-" json:"faculty,omitempty"`
}
