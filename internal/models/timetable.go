package models

import "time"

// TimetableStatus represents lifecycle phases for generated timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "draft"
	TimetableStatusActive    TimetableStatus = "active"
	TimetableStatusPublished TimetableStatus = "published"
)

// Committed reports whether the status blocks resources for other batches.
func (s TimetableStatus) Committed() bool {
	return s == TimetableStatusActive || s == TimetableStatusPublished
}

// Placement is one (day, slot, subject, faculty, classroom) assignment.
type Placement struct {
	Day         string      `db:"day_of_week" json:"day"`
	StartTime   string      `db:"start_time" json:"startTime"`
	EndTime     string      `db:"end_time" json:"endTime"`
	SubjectID   string      `db:"subject_id" json:"subject"`
	FacultyID   string      `db:"faculty_id" json:"faculty"`
	ClassroomID string      `db:"classroom_id" json:"classroom"`
	Type        SubjectType `db:"subject_type" json:"type"`
}

// Timetable captures a generated weekly schedule for a batch.
type Timetable struct {
	ID        string          `db:"id" json:"id"`
	BatchID   string          `db:"batch_id" json:"batch_id"`
	Status    TimetableStatus `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`

	WeekSlots []Placement `db:"-" json:"week_slots,omitempty"`
}

// TimetableSlot is the persisted form of a Placement.
type TimetableSlot struct {
	ID          string `db:"id" json:"id"`
	TimetableID string `db:"timetable_id" json:"timetable_id"`
	Placement
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
