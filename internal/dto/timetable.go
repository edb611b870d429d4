package dto

import "github.com/classforge/timetable-api/internal/models"

// GenerateTimetableRequest asks the engine to build a weekly timetable for a
// batch.
type GenerateTimetableRequest struct {
	BatchID string `json:"batchId" validate:"required"`
}

// TimetableOption is one generated candidate schedule.
type TimetableOption struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	WeekSlots   []models.Placement `json:"weekSlots"`
}

// GenerateTimetableResponse returns the persisted draft and its options.
type GenerateTimetableResponse struct {
	TimetableID string                 `json:"timetableId"`
	BatchID     string                 `json:"batchId"`
	Status      models.TimetableStatus `json:"status"`
	Options     []TimetableOption      `json:"options"`
	Warnings    []string               `json:"warnings"`
}

// CommitTimetableRequest promotes a draft to a committed status.
type CommitTimetableRequest struct {
	Status models.TimetableStatus `json:"status" validate:"required,oneof=active published"`
}

// TimetableQuery filters timetable listings by batch.
type TimetableQuery struct {
	BatchID string `form:"batchId" json:"batchId"`
}
