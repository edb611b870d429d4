package models

import "time"

// RoomType classifies classrooms for room-subject compatibility.
type RoomType string

const (
	RoomTypeLecture RoomType = "lecture"
	RoomTypeLab     RoomType = "lab"
	RoomTypeSeminar RoomType = "seminar"
)

// Classroom represents a bookable room. Immutable across one scheduling run.
type Classroom struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Type      RoomType  `db:"type" json:"type"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
