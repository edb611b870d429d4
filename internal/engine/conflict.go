package engine

import "github.com/classforge/timetable-api/internal/models"

type busyKey struct {
	Day   string
	Start string
}

// ConflictIndex holds faculty-busy and room-busy sets derived from committed
// timetables of other batches. It is built once per run and never mutated, so
// concurrent scheduling runs can share a snapshot safely.
type ConflictIndex struct {
	facultyBusy map[string]map[busyKey]struct{}
	roomBusy    map[string]map[busyKey]struct{}
	placements  int
}

// BuildConflictIndex derives busy sets from every placement in the given
// timetables. Callers are expected to pass committed (active or published)
// timetables only; drafts must not self-block iterative generation.
func BuildConflictIndex(timetables []models.Timetable) *ConflictIndex {
	ix := &ConflictIndex{
		facultyBusy: make(map[string]map[busyKey]struct{}),
		roomBusy:    make(map[string]map[busyKey]struct{}),
	}
	for _, tt := range timetables {
		for _, slot := range tt.WeekSlots {
			key := busyKey{Day: slot.Day, Start: slot.StartTime}
			if slot.FacultyID != "" {
				if ix.facultyBusy[slot.FacultyID] == nil {
					ix.facultyBusy[slot.FacultyID] = make(map[busyKey]struct{})
				}
				ix.facultyBusy[slot.FacultyID][key] = struct{}{}
			}
			if slot.ClassroomID != "" {
				if ix.roomBusy[slot.ClassroomID] == nil {
					ix.roomBusy[slot.ClassroomID] = make(map[busyKey]struct{})
				}
				ix.roomBusy[slot.ClassroomID][key] = struct{}{}
			}
			ix.placements++
		}
	}
	return ix
}

// FacultyBusy reports whether the faculty is already booked at (day, start).
func (ix *ConflictIndex) FacultyBusy(facultyID, day, start string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.facultyBusy[facultyID][busyKey{Day: day, Start: start}]
	return ok
}

// RoomBusy reports whether the classroom is already booked at (day, start).
func (ix *ConflictIndex) RoomBusy(roomID, day, start string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.roomBusy[roomID][busyKey{Day: day, Start: start}]
	return ok
}

// Placements returns the number of external placements indexed.
func (ix *ConflictIndex) Placements() int {
	if ix == nil {
		return 0
	}
	return ix.placements
}
