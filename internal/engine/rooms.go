package engine

import (
	"sort"

	"github.com/classforge/timetable-api/internal/models"
)

// ResourcePool classifies active classrooms by type and orders each pool by
// ascending capacity so the scheduler probes best-fit rooms first.
type ResourcePool struct {
	lectureRooms []models.Classroom
	labRooms     []models.Classroom
}

// NewResourcePool partitions classrooms into lecture/seminar and lab pools.
// Inactive rooms are skipped.
func NewResourcePool(rooms []models.Classroom) *ResourcePool {
	pool := &ResourcePool{}
	for _, room := range rooms {
		if !room.Active {
			continue
		}
		switch room.Type {
		case models.RoomTypeLab:
			pool.labRooms = append(pool.labRooms, room)
		case models.RoomTypeLecture, models.RoomTypeSeminar:
			pool.lectureRooms = append(pool.lectureRooms, room)
		}
	}
	sortRooms(pool.lectureRooms)
	sortRooms(pool.labRooms)
	return pool
}

func sortRooms(rooms []models.Classroom) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Capacity == rooms[j].Capacity {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Capacity < rooms[j].Capacity
	})
}

// RoomsFor returns the full pool serving a subject type in best-fit order.
// Lab subjects draw from lab rooms; every other type uses lecture/seminar.
func (p *ResourcePool) RoomsFor(subjectType models.SubjectType) []models.Classroom {
	if subjectType == models.SubjectTypeLab {
		return p.labRooms
	}
	return p.lectureRooms
}

// HasRoomsFor reports whether any room can serve the subject type at all.
func (p *ResourcePool) HasRoomsFor(subjectType models.SubjectType) bool {
	return len(p.RoomsFor(subjectType)) > 0
}

// Candidates returns the rooms to probe for a subject, smallest adequate room
// first. When no room in the pool seats the batch and fallback is allowed,
// the single largest room is returned with fallback=true so the caller can
// attach a capacity warning.
func (p *ResourcePool) Candidates(subjectType models.SubjectType, strength int, allowFallback bool) (rooms []models.Classroom, fallback bool) {
	pool := p.RoomsFor(subjectType)
	for _, room := range pool {
		if room.Capacity >= strength {
			rooms = append(rooms, room)
		}
	}
	if len(rooms) > 0 {
		return rooms, false
	}
	if allowFallback && len(pool) > 0 {
		return []models.Classroom{pool[len(pool)-1]}, true
	}
	return nil, false
}
