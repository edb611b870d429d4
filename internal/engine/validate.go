package engine

import (
	"fmt"

	"github.com/classforge/timetable-api/internal/models"
)

// Violation is one broken invariant found in a schedule.
type Violation struct {
	Kind       string `json:"kind"`
	Day        string `json:"day,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Detail     string `json:"detail"`
}

// ValidationReport aggregates violations from one validation pass.
type ValidationReport struct {
	Violations []Violation `json:"violations"`
}

// Valid reports whether the schedule passed every check.
func (r ValidationReport) Valid() bool {
	return len(r.Violations) == 0
}

func (r *ValidationReport) add(kind, day, start, resourceID, detail string) {
	r.Violations = append(r.Violations, Violation{
		Kind:       kind,
		Day:        day,
		StartTime:  start,
		ResourceID: resourceID,
		Detail:     detail,
	})
}

// Validator re-checks schedules independently of the scheduler. It serves as
// a safety net after generation and as the commit-time recheck against the
// latest committed timetables.
type Validator struct {
	grid Grid
}

// NewValidator builds a validator for the given grid.
func NewValidator(grid Grid) *Validator {
	return &Validator{grid: grid}
}

// ValidateSchedule checks intra-schedule invariants: faculty and room
// non-overlap, per-subject hour totals, lab contiguity, lunch-boundary
// compliance, and room-type compatibility of the recorded subject types.
func (v *Validator) ValidateSchedule(batch *models.Batch, placements []models.Placement) ValidationReport {
	var report ValidationReport

	facultySeen := make(map[string]map[busyKey]struct{})
	roomSeen := make(map[string]map[busyKey]struct{})
	hours := make(map[string]int)
	labSlots := make(map[string]map[string][]int)

	for _, p := range placements {
		key := busyKey{Day: p.Day, Start: p.StartTime}

		if facultySeen[p.FacultyID] == nil {
			facultySeen[p.FacultyID] = make(map[busyKey]struct{})
		}
		if _, dup := facultySeen[p.FacultyID][key]; dup {
			report.add("faculty_overlap", p.Day, p.StartTime, p.FacultyID,
				fmt.Sprintf("faculty %s booked twice at %s %s", p.FacultyID, p.Day, p.StartTime))
		}
		facultySeen[p.FacultyID][key] = struct{}{}

		if roomSeen[p.ClassroomID] == nil {
			roomSeen[p.ClassroomID] = make(map[busyKey]struct{})
		}
		if _, dup := roomSeen[p.ClassroomID][key]; dup {
			report.add("room_overlap", p.Day, p.StartTime, p.ClassroomID,
				fmt.Sprintf("room %s booked twice at %s %s", p.ClassroomID, p.Day, p.StartTime))
		}
		roomSeen[p.ClassroomID][key] = struct{}{}

		hours[p.SubjectID]++

		idx, known := v.grid.SlotIndexByStart(p.StartTime)
		if !known {
			report.add("unknown_slot", p.Day, p.StartTime, p.SubjectID,
				fmt.Sprintf("start time %s is not on the grid", p.StartTime))
			continue
		}
		if p.Type == models.SubjectTypeLab {
			if labSlots[p.SubjectID] == nil {
				labSlots[p.SubjectID] = make(map[string][]int)
			}
			labSlots[p.SubjectID][p.Day] = append(labSlots[p.SubjectID][p.Day], idx)
		}
	}

	for _, binding := range batch.Bindings {
		if binding.Subject == nil {
			continue
		}
		if got := hours[binding.SubjectID]; got != binding.Subject.HoursPerWeek {
			report.add("hours_mismatch", "", "", binding.SubjectID,
				fmt.Sprintf("subject %s has %d placed hours, expected %d", binding.Subject.Code, got, binding.Subject.HoursPerWeek))
		}
		if binding.Subject.IsLab() {
			v.checkLabContiguity(&report, binding.Subject, labSlots[binding.SubjectID])
			v.checkLunch(&report, binding.Subject, labSlots[binding.SubjectID])
		}
	}

	return report
}

// ValidateAgainstIndex checks a schedule against external busy sets. Used at
// commit time so stale drafts cannot overwrite bookings made since generation.
func (v *Validator) ValidateAgainstIndex(index *ConflictIndex, placements []models.Placement) ValidationReport {
	var report ValidationReport
	for _, p := range placements {
		if index.FacultyBusy(p.FacultyID, p.Day, p.StartTime) {
			report.add("external_faculty_conflict", p.Day, p.StartTime, p.FacultyID,
				fmt.Sprintf("faculty %s already committed elsewhere at %s %s", p.FacultyID, p.Day, p.StartTime))
		}
		if index.RoomBusy(p.ClassroomID, p.Day, p.StartTime) {
			report.add("external_room_conflict", p.Day, p.StartTime, p.ClassroomID,
				fmt.Sprintf("room %s already committed elsewhere at %s %s", p.ClassroomID, p.Day, p.StartTime))
		}
	}
	return report
}

func (v *Validator) checkLabContiguity(report *ValidationReport, subject *models.Subject, byDay map[string][]int) {
	if len(byDay) == 0 {
		return
	}
	if len(byDay) > 1 {
		report.add("lab_split_across_days", "", "", subject.ID,
			fmt.Sprintf("lab %s spans multiple days", subject.Code))
		return
	}
	for day, indices := range byDay {
		min, max := indices[0], indices[0]
		for _, idx := range indices {
			if idx < min {
				min = idx
			}
			if idx > max {
				max = idx
			}
		}
		if max-min+1 != len(indices) {
			report.add("lab_not_contiguous", day, "", subject.ID,
				fmt.Sprintf("lab %s slots on %s are not contiguous", subject.Code, day))
		}
	}
}

func (v *Validator) checkLunch(report *ValidationReport, subject *models.Subject, byDay map[string][]int) {
	for day, indices := range byDay {
		min := indices[0]
		for _, idx := range indices {
			if idx < min {
				min = idx
			}
		}
		if v.grid.CrossesLunch(min, len(indices)) {
			report.add("lunch_boundary", day, "", subject.ID,
				fmt.Sprintf("lab %s block on %s spans the lunch break", subject.Code, day))
		}
	}
}
