package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
)

// --- Fixtures shared across engine tests ---

func theorySubject(id, code string, hours int) *models.Subject {
	return &models.Subject{ID: id, Code: code, Name: code, Type: models.SubjectTypeTheory, HoursPerWeek: hours}
}

func labSubject(id, code string, hours int) *models.Subject {
	return &models.Subject{ID: id, Code: code, Name: code, Type: models.SubjectTypeLab, HoursPerWeek: hours}
}

func binding(subject *models.Subject, facultyID string) models.BatchSubject {
	return models.BatchSubject{
		ID:        subject.ID + "-" + facultyID,
		SubjectID: subject.ID,
		FacultyID: facultyID,
		Subject:   subject,
		Faculty:   &models.Faculty{ID: facultyID, FullName: facultyID, Active: true},
	}
}

func testBatch(strength int, bindings ...models.BatchSubject) *models.Batch {
	return &models.Batch{ID: "batch-1", Name: "CS Year 2", Code: "CS2", Strength: strength, Bindings: bindings}
}

func lectureRoom(id string, capacity int) models.Classroom {
	return models.Classroom{ID: id, Name: id, Capacity: capacity, Type: models.RoomTypeLecture, Active: true}
}

func labRoom(id string, capacity int) models.Classroom {
	return models.Classroom{ID: id, Name: id, Capacity: capacity, Type: models.RoomTypeLab, Active: true}
}

func committedTimetable(batchID string, slots ...models.Placement) models.Timetable {
	return models.Timetable{ID: "tt-" + batchID, BatchID: batchID, Status: models.TimetableStatusPublished, WeekSlots: slots}
}

func buildSchedule(t *testing.T, batch *models.Batch, rooms []models.Classroom, committed []models.Timetable) ([]models.Placement, []string, error) {
	t.Helper()
	grid := DefaultGrid()
	scheduler := NewScheduler(grid, BuildConflictIndex(committed), NewResourcePool(rooms), true, nil)
	return scheduler.Build(context.Background(), batch)
}

// --- Scenarios ---

func TestSchedulerTrivialFeasible(t *testing.T) {
	batch := testBatch(30, binding(theorySubject("math", "MATH", 3), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-1", 40)}

	placements, warnings, err := buildSchedule(t, batch, rooms, nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, placements, 3)

	for i, day := range []string{"Monday", "Tuesday", "Wednesday"} {
		assert.Equal(t, day, placements[i].Day)
		assert.Equal(t, "09:00", placements[i].StartTime)
		assert.Equal(t, "10:00", placements[i].EndTime)
		assert.Equal(t, "room-1", placements[i].ClassroomID)
		assert.Equal(t, "fac-1", placements[i].FacultyID)
	}
}

func TestSchedulerLabBlockAvoidsLunch(t *testing.T) {
	batch := testBatch(30, binding(labSubject("lab", "LAB", 4), "fac-1"))
	rooms := []models.Classroom{labRoom("lab-1", 30)}

	placements, _, err := buildSchedule(t, batch, rooms, nil)
	require.NoError(t, err)
	require.Len(t, placements, 4)

	// A four-hour block cannot start before lunch, so the earliest legal
	// start is Monday 13:00.
	starts := []string{"13:00", "14:00", "15:00", "16:00"}
	ends := []string{"14:00", "15:00", "16:00", "17:00"}
	for i, p := range placements {
		assert.Equal(t, "Monday", p.Day)
		assert.Equal(t, starts[i], p.StartTime)
		assert.Equal(t, ends[i], p.EndTime)
		assert.Equal(t, "lab-1", p.ClassroomID)
	}
}

func TestSchedulerCrossBatchFacultyConflict(t *testing.T) {
	committed := []models.Timetable{committedTimetable("other",
		models.Placement{Day: "Monday", StartTime: "09:00", EndTime: "10:00", FacultyID: "fac-1", ClassroomID: "room-9"},
		models.Placement{Day: "Monday", StartTime: "10:00", EndTime: "11:00", FacultyID: "fac-1", ClassroomID: "room-9"},
	)}
	batch := testBatch(30, binding(theorySubject("math", "MATH", 3), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-1", 40)}

	placements, _, err := buildSchedule(t, batch, rooms, committed)
	require.NoError(t, err)
	require.Len(t, placements, 3)

	assert.Equal(t, "Monday", placements[0].Day)
	assert.Equal(t, "11:00", placements[0].StartTime)
	assert.Equal(t, "Tuesday", placements[1].Day)
	assert.Equal(t, "09:00", placements[1].StartTime)
	assert.Equal(t, "Wednesday", placements[2].Day)
	assert.Equal(t, "09:00", placements[2].StartTime)
}

func TestSchedulerCrossBatchRoomConflict(t *testing.T) {
	committed := []models.Timetable{committedTimetable("other",
		models.Placement{Day: "Monday", StartTime: "09:00", EndTime: "10:00", FacultyID: "fac-9", ClassroomID: "room-1"},
	)}
	batch := testBatch(30, binding(theorySubject("math", "MATH", 1), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-1", 40)}

	placements, _, err := buildSchedule(t, batch, rooms, committed)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, "Monday", placements[0].Day)
	assert.Equal(t, "10:00", placements[0].StartTime)
}

func TestSchedulerCapacityFallback(t *testing.T) {
	batch := testBatch(60, binding(theorySubject("math", "MATH", 1), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-small", 40), lectureRoom("room-big", 50)}

	placements, warnings, err := buildSchedule(t, batch, rooms, nil)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, "room-big", placements[0].ClassroomID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "capacity_fallback")
}

func TestSchedulerFallbackDisabled(t *testing.T) {
	batch := testBatch(60, binding(theorySubject("math", "MATH", 1), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-small", 40)}

	grid := DefaultGrid()
	scheduler := NewScheduler(grid, BuildConflictIndex(nil), NewResourcePool(rooms), false, nil)
	_, _, err := scheduler.Build(context.Background(), batch)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnplaceable.Code, appErrors.FromError(err).Code)

	var unplaceable *UnplaceableError
	require.True(t, errors.As(err, &unplaceable))
	assert.Equal(t, ReasonRoomBlocked, unplaceable.Reason)
}

func TestSchedulerUnplaceableRoomSaturation(t *testing.T) {
	// The only legal start for a four-hour lab is 13:00; booking the lab
	// room at 13:00 on every day exhausts all candidate tuples.
	var slots []models.Placement
	for _, day := range DefaultDays {
		slots = append(slots, models.Placement{Day: day, StartTime: "13:00", EndTime: "14:00", FacultyID: "fac-9", ClassroomID: "lab-1"})
	}
	committed := []models.Timetable{committedTimetable("other", slots...)}
	batch := testBatch(30, binding(labSubject("lab", "LAB", 4), "fac-1"))
	rooms := []models.Classroom{labRoom("lab-1", 30)}

	_, _, err := buildSchedule(t, batch, rooms, committed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnplaceable.Code, appErrors.FromError(err).Code)

	var unplaceable *UnplaceableError
	require.True(t, errors.As(err, &unplaceable))
	assert.Equal(t, "lab", unplaceable.SubjectID)
	assert.Equal(t, ReasonRoomBlocked, unplaceable.Reason)
}

func TestSchedulerUnplaceableFacultySaturation(t *testing.T) {
	// fac-1 is externally booked for every slot of the week.
	var slots []models.Placement
	grid := DefaultGrid()
	for _, day := range DefaultDays {
		for _, slot := range grid.Slots() {
			slots = append(slots, models.Placement{Day: day, StartTime: slot.Start, EndTime: slot.End, FacultyID: "fac-1", ClassroomID: "room-9"})
		}
	}
	committed := []models.Timetable{committedTimetable("other", slots...)}
	batch := testBatch(30, binding(theorySubject("math", "MATH", 1), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-1", 40)}

	_, _, err := buildSchedule(t, batch, rooms, committed)
	require.Error(t, err)

	var unplaceable *UnplaceableError
	require.True(t, errors.As(err, &unplaceable))
	assert.Equal(t, ReasonFacultyBlocked, unplaceable.Reason)
}

func TestSchedulerHardestFirstOrder(t *testing.T) {
	// The lab must claim its contiguous afternoon block before theory hours
	// fragment the week.
	lab := binding(labSubject("lab", "LAB", 4), "fac-1")
	math := binding(theorySubject("math", "MATH", 5), "fac-1")
	batch := testBatch(25, math, lab)
	rooms := []models.Classroom{lectureRoom("room-1", 30), labRoom("lab-1", 30)}

	placements, _, err := buildSchedule(t, batch, rooms, nil)
	require.NoError(t, err)
	require.Len(t, placements, 9)

	labDays := map[string]int{}
	for _, p := range placements {
		if p.SubjectID == "lab" {
			labDays[p.Day]++
		}
	}
	require.Len(t, labDays, 1, "lab must land on a single day")
	for _, count := range labDays {
		assert.Equal(t, 4, count)
	}
}

func TestSchedulerNonLabDailyCap(t *testing.T) {
	batch := testBatch(30, binding(theorySubject("math", "MATH", 5), "fac-1"))
	rooms := []models.Classroom{lectureRoom("room-1", 40)}

	placements, _, err := buildSchedule(t, batch, rooms, nil)
	require.NoError(t, err)
	require.Len(t, placements, 5)

	perDay := map[string]int{}
	for _, p := range placements {
		perDay[p.Day]++
	}
	for day, count := range perDay {
		assert.Equal(t, 1, count, "subject placed more than once on %s", day)
	}
}

func TestSchedulerDeterministic(t *testing.T) {
	bindings := []models.BatchSubject{
		binding(theorySubject("phy", "PHY", 4), "fac-2"),
		binding(labSubject("lab", "LAB", 3), "fac-3"),
		binding(theorySubject("math", "MATH", 4), "fac-1"),
		binding(theorySubject("eng", "ENG", 2), "fac-2"),
	}
	rooms := []models.Classroom{lectureRoom("room-1", 40), lectureRoom("room-2", 60), labRoom("lab-1", 35)}

	first, firstWarnings, err := buildSchedule(t, testBatch(30, bindings...), rooms, nil)
	require.NoError(t, err)
	second, secondWarnings, err := buildSchedule(t, testBatch(30, bindings...), rooms, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstWarnings, secondWarnings)
}

func TestSchedulerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := testBatch(30, binding(theorySubject("math", "MATH", 3), "fac-1"))
	scheduler := NewScheduler(DefaultGrid(), BuildConflictIndex(nil), NewResourcePool([]models.Classroom{lectureRoom("room-1", 40)}), true, nil)
	_, _, err := scheduler.Build(ctx, batch)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestSchedulerValidatorAgreement(t *testing.T) {
	bindings := []models.BatchSubject{
		binding(labSubject("lab", "LAB", 4), "fac-1"),
		binding(theorySubject("math", "MATH", 4), "fac-1"),
		binding(theorySubject("phy", "PHY", 3), "fac-2"),
		binding(theorySubject("chem", "CHEM", 3), "fac-2"),
	}
	batch := testBatch(30, bindings...)
	rooms := []models.Classroom{lectureRoom("room-1", 40), labRoom("lab-1", 30)}

	placements, _, err := buildSchedule(t, batch, rooms, nil)
	require.NoError(t, err)

	report := NewValidator(DefaultGrid()).ValidateSchedule(batch, placements)
	assert.True(t, report.Valid(), "violations: %+v", report.Violations)
}
