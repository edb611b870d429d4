package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/classforge/timetable-api/internal/models"
	appErrors "github.com/classforge/timetable-api/pkg/errors"
)

// UnplaceableReason distinguishes why the scheduler ran out of options.
type UnplaceableReason string

const (
	ReasonFacultyBlocked UnplaceableReason = "faculty"
	ReasonRoomBlocked    UnplaceableReason = "room"
)

// UnplaceableError reports the subject the greedy search could not place.
type UnplaceableError struct {
	SubjectID   string            `json:"subject_id"`
	SubjectCode string            `json:"subject_code"`
	Reason      UnplaceableReason `json:"reason"`
}

// Error implements the error interface.
func (e *UnplaceableError) Error() string {
	return fmt.Sprintf("subject %s cannot be placed: %s blocked on every remaining slot", e.SubjectCode, e.Reason)
}

// Scheduler places a batch's subject-hours onto the grid using a
// hardest-first greedy strategy: longest blocks first, then highest weekly
// hours, with a stable subject-code tiebreak. All iteration orders are total,
// so identical inputs always produce identical schedules.
type Scheduler struct {
	grid          Grid
	index         *ConflictIndex
	pool          *ResourcePool
	allowFallback bool
	logger        *zap.Logger
}

// NewScheduler wires a scheduler for one run. index may be nil when no
// committed timetables exist yet.
func NewScheduler(grid Grid, index *ConflictIndex, pool *ResourcePool, allowFallback bool, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		grid:          grid,
		index:         index,
		pool:          pool,
		allowFallback: allowFallback,
		logger:        logger,
	}
}

// localState tracks bookings committed within the current run. External
// bookings live in the ConflictIndex; both must be clear for a placement.
type localState struct {
	facultyBusy map[string]map[busyKey]struct{}
	roomBusy    map[string]map[busyKey]struct{}
	dailyCount  map[string]map[string]int
}

func newLocalState() *localState {
	return &localState{
		facultyBusy: make(map[string]map[busyKey]struct{}),
		roomBusy:    make(map[string]map[busyKey]struct{}),
		dailyCount:  make(map[string]map[string]int),
	}
}

func (st *localState) facultyFree(facultyID, day, start string) bool {
	_, busy := st.facultyBusy[facultyID][busyKey{Day: day, Start: start}]
	return !busy
}

func (st *localState) roomFree(roomID, day, start string) bool {
	_, busy := st.roomBusy[roomID][busyKey{Day: day, Start: start}]
	return !busy
}

func (st *localState) reserve(facultyID, roomID, day, start string) {
	key := busyKey{Day: day, Start: start}
	if st.facultyBusy[facultyID] == nil {
		st.facultyBusy[facultyID] = make(map[busyKey]struct{})
	}
	st.facultyBusy[facultyID][key] = struct{}{}
	if st.roomBusy[roomID] == nil {
		st.roomBusy[roomID] = make(map[busyKey]struct{})
	}
	st.roomBusy[roomID][key] = struct{}{}
}

func (st *localState) markDay(subjectID, day string) {
	if st.dailyCount[subjectID] == nil {
		st.dailyCount[subjectID] = make(map[string]int)
	}
	st.dailyCount[subjectID][day]++
}

func (st *localState) placedToday(subjectID, day string) bool {
	return st.dailyCount[subjectID][day] > 0
}

// Build produces a conflict-free schedule for the batch, or fails with an
// UnplaceableError wrapped in the UNPLACEABLE kind. Cancellation is checked
// between bindings.
func (s *Scheduler) Build(ctx context.Context, batch *models.Batch) ([]models.Placement, []string, error) {
	ordered := orderBindings(batch.Bindings)
	state := newLocalState()
	var placements []models.Placement
	var warnings []string

	for _, binding := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "scheduling cancelled")
		}

		subject := binding.Subject
		duration := subject.BlockDuration()
		candidates, fallback := s.pool.Candidates(subject.Type, batch.Strength, s.allowFallback)
		if len(candidates) == 0 {
			if !s.pool.HasRoomsFor(subject.Type) {
				return nil, nil, appErrors.Clone(appErrors.ErrMissingRoomType,
					fmt.Sprintf("no %s classroom exists for subject %s", roomTypeFor(subject.Type), subject.Code))
			}
			unplaceable := &UnplaceableError{SubjectID: subject.ID, SubjectCode: subject.Code, Reason: ReasonRoomBlocked}
			return nil, nil, appErrors.Wrap(unplaceable, appErrors.ErrUnplaceable.Code, appErrors.ErrUnplaceable.Status,
				fmt.Sprintf("no %s classroom seats batch strength %d for subject %s", roomTypeFor(subject.Type), batch.Strength, subject.Code))
		}

		fallbackUsed := false
		for iteration := 0; iteration < subject.Occurrences(); iteration++ {
			block, usedFallback, reason := s.placeBlock(state, binding, duration, candidates, fallback)
			if block == nil {
				unplaceable := &UnplaceableError{SubjectID: subject.ID, SubjectCode: subject.Code, Reason: reason}
				return nil, nil, appErrors.Wrap(unplaceable, appErrors.ErrUnplaceable.Code, appErrors.ErrUnplaceable.Status, unplaceable.Error())
			}
			placements = append(placements, block...)
			if usedFallback {
				fallbackUsed = true
			}
		}
		if fallbackUsed {
			warnings = append(warnings, fmt.Sprintf("capacity_fallback: subject %s placed in a room smaller than batch strength %d", subject.Code, batch.Strength))
		}
	}

	s.sortCanonical(placements)
	s.logger.Debug("schedule built",
		zap.String("batch_id", batch.ID),
		zap.Int("placements", len(placements)),
		zap.Int("warnings", len(warnings)))
	return placements, warnings, nil
}

// placeBlock finds the first (day, start, room) tuple that can host one
// contiguous block and commits it. Returns nil when every tuple is exhausted,
// along with the dominant blocking reason.
func (s *Scheduler) placeBlock(state *localState, binding models.BatchSubject, duration int, candidates []models.Classroom, fallback bool) ([]models.Placement, bool, UnplaceableReason) {
	subject := binding.Subject
	slots := s.grid.Slots()
	facultyHadWindow := false

	for _, day := range s.grid.days {
		if !subject.IsLab() && state.placedToday(subject.ID, day) {
			continue
		}
		for start := 0; start <= len(slots)-duration; start++ {
			if s.grid.CrossesLunch(start, duration) {
				continue
			}
			if !s.facultyFreeForBlock(state, binding.FacultyID, day, slots, start, duration) {
				continue
			}
			facultyHadWindow = true
			for _, room := range candidates {
				if !s.roomFreeForBlock(state, room.ID, day, slots, start, duration) {
					continue
				}
				block := s.commitBlock(state, binding, room, day, slots, start, duration)
				return block, fallback, ""
			}
		}
	}

	if facultyHadWindow {
		return nil, false, ReasonRoomBlocked
	}
	return nil, false, ReasonFacultyBlocked
}

func (s *Scheduler) facultyFreeForBlock(state *localState, facultyID, day string, slots []Slot, start, duration int) bool {
	for i := start; i < start+duration; i++ {
		if s.index.FacultyBusy(facultyID, day, slots[i].Start) {
			return false
		}
		if !state.facultyFree(facultyID, day, slots[i].Start) {
			return false
		}
	}
	return true
}

func (s *Scheduler) roomFreeForBlock(state *localState, roomID, day string, slots []Slot, start, duration int) bool {
	for i := start; i < start+duration; i++ {
		if s.index.RoomBusy(roomID, day, slots[i].Start) {
			return false
		}
		if !state.roomFree(roomID, day, slots[i].Start) {
			return false
		}
	}
	return true
}

func (s *Scheduler) commitBlock(state *localState, binding models.BatchSubject, room models.Classroom, day string, slots []Slot, start, duration int) []models.Placement {
	block := make([]models.Placement, 0, duration)
	for i := start; i < start+duration; i++ {
		state.reserve(binding.FacultyID, room.ID, day, slots[i].Start)
		block = append(block, models.Placement{
			Day:         day,
			StartTime:   slots[i].Start,
			EndTime:     slots[i].End,
			SubjectID:   binding.SubjectID,
			FacultyID:   binding.FacultyID,
			ClassroomID: room.ID,
			Type:        binding.Subject.Type,
		})
	}
	state.markDay(binding.SubjectID, day)
	return block
}

// orderBindings sorts hardest-first: longest block, then most weekly hours,
// then subject code/id for a deterministic tiebreak.
func orderBindings(bindings []models.BatchSubject) []models.BatchSubject {
	ordered := make([]models.BatchSubject, len(bindings))
	copy(ordered, bindings)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Subject, ordered[j].Subject
		if a.BlockDuration() != b.BlockDuration() {
			return a.BlockDuration() > b.BlockDuration()
		}
		if a.HoursPerWeek != b.HoursPerWeek {
			return a.HoursPerWeek > b.HoursPerWeek
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.ID < b.ID
	})
	return ordered
}

func (s *Scheduler) sortCanonical(placements []models.Placement) {
	dayIndex := make(map[string]int, len(s.grid.days))
	for i, day := range s.grid.days {
		dayIndex[day] = i
	}
	sort.SliceStable(placements, func(i, j int) bool {
		if dayIndex[placements[i].Day] != dayIndex[placements[j].Day] {
			return dayIndex[placements[i].Day] < dayIndex[placements[j].Day]
		}
		a, _ := s.grid.SlotIndexByStart(placements[i].StartTime)
		b, _ := s.grid.SlotIndexByStart(placements[j].StartTime)
		return a < b
	})
}

func roomTypeFor(subjectType models.SubjectType) models.RoomType {
	if subjectType == models.SubjectTypeLab {
		return models.RoomTypeLab
	}
	return models.RoomTypeLecture
}
