package engine

import "fmt"

// SlotLabel groups slots by the part of day they fall into.
type SlotLabel string

const (
	SlotMorning   SlotLabel = "morning"
	SlotAfternoon SlotLabel = "afternoon"
	SlotEvening   SlotLabel = "evening"
)

// Slot is one fixed 1-hour teaching period.
type Slot struct {
	Index int       `json:"index"`
	Start string    `json:"start"`
	End   string    `json:"end"`
	Label SlotLabel `json:"label"`
}

// Grid enumerates the fixed (day, slot) pairs of a teaching week and owns the
// lunch-break boundary rule. It is a pure value type; all methods are
// side-effect free.
type Grid struct {
	days          []string
	slots         []Slot
	lunchBoundary int
	slotByStart   map[string]int
}

// DefaultDays is the Monday-Friday teaching week.
var DefaultDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// DefaultSlots covers 09-12 and 13-17 with the 12-13 lunch break removed.
var DefaultSlots = []Slot{
	{Index: 0, Start: "09:00", End: "10:00", Label: SlotMorning},
	{Index: 1, Start: "10:00", End: "11:00", Label: SlotMorning},
	{Index: 2, Start: "11:00", End: "12:00", Label: SlotMorning},
	{Index: 3, Start: "13:00", End: "14:00", Label: SlotAfternoon},
	{Index: 4, Start: "14:00", End: "15:00", Label: SlotAfternoon},
	{Index: 5, Start: "15:00", End: "16:00", Label: SlotAfternoon},
	{Index: 6, Start: "16:00", End: "17:00", Label: SlotEvening},
}

// DefaultLunchBoundary is the slot index that begins the post-lunch half.
const DefaultLunchBoundary = 3

// DefaultGrid returns the standard Monday-Friday, 09-17 grid.
func DefaultGrid() Grid {
	grid, _ := NewGrid(DefaultDays, DefaultSlots, DefaultLunchBoundary)
	return grid
}

// NewGrid builds a grid from explicit days, slots, and the lunch boundary
// index. Reconfigured grids must supply the boundary explicitly.
func NewGrid(days []string, slots []Slot, lunchBoundary int) (Grid, error) {
	if len(days) == 0 {
		return Grid{}, fmt.Errorf("grid requires at least one working day")
	}
	if len(slots) == 0 {
		return Grid{}, fmt.Errorf("grid requires at least one time slot")
	}
	if lunchBoundary < 0 || lunchBoundary > len(slots) {
		return Grid{}, fmt.Errorf("lunch boundary %d outside slot range 0..%d", lunchBoundary, len(slots))
	}

	dayCopy := make([]string, len(days))
	copy(dayCopy, days)
	slotCopy := make([]Slot, len(slots))
	byStart := make(map[string]int, len(slots))
	for i, slot := range slots {
		slot.Index = i
		slotCopy[i] = slot
		byStart[slot.Start] = i
	}

	return Grid{
		days:          dayCopy,
		slots:         slotCopy,
		lunchBoundary: lunchBoundary,
		slotByStart:   byStart,
	}, nil
}

// GridForDays keeps the default slot layout but replaces the working days.
func GridForDays(days []string) (Grid, error) {
	return NewGrid(days, DefaultSlots, DefaultLunchBoundary)
}

// Days returns the ordered working-day identifiers.
func (g Grid) Days() []string {
	out := make([]string, len(g.days))
	copy(out, g.days)
	return out
}

// Slots returns the ordered slot descriptors.
func (g Grid) Slots() []Slot {
	out := make([]Slot, len(g.slots))
	copy(out, g.slots)
	return out
}

// SlotCount returns the number of teaching slots per day.
func (g Grid) SlotCount() int {
	return len(g.slots)
}

// SlotIndexByStart resolves a "HH:MM" start time to its slot index.
func (g Grid) SlotIndexByStart(start string) (int, bool) {
	idx, ok := g.slotByStart[start]
	return idx, ok
}

// CrossesLunch reports whether a block starting at slot index start with the
// given duration would straddle the lunch boundary. Blocks running past the
// end of the day also count as invalid here.
func (g Grid) CrossesLunch(start, duration int) bool {
	if start < 0 || duration < 1 || start+duration > len(g.slots) {
		return true
	}
	return start < g.lunchBoundary && start+duration > g.lunchBoundary
}

// UsableSlotsPerWeek is the total placement capacity of the grid.
func (g Grid) UsableSlotsPerWeek() int {
	return len(g.days) * len(g.slots)
}
