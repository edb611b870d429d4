package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classforge/timetable-api/internal/models"
)

func TestResourcePoolPartition(t *testing.T) {
	rooms := []models.Classroom{
		{ID: "lab-1", Capacity: 30, Type: models.RoomTypeLab, Active: true},
		{ID: "sem-1", Capacity: 25, Type: models.RoomTypeSeminar, Active: true},
		{ID: "lec-1", Capacity: 60, Type: models.RoomTypeLecture, Active: true},
		{ID: "lec-2", Capacity: 40, Type: models.RoomTypeLecture, Active: false},
	}

	pool := NewResourcePool(rooms)

	lecture := pool.RoomsFor(models.SubjectTypeTheory)
	require.Len(t, lecture, 2, "seminar rooms join the lecture pool, inactive rooms are skipped")
	assert.Equal(t, "sem-1", lecture[0].ID)
	assert.Equal(t, "lec-1", lecture[1].ID)

	lab := pool.RoomsFor(models.SubjectTypeLab)
	require.Len(t, lab, 1)
	assert.Equal(t, "lab-1", lab[0].ID)

	assert.True(t, pool.HasRoomsFor(models.SubjectTypePractical))
	assert.True(t, pool.HasRoomsFor(models.SubjectTypeSeminar))
}

func TestResourcePoolBestFitOrder(t *testing.T) {
	rooms := []models.Classroom{
		lectureRoom("big", 100),
		lectureRoom("small", 30),
		lectureRoom("mid", 50),
	}
	pool := NewResourcePool(rooms)

	candidates, fallback := pool.Candidates(models.SubjectTypeTheory, 40, true)
	require.False(t, fallback)
	require.Len(t, candidates, 2)
	assert.Equal(t, "mid", candidates[0].ID)
	assert.Equal(t, "big", candidates[1].ID)
}

func TestResourcePoolCapacityFallback(t *testing.T) {
	pool := NewResourcePool([]models.Classroom{lectureRoom("a", 40), lectureRoom("b", 50)})

	candidates, fallback := pool.Candidates(models.SubjectTypeTheory, 60, true)
	require.True(t, fallback)
	require.Len(t, candidates, 1)
	assert.Equal(t, "b", candidates[0].ID)

	candidates, fallback = pool.Candidates(models.SubjectTypeTheory, 60, false)
	assert.False(t, fallback)
	assert.Empty(t, candidates)
}

func TestResourcePoolStableTiebreak(t *testing.T) {
	pool := NewResourcePool([]models.Classroom{
		lectureRoom("b-room", 40),
		lectureRoom("a-room", 40),
	})
	candidates, _ := pool.Candidates(models.SubjectTypeTheory, 30, true)
	require.Len(t, candidates, 2)
	assert.Equal(t, "a-room", candidates[0].ID)
}
