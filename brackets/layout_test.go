package brackets

import (
	"testing"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func occupy(t *models.Train, car, slot int) uuid.UUID {
	id := uuid.New()
	now := time.Now()
	t.Cars[car].Slots[slot].Occupied = true
	t.Cars[car].Slots[slot].CompetitorID = &id
	t.Cars[car].Slots[slot].ClaimedAt = &now
	t.OccupiedCount++
	return id
}

func TestNewTrain(t *testing.T) {
	train, err := NewTrain(3, time.Now())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, train.ID)
	assert.True(t, train.Active)
	assert.Equal(t, 6, train.Capacity())
	require.Len(t, train.Cars, 3)
	for i, car := range train.Cars {
		assert.Equal(t, i, car.Index)
		assert.Equal(t, 0, car.Slots[0].Index)
		assert.Equal(t, 1, car.Slots[1].Index)
		assert.False(t, car.Full())
	}

	_, err = NewTrain(0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCarCount)
}

func TestFirstFreeSlotFillsCarsInOrder(t *testing.T) {
	train, err := NewTrain(2, time.Now())
	require.NoError(t, err)

	want := [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	for _, w := range want {
		car, slot, ok := FirstFreeSlot(train)
		require.True(t, ok)
		assert.Equal(t, w, [2]int{car, slot})
		occupy(train, car, slot)
	}

	_, _, ok := FirstFreeSlot(train)
	assert.False(t, ok)
	assert.False(t, train.HasFreeSlot())
}

func TestFirstFreeSlotReusesVacatedSlot(t *testing.T) {
	train, err := NewTrain(2, time.Now())
	require.NoError(t, err)
	occupy(train, 0, 0)
	occupy(train, 1, 0)

	car, slot, ok := FirstFreeSlot(train)
	require.True(t, ok)
	assert.Equal(t, 0, car)
	assert.Equal(t, 1, slot)
}

func TestValidSlot(t *testing.T) {
	train, err := NewTrain(2, time.Now())
	require.NoError(t, err)

	assert.True(t, ValidSlot(train, 1, 1))
	assert.False(t, ValidSlot(train, 2, 0))
	assert.False(t, ValidSlot(train, -1, 0))
	assert.False(t, ValidSlot(train, 0, 2))
}

func TestPendingCarsAndSurvivors(t *testing.T) {
	train, err := NewTrain(3, time.Now())
	require.NoError(t, err)
	a := occupy(train, 0, 0)
	b := occupy(train, 0, 1)
	c := occupy(train, 1, 0)
	occupy(train, 2, 0)
	occupy(train, 2, 1)
	train.Cars[2].Fighting = true

	assert.Equal(t, []int{0}, PendingCars(train))

	eliminated := map[uuid.UUID]bool{b: true}
	survivors := Survivors(train, func(id uuid.UUID) bool { return eliminated[id] })
	assert.Contains(t, survivors, a)
	assert.Contains(t, survivors, c)
	assert.NotContains(t, survivors, b)
	assert.Len(t, survivors, 4)
}
