package brackets

import (
	"errors"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
)

var ErrInvalidCarCount = errors.New("car count must be at least 1")

// NewTrain lays out an empty, active train with carCount cars of two slots each.
func NewTrain(carCount int, now time.Time) (*models.Train, error) {
	if carCount < 1 {
		return nil, ErrInvalidCarCount
	}

	cars := make([]models.Car, carCount)
	for i := range cars {
		cars[i].Index = i
		for s := range cars[i].Slots {
			cars[i].Slots[s].Index = s
		}
	}

	return &models.Train{
		ID:        uuid.New(),
		CarCount:  carCount,
		Cars:      cars,
		Active:    true,
		CreatedAt: now.UTC(),
	}, nil
}

// FirstFreeSlot scans cars in order, slot 0 before slot 1.
func FirstFreeSlot(t *models.Train) (carIndex, slotIndex int, ok bool) {
	for ci := range t.Cars {
		for si := range t.Cars[ci].Slots {
			if !t.Cars[ci].Slots[si].Occupied {
				return ci, si, true
			}
		}
	}
	return 0, 0, false
}

// ValidSlot reports whether the indices address a slot of t.
func ValidSlot(t *models.Train, carIndex, slotIndex int) bool {
	return carIndex >= 0 && carIndex < len(t.Cars) &&
		slotIndex >= 0 && slotIndex < models.SlotsPerCar
}

// PendingCars lists cars holding two competitors with no fight in progress.
func PendingCars(t *models.Train) []int {
	var out []int
	for ci := range t.Cars {
		if t.Cars[ci].Full() && !t.Cars[ci].Fighting {
			out = append(out, ci)
		}
	}
	return out
}

// Survivors returns the occupants of t that are not eliminated, according to isEliminated.
func Survivors(t *models.Train, isEliminated func(uuid.UUID) bool) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range t.OccupantIDs() {
		if !isEliminated(id) {
			out = append(out, id)
		}
	}
	return out
}
