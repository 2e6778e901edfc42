package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotsPerCar is fixed: a car is a pairing unit.
const SlotsPerCar = 2

// Slot is a single occupancy position inside a car.
type Slot struct {
	Index        int        `json:"index"`
	Occupied     bool       `json:"occupied"`
	CompetitorID *uuid.UUID `json:"competitor_id,omitempty"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	// ClaimSeq grows with every claim in the store; the larger value was claimed later.
	ClaimSeq     int64      `json:"-"`
}

// CarResult is the denormalised outcome of the last fight resolved in a car.
type CarResult struct {
	WinnerID uuid.UUID `json:"winner_id"`
	LoserID  uuid.UUID `json:"loser_id"`
	At       time.Time `json:"at"`
	Verdict  *Verdict  `json:"verdict,omitempty"`
}

// Car is an ordered pair of slots and the unit of fight triggering.
type Car struct {
	Index      int               `json:"index"`
	Slots      [SlotsPerCar]Slot `json:"slots"`
	Fighting   bool              `json:"fighting"`
	LastResult *CarResult        `json:"last_result,omitempty"`
}

// Full reports whether both slots hold a competitor.
func (c *Car) Full() bool {
	for i := range c.Slots {
		if !c.Slots[i].Occupied {
			return false
		}
	}
	return true
}

// TrainWinner records the sole survivor of a train.
type TrainWinner struct {
	CompetitorID uuid.UUID `json:"competitor_id"`
	At           time.Time `json:"at"`
}

// Train is one tournament instance: a fixed grid of cars accepting joiners until one survivor remains.
type Train struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	CarCount      int          `json:"car_count" db:"car_count"`
	Cars          []Car        `json:"cars" db:"-"`
	OccupiedCount int          `json:"occupied_count" db:"occupied_count"`
	Active        bool         `json:"active" db:"active"`
	Winner        *TrainWinner `json:"winner,omitempty" db:"-"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty" db:"ended_at"`
}

// Capacity is the total number of slots.
func (t *Train) Capacity() int {
	return t.CarCount * SlotsPerCar
}

// HasFreeSlot reports whether at least one slot is empty.
func (t *Train) HasFreeSlot() bool {
	return t.OccupiedCount < t.Capacity()
}

// Car returns the car at index or nil when out of range.
func (t *Train) Car(index int) *Car {
	if index < 0 || index >= len(t.Cars) {
		return nil
	}
	return &t.Cars[index]
}

// OccupantIDs lists the competitors currently holding slots in car order.
func (t *Train) OccupantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, t.OccupiedCount)
	for ci := range t.Cars {
		for si := range t.Cars[ci].Slots {
			if s := t.Cars[ci].Slots[si]; s.Occupied && s.CompetitorID != nil {
				ids = append(ids, *s.CompetitorID)
			}
		}
	}
	return ids
}

// Clone returns a deep copy.
func (t *Train) Clone() *Train {
	if t == nil {
		return nil
	}
	out := *t
	out.Cars = make([]Car, len(t.Cars))
	for i := range t.Cars {
		car := t.Cars[i]
		for si := range car.Slots {
			if id := car.Slots[si].CompetitorID; id != nil {
				v := *id
				car.Slots[si].CompetitorID = &v
			}
			if at := car.Slots[si].ClaimedAt; at != nil {
				v := *at
				car.Slots[si].ClaimedAt = &v
			}
		}
		if car.LastResult != nil {
			r := *car.LastResult
			car.LastResult = &r
		}
		out.Cars[i] = car
	}
	if t.Winner != nil {
		w := *t.Winner
		out.Winner = &w
	}
	if t.EndedAt != nil {
		e := *t.EndedAt
		out.EndedAt = &e
	}
	return &out
}
