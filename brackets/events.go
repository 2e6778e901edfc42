package brackets

import (
	"context"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
)

type EventType string

const (
	EventSnapshot        EventType = "train-snapshot"
	EventSlotClaimed     EventType = "slot-claimed"
	EventSlotVacated     EventType = "slot-vacated"
	EventFightResolved   EventType = "fight-resolved"
	EventTournamentEnded EventType = "tournament-ended"
)

// WebSocketMessage is the envelope every subscriber of a train receives.
type WebSocketMessage struct {
	Type    EventType `json:"type"`
	TrainID uuid.UUID `json:"train_id"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

type SlotClaimedPayload struct {
	CompetitorID  uuid.UUID `json:"competitor_id"`
	CarIndex      int       `json:"car_index"`
	SlotIndex     int       `json:"slot_index"`
	OccupiedCount int       `json:"occupied_count"`
}

// SlotVacatedPayload announces a competitor leaving a slot without a fight.
type SlotVacatedPayload struct {
	CompetitorID  uuid.UUID `json:"competitor_id"`
	CarIndex      int       `json:"car_index"`
	SlotIndex     int       `json:"slot_index"`
	OccupiedCount int       `json:"occupied_count"`
}

type FightResolvedPayload struct {
	CarIndex int             `json:"car_index"`
	Verdict  *models.Verdict `json:"verdict"`
}

type TournamentEndedPayload struct {
	Winner models.TrainWinner `json:"winner"`
}

// Publisher delivers messages to the subscribers of a train. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, msg WebSocketMessage) error
}

const roomPrefix = "train_"

// RoomID is the hub room that carries a train's events.
func RoomID(trainID uuid.UUID) string {
	return roomPrefix + trainID.String()
}

func SnapshotMessage(t *models.Train, now time.Time) WebSocketMessage {
	return WebSocketMessage{Type: EventSnapshot, TrainID: t.ID, Payload: t, SentAt: now.UTC()}
}
