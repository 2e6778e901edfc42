package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
)

var (
	ErrCompetitorNotFound = errors.New("competitor not found")
	ErrTrainNotFound      = errors.New("train not found")
	ErrOwnerConflict      = errors.New("owner already has a competitor")
	ErrSlotTaken          = errors.New("slot already occupied")
	ErrSlotNotHeld        = errors.New("slot is not held by the competitor")
	ErrAlreadyPlaced      = errors.New("competitor already placed or eliminated")
	ErrNotPlaced          = errors.New("competitor holds no placement")
	ErrFightingConflict   = errors.New("car fighting flag already in requested state")
	ErrTrainNotActive     = errors.New("train is not active")

	// ErrTxConflict marks a transaction that lost a race and may be retried as a whole.
	ErrTxConflict = errors.New("transaction conflict")
)

// PendingCar addresses a full car of an active train that has not fought yet.
type PendingCar struct {
	TrainID  uuid.UUID
	CarIndex int
}

// Store is the persistence port of the engine. Reads outside WithinTx return
// committed snapshots; every mutation of trains and placements goes through a Tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateCompetitor(ctx context.Context, c *models.Competitor) error
	GetCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error)
	GetCompetitorByOwner(ctx context.Context, ownerID string) (*models.Competitor, error)
	UpdateAttributes(ctx context.Context, id uuid.UUID, attrs models.Attributes) (*models.Competitor, error)
	ListLeaderboard(ctx context.Context, key models.LeaderboardSortKey, limit int) ([]*models.Competitor, error)

	GetTrain(ctx context.Context, id uuid.UUID) (*models.Train, error)
	ListPendingCars(ctx context.Context) ([]PendingCar, error)
}

// Tx is a unit of work. Trains must be locked before competitors.
// Conditional writes fail with the matching sentinel instead of overwriting.
type Tx interface {
	LockTrain(ctx context.Context, id uuid.UUID) (*models.Train, error)
	// LockOpenTrain returns the oldest active train with a free slot, or nil when none exists.
	LockOpenTrain(ctx context.Context) (*models.Train, error)
	CreateTrain(ctx context.Context, t *models.Train) error
	FinishTrain(ctx context.Context, trainID uuid.UUID, winner models.TrainWinner) error

	// ClaimSlot fails with ErrTrainNotActive on an ended train and ErrSlotTaken on an occupied slot.
	ClaimSlot(ctx context.Context, trainID uuid.UUID, carIndex, slotIndex int, competitorID uuid.UUID, at time.Time) error
	ReleaseSlot(ctx context.Context, trainID uuid.UUID, carIndex, slotIndex int, competitorID uuid.UUID) error
	SetFighting(ctx context.Context, trainID uuid.UUID, carIndex int, fighting bool) error
	RecordCarResult(ctx context.Context, trainID uuid.UUID, carIndex int, result models.CarResult) error

	// GetCompetitor reads without locking and sees the transaction's own writes.
	GetCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error)
	LockCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error)
	AssignPlacement(ctx context.Context, competitorID uuid.UUID, p models.Placement) error
	ClearPlacement(ctx context.Context, competitorID uuid.UUID) error
	SaveCompetitorStats(ctx context.Context, c *models.Competitor) error
}
