package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/fight-train/repositories"
)

// Error kinds. Every error returned by a service wraps exactly one of them.
var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidationFailed   = errors.New("validation failed")
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
)

// Not found
var (
	ErrCompetitorNotFound = fmt.Errorf("%w: competitor not found", ErrNotFound)
	ErrTrainNotFound      = fmt.Errorf("%w: train not found", ErrNotFound)
	ErrNotPlaced          = fmt.Errorf("%w: competitor holds no placement", ErrNotFound)
)

// Conflicts
var (
	ErrAlreadyPlaced        = fmt.Errorf("%w: competitor already holds a placement", ErrConflict)
	ErrCompetitorEliminated = fmt.Errorf("%w: competitor is eliminated", ErrConflict)
	ErrSlotOccupied         = fmt.Errorf("%w: slot already occupied", ErrConflict)
	ErrIneligiblePairing    = fmt.Errorf("%w: competitors are not eligible to fight", ErrConflict)
	ErrOwnerHasCompetitor   = fmt.Errorf("%w: owner already has a competitor", ErrConflict)
)

// Invalid state
var (
	ErrTrainInactive = fmt.Errorf("%w: train is no longer active", ErrInvalidState)
	ErrCarNotReady   = fmt.Errorf("%w: car does not hold two competitors", ErrInvalidState)
	ErrCarFighting   = fmt.Errorf("%w: car is already fighting", ErrInvalidState)
)

// Validation
var (
	ErrInvalidSlot        = fmt.Errorf("%w: car or slot index out of range", ErrValidationFailed)
	ErrInvalidWeightClass = fmt.Errorf("%w: unknown weight class", ErrValidationFailed)
	ErrNameRequired       = fmt.Errorf("%w: name is required", ErrValidationFailed)
	ErrInvalidSortKey     = fmt.Errorf("%w: unknown leaderboard sort key", ErrValidationFailed)
	ErrInvalidLimit       = fmt.Errorf("%w: limit must be positive", ErrValidationFailed)
)

// mapStoreError translates repository sentinels into service errors.
// Errors that are already service errors pass through unchanged.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrCompetitorNotFound):
		return ErrCompetitorNotFound
	case errors.Is(err, repositories.ErrTrainNotFound):
		return ErrTrainNotFound
	case errors.Is(err, repositories.ErrSlotTaken):
		return ErrSlotOccupied
	case errors.Is(err, repositories.ErrAlreadyPlaced):
		return ErrAlreadyPlaced
	case errors.Is(err, repositories.ErrNotPlaced):
		return ErrNotPlaced
	case errors.Is(err, repositories.ErrFightingConflict):
		return ErrCarFighting
	case errors.Is(err, repositories.ErrTrainNotActive):
		return ErrTrainInactive
	case errors.Is(err, repositories.ErrOwnerConflict):
		return ErrOwnerHasCompetitor
	default:
		return err
	}
}
