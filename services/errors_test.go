package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Dosada05/fight-train/repositories"
	"github.com/stretchr/testify/assert"
)

func TestMapStoreError(t *testing.T) {
	cases := []struct {
		in   error
		want error
		kind error
	}{
		{repositories.ErrCompetitorNotFound, ErrCompetitorNotFound, ErrNotFound},
		{repositories.ErrTrainNotFound, ErrTrainNotFound, ErrNotFound},
		{fmt.Errorf("claim: %w", repositories.ErrSlotTaken), ErrSlotOccupied, ErrConflict},
		{repositories.ErrAlreadyPlaced, ErrAlreadyPlaced, ErrConflict},
		{repositories.ErrOwnerConflict, ErrOwnerHasCompetitor, ErrConflict},
		{repositories.ErrFightingConflict, ErrCarFighting, ErrInvalidState},
		{repositories.ErrTrainNotActive, ErrTrainInactive, ErrInvalidState},
		{repositories.ErrNotPlaced, ErrNotPlaced, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.in.Error(), func(t *testing.T) {
			got := mapStoreError(tc.in)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.kind)
			assert.True(t, isDomainError(got))
		})
	}

	assert.NoError(t, mapStoreError(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, mapStoreError(boom))
	assert.False(t, isDomainError(boom))
	assert.ErrorIs(t, mapStoreError(ErrCarNotReady), ErrInvalidState, "service errors pass through")
}
