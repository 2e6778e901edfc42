package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

// runStoreContract exercises the behaviour every Store implementation must share.
// newStore must hand out an empty store on every call.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("competitor lifecycle", func(t *testing.T) { testCompetitorLifecycle(t, newStore(t)) })
	t.Run("slot claims are conditional", func(t *testing.T) { testSlotClaims(t, newStore(t)) })
	t.Run("failed unit of work leaves no trace", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("claims are sequenced", func(t *testing.T) { testClaimSequence(t, newStore(t)) })
	t.Run("fighting flag is compare and set", func(t *testing.T) { testFightingFlag(t, newStore(t)) })
	t.Run("open train lookup", func(t *testing.T) { testOpenTrain(t, newStore(t)) })
	t.Run("finish train and record result", func(t *testing.T) { testFinishTrain(t, newStore(t)) })
	t.Run("leaderboard ordering", func(t *testing.T) { testLeaderboard(t, newStore(t)) })
}

func newCompetitor(t *testing.T, s Store, weight models.WeightClass) *models.Competitor {
	t.Helper()
	c := &models.Competitor{
		OwnerID:     gofakeit.UUID(),
		Name:        gofakeit.Username(),
		WeightClass: weight,
		Attributes:  models.DefaultAttributes(),
	}
	require.NoError(t, s.CreateCompetitor(context.Background(), c))
	return c
}

func newTrain(carCount int) *models.Train {
	cars := make([]models.Car, carCount)
	for i := range cars {
		cars[i].Index = i
		cars[i].Slots[1].Index = 1
	}
	return &models.Train{
		ID:        uuid.New(),
		CarCount:  carCount,
		Cars:      cars,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func createTrain(t *testing.T, s Store, carCount int) *models.Train {
	t.Helper()
	train := newTrain(carCount)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateTrain(ctx, train)
	}))
	return train
}

func place(t *testing.T, s Store, trainID uuid.UUID, car, slot int, c *models.Competitor) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockTrain(ctx, trainID); err != nil {
			return err
		}
		if err := tx.ClaimSlot(ctx, trainID, car, slot, c.ID, time.Now()); err != nil {
			return err
		}
		return tx.AssignPlacement(ctx, c.ID, models.Placement{TrainID: trainID, CarIndex: car, SlotIndex: slot})
	}))
}

func testCompetitorLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	c := newCompetitor(t, s, models.WeightLightweight)
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, 1, c.Level)

	got, err := s.GetCompetitor(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, models.WeightLightweight, got.WeightClass)
	assert.Equal(t, models.DefaultAttributes(), got.Attributes)
	assert.Nil(t, got.Placement)

	byOwner, err := s.GetCompetitorByOwner(ctx, c.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byOwner.ID)

	dup := &models.Competitor{OwnerID: c.OwnerID, Name: "dup", WeightClass: models.WeightHeavyweight}
	assert.ErrorIs(t, s.CreateCompetitor(ctx, dup), ErrOwnerConflict)

	attrs := models.Attributes{Striking: 90, Speed: 10, Stamina: 20, Grappling: 30, Luck: 40, Defense: 0}
	updated, err := s.UpdateAttributes(ctx, c.ID, attrs)
	require.NoError(t, err)
	assert.Equal(t, attrs, updated.Attributes)

	_, err = s.GetCompetitor(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrCompetitorNotFound)
	_, err = s.UpdateAttributes(ctx, uuid.New(), attrs)
	assert.ErrorIs(t, err, ErrCompetitorNotFound)
}

func testSlotClaims(t *testing.T, s Store) {
	ctx := context.Background()
	train := createTrain(t, s, 2)
	a := newCompetitor(t, s, models.WeightLightweight)
	b := newCompetitor(t, s, models.WeightLightweight)

	place(t, s, train.ID, 0, 0, a)

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClaimSlot(ctx, train.ID, 0, 0, b.ID, time.Now())
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AssignPlacement(ctx, a.ID, models.Placement{TrainID: train.ID, CarIndex: 1, SlotIndex: 0})
	})
	assert.ErrorIs(t, err, ErrAlreadyPlaced)

	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ReleaseSlot(ctx, train.ID, 0, 0, b.ID)
	})
	assert.ErrorIs(t, err, ErrSlotNotHeld)

	got, err := s.GetTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OccupiedCount)
	require.True(t, got.Cars[0].Slots[0].Occupied)
	assert.Equal(t, a.ID, *got.Cars[0].Slots[0].CompetitorID)
	assert.NotNil(t, got.Cars[0].Slots[0].ClaimedAt)

	placed, err := s.GetCompetitor(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, placed.Placement)
	assert.Equal(t, models.Placement{TrainID: train.ID, CarIndex: 0, SlotIndex: 0}, *placed.Placement)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ReleaseSlot(ctx, train.ID, 0, 0, a.ID); err != nil {
			return err
		}
		return tx.ClearPlacement(ctx, a.ID)
	}))

	got, err = s.GetTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.Zero(t, got.OccupiedCount)
	assert.False(t, got.Cars[0].Slots[0].Occupied)

	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClearPlacement(ctx, a.ID)
	})
	assert.ErrorIs(t, err, ErrNotPlaced)
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	existing := createTrain(t, s, 1)
	c := newCompetitor(t, s, models.WeightFlyweight)
	fresh := newTrain(1)

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateTrain(ctx, fresh); err != nil {
			return err
		}
		if err := tx.ClaimSlot(ctx, existing.ID, 0, 0, c.ID, time.Now()); err != nil {
			return err
		}
		if err := tx.AssignPlacement(ctx, c.ID, models.Placement{TrainID: existing.ID}); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, err = s.GetTrain(ctx, fresh.ID)
	assert.ErrorIs(t, err, ErrTrainNotFound)

	got, err := s.GetTrain(ctx, existing.ID)
	require.NoError(t, err)
	assert.Zero(t, got.OccupiedCount)
	assert.False(t, got.Cars[0].Slots[0].Occupied)

	after, err := s.GetCompetitor(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, after.Placement)
}

func testFightingFlag(t *testing.T, s Store) {
	ctx := context.Background()
	train := createTrain(t, s, 1)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetFighting(ctx, train.ID, 0, true)
	}))
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetFighting(ctx, train.ID, 0, true)
	})
	assert.ErrorIs(t, err, ErrFightingConflict)

	got, err := s.GetTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.True(t, got.Cars[0].Fighting)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetFighting(ctx, train.ID, 0, false)
	}))
}

func testOpenTrain(t *testing.T, s Store) {
	ctx := context.Background()

	var none *models.Train
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		none, err = tx.LockOpenTrain(ctx)
		return err
	}))
	assert.Nil(t, none)

	full := createTrain(t, s, 1)
	place(t, s, full.ID, 0, 0, newCompetitor(t, s, models.WeightHeavyweight))
	place(t, s, full.ID, 0, 1, newCompetitor(t, s, models.WeightHeavyweight))
	open := createTrain(t, s, 1)

	var found *models.Train
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		found, err = tx.LockOpenTrain(ctx)
		return err
	}))
	require.NotNil(t, found)
	assert.Equal(t, open.ID, found.ID)

	pending, err := s.ListPendingCars(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PendingCar{{TrainID: full.ID, CarIndex: 0}}, pending)
}

func testFinishTrain(t *testing.T, s Store) {
	ctx := context.Background()
	train := createTrain(t, s, 1)
	winner := newCompetitor(t, s, models.WeightMiddleweight)
	loser := newCompetitor(t, s, models.WeightMiddleweight)
	at := time.Now().UTC().Truncate(time.Microsecond)

	verdict := &models.Verdict{
		Winner:        models.FighterResult{CompetitorID: winner.ID, Score: 300.5, XPGained: 40},
		Loser:         models.FighterResult{CompetitorID: loser.ID, Score: 250.25, XPGained: 12},
		DamagePercent: 20,
		Rounds: []models.RoundEvent{
			{Round: 1, Attacker: winner.ID, Defender: loser.ID, Amount: 20, Category: models.HitHeavy, Message: "hit"},
		},
		Duration:     1500 * time.Millisecond,
		WinnerCoins:  50,
		WinnerTokens: 1,
	}

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.RecordCarResult(ctx, train.ID, 0, models.CarResult{
			WinnerID: winner.ID, LoserID: loser.ID, At: at, Verdict: verdict,
		}); err != nil {
			return err
		}
		return tx.FinishTrain(ctx, train.ID, models.TrainWinner{CompetitorID: winner.ID, At: at})
	}))

	got, err := s.GetTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.Winner)
	assert.Equal(t, winner.ID, got.Winner.CompetitorID)
	require.NotNil(t, got.EndedAt)
	assert.True(t, at.Equal(*got.EndedAt))
	require.NotNil(t, got.Cars[0].LastResult)
	assert.Equal(t, loser.ID, got.Cars[0].LastResult.LoserID)
	assert.Equal(t, verdict, got.Cars[0].LastResult.Verdict)

	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.FinishTrain(ctx, train.ID, models.TrainWinner{CompetitorID: loser.ID, At: at})
	})
	assert.ErrorIs(t, err, ErrTrainNotActive)

	late := newCompetitor(t, s, models.WeightMiddleweight)
	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ClaimSlot(ctx, train.ID, 0, 1, late.ID, at)
	})
	assert.ErrorIs(t, err, ErrTrainNotActive)

	got, err = s.GetTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.Zero(t, got.OccupiedCount)
	assert.False(t, got.Cars[0].Slots[1].Occupied)
}

func testClaimSequence(t *testing.T, s Store) {
	ctx := context.Background()
	train := createTrain(t, s, 1)
	first := newCompetitor(t, s, models.WeightFlyweight)
	second := newCompetitor(t, s, models.WeightFlyweight)
	at := time.Now().UTC().Truncate(time.Second)

	for _, claim := range []struct {
		slot int
		c    *models.Competitor
	}{{1, first}, {0, second}} {
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.ClaimSlot(ctx, train.ID, 0, claim.slot, claim.c.ID, at)
		}))
	}

	got, err := s.GetTrain(ctx, train.ID)
	require.NoError(t, err)
	slots := got.Cars[0].Slots
	assert.True(t, slots[0].ClaimedAt.Equal(*slots[1].ClaimedAt))
	assert.Greater(t, slots[0].ClaimSeq, slots[1].ClaimSeq, "the later claim carries the larger sequence")

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.AssignPlacement(ctx, first.ID, models.Placement{TrainID: train.ID, SlotIndex: 1}); err != nil {
			return err
		}
		seen, err := tx.GetCompetitor(ctx, first.ID)
		if err != nil {
			return err
		}
		assert.True(t, seen.Placed(), "reads inside a transaction see its own writes")
		return nil
	}))
}

func testLeaderboard(t *testing.T, s Store) {
	ctx := context.Background()
	var cs []*models.Competitor
	for i := 0; i < 4; i++ {
		cs = append(cs, newCompetitor(t, s, models.WeightWelterweight))
	}
	stats := []struct{ wins, xp int }{{3, 10}, {5, 5}, {3, 50}, {9, 0}}

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		for i, c := range cs {
			locked, err := tx.LockCompetitor(ctx, c.ID)
			if err != nil {
				return err
			}
			locked.Wins = stats[i].wins
			locked.XP = stats[i].xp
			locked.Eliminated = i == 3
			if err := tx.SaveCompetitorStats(ctx, locked); err != nil {
				return err
			}
		}
		return nil
	}))

	byWins, err := s.ListLeaderboard(ctx, models.SortByWins, 10)
	require.NoError(t, err)
	require.Len(t, byWins, 3)
	assert.Equal(t, cs[1].ID, byWins[0].ID)
	tied := []uuid.UUID{byWins[1].ID, byWins[2].ID}
	assert.ElementsMatch(t, []uuid.UUID{cs[0].ID, cs[2].ID}, tied)
	assert.Less(t, byWins[1].ID.String(), byWins[2].ID.String())

	byXP, err := s.ListLeaderboard(ctx, models.SortByXP, 1)
	require.NoError(t, err)
	require.Len(t, byXP, 1)
	assert.Equal(t, cs[2].ID, byXP[0].ID)
	assert.Equal(t, 1, byXP[0].Level)
}
