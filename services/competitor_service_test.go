package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestRosterCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	c, err := f.roster.Create(ctx, "owner-1", CreateCompetitorInput{Name: "  Ada  ", WeightClass: models.WeightLightweight})
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, models.DefaultAttributes(), c.Attributes)
	assert.Equal(t, 1, c.Level)
	assert.False(t, c.Placed())

	_, err = f.roster.Create(ctx, "owner-1", CreateCompetitorInput{Name: "Other", WeightClass: models.WeightLightweight})
	assert.ErrorIs(t, err, ErrOwnerHasCompetitor)
	assert.ErrorIs(t, err, ErrConflict)

	cases := []struct {
		name    string
		in      CreateCompetitorInput
		wantErr error
	}{
		{"blank name", CreateCompetitorInput{Name: "   ", WeightClass: models.WeightLightweight}, ErrNameRequired},
		{"long name", CreateCompetitorInput{Name: strings.Repeat("x", maxNameLength+1), WeightClass: models.WeightLightweight}, ErrValidationFailed},
		{"unknown weight class", CreateCompetitorInput{Name: "Bo", WeightClass: "sumo"}, ErrInvalidWeightClass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.roster.Create(ctx, uuid.NewString(), tc.in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRosterCreateClampsAttributes(t *testing.T) {
	f := newFixture(t, 2)
	c, err := f.roster.Create(context.Background(), "owner", CreateCompetitorInput{
		Name:        "Clamp",
		WeightClass: models.WeightMiddleweight,
		Attributes:  &models.Attributes{Striking: 150, Speed: -3, Stamina: 70, Grappling: 100, Luck: 0, Defense: 55},
	})
	require.NoError(t, err)
	assert.Equal(t, models.Attributes{Striking: 100, Speed: 0, Stamina: 70, Grappling: 100, Luck: 0, Defense: 55}, c.Attributes)
}

func TestRosterUpdateAttributes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	c, err := f.roster.Create(ctx, "owner", CreateCompetitorInput{Name: "Patch", WeightClass: models.WeightWelterweight})
	require.NoError(t, err)

	updated, err := f.roster.UpdateAttributes(ctx, c.ID, "owner", false, AttributePatch{Striking: intPtr(120), Luck: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Attributes.Striking)
	assert.Equal(t, 10, updated.Attributes.Luck)
	assert.Equal(t, models.DefaultAttributeValue, updated.Attributes.Speed)

	_, err = f.roster.UpdateAttributes(ctx, c.ID, "intruder", false, AttributePatch{Speed: intPtr(1)})
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	_, err = f.roster.UpdateAttributes(ctx, c.ID, "admin", true, AttributePatch{Speed: intPtr(1)})
	assert.NoError(t, err)

	_, err = f.roster.UpdateAttributes(ctx, c.ID, "owner", false, AttributePatch{})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.roster.UpdateAttributes(ctx, uuid.New(), "owner", false, AttributePatch{Speed: intPtr(1)})
	assert.ErrorIs(t, err, ErrCompetitorNotFound)
}

func TestRosterAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	c, err := f.roster.Create(ctx, "owner", CreateCompetitorInput{Name: "Auth", WeightClass: models.WeightFlyweight})
	require.NoError(t, err)

	assert.NoError(t, f.roster.Authorize(ctx, c.ID, "owner", false))
	assert.NoError(t, f.roster.Authorize(ctx, c.ID, "someone", true))
	assert.ErrorIs(t, f.roster.Authorize(ctx, c.ID, "someone", false), ErrForbiddenOperation)
	assert.ErrorIs(t, f.roster.Authorize(ctx, uuid.New(), "owner", false), ErrNotFound)
}

func setStats(t *testing.T, store repositories.Store, id uuid.UUID, mutate func(c *models.Competitor)) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		c, err := tx.LockCompetitor(ctx, id)
		if err != nil {
			return err
		}
		mutate(c)
		return tx.SaveCompetitorStats(ctx, c)
	})
	require.NoError(t, err)
}

func TestRosterLeaderboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	a := f.competitor(t, models.WeightLightweight)
	b := f.competitor(t, models.WeightLightweight)
	c := f.competitor(t, models.WeightLightweight)
	out := f.competitor(t, models.WeightLightweight)

	setStats(t, f.store, a.ID, func(c *models.Competitor) { c.Wins, c.Tokens = 3, 1 })
	setStats(t, f.store, b.ID, func(c *models.Competitor) { c.Wins, c.Tokens = 5, 9 })
	setStats(t, f.store, c.ID, func(c *models.Competitor) { c.Wins, c.Tokens = 3, 4 })
	setStats(t, f.store, out.ID, func(c *models.Competitor) { c.Wins, c.Eliminated = 10, true })

	entries, err := f.roster.Leaderboard(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, b.ID, entries[0].CompetitorID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 3, entries[2].Rank)

	tied := []uuid.UUID{entries[1].CompetitorID, entries[2].CompetitorID}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, c.ID}, tied)
	assert.Less(t, tied[0].String(), tied[1].String(), "ties break by id")

	byTokens, err := f.roster.Leaderboard(ctx, models.SortByTokens, 2)
	require.NoError(t, err)
	require.Len(t, byTokens, 2)
	assert.Equal(t, []uuid.UUID{b.ID, c.ID}, []uuid.UUID{byTokens[0].CompetitorID, byTokens[1].CompetitorID})

	_, err = f.roster.Leaderboard(ctx, "elo", 10)
	assert.ErrorIs(t, err, ErrInvalidSortKey)
	_, err = f.roster.Leaderboard(ctx, models.SortByXP, -1)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	capped, err := f.roster.Leaderboard(ctx, models.SortByXP, 1000)
	require.NoError(t, err)
	assert.Len(t, capped, 3)
}

func TestFightSweeperRunsOnSchedule(t *testing.T) {
	f := newFixture(t, 2)
	train := f.openTrain(t)
	f.seat(t, train, 0, f.competitor(t, models.WeightLightweight), f.competitor(t, models.WeightLightweight))

	sweeper, err := NewFightSweeper(f.trains, 20*time.Millisecond, discardLogger())
	require.NoError(t, err)
	sweeper.Start()
	t.Cleanup(func() { assert.NoError(t, sweeper.Shutdown()) })

	assert.Eventually(t, func() bool {
		stored, err := f.store.GetTrain(context.Background(), train.ID)
		return err == nil && !stored.Active
	}, 2*time.Second, 10*time.Millisecond)
}
