package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/repositories"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxNameLength           = 64
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type CreateCompetitorInput struct {
	Name        string             `json:"name"`
	WeightClass models.WeightClass `json:"weight_class"`
	Attributes  *models.Attributes `json:"attributes,omitempty"`
}

// AttributePatch changes only the attributes that are set.
type AttributePatch struct {
	Striking  *int `json:"striking,omitempty"`
	Speed     *int `json:"speed,omitempty"`
	Stamina   *int `json:"stamina,omitempty"`
	Grappling *int `json:"grappling,omitempty"`
	Luck      *int `json:"luck,omitempty"`
	Defense   *int `json:"defense,omitempty"`
}

func (p AttributePatch) Empty() bool {
	return p.Striking == nil && p.Speed == nil && p.Stamina == nil &&
		p.Grappling == nil && p.Luck == nil && p.Defense == nil
}

func (p AttributePatch) applyTo(a models.Attributes) models.Attributes {
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&a.Striking, p.Striking)
	set(&a.Speed, p.Speed)
	set(&a.Stamina, p.Stamina)
	set(&a.Grappling, p.Grappling)
	set(&a.Luck, p.Luck)
	set(&a.Defense, p.Defense)
	return a.Clamped()
}

// Roster owns competitor records outside of fights.
type Roster struct {
	store  repositories.Store
	logger *slog.Logger
	tracer trace.Tracer
}

func NewRoster(store repositories.Store, logger *slog.Logger) *Roster {
	return &Roster{
		store:  store,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Create registers the single competitor of ownerID.
func (r *Roster) Create(ctx context.Context, ownerID string, in CreateCompetitorInput) (*models.Competitor, error) {
	ctx, span := r.tracer.Start(ctx, "Roster.Create", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrValidationFailed, maxNameLength)
	}
	if !in.WeightClass.Valid() {
		return nil, ErrInvalidWeightClass
	}
	if ownerID == "" {
		return nil, ErrForbiddenOperation
	}

	attrs := models.DefaultAttributes()
	if in.Attributes != nil {
		attrs = in.Attributes.Clamped()
	}

	now := time.Now().UTC()
	c := &models.Competitor{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		WeightClass: in.WeightClass,
		Attributes:  attrs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.RecomputeLevel()

	if err := r.store.CreateCompetitor(ctx, c); err != nil {
		return nil, mapStoreError(err)
	}
	r.logger.InfoContext(ctx, "competitor created",
		slog.String("competitor_id", c.ID.String()),
		slog.String("weight_class", string(c.WeightClass)),
	)
	return c, nil
}

func (r *Roster) Get(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	c, err := r.store.GetCompetitor(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return c, nil
}

func (r *Roster) GetByOwner(ctx context.Context, ownerID string) (*models.Competitor, error) {
	c, err := r.store.GetCompetitorByOwner(ctx, ownerID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return c, nil
}

// Authorize checks that userID may act for the competitor.
func (r *Roster) Authorize(ctx context.Context, competitorID uuid.UUID, userID string, isAdmin bool) error {
	c, err := r.Get(ctx, competitorID)
	if err != nil {
		return err
	}
	if isAdmin || c.OwnerID == userID {
		return nil
	}
	return ErrForbiddenOperation
}

// UpdateAttributes applies patch to the competitor's stats, clamping each to [0,100].
func (r *Roster) UpdateAttributes(ctx context.Context, competitorID uuid.UUID, userID string, isAdmin bool, patch AttributePatch) (*models.Competitor, error) {
	ctx, span := r.tracer.Start(ctx, "Roster.UpdateAttributes",
		trace.WithAttributes(attribute.String("competitor.id", competitorID.String())))
	defer span.End()

	if patch.Empty() {
		return nil, fmt.Errorf("%w: no attributes provided", ErrValidationFailed)
	}
	current, err := r.Get(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && current.OwnerID != userID {
		return nil, ErrForbiddenOperation
	}

	updated, err := r.store.UpdateAttributes(ctx, competitorID, patch.applyTo(current.Attributes))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return updated, nil
}

// Leaderboard ranks non-eliminated competitors by key, highest first.
// A zero limit selects the default; larger limits are capped.
func (r *Roster) Leaderboard(ctx context.Context, key models.LeaderboardSortKey, limit int) ([]models.LeaderboardEntry, error) {
	if key == "" {
		key = models.SortByWins
	}
	if !key.Valid() {
		return nil, ErrInvalidSortKey
	}
	switch {
	case limit < 0:
		return nil, ErrInvalidLimit
	case limit == 0:
		limit = defaultLeaderboardLimit
	case limit > maxLeaderboardLimit:
		limit = maxLeaderboardLimit
	}

	competitors, err := r.store.ListLeaderboard(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(competitors))
	for i, c := range competitors {
		entries = append(entries, models.LeaderboardEntry{
			Rank:          i + 1,
			CompetitorID:  c.ID,
			Name:          c.Name,
			Wins:          c.Wins,
			LongestStreak: c.LongestStreak,
			Tokens:        c.Tokens,
			XP:            c.XP,
		})
	}
	return entries, nil
}
