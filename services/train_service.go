package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/fight-train/brackets"
	"github.com/Dosada05/fight-train/combat"
	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/repositories"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName    = "github.com/Dosada05/fight-train/services"
	maxTxAttempts = 5
)

// FightOutcome is the applied result of one resolved car.
type FightOutcome struct {
	TrainID         uuid.UUID          `json:"train_id"`
	CarIndex        int                `json:"car_index"`
	At              time.Time          `json:"at"`
	Verdict         models.Verdict     `json:"verdict"`
	Winner          *models.Competitor `json:"winner"`
	Loser           *models.Competitor `json:"loser"`
	TournamentEnded bool               `json:"tournament_ended"`
}

// PlacementResult is returned by Join and PlaceAt. Train is the post-commit snapshot.
type PlacementResult struct {
	Train     *models.Train    `json:"train"`
	Placement models.Placement `json:"placement"`
	Fight     *FightOutcome    `json:"fight,omitempty"`
}

type CompetitorStatus struct {
	Competitor  *models.Competitor `json:"competitor"`
	Placement   models.Placement   `json:"placement"`
	TrainActive bool               `json:"train_active"`
	Car         models.Car         `json:"car"`
}

// txEffects collects what a transaction wants to announce once it has committed.
type txEffects struct {
	events      []brackets.WebSocketMessage
	fights      []*FightOutcome
	claims      int
	trainsEnded int
}

// TrainService runs the train state machine: claims, fights, elimination and termination.
type TrainService struct {
	store    repositories.Store
	resolver *combat.Resolver
	rules    models.Rules
	notifier *Notifier
	archive  *VerdictArchive
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewTrainService(
	store repositories.Store,
	resolver *combat.Resolver,
	rules models.Rules,
	notifier *Notifier,
	archive *VerdictArchive,
	metrics *Metrics,
	logger *slog.Logger,
) *TrainService {
	return &TrainService{
		store:    store,
		resolver: resolver,
		rules:    rules,
		notifier: notifier,
		archive:  archive,
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Join places the competitor into the first free slot of the oldest open train,
// opening a new train when none has room. Filling a car resolves its fight.
func (s *TrainService) Join(ctx context.Context, competitorID uuid.UUID) (*PlacementResult, error) {
	ctx, span := s.tracer.Start(ctx, "TrainService.Join",
		trace.WithAttributes(attribute.String("competitor.id", competitorID.String())))
	defer span.End()

	if err := s.precheckJoinable(ctx, competitorID); err != nil {
		return nil, s.fail(ctx, span, err)
	}

	var result *PlacementResult
	fx, err := s.inTx(ctx, func(ctx context.Context, tx repositories.Tx, fx *txEffects) error {
		train, err := tx.LockOpenTrain(ctx)
		if err != nil {
			return err
		}
		// The row lock may have waited on a transaction that ended or filled the train.
		if train == nil || !train.Active || !train.HasFreeSlot() {
			if train, err = brackets.NewTrain(s.rules.CarCount, s.now()); err != nil {
				return err
			}
			if err := tx.CreateTrain(ctx, train); err != nil {
				return err
			}
		}
		carIndex, slotIndex, _ := brackets.FirstFreeSlot(train)
		result, err = s.claim(ctx, tx, fx, train, competitorID, carIndex, slotIndex)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	span.SetAttributes(attribute.String("train.id", result.Placement.TrainID.String()))
	s.afterCommit(ctx, fx)
	return result, nil
}

// PlaceAt claims a caller-chosen slot.
func (s *TrainService) PlaceAt(ctx context.Context, competitorID, trainID uuid.UUID, carIndex, slotIndex int) (*PlacementResult, error) {
	ctx, span := s.tracer.Start(ctx, "TrainService.PlaceAt", trace.WithAttributes(
		attribute.String("competitor.id", competitorID.String()),
		attribute.String("train.id", trainID.String()),
		attribute.Int("car.index", carIndex),
		attribute.Int("slot.index", slotIndex),
	))
	defer span.End()

	if carIndex < 0 || slotIndex < 0 || slotIndex >= models.SlotsPerCar {
		return nil, s.fail(ctx, span, ErrInvalidSlot)
	}
	if err := s.precheckJoinable(ctx, competitorID); err != nil {
		return nil, s.fail(ctx, span, err)
	}

	var result *PlacementResult
	fx, err := s.inTx(ctx, func(ctx context.Context, tx repositories.Tx, fx *txEffects) error {
		train, err := tx.LockTrain(ctx, trainID)
		if err != nil {
			return err
		}
		if !train.Active {
			return ErrTrainInactive
		}
		if !brackets.ValidSlot(train, carIndex, slotIndex) {
			return ErrInvalidSlot
		}
		result, err = s.claim(ctx, tx, fx, train, competitorID, carIndex, slotIndex)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	s.afterCommit(ctx, fx)
	return result, nil
}

// Leave vacates the competitor's slot. Leaving while unplaced is a no-op.
func (s *TrainService) Leave(ctx context.Context, competitorID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "TrainService.Leave",
		trace.WithAttributes(attribute.String("competitor.id", competitorID.String())))
	defer span.End()

	fx, err := s.inTx(ctx, func(ctx context.Context, tx repositories.Tx, fx *txEffects) error {
		current, err := tx.GetCompetitor(ctx, competitorID)
		if err != nil {
			return err
		}
		if !current.Placed() {
			return nil
		}
		placement := *current.Placement

		train, err := tx.LockTrain(ctx, placement.TrainID)
		if err != nil {
			return err
		}
		locked, err := tx.LockCompetitor(ctx, competitorID)
		if err != nil {
			return err
		}
		if !locked.Placed() {
			return nil
		}
		if *locked.Placement != placement {
			// Moved between the read and the lock; start over with the new placement.
			return repositories.ErrTxConflict
		}
		if car := train.Car(placement.CarIndex); car != nil && car.Fighting {
			return ErrCarFighting
		}
		if err := tx.ReleaseSlot(ctx, placement.TrainID, placement.CarIndex, placement.SlotIndex, competitorID); err != nil {
			return err
		}
		if err := tx.ClearPlacement(ctx, competitorID); err != nil {
			return err
		}
		fx.events = append(fx.events, vacatedEvent(train, placement.CarIndex, placement.SlotIndex, competitorID, s.now()))
		return nil
	})
	if err != nil {
		return s.fail(ctx, span, err)
	}
	s.afterCommit(ctx, fx)
	return nil
}

// vacatedEvent describes competitorID leaving a slot of train, which still counts the slot as occupied.
func vacatedEvent(train *models.Train, carIndex, slotIndex int, competitorID uuid.UUID, at time.Time) brackets.WebSocketMessage {
	return brackets.WebSocketMessage{
		Type:    brackets.EventSlotVacated,
		TrainID: train.ID,
		Payload: brackets.SlotVacatedPayload{
			CompetitorID:  competitorID,
			CarIndex:      carIndex,
			SlotIndex:     slotIndex,
			OccupiedCount: train.OccupiedCount - 1,
		},
		SentAt: at,
	}
}

// Status reports where the competitor is placed.
func (s *TrainService) Status(ctx context.Context, competitorID uuid.UUID) (*CompetitorStatus, error) {
	ctx, span := s.tracer.Start(ctx, "TrainService.Status",
		trace.WithAttributes(attribute.String("competitor.id", competitorID.String())))
	defer span.End()

	c, err := s.store.GetCompetitor(ctx, competitorID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	if !c.Placed() {
		return nil, s.fail(ctx, span, ErrNotPlaced)
	}
	train, err := s.store.GetTrain(ctx, c.Placement.TrainID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	car := train.Car(c.Placement.CarIndex)
	if car == nil {
		return nil, s.fail(ctx, span, fmt.Errorf("placement of %s points at missing car %d", c.ID, c.Placement.CarIndex))
	}
	return &CompetitorStatus{
		Competitor:  c,
		Placement:   *c.Placement,
		TrainActive: train.Active,
		Car:         *car,
	}, nil
}

func (s *TrainService) GetTrain(ctx context.Context, trainID uuid.UUID) (*models.Train, error) {
	train, err := s.store.GetTrain(ctx, trainID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return train, nil
}

// TriggerFight resolves a full car on demand. A car that is not full, already
// fighting or in an ended train yields ErrInvalidState without side effects.
func (s *TrainService) TriggerFight(ctx context.Context, trainID uuid.UUID, carIndex int) (*FightOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "TrainService.TriggerFight", trace.WithAttributes(
		attribute.String("train.id", trainID.String()),
		attribute.Int("car.index", carIndex),
	))
	defer span.End()

	var (
		outcome *FightOutcome
		gateErr error
	)
	fx, err := s.inTx(ctx, func(ctx context.Context, tx repositories.Tx, fx *txEffects) error {
		gateErr = nil
		o, err := s.resolveCar(ctx, tx, fx, trainID, carIndex)
		if errors.Is(err, ErrIneligiblePairing) {
			// Keep the eviction of the latest occupant, report the rejection afterwards.
			gateErr = err
			return nil
		}
		outcome = o
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	s.afterCommit(ctx, fx)
	if gateErr != nil {
		return nil, s.fail(ctx, span, gateErr)
	}
	return outcome, nil
}

// SweepPendingFights resolves every full car that has not fought yet and returns how many were resolved.
func (s *TrainService) SweepPendingFights(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingCars(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending cars: %w", err)
	}

	resolved := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		_, err := s.TriggerFight(ctx, p.TrainID, p.CarIndex)
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict):
			// Raced with a join or rejected by the eligibility gate.
		default:
			s.logger.WarnContext(ctx, "sweeper failed to resolve car",
				slog.String("train_id", p.TrainID.String()),
				slog.Int("car_index", p.CarIndex),
				slog.Any("error", err),
			)
		}
	}
	return resolved, nil
}

func (s *TrainService) precheckJoinable(ctx context.Context, competitorID uuid.UUID) error {
	c, err := s.store.GetCompetitor(ctx, competitorID)
	if err != nil {
		return err
	}
	return checkJoinable(c)
}

func checkJoinable(c *models.Competitor) error {
	if c.Eliminated {
		return ErrCompetitorEliminated
	}
	if c.Placed() {
		return ErrAlreadyPlaced
	}
	return nil
}

func (s *TrainService) claim(
	ctx context.Context,
	tx repositories.Tx,
	fx *txEffects,
	train *models.Train,
	competitorID uuid.UUID,
	carIndex, slotIndex int,
) (*PlacementResult, error) {
	c, err := tx.LockCompetitor(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	if err := checkJoinable(c); err != nil {
		return nil, err
	}
	car := &train.Cars[carIndex]
	if car.Slots[slotIndex].Occupied {
		return nil, ErrSlotOccupied
	}

	now := s.now()
	if err := tx.ClaimSlot(ctx, train.ID, carIndex, slotIndex, c.ID, now); err != nil {
		return nil, err
	}
	placement := models.Placement{TrainID: train.ID, CarIndex: carIndex, SlotIndex: slotIndex}
	if err := tx.AssignPlacement(ctx, c.ID, placement); err != nil {
		return nil, err
	}
	fx.claims++
	fx.events = append(fx.events, brackets.WebSocketMessage{
		Type:    brackets.EventSlotClaimed,
		TrainID: train.ID,
		Payload: brackets.SlotClaimedPayload{
			CompetitorID:  c.ID,
			CarIndex:      carIndex,
			SlotIndex:     slotIndex,
			OccupiedCount: train.OccupiedCount + 1,
		},
		SentAt: now,
	})

	result := &PlacementResult{Placement: placement}
	if fillsCar(car, slotIndex) {
		if result.Fight, err = s.resolveCar(ctx, tx, fx, train.ID, carIndex); err != nil {
			return nil, err
		}
	}
	if result.Train, err = tx.LockTrain(ctx, train.ID); err != nil {
		return nil, err
	}
	return result, nil
}

// fillsCar reports whether claiming slotIndex leaves no empty slot in car.
func fillsCar(car *models.Car, slotIndex int) bool {
	for i := range car.Slots {
		if i != slotIndex && !car.Slots[i].Occupied {
			return false
		}
	}
	return true
}

// latestOccupant returns the slot claimed most recently.
func latestOccupant(car *models.Car) int {
	latest := 0
	for i := 1; i < len(car.Slots); i++ {
		if car.Slots[i].ClaimSeq > car.Slots[latest].ClaimSeq {
			latest = i
		}
	}
	return latest
}

func ineligibility(a, b *models.Competitor) string {
	switch {
	case a.Eliminated || b.Eliminated:
		return "an eliminated competitor cannot fight"
	case a.WeightClass != b.WeightClass:
		return fmt.Sprintf("weight classes differ (%s vs %s)", a.WeightClass, b.WeightClass)
	default:
		return ""
	}
}

// resolveCar runs the fight of a full car inside tx and applies its outcome.
// On an ineligible pairing the most recent occupant is evicted and an
// ErrIneligiblePairing is returned; the caller decides whether to keep the eviction.
func (s *TrainService) resolveCar(ctx context.Context, tx repositories.Tx, fx *txEffects, trainID uuid.UUID, carIndex int) (*FightOutcome, error) {
	train, err := tx.LockTrain(ctx, trainID)
	if err != nil {
		return nil, err
	}
	if !train.Active {
		return nil, ErrTrainInactive
	}
	car := train.Car(carIndex)
	if car == nil {
		return nil, ErrInvalidSlot
	}
	if car.Fighting {
		return nil, ErrCarFighting
	}
	if !car.Full() {
		return nil, ErrCarNotReady
	}

	var fighters [models.SlotsPerCar]*models.Competitor
	for i, slot := range car.Slots {
		if fighters[i], err = tx.LockCompetitor(ctx, *slot.CompetitorID); err != nil {
			return nil, err
		}
	}

	if reason := ineligibility(fighters[0], fighters[1]); reason != "" {
		evict := latestOccupant(car)
		evicted := fighters[evict].ID
		if err := tx.ReleaseSlot(ctx, trainID, carIndex, evict, evicted); err != nil {
			return nil, err
		}
		if err := tx.ClearPlacement(ctx, evicted); err != nil {
			return nil, err
		}
		fx.events = append(fx.events, vacatedEvent(train, carIndex, evict, evicted, s.now()))
		return nil, fmt.Errorf("%w: %s", ErrIneligiblePairing, reason)
	}

	if err := tx.SetFighting(ctx, trainID, carIndex, true); err != nil {
		return nil, err
	}

	started := time.Now()
	verdict := s.resolver.Resolve(combat.FighterFrom(fighters[0]), combat.FighterFrom(fighters[1]))
	s.metrics.FightDuration.Observe(time.Since(started).Seconds())

	winner, loser, loserSlot := fighters[0], fighters[1], 1
	if verdict.Winner.CompetitorID == fighters[1].ID {
		winner, loser, loserSlot = fighters[1], fighters[0], 0
	}
	at := s.now()

	loser.Losses++
	loser.CurrentStreak = 0
	loser.XP += verdict.Loser.XPGained
	loser.Eliminated = true
	if err := tx.ReleaseSlot(ctx, trainID, carIndex, loserSlot, loser.ID); err != nil {
		return nil, err
	}
	if err := tx.ClearPlacement(ctx, loser.ID); err != nil {
		return nil, err
	}
	if err := tx.SaveCompetitorStats(ctx, loser); err != nil {
		return nil, err
	}
	loser.Placement = nil
	loser.RecomputeLevel()

	winner.Wins++
	winner.CurrentStreak++
	if winner.CurrentStreak > winner.LongestStreak {
		winner.LongestStreak = winner.CurrentStreak
	}
	winner.XP += verdict.Winner.XPGained
	winner.Coins += verdict.WinnerCoins
	winner.Tokens += verdict.WinnerTokens

	if err := tx.RecordCarResult(ctx, trainID, carIndex, models.CarResult{
		WinnerID: winner.ID,
		LoserID:  loser.ID,
		At:       at,
		Verdict:  &verdict,
	}); err != nil {
		return nil, err
	}
	if err := tx.SetFighting(ctx, trainID, carIndex, false); err != nil {
		return nil, err
	}

	outcome := &FightOutcome{
		TrainID:  trainID,
		CarIndex: carIndex,
		At:       at,
		Verdict:  verdict,
		Winner:   winner,
		Loser:    loser,
	}
	fx.fights = append(fx.fights, outcome)
	fx.events = append(fx.events, brackets.WebSocketMessage{
		Type:    brackets.EventFightResolved,
		TrainID: trainID,
		Payload: brackets.FightResolvedPayload{CarIndex: carIndex, Verdict: &outcome.Verdict},
		SentAt:  at,
	})

	if err := s.checkTermination(ctx, tx, fx, outcome); err != nil {
		return nil, err
	}
	if err := tx.SaveCompetitorStats(ctx, winner); err != nil {
		return nil, err
	}
	winner.RecomputeLevel()
	return outcome, nil
}

// checkTermination ends the train when exactly one non-eliminated competitor is
// still placed in it, and grants that competitor the champion bonus.
func (s *TrainService) checkTermination(ctx context.Context, tx repositories.Tx, fx *txEffects, outcome *FightOutcome) error {
	train, err := tx.LockTrain(ctx, outcome.TrainID)
	if err != nil {
		return err
	}

	known := map[uuid.UUID]*models.Competitor{
		outcome.Winner.ID: outcome.Winner,
		outcome.Loser.ID:  outcome.Loser,
	}
	// Placed competitors are never eliminated: elimination vacates the slot and
	// AssignPlacement refuses eliminated competitors.
	survivors := brackets.Survivors(train, func(id uuid.UUID) bool {
		c, ok := known[id]
		return ok && c.Eliminated
	})
	if len(survivors) != 1 {
		return nil
	}

	champion, ok := known[survivors[0]]
	if !ok {
		if champion, err = tx.LockCompetitor(ctx, survivors[0]); err != nil {
			return err
		}
	}
	champion.Coins += s.rules.ChampionCoins
	champion.Tokens += s.rules.ChampionTokens
	champion.XP += s.rules.ChampionXP
	if champion != outcome.Winner {
		if err := tx.SaveCompetitorStats(ctx, champion); err != nil {
			return err
		}
	}

	winner := models.TrainWinner{CompetitorID: champion.ID, At: outcome.At}
	if err := tx.FinishTrain(ctx, train.ID, winner); err != nil {
		return err
	}
	outcome.TournamentEnded = true
	fx.trainsEnded++
	fx.events = append(fx.events, brackets.WebSocketMessage{
		Type:    brackets.EventTournamentEnded,
		TrainID: train.ID,
		Payload: brackets.TournamentEndedPayload{Winner: winner},
		SentAt:  outcome.At,
	})
	return nil
}

// inTx runs fn in a store transaction and replays it on retryable conflicts.
func (s *TrainService) inTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx, fx *txEffects) error) (*txEffects, error) {
	var fx *txEffects
	operation := func() (struct{}, error) {
		fx = &txEffects{}
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
			return fn(ctx, tx, fx)
		})
		if err == nil {
			return struct{}{}, nil
		}
		if repositories.IsRetryable(err) {
			s.metrics.TxRetries.Inc()
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(policy), backoff.WithMaxTries(maxTxAttempts))
	return fx, err
}

func (s *TrainService) afterCommit(ctx context.Context, fx *txEffects) {
	s.metrics.SlotClaims.Add(float64(fx.claims))
	s.metrics.Fights.Add(float64(len(fx.fights)))
	s.metrics.TrainsEnded.Add(float64(fx.trainsEnded))

	s.notifier.Notify(ctx, fx.events...)
	for _, f := range fx.fights {
		s.archive.Archive(ctx, f)
		s.logger.InfoContext(ctx, "fight resolved",
			slog.String("train_id", f.TrainID.String()),
			slog.Int("car_index", f.CarIndex),
			slog.String("winner_id", f.Winner.ID.String()),
			slog.String("loser_id", f.Loser.ID.String()),
			slog.Int("damage_percent", f.Verdict.DamagePercent),
			slog.Bool("tournament_ended", f.TournamentEnded),
		)
	}
}

// fail maps err to a service error and records it on the span and in the metrics.
func (s *TrainService) fail(ctx context.Context, span trace.Span, err error) error {
	err = mapStoreError(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch {
	case errors.Is(err, ErrIneligiblePairing):
		s.metrics.IneligiblePairings.Inc()
	case errors.Is(err, ErrSlotOccupied), errors.Is(err, ErrAlreadyPlaced):
		s.metrics.ClaimConflicts.Inc()
	}

	if isDomainError(err) {
		s.logger.DebugContext(ctx, "train operation rejected", slog.Any("error", err))
	} else {
		s.logger.ErrorContext(ctx, "train operation failed", slog.Any("error", err))
	}
	return err
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrForbiddenOperation)
}
