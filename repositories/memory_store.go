package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. Transactions are serialised
// and staged on copies, so a failed unit of work leaves no trace.
type MemoryStore struct {
	txMu     sync.Mutex // one writer at a time
	mu       sync.RWMutex
	claimSeq int64 // guarded by txMu

	competitors map[uuid.UUID]*models.Competitor
	owners      map[string]uuid.UUID
	trains      map[uuid.UUID]*models.Train
	trainOrder  []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		competitors: make(map[uuid.UUID]*models.Competitor),
		owners:      make(map[string]uuid.UUID),
		trains:      make(map[uuid.UUID]*models.Train),
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:       s,
		competitors: make(map[uuid.UUID]*models.Competitor),
		trains:      make(map[uuid.UUID]*models.Train),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) CreateCompetitor(_ context.Context, c *models.Competitor) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.owners[c.OwnerID]; taken {
		return ErrOwnerConflict
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c.RecomputeLevel()
	s.competitors[c.ID] = c.Clone()
	s.owners[c.OwnerID] = c.ID
	return nil
}

func (s *MemoryStore) GetCompetitor(_ context.Context, id uuid.UUID) (*models.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitors[id]
	if !ok {
		return nil, ErrCompetitorNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) GetCompetitorByOwner(_ context.Context, ownerID string) (*models.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owners[ownerID]
	if !ok {
		return nil, ErrCompetitorNotFound
	}
	return s.competitors[id].Clone(), nil
}

func (s *MemoryStore) UpdateAttributes(_ context.Context, id uuid.UUID, attrs models.Attributes) (*models.Competitor, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.competitors[id]
	if !ok {
		return nil, ErrCompetitorNotFound
	}
	c := current.Clone()
	c.Attributes = attrs
	c.UpdatedAt = time.Now().UTC()
	s.competitors[id] = c
	return c.Clone(), nil
}

func (s *MemoryStore) ListLeaderboard(_ context.Context, key models.LeaderboardSortKey, limit int) ([]*models.Competitor, error) {
	s.mu.RLock()
	out := make([]*models.Competitor, 0, len(s.competitors))
	for _, c := range s.competitors {
		if !c.Eliminated {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		vi, vj := key.Value(out[i]), key.Value(out[j])
		if vi != vj {
			return vi > vj
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetTrain(_ context.Context, id uuid.UUID) (*models.Train, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trains[id]
	if !ok {
		return nil, ErrTrainNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListPendingCars(_ context.Context) ([]PendingCar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PendingCar
	for _, id := range s.trainOrder {
		t := s.trains[id]
		if !t.Active {
			continue
		}
		for ci := range t.Cars {
			if t.Cars[ci].Full() && !t.Cars[ci].Fighting {
				out = append(out, PendingCar{TrainID: id, CarIndex: ci})
			}
		}
	}
	return out, nil
}

// memoryTx stages copies of every entity it touches and publishes them on commit.
type memoryTx struct {
	store       *MemoryStore
	competitors map[uuid.UUID]*models.Competitor
	trains      map[uuid.UUID]*models.Train
	newTrains   []uuid.UUID
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range tx.trains {
		s.trains[id] = t
	}
	s.trainOrder = append(s.trainOrder, tx.newTrains...)
	for id, c := range tx.competitors {
		s.competitors[id] = c
	}
}

func (tx *memoryTx) train(id uuid.UUID) (*models.Train, error) {
	if t, ok := tx.trains[id]; ok {
		return t, nil
	}
	tx.store.mu.RLock()
	t, ok := tx.store.trains[id]
	tx.store.mu.RUnlock()
	if !ok {
		return nil, ErrTrainNotFound
	}
	staged := t.Clone()
	tx.trains[id] = staged
	return staged, nil
}

func (tx *memoryTx) competitor(id uuid.UUID) (*models.Competitor, error) {
	if c, ok := tx.competitors[id]; ok {
		return c, nil
	}
	tx.store.mu.RLock()
	c, ok := tx.store.competitors[id]
	tx.store.mu.RUnlock()
	if !ok {
		return nil, ErrCompetitorNotFound
	}
	staged := c.Clone()
	tx.competitors[id] = staged
	return staged, nil
}

func (tx *memoryTx) car(trainID uuid.UUID, carIndex int) (*models.Car, error) {
	t, err := tx.train(trainID)
	if err != nil {
		return nil, err
	}
	car := t.Car(carIndex)
	if car == nil {
		return nil, ErrTrainNotFound
	}
	return car, nil
}

func (tx *memoryTx) LockTrain(_ context.Context, id uuid.UUID) (*models.Train, error) {
	t, err := tx.train(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (tx *memoryTx) LockOpenTrain(ctx context.Context) (*models.Train, error) {
	tx.store.mu.RLock()
	order := append([]uuid.UUID(nil), tx.store.trainOrder...)
	tx.store.mu.RUnlock()
	order = append(order, tx.newTrains...)

	for _, id := range order {
		t, staged := tx.trains[id]
		if !staged {
			tx.store.mu.RLock()
			t = tx.store.trains[id]
			tx.store.mu.RUnlock()
		}
		if t.Active && t.HasFreeSlot() {
			return tx.LockTrain(ctx, id)
		}
	}
	return nil, nil
}

func (tx *memoryTx) CreateTrain(_ context.Context, t *models.Train) error {
	tx.trains[t.ID] = t.Clone()
	tx.newTrains = append(tx.newTrains, t.ID)
	return nil
}

func (tx *memoryTx) FinishTrain(_ context.Context, trainID uuid.UUID, winner models.TrainWinner) error {
	t, err := tx.train(trainID)
	if err != nil {
		return err
	}
	if !t.Active {
		return ErrTrainNotActive
	}
	at := winner.At
	t.Active = false
	t.Winner = &winner
	t.EndedAt = &at
	return nil
}

func (tx *memoryTx) ClaimSlot(_ context.Context, trainID uuid.UUID, carIndex, slotIndex int, competitorID uuid.UUID, at time.Time) error {
	t, err := tx.train(trainID)
	if err != nil {
		return err
	}
	car := t.Car(carIndex)
	if car == nil || slotIndex < 0 || slotIndex >= models.SlotsPerCar {
		return ErrTrainNotFound
	}
	if !t.Active {
		return ErrTrainNotActive
	}
	slot := &car.Slots[slotIndex]
	if slot.Occupied {
		return ErrSlotTaken
	}
	tx.store.claimSeq++
	id, claimedAt := competitorID, at
	slot.Occupied = true
	slot.CompetitorID = &id
	slot.ClaimedAt = &claimedAt
	slot.ClaimSeq = tx.store.claimSeq
	t.OccupiedCount++
	return nil
}

func (tx *memoryTx) ReleaseSlot(_ context.Context, trainID uuid.UUID, carIndex, slotIndex int, competitorID uuid.UUID) error {
	t, err := tx.train(trainID)
	if err != nil {
		return err
	}
	car := t.Car(carIndex)
	if car == nil || slotIndex < 0 || slotIndex >= models.SlotsPerCar {
		return ErrSlotNotHeld
	}
	slot := &car.Slots[slotIndex]
	if !slot.Occupied || slot.CompetitorID == nil || *slot.CompetitorID != competitorID {
		return ErrSlotNotHeld
	}
	slot.Occupied = false
	slot.CompetitorID = nil
	slot.ClaimedAt = nil
	slot.ClaimSeq = 0
	t.OccupiedCount--
	return nil
}

func (tx *memoryTx) SetFighting(_ context.Context, trainID uuid.UUID, carIndex int, fighting bool) error {
	car, err := tx.car(trainID, carIndex)
	if err != nil {
		return err
	}
	if car.Fighting == fighting {
		return ErrFightingConflict
	}
	car.Fighting = fighting
	return nil
}

func (tx *memoryTx) RecordCarResult(_ context.Context, trainID uuid.UUID, carIndex int, result models.CarResult) error {
	car, err := tx.car(trainID, carIndex)
	if err != nil {
		return err
	}
	car.LastResult = &result
	return nil
}

func (tx *memoryTx) GetCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	if c, ok := tx.competitors[id]; ok {
		return c.Clone(), nil
	}
	return tx.store.GetCompetitor(ctx, id)
}

func (tx *memoryTx) LockCompetitor(_ context.Context, id uuid.UUID) (*models.Competitor, error) {
	c, err := tx.competitor(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (tx *memoryTx) AssignPlacement(_ context.Context, competitorID uuid.UUID, p models.Placement) error {
	c, err := tx.competitor(competitorID)
	if err != nil {
		return err
	}
	if c.Placed() || c.Eliminated {
		return ErrAlreadyPlaced
	}
	c.Placement = &p
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (tx *memoryTx) ClearPlacement(_ context.Context, competitorID uuid.UUID) error {
	c, err := tx.competitor(competitorID)
	if err != nil {
		return err
	}
	if !c.Placed() {
		return ErrNotPlaced
	}
	c.Placement = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (tx *memoryTx) SaveCompetitorStats(_ context.Context, in *models.Competitor) error {
	c, err := tx.competitor(in.ID)
	if err != nil {
		return err
	}
	c.Wins = in.Wins
	c.Losses = in.Losses
	c.CurrentStreak = in.CurrentStreak
	c.LongestStreak = in.LongestStreak
	c.XP = in.XP
	c.Coins = in.Coins
	c.Tokens = in.Tokens
	c.Eliminated = in.Eliminated
	c.RecomputeLevel()
	c.UpdatedAt = time.Now().UTC()
	return nil
}
