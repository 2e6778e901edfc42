package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/fight-train/brackets"
	"github.com/Dosada05/fight-train/combat"
	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/repositories"
	"github.com/Dosada05/fight-train/storage"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []brackets.WebSocketMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg brackets.WebSocketMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) types() []brackets.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]brackets.EventType, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Type)
	}
	return out
}

type fakeUploader struct {
	mu     sync.Mutex
	bodies map[string][]byte
	err    error
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ string, reader io.Reader) (*storage.UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bodies == nil {
		u.bodies = make(map[string][]byte)
	}
	u.bodies[key] = body
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://archive.test/" + key
}

func (u *fakeUploader) keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.bodies))
	for k := range u.bodies {
		out = append(out, k)
	}
	return out
}

var errPublishDown = errors.New("publisher down")

type fixture struct {
	store     repositories.Store
	trains    *TrainService
	roster    *Roster
	publisher *fakePublisher
	uploader  *fakeUploader
	archive   *VerdictArchive
	metrics   *Metrics
	rules     models.Rules
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, carCount int) *fixture {
	t.Helper()
	return newFixtureOn(t, repositories.NewMemoryStore(), carCount)
}

func newFixtureOn(t *testing.T, store repositories.Store, carCount int) *fixture {
	t.Helper()

	rules := models.DefaultRules()
	rules.CarCount = carCount
	require.NoError(t, rules.Validate())

	logger := discardLogger()
	metrics := NewMetrics(prometheus.NewRegistry())
	publisher := &fakePublisher{}
	uploader := &fakeUploader{}
	archive := NewVerdictArchive(uploader, logger)
	t.Cleanup(archive.Wait)

	resolver := combat.NewResolver(combat.NewSeededSource(42), rules)
	return &fixture{
		store:     store,
		trains:    NewTrainService(store, resolver, rules, NewNotifier(publisher, metrics, logger), archive, metrics, logger),
		roster:    NewRoster(store, logger),
		publisher: publisher,
		uploader:  uploader,
		archive:   archive,
		metrics:   metrics,
		rules:     rules,
	}
}

func (f *fixture) competitor(t *testing.T, class models.WeightClass) *models.Competitor {
	t.Helper()
	return f.competitorWith(t, class, models.DefaultAttributes())
}

func (f *fixture) competitorWith(t *testing.T, class models.WeightClass, attrs models.Attributes) *models.Competitor {
	t.Helper()
	c, err := f.roster.Create(context.Background(), uuid.NewString(), CreateCompetitorInput{
		Name:        gofakeit.Name(),
		WeightClass: class,
		Attributes:  &attrs,
	})
	require.NoError(t, err)
	return c
}

func uniformAttributes(v int) models.Attributes {
	return models.Attributes{Striking: v, Speed: v, Stamina: v, Grappling: v, Luck: v, Defense: v}
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Competitor {
	t.Helper()
	c, err := f.store.GetCompetitor(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) train(t *testing.T, id uuid.UUID) *models.Train {
	t.Helper()
	tr, err := f.store.GetTrain(context.Background(), id)
	require.NoError(t, err)
	return tr
}

// seat places competitors directly through the store, bypassing fight resolution.
func (f *fixture) seat(t *testing.T, train *models.Train, carIndex int, competitors ...*models.Competitor) {
	t.Helper()
	for slot, c := range competitors {
		f.seatAt(t, train, carIndex, slot, c, train.CreatedAt.Add(time.Duration(slot+1)*time.Millisecond))
	}
}

func (f *fixture) seatAt(t *testing.T, train *models.Train, carIndex, slotIndex int, c *models.Competitor, at time.Time) {
	t.Helper()
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.ClaimSlot(ctx, train.ID, carIndex, slotIndex, c.ID, at); err != nil {
			return err
		}
		return tx.AssignPlacement(ctx, c.ID, models.Placement{TrainID: train.ID, CarIndex: carIndex, SlotIndex: slotIndex})
	})
	require.NoError(t, err)
}

// openTrain creates an empty active train directly in the store.
func (f *fixture) openTrain(t *testing.T) *models.Train {
	t.Helper()
	train, err := brackets.NewTrain(f.rules.CarCount, f.trains.now())
	require.NoError(t, err)
	err = f.store.WithinTx(context.Background(), func(ctx context.Context, tx repositories.Tx) error {
		return tx.CreateTrain(ctx, train)
	})
	require.NoError(t, err)
	return train
}

// endingStore ends the open train a joiner picked while the joiner waits for its row lock.
type endingStore struct {
	repositories.Store
	winner uuid.UUID
}

func (s *endingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return fn(ctx, &endingTx{Tx: tx, winner: s.winner})
	})
}

type endingTx struct {
	repositories.Tx
	winner uuid.UUID
}

func (tx *endingTx) LockOpenTrain(ctx context.Context) (*models.Train, error) {
	train, err := tx.Tx.LockOpenTrain(ctx)
	if err != nil || train == nil {
		return train, err
	}
	if err := tx.FinishTrain(ctx, train.ID, models.TrainWinner{CompetitorID: tx.winner, At: time.Now().UTC()}); err != nil {
		return nil, err
	}
	return tx.LockTrain(ctx, train.ID)
}
