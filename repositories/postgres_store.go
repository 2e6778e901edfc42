package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
)

// openTrainLockKey serialises the search for an open train so concurrent joiners
// fill the same train instead of each opening a new one.
const openTrainLockKey int64 = 0x7472_6169_6e // "train"

const competitorColumns = `
	id, owner_id, name, weight_class,
	striking, speed, stamina, grappling, luck, defense,
	wins, losses, current_streak, longest_streak, xp, coins, tokens, eliminated,
	placement_train_id, placement_car, placement_slot,
	created_at, updated_at`

var leaderboardColumns = map[models.LeaderboardSortKey]string{
	models.SortByWins:          "wins",
	models.SortByLongestStreak: "longest_streak",
	models.SortByTokens:        "tokens",
	models.SortByXP:            "xp",
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return s.db
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (txErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				txErr = fmt.Errorf("%w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(ctx, &postgresTx{tx: tx})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompetitor(row rowScanner) (*models.Competitor, error) {
	c := &models.Competitor{}
	var (
		trainID uuid.NullUUID
		car     sql.NullInt32
		slot    sql.NullInt32
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.WeightClass,
		&c.Attributes.Striking, &c.Attributes.Speed, &c.Attributes.Stamina,
		&c.Attributes.Grappling, &c.Attributes.Luck, &c.Attributes.Defense,
		&c.Wins, &c.Losses, &c.CurrentStreak, &c.LongestStreak, &c.XP, &c.Coins, &c.Tokens, &c.Eliminated,
		&trainID, &car, &slot,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitorNotFound
		}
		return nil, err
	}
	if trainID.Valid {
		c.Placement = &models.Placement{
			TrainID:   trainID.UUID,
			CarIndex:  int(car.Int32),
			SlotIndex: int(slot.Int32),
		}
	}
	c.RecomputeLevel()
	return c, nil
}

func getCompetitor(ctx context.Context, exec SQLExecutor, id uuid.UUID, forUpdate bool) (*models.Competitor, error) {
	query := `SELECT ` + competitorColumns + ` FROM competitors WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanCompetitor(exec.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) CreateCompetitor(ctx context.Context, c *models.Competitor) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO competitors (
			id, owner_id, name, weight_class,
			striking, speed, stamina, grappling, luck, defense
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	a := c.Attributes
	err := s.getExecutor(nil).QueryRowContext(ctx, query,
		c.ID, c.OwnerID, c.Name, c.WeightClass,
		a.Striking, a.Speed, a.Stamina, a.Grappling, a.Luck, a.Defense,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if code, constraint, ok := pqCode(err); ok && code == pqUniqueViolation && constraint == "competitors_owner_id_key" {
			return ErrOwnerConflict
		}
		return fmt.Errorf("insert competitor: %w", err)
	}
	c.RecomputeLevel()
	return nil
}

func (s *PostgresStore) GetCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	return getCompetitor(ctx, s.getExecutor(nil), id, false)
}

func (s *PostgresStore) GetCompetitorByOwner(ctx context.Context, ownerID string) (*models.Competitor, error) {
	query := `SELECT ` + competitorColumns + ` FROM competitors WHERE owner_id = $1`
	return scanCompetitor(s.getExecutor(nil).QueryRowContext(ctx, query, ownerID))
}

func (s *PostgresStore) UpdateAttributes(ctx context.Context, id uuid.UUID, a models.Attributes) (*models.Competitor, error) {
	query := `
		UPDATE competitors
		SET striking = $2, speed = $3, stamina = $4, grappling = $5, luck = $6, defense = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + competitorColumns

	return scanCompetitor(s.getExecutor(nil).QueryRowContext(ctx, query,
		id, a.Striking, a.Speed, a.Stamina, a.Grappling, a.Luck, a.Defense))
}

func (s *PostgresStore) ListLeaderboard(ctx context.Context, key models.LeaderboardSortKey, limit int) ([]*models.Competitor, error) {
	column, ok := leaderboardColumns[key]
	if !ok {
		return nil, fmt.Errorf("unsupported leaderboard sort key %q", key)
	}
	query := `SELECT ` + competitorColumns + `
		FROM competitors
		WHERE NOT eliminated
		ORDER BY ` + column + ` DESC, id ASC
		LIMIT $1`

	rows, err := s.getExecutor(nil).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*models.Competitor
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetTrain(ctx context.Context, id uuid.UUID) (*models.Train, error) {
	return loadTrain(ctx, s.getExecutor(nil), id, false)
}

func (s *PostgresStore) ListPendingCars(ctx context.Context) ([]PendingCar, error) {
	query := `
		SELECT c.train_id, c.car_index
		FROM train_cars c
		JOIN trains t ON t.id = c.train_id
		WHERE t.active AND NOT c.fighting
		  AND (SELECT COUNT(*) FROM train_slots s
		       WHERE s.train_id = c.train_id AND s.car_index = c.car_index AND s.competitor_id IS NOT NULL) = 2
		ORDER BY t.created_at, c.car_index`

	rows, err := s.getExecutor(nil).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending cars: %w", err)
	}
	defer rows.Close()

	var out []PendingCar
	for rows.Next() {
		var p PendingCar
		if err := rows.Scan(&p.TrainID, &p.CarIndex); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func loadTrain(ctx context.Context, exec SQLExecutor, id uuid.UUID, forUpdate bool) (*models.Train, error) {
	query := `
		SELECT id, car_count, occupied_count, active, winner_id, won_at, created_at, ended_at
		FROM trains
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t := &models.Train{}
	var (
		winnerID uuid.NullUUID
		wonAt    sql.NullTime
		endedAt  sql.NullTime
	)
	err := exec.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.CarCount, &t.OccupiedCount, &t.Active, &winnerID, &wonAt, &t.CreatedAt, &endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTrainNotFound
		}
		return nil, fmt.Errorf("select train %s: %w", id, err)
	}
	if winnerID.Valid {
		t.Winner = &models.TrainWinner{CompetitorID: winnerID.UUID, At: wonAt.Time}
	}
	if endedAt.Valid {
		t.EndedAt = &endedAt.Time
	}

	t.Cars = make([]models.Car, t.CarCount)
	for i := range t.Cars {
		t.Cars[i].Index = i
		for si := range t.Cars[i].Slots {
			t.Cars[i].Slots[si].Index = si
		}
	}
	if err := loadCars(ctx, exec, t); err != nil {
		return nil, err
	}
	if err := loadSlots(ctx, exec, t); err != nil {
		return nil, err
	}
	return t, nil
}

func loadCars(ctx context.Context, exec SQLExecutor, t *models.Train) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT car_index, fighting, last_winner_id, last_loser_id, last_result_at, last_verdict
		FROM train_cars
		WHERE train_id = $1`, t.ID)
	if err != nil {
		return fmt.Errorf("select cars of train %s: %w", t.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			index    int
			fighting bool
			winnerID uuid.NullUUID
			loserID  uuid.NullUUID
			at       sql.NullTime
			verdict  []byte
		)
		if err := rows.Scan(&index, &fighting, &winnerID, &loserID, &at, &verdict); err != nil {
			return err
		}
		car := t.Car(index)
		if car == nil {
			return fmt.Errorf("train %s has car %d beyond car_count %d", t.ID, index, t.CarCount)
		}
		car.Fighting = fighting
		if winnerID.Valid {
			result := &models.CarResult{WinnerID: winnerID.UUID, LoserID: loserID.UUID, At: at.Time}
			if len(verdict) > 0 {
				result.Verdict = &models.Verdict{}
				if err := json.Unmarshal(verdict, result.Verdict); err != nil {
					return fmt.Errorf("decode verdict of car %d: %w", index, err)
				}
			}
			car.LastResult = result
		}
	}
	return rows.Err()
}

func loadSlots(ctx context.Context, exec SQLExecutor, t *models.Train) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT car_index, slot_index, competitor_id, claimed_at, claim_seq
		FROM train_slots
		WHERE train_id = $1`, t.ID)
	if err != nil {
		return fmt.Errorf("select slots of train %s: %w", t.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			carIndex, slotIndex int
			competitorID        uuid.NullUUID
			claimedAt           sql.NullTime
			claimSeq            sql.NullInt64
		)
		if err := rows.Scan(&carIndex, &slotIndex, &competitorID, &claimedAt, &claimSeq); err != nil {
			return err
		}
		car := t.Car(carIndex)
		if car == nil || slotIndex < 0 || slotIndex >= models.SlotsPerCar {
			return fmt.Errorf("train %s has slot %d/%d out of range", t.ID, carIndex, slotIndex)
		}
		if competitorID.Valid {
			id, at := competitorID.UUID, claimedAt.Time
			slot := &car.Slots[slotIndex]
			slot.Occupied = true
			slot.CompetitorID = &id
			slot.ClaimedAt = &at
			slot.ClaimSeq = claimSeq.Int64
		}
	}
	return rows.Err()
}

type postgresTx struct {
	tx *sql.Tx
}

func (p *postgresTx) LockTrain(ctx context.Context, id uuid.UUID) (*models.Train, error) {
	return loadTrain(ctx, p.tx, id, true)
}

func (p *postgresTx) LockOpenTrain(ctx context.Context) (*models.Train, error) {
	if _, err := p.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, openTrainLockKey); err != nil {
		return nil, fmt.Errorf("acquire open-train lock: %w", err)
	}

	var id uuid.UUID
	err := p.tx.QueryRowContext(ctx, `
		SELECT id FROM trains
		WHERE active AND occupied_count < car_count * 2
		ORDER BY created_at, id
		LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open train: %w", err)
	}
	return loadTrain(ctx, p.tx, id, true)
}

func (p *postgresTx) CreateTrain(ctx context.Context, t *models.Train) error {
	_, err := p.tx.ExecContext(ctx, `
		INSERT INTO trains (id, car_count, occupied_count, active, created_at)
		VALUES ($1, $2, 0, TRUE, $3)`, t.ID, t.CarCount, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert train: %w", err)
	}
	_, err = p.tx.ExecContext(ctx, `
		INSERT INTO train_cars (train_id, car_index)
		SELECT $1, g FROM generate_series(0, $2 - 1) AS g`, t.ID, t.CarCount)
	if err != nil {
		return fmt.Errorf("insert cars: %w", err)
	}
	_, err = p.tx.ExecContext(ctx, `
		INSERT INTO train_slots (train_id, car_index, slot_index)
		SELECT $1, c, s FROM generate_series(0, $2 - 1) AS c CROSS JOIN generate_series(0, 1) AS s`, t.ID, t.CarCount)
	if err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}

func (p *postgresTx) FinishTrain(ctx context.Context, trainID uuid.UUID, winner models.TrainWinner) error {
	result, err := p.tx.ExecContext(ctx, `
		UPDATE trains SET active = FALSE, winner_id = $2, won_at = $3, ended_at = $3
		WHERE id = $1 AND active`, trainID, winner.CompetitorID, winner.At)
	if err != nil {
		return fmt.Errorf("finish train: %w", err)
	}
	return checkAffectedRows(result, ErrTrainNotActive)
}

func (p *postgresTx) ClaimSlot(ctx context.Context, trainID uuid.UUID, carIndex, slotIndex int, competitorID uuid.UUID, at time.Time) error {
	var active bool
	err := p.tx.QueryRowContext(ctx, `SELECT active FROM trains WHERE id = $1 FOR UPDATE`, trainID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTrainNotFound
	}
	if err != nil {
		return fmt.Errorf("check train state: %w", err)
	}
	if !active {
		return ErrTrainNotActive
	}

	result, err := p.tx.ExecContext(ctx, `
		UPDATE train_slots SET competitor_id = $4, claimed_at = $5, claim_seq = nextval('train_slot_claim_seq')
		WHERE train_id = $1 AND car_index = $2 AND slot_index = $3 AND competitor_id IS NULL`,
		trainID, carIndex, slotIndex, competitorID, at)
	if err != nil {
		if code, _, ok := pqCode(err); ok && code == pqUniqueViolation {
			return ErrAlreadyPlaced
		}
		return fmt.Errorf("claim slot: %w", err)
	}
	if err := checkAffectedRows(result, ErrSlotTaken); err != nil {
		return err
	}
	_, err = p.tx.ExecContext(ctx, `UPDATE trains SET occupied_count = occupied_count + 1 WHERE id = $1`, trainID)
	if err != nil {
		return fmt.Errorf("increment occupancy: %w", err)
	}
	return nil
}

func (p *postgresTx) ReleaseSlot(ctx context.Context, trainID uuid.UUID, carIndex, slotIndex int, competitorID uuid.UUID) error {
	result, err := p.tx.ExecContext(ctx, `
		UPDATE train_slots SET competitor_id = NULL, claimed_at = NULL, claim_seq = NULL
		WHERE train_id = $1 AND car_index = $2 AND slot_index = $3 AND competitor_id = $4`,
		trainID, carIndex, slotIndex, competitorID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if err := checkAffectedRows(result, ErrSlotNotHeld); err != nil {
		return err
	}
	_, err = p.tx.ExecContext(ctx, `UPDATE trains SET occupied_count = occupied_count - 1 WHERE id = $1`, trainID)
	if err != nil {
		return fmt.Errorf("decrement occupancy: %w", err)
	}
	return nil
}

func (p *postgresTx) SetFighting(ctx context.Context, trainID uuid.UUID, carIndex int, fighting bool) error {
	result, err := p.tx.ExecContext(ctx, `
		UPDATE train_cars SET fighting = $3
		WHERE train_id = $1 AND car_index = $2 AND fighting <> $3`, trainID, carIndex, fighting)
	if err != nil {
		return fmt.Errorf("set fighting: %w", err)
	}
	return checkAffectedRows(result, ErrFightingConflict)
}

func (p *postgresTx) RecordCarResult(ctx context.Context, trainID uuid.UUID, carIndex int, r models.CarResult) error {
	var verdict []byte
	if r.Verdict != nil {
		var err error
		if verdict, err = json.Marshal(r.Verdict); err != nil {
			return fmt.Errorf("encode verdict: %w", err)
		}
	}
	result, err := p.tx.ExecContext(ctx, `
		UPDATE train_cars
		SET last_winner_id = $3, last_loser_id = $4, last_result_at = $5, last_verdict = $6
		WHERE train_id = $1 AND car_index = $2`,
		trainID, carIndex, r.WinnerID, r.LoserID, r.At, verdict)
	if err != nil {
		return fmt.Errorf("record car result: %w", err)
	}
	return checkAffectedRows(result, ErrTrainNotFound)
}

func (p *postgresTx) GetCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	return getCompetitor(ctx, p.tx, id, false)
}

func (p *postgresTx) LockCompetitor(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	return getCompetitor(ctx, p.tx, id, true)
}

func (p *postgresTx) AssignPlacement(ctx context.Context, competitorID uuid.UUID, pl models.Placement) error {
	result, err := p.tx.ExecContext(ctx, `
		UPDATE competitors
		SET placement_train_id = $2, placement_car = $3, placement_slot = $4, updated_at = NOW()
		WHERE id = $1 AND placement_train_id IS NULL AND NOT eliminated`,
		competitorID, pl.TrainID, pl.CarIndex, pl.SlotIndex)
	if err != nil {
		return fmt.Errorf("assign placement: %w", err)
	}
	return checkAffectedRows(result, ErrAlreadyPlaced)
}

func (p *postgresTx) ClearPlacement(ctx context.Context, competitorID uuid.UUID) error {
	result, err := p.tx.ExecContext(ctx, `
		UPDATE competitors
		SET placement_train_id = NULL, placement_car = NULL, placement_slot = NULL, updated_at = NOW()
		WHERE id = $1 AND placement_train_id IS NOT NULL`, competitorID)
	if err != nil {
		return fmt.Errorf("clear placement: %w", err)
	}
	return checkAffectedRows(result, ErrNotPlaced)
}

func (p *postgresTx) SaveCompetitorStats(ctx context.Context, c *models.Competitor) error {
	result, err := p.tx.ExecContext(ctx, `
		UPDATE competitors
		SET wins = $2, losses = $3, current_streak = $4, longest_streak = $5,
		    xp = $6, coins = $7, tokens = $8, eliminated = $9, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Wins, c.Losses, c.CurrentStreak, c.LongestStreak, c.XP, c.Coins, c.Tokens, c.Eliminated)
	if err != nil {
		return fmt.Errorf("save competitor stats: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitorNotFound)
}
