package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/storage"
	"github.com/google/uuid"
)

const archiveTimeout = 15 * time.Second

// VerdictArchive uploads resolved verdicts as JSON documents. Uploads run in the
// background and are best-effort; Wait blocks until the in-flight ones finish.
type VerdictArchive struct {
	uploader storage.FileUploader
	logger   *slog.Logger
	wg       sync.WaitGroup
}

type archivedVerdict struct {
	TrainID  uuid.UUID      `json:"train_id"`
	CarIndex int            `json:"car_index"`
	At       time.Time      `json:"at"`
	Verdict  models.Verdict `json:"verdict"`
}

func NewVerdictArchive(uploader storage.FileUploader, logger *slog.Logger) *VerdictArchive {
	return &VerdictArchive{uploader: uploader, logger: logger}
}

// VerdictKey is the object key a verdict is stored under.
func VerdictKey(trainID uuid.UUID, carIndex int, at time.Time) string {
	return fmt.Sprintf("verdicts/%s/car-%02d-%d.json", trainID, carIndex, at.UnixNano())
}

func (a *VerdictArchive) Archive(ctx context.Context, outcome *FightOutcome) {
	if a == nil || a.uploader == nil || outcome == nil {
		return
	}
	doc := archivedVerdict{
		TrainID:  outcome.TrainID,
		CarIndex: outcome.CarIndex,
		At:       outcome.At,
		Verdict:  outcome.Verdict,
	}
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()

		body, err := json.Marshal(doc)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to encode verdict", slog.Any("error", err))
			return
		}
		key := VerdictKey(doc.TrainID, doc.CarIndex, doc.At)
		res, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
		if err != nil {
			a.logger.WarnContext(ctx, "failed to archive verdict",
				slog.String("train_id", doc.TrainID.String()),
				slog.Int("car_index", doc.CarIndex),
				slog.Any("error", err),
			)
			return
		}
		a.logger.DebugContext(ctx, "verdict archived", slog.String("key", res.Key), slog.String("url", res.Location))
	}()
}

func (a *VerdictArchive) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
