package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dosada05/fight-train/middleware"
	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/services"
	"github.com/google/uuid"
)

// TrainEngine is the slice of services.TrainService the HTTP layer needs.
type TrainEngine interface {
	Join(ctx context.Context, competitorID uuid.UUID) (*services.PlacementResult, error)
	PlaceAt(ctx context.Context, competitorID, trainID uuid.UUID, carIndex, slotIndex int) (*services.PlacementResult, error)
	Leave(ctx context.Context, competitorID uuid.UUID) error
	Status(ctx context.Context, competitorID uuid.UUID) (*services.CompetitorStatus, error)
	TriggerFight(ctx context.Context, trainID uuid.UUID, carIndex int) (*services.FightOutcome, error)
	GetTrain(ctx context.Context, trainID uuid.UUID) (*models.Train, error)
}

// Authorizer decides whether the caller may act for a competitor.
type Authorizer interface {
	Authorize(ctx context.Context, competitorID uuid.UUID, userID string, isAdmin bool) error
}

type TrainHandler struct {
	engine TrainEngine
	auth   Authorizer
}

func NewTrainHandler(engine TrainEngine, auth Authorizer) *TrainHandler {
	return &TrainHandler{engine: engine, auth: auth}
}

type competitorRequest struct {
	CompetitorID uuid.UUID `json:"competitor_id"`
}

type placeRequest struct {
	CompetitorID uuid.UUID `json:"competitor_id"`
	TrainID      uuid.UUID `json:"train_id"`
	CarIndex     *int      `json:"car_index"`
	SlotIndex    *int      `json:"slot_index"`
}

// actFor checks that the authenticated caller owns competitorID. It writes the
// error response itself and reports whether the handler may continue.
func (h *TrainHandler) actFor(w http.ResponseWriter, r *http.Request, competitorID uuid.UUID) bool {
	if competitorID == uuid.Nil {
		badRequestResponse(w, r, errors.New("competitor_id is required"))
		return false
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return false
	}
	if err := h.auth.Authorize(r.Context(), competitorID, userID, middleware.IsAdmin(r.Context())); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return false
	}
	return true
}

func writePlacement(w http.ResponseWriter, r *http.Request, res *services.PlacementResult) {
	resp := jsonResponse{"placement": res.Placement, "train": res.Train}
	if res.Fight != nil {
		resp["fight"] = res.Fight
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Join godoc
// @Summary Join the oldest open train
// @Tags train
// @Accept json
// @Produce json
// @Param input body competitorRequest true "Competitor"
// @Success 200 {object} map[string]interface{} "Placement, train snapshot and fight outcome if the car filled"
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Already placed, eliminated or ineligible pairing"
// @Security BearerAuth
// @Router /train/join [post]
func (h *TrainHandler) Join(w http.ResponseWriter, r *http.Request) {
	var input competitorRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !h.actFor(w, r, input.CompetitorID) {
		return
	}

	res, err := h.engine.Join(r.Context(), input.CompetitorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writePlacement(w, r, res)
}

// PlaceAt godoc
// @Summary Claim a specific slot
// @Tags train
// @Accept json
// @Produce json
// @Param input body placeRequest true "Target slot"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Slot occupied, train ended or ineligible pairing"
// @Security BearerAuth
// @Router /train/place [post]
func (h *TrainHandler) PlaceAt(w http.ResponseWriter, r *http.Request) {
	var input placeRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TrainID == uuid.Nil || input.CarIndex == nil || input.SlotIndex == nil {
		badRequestResponse(w, r, errors.New("train_id, car_index and slot_index are required"))
		return
	}
	if !h.actFor(w, r, input.CompetitorID) {
		return
	}

	res, err := h.engine.PlaceAt(r.Context(), input.CompetitorID, input.TrainID, *input.CarIndex, *input.SlotIndex)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writePlacement(w, r, res)
}

// Leave godoc
// @Summary Vacate the competitor's slot
// @Tags train
// @Accept json
// @Param input body competitorRequest true "Competitor"
// @Success 204
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /train/leave [post]
func (h *TrainHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var input competitorRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !h.actFor(w, r, input.CompetitorID) {
		return
	}

	if err := h.engine.Leave(r.Context(), input.CompetitorID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status godoc
// @Summary Where a competitor is placed
// @Tags train
// @Produce json
// @Param competitorID path string true "Competitor ID"
// @Success 200 {object} services.CompetitorStatus
// @Failure 404 {object} map[string]string "Unknown or unplaced competitor"
// @Router /competitors/{competitorID}/status [get]
func (h *TrainHandler) Status(w http.ResponseWriter, r *http.Request) {
	competitorID, err := getUUIDFromURL(r, "competitorID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.engine.Status(r.Context(), competitorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetTrain godoc
// @Summary Train snapshot
// @Tags train
// @Produce json
// @Param trainID path string true "Train ID"
// @Success 200 {object} models.Train
// @Failure 404 {object} map[string]string
// @Router /trains/{trainID} [get]
func (h *TrainHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	trainID, err := getUUIDFromURL(r, "trainID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	train, err := h.engine.GetTrain(r.Context(), trainID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"train": train}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// TriggerFight godoc
// @Summary Resolve a full car on demand
// @Tags train
// @Produce json
// @Param trainID path string true "Train ID"
// @Param carIndex path int true "Car index"
// @Success 200 {object} services.FightOutcome
// @Failure 409 {object} map[string]string "Car not full, already fighting, train ended or ineligible pairing"
// @Security BearerAuth
// @Router /trains/{trainID}/cars/{carIndex}/fight [post]
func (h *TrainHandler) TriggerFight(w http.ResponseWriter, r *http.Request) {
	trainID, err := getUUIDFromURL(r, "trainID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	carIndex, err := getIntFromURL(r, "carIndex")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.engine.TriggerFight(r.Context(), trainID, carIndex)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"fight": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
