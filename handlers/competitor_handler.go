package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Dosada05/fight-train/middleware"
	"github.com/Dosada05/fight-train/models"
	"github.com/Dosada05/fight-train/services"
	"github.com/google/uuid"
)

type CompetitorRoster interface {
	Authorizer
	Create(ctx context.Context, ownerID string, in services.CreateCompetitorInput) (*models.Competitor, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Competitor, error)
	GetByOwner(ctx context.Context, ownerID string) (*models.Competitor, error)
	UpdateAttributes(ctx context.Context, competitorID uuid.UUID, userID string, isAdmin bool, patch services.AttributePatch) (*models.Competitor, error)
	Leaderboard(ctx context.Context, key models.LeaderboardSortKey, limit int) ([]models.LeaderboardEntry, error)
}

type CompetitorHandler struct {
	roster CompetitorRoster
}

func NewCompetitorHandler(roster CompetitorRoster) *CompetitorHandler {
	return &CompetitorHandler{roster: roster}
}

// Create godoc
// @Summary Register the caller's competitor
// @Tags competitors
// @Accept json
// @Produce json
// @Param input body services.CreateCompetitorInput true "Name, weight class and optional attributes"
// @Success 201 {object} models.Competitor
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "Owner already has a competitor"
// @Security BearerAuth
// @Router /competitors [post]
func (h *CompetitorHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input services.CreateCompetitorInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	c, err := h.roster.Create(r.Context(), userID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"competitor": c}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Me godoc
// @Summary The caller's competitor
// @Tags competitors
// @Produce json
// @Success 200 {object} models.Competitor
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /competitors/me [get]
func (h *CompetitorHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	c, err := h.roster.GetByOwner(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competitor": c}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *CompetitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := getUUIDFromURL(r, "competitorID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	c, err := h.roster.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competitor": c}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateAttributes godoc
// @Summary Change combat attributes, each clamped to [0,100]
// @Tags competitors
// @Accept json
// @Produce json
// @Param competitorID path string true "Competitor ID"
// @Param input body services.AttributePatch true "Attributes to change"
// @Success 200 {object} models.Competitor
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /competitors/{competitorID}/attributes [patch]
func (h *CompetitorHandler) UpdateAttributes(w http.ResponseWriter, r *http.Request) {
	id, err := getUUIDFromURL(r, "competitorID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var patch services.AttributePatch
	if err := readJSON(w, r, &patch); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	c, err := h.roster.UpdateAttributes(r.Context(), id, userID, middleware.IsAdmin(r.Context()), patch)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"competitor": c}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Leaderboard godoc
// @Summary Top non-eliminated competitors
// @Tags leaderboard
// @Produce json
// @Param sort query string false "wins, longest_streak, tokens or xp" default(wins)
// @Param limit query int false "1..100" default(10)
// @Success 200 {array} models.LeaderboardEntry
// @Failure 400 {object} map[string]string
// @Router /leaderboard [get]
func (h *CompetitorHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequestResponse(w, r, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = v
	}

	entries, err := h.roster.Leaderboard(r.Context(), models.LeaderboardSortKey(query.Get("sort")), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
