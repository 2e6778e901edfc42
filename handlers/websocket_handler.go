package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/fight-train/brackets"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *brackets.Hub
	engine   TrainEngine
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler accepts upgrades from allowedOrigins; an empty list or "*" allows any origin.
func NewWebSocketHandler(hub *brackets.Hub, engine TrainEngine, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWs subscribes the client to one train. The first frame is the full
// snapshot, followed by slot-claimed, slot-vacated, fight-resolved and tournament-ended events.
// @Summary Subscribe to train events
// @Tags train
// @Param trainID path string true "Train ID"
// @Router /ws/trains/{trainID} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
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
	snapshot, err := json.Marshal(brackets.SnapshotMessage(train, time.Now().UTC()))
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("train_id", trainID.String()), slog.Any("error", err))
		return
	}

	client := brackets.NewClient(h.hub, conn, brackets.RoomID(trainID))
	client.Enqueue(snapshot)
	if !h.hub.Subscribe(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
