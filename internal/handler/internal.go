package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/middleware"
	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/service"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

// Listing events accepted on the internal route.
const (
	ListingEventReserved           = "reserved"
	ListingEventReservationRemoved = "reservation-removed"
	ListingEventSold               = "sold"
)

// InternalHandler serves the collaborator routes under /internal/v1.
type InternalHandler struct {
	systemMessages *service.SystemMessageService
	players        storage.PlayerStore
	logger         *logger.Logger
}

// NewInternalHandler creates a new internal handler.
func NewInternalHandler(systemMessages *service.SystemMessageService, players storage.PlayerStore, log *logger.Logger) *InternalHandler {
	return &InternalHandler{
		systemMessages: systemMessages,
		players:        players,
		logger:         log,
	}
}

type listingEventRequest struct {
	PlayerID string `json:"player_id"`
}

type listingEventResponse struct {
	Posted int `json:"posted"`
}

// ListingEvent handles POST /internal/v1/listings/:id/:event
func (h *InternalHandler) ListingEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listingID := chi.URLParam(r, "id")
	if err := middleware.ValidateListingID(listingID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req listingEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID != "" {
		if err := middleware.ValidatePlayerID(req.PlayerID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var (
		posted int
		err    error
	)
	switch event := chi.URLParam(r, "event"); event {
	case ListingEventReserved:
		posted, err = h.systemMessages.ListingReserved(ctx, listingID, req.PlayerID)
	case ListingEventReservationRemoved:
		posted, err = h.systemMessages.ListingReservationRemoved(ctx, listingID)
	case ListingEventSold:
		posted, err = h.systemMessages.ListingSold(ctx, listingID, req.PlayerID)
	default:
		writeError(w, http.StatusNotFound, "unknown listing event")
		return
	}
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listingEventResponse{Posted: posted})
}

// PutPlayer handles PUT /internal/v1/players/:id
func (h *InternalHandler) PutPlayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := chi.URLParam(r, "id")
	if err := middleware.ValidatePlayerID(playerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var player model.Player
	if err := decodeJSON(w, r, &player); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	player.ID = playerID

	if err := h.players.PutPlayer(ctx, player); err != nil {
		h.logger.Error("failed to store player", zap.String("player_id", playerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store player")
		return
	}

	writeJSON(w, http.StatusOK, player)
}
