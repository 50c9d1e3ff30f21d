package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/player-messaging/internal/middleware"
	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/service"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

// BlockHandler handles the player's block list.
type BlockHandler struct {
	service *service.BlockService
	logger  *logger.Logger
}

// NewBlockHandler creates a new block handler.
func NewBlockHandler(svc *service.BlockService, log *logger.Logger) *BlockHandler {
	return &BlockHandler{service: svc, logger: log}
}

type listBlocksResponse struct {
	Blocks []model.Block `json:"blocks"`
}

// List handles GET /api/v1/blocks
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	blocks, err := h.service.ListBlocked(ctx, middleware.GetPlayerID(ctx))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listBlocksResponse{Blocks: blocks})
}

// Block handles PUT /api/v1/blocks/:playerId
func (h *BlockHandler) Block(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blockedID := chi.URLParam(r, "playerId")
	if err := middleware.ValidatePlayerID(blockedID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Block(ctx, middleware.GetPlayerID(ctx), blockedID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unblock handles DELETE /api/v1/blocks/:playerId
func (h *BlockHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blockedID := chi.URLParam(r, "playerId")
	if err := middleware.ValidatePlayerID(blockedID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Unblock(ctx, middleware.GetPlayerID(ctx), blockedID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
