// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/player-messaging/internal/middleware"
	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/service"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Start handles POST /api/v1/conversations
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playerID := middleware.GetPlayerID(ctx)

	var req model.StartConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidatePlayerID(req.RecipientID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ListingID != "" {
		if err := middleware.ValidateListingID(req.ListingID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Start(ctx, playerID, &req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// List handles GET /api/v1/conversations?filter=inbox|accepted|pending|ignored
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := model.ParseConversationFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	resp, err := h.service.List(ctx, middleware.GetPlayerID(ctx), filter)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UnreadCount handles GET /api/v1/conversations/unread-count
func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.UnreadCounts(ctx, middleware.GetPlayerID(ctx))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Get(ctx, conversationID, middleware.GetPlayerID(ctx))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Accept handles POST /api/v1/conversations/:id/accept
func (h *ConversationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

// Deny handles POST /api/v1/conversations/:id/deny
func (h *ConversationHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Deny)
}

// Ignore handles POST /api/v1/conversations/:id/ignore
func (h *ConversationHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Ignore)
}

type respondFunc func(ctx context.Context, conversationID, playerID string) (*model.Conversation, error)

func (h *ConversationHandler) respond(w http.ResponseWriter, r *http.Request, fn respondFunc) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := fn(ctx, conversationID, middleware.GetPlayerID(ctx))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Report handles POST /api/v1/conversations/:id/report
func (h *ConversationHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ReportConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.service.Report(ctx, conversationID, middleware.GetPlayerID(ctx), &req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, report)
}
