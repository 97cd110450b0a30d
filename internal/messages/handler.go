package messages

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

type ThreadResponse struct {
	ID            string `json:"id"`
	TaskID        string `json:"task_id"`
	TaskTitle     string `json:"task_title"`
	PartnerID     string `json:"partner_id"`
	PartnerName   string `json:"partner_name"`
	LastMessage   string `json:"last_message"`
	LastMessageAt string `json:"last_message_at"`
}

type MessageResponse struct {
	ID         string `json:"id"`
	ThreadID   string `json:"thread_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	IsMe       bool   `json:"is_me"`
	CreatedAt  string `json:"created_at"`
}

func toMessageResponse(m *models.Message, caller uuid.UUID) MessageResponse {
	return MessageResponse{
		ID:         m.ID.String(),
		ThreadID:   m.ThreadID.String(),
		SenderID:   m.SenderID.String(),
		SenderName: m.SenderName,
		Text:       m.Body,
		IsMe:       m.SenderID == caller,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339Nano),
	}
}

type initiateRequest struct {
	TaskID    string `json:"task_id"`
	PartnerID string `json:"partner_id"`
}

type initiateResponse struct {
	ThreadID string `json:"thread_id"`
	IsNew    bool   `json:"is_new"`
}

type sendRequest struct {
	Text string `json:"text"`
}

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Threads handles GET /threads.
func (h *Handler) Threads(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.svc.Threads(r.Context(), caller)
	if err != nil {
		h.writeError(w, err, "list threads")
		return
	}
	out := make([]ThreadResponse, 0, len(list))
	for _, t := range list {
		out = append(out, ThreadResponse{
			ID:            t.ID.String(),
			TaskID:        t.TaskID.String(),
			TaskTitle:     t.TaskTitle,
			PartnerID:     t.PartnerID.String(),
			PartnerName:   t.PartnerName,
			LastMessage:   t.LastMessage,
			LastMessageAt: t.LastMessageAt.Format(time.RFC3339Nano),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// Initiate handles POST /threads/initiate. It answers 201 for a new thread and 200 for an existing one.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req initiateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	taskID, err1 := uuid.Parse(req.TaskID)
	partnerID, err2 := uuid.Parse(req.PartnerID)
	if err1 != nil || err2 != nil {
		httputil.WriteError(w, http.StatusBadRequest, "task ID and partner ID are required")
		return
	}
	id, isNew, err := h.svc.Initiate(r.Context(), caller, taskID, partnerID)
	if err != nil {
		h.writeError(w, err, "initiate thread")
		return
	}
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, initiateResponse{ThreadID: id.String(), IsNew: isNew})
}

// Messages handles GET /threads/{id}/messages.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	caller, threadID, ok := h.params(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Messages(r.Context(), caller, threadID)
	if err != nil {
		h.writeError(w, err, "list messages")
		return
	}
	out := make([]MessageResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toMessageResponse(m, caller))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// Send handles POST /threads/{id}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	caller, threadID, ok := h.params(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	m, err := h.svc.Send(r.Context(), caller, threadID, req.Text)
	if err != nil {
		h.writeError(w, err, "send message")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMessageResponse(m, caller))
}

// Delete handles DELETE /messages/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.params(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), caller, id); err != nil {
		h.writeError(w, err, "delete message")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid ID")
		return uuid.Nil, uuid.Nil, false
	}
	return caller, id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrPartnerNotFound), errors.Is(err, ErrMessageNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSelfThread), errors.Is(err, ErrEmptyMessage):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotTaskParty), errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotSender):
		httputil.WriteError(w, http.StatusForbidden, err.Error())
	default:
		h.log.Error(op+" failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
