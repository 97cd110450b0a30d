package proposals

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/timegarden/backend/internal/contracts"
	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

// Acceptor turns a proposal into an escrow-backed contract.
type Acceptor interface {
	LockFundsForAcceptedProposal(ctx context.Context, proposalID, callerID uuid.UUID) (*models.Contract, error)
}

type ProposalResponse struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	ApplicantID string `json:"applicant_id"`
	Amount      string `json:"amount"`
	Message     string `json:"message"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func toResponse(p *models.Proposal) ProposalResponse {
	return ProposalResponse{
		ID:          p.ID.String(),
		TaskID:      p.TaskID.String(),
		ApplicantID: p.ApplicantID.String(),
		Amount:      p.Amount.StringFixed(2),
		Message:     p.Message,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

type submitRequest struct {
	TaskID  string          `json:"task_id"`
	Amount  httputil.Amount `json:"amount"`
	Message string          `json:"message"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type decisionResponse struct {
	Success  bool                        `json:"success"`
	Status   string                      `json:"status"`
	Contract *contracts.ContractResponse `json:"contract,omitempty"`
}

type Handler struct {
	svc      *Service
	acceptor Acceptor
	log      *slog.Logger
}

func NewHandler(svc *Service, acceptor Acceptor, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, acceptor: acceptor, log: log}
}

// Submit handles POST /proposals.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req submitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil || !req.Amount.Set || req.Message == "" {
		httputil.WriteError(w, http.StatusBadRequest, "task ID, amount, and message are required")
		return
	}
	p, err := h.svc.Submit(r.Context(), caller, taskID, req.Amount.Decimal, req.Message)
	if err != nil {
		h.writeError(w, err, "submit proposal")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

// Mine handles GET /proposals/mine.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.svc.ListMine(r.Context(), caller)
	h.writeList(w, list, err)
}

// Received handles GET /proposals/received.
func (h *Handler) Received(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.svc.ListReceived(r.Context(), caller)
	h.writeList(w, list, err)
}

// ForTask handles GET /tasks/{id}/proposals.
func (h *Handler) ForTask(w http.ResponseWriter, r *http.Request) {
	caller, taskID, ok := h.params(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListForTask(r.Context(), taskID, caller)
	h.writeList(w, list, err)
}

// UpdateStatus handles PATCH /proposals/{id}/status. Accepting locks the proposal amount in escrow.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.params(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Status {
	case models.ProposalStatusAccepted:
		c, err := h.acceptor.LockFundsForAcceptedProposal(r.Context(), id, caller)
		if err != nil {
			h.writeError(w, err, "accept proposal")
			return
		}
		resp := contracts.ToResponse(c)
		httputil.WriteJSON(w, http.StatusOK, decisionResponse{Success: true, Status: req.Status, Contract: &resp})
	case models.ProposalStatusRejected:
		if _, err := h.svc.Reject(r.Context(), id, caller); err != nil {
			h.writeError(w, err, "reject proposal")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, decisionResponse{Success: true, Status: req.Status})
	default:
		httputil.WriteError(w, http.StatusBadRequest, "invalid proposal status")
	}
}

// Delete handles DELETE /proposals/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.params(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id, caller); err != nil {
		h.writeError(w, err, "delete proposal")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "proposal deleted"})
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

func (h *Handler) writeList(w http.ResponseWriter, list []*models.Proposal, err error) {
	if err != nil {
		h.writeError(w, err, "list proposals")
		return
	}
	out := make([]ProposalResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOwnTask), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrDuplicateProposal):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTaskNotOpen), errors.Is(err, ErrNotPending), errors.Is(err, ErrHasContract):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	default:
		status, msg := contracts.StatusOf(err)
		if status == http.StatusInternalServerError && op != "accept proposal" {
			h.log.Error(op+" failed", "error", err)
		}
		httputil.WriteError(w, status, msg)
	}
}
