package contracts

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/ledger"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

type ContractResponse struct {
	ID             string  `json:"id"`
	ProposalID     string  `json:"proposal_id"`
	TaskID         string  `json:"task_id"`
	RequesterID    string  `json:"requester_id"`
	ProviderID     string  `json:"provider_id"`
	Amount         string  `json:"amount"`
	ReleasedAmount string  `json:"released_amount"`
	Remaining      string  `json:"remaining"`
	Status         string  `json:"status"`
	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date"`
}

func ToResponse(c *models.Contract) ContractResponse {
	resp := ContractResponse{
		ID:             c.ID.String(),
		ProposalID:     c.ProposalID.String(),
		TaskID:         c.TaskID.String(),
		RequesterID:    c.RequesterID.String(),
		ProviderID:     c.ProviderID.String(),
		Amount:         c.Amount.StringFixed(2),
		ReleasedAmount: c.ReleasedAmount.StringFixed(2),
		Remaining:      c.Remaining().StringFixed(2),
		Status:         DisplayStatus(c.Status),
		StartDate:      c.StartDate.Format(time.RFC3339),
	}
	if c.EndDate != nil {
		end := c.EndDate.Format(time.RFC3339)
		resp.EndDate = &end
	}
	return resp
}

// EntryResponse is one transaction log row in a contract's trail.
type EntryResponse struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	Amount      string `json:"amount"`
	Bucket      string `json:"bucket"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

type contractDetail struct {
	ContractResponse
	Transactions []EntryResponse `json:"transactions"`
}

type releaseRequest struct {
	Amount httputil.Amount `json:"amount"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
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

// List handles GET /contracts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.svc.ListMine(r.Context(), caller)
	if err != nil {
		h.log.Error("list contracts", "error", err, "caller_id", caller)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]ContractResponse, 0, len(list))
	for _, c := range list {
		out = append(out, ToResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// Get handles GET /contracts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.params(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id, caller)
	if err != nil {
		WriteError(w, err)
		return
	}
	trail, err := h.svc.History(r.Context(), id, caller)
	if err != nil {
		h.log.Error("contract history failed", "error", err, "contract_id", id)
		WriteError(w, err)
		return
	}
	out := contractDetail{ContractResponse: ToResponse(c), Transactions: make([]EntryResponse, 0, len(trail))}
	for _, t := range trail {
		out.Transactions = append(out.Transactions, EntryResponse{
			ID:          t.ID.String(),
			WalletID:    t.WalletID.String(),
			Amount:      t.Amount.StringFixed(2),
			Bucket:      t.Bucket,
			Type:        t.Type,
			Description: t.Description,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// Release handles POST /contracts/{id}/release. An absent amount releases the whole remaining escrow.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.params(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var amount *decimal.Decimal
	if req.Amount.Set {
		amount = &req.Amount.Decimal
	}
	status, err := h.svc.ReleaseContractPayment(r.Context(), id, caller, amount)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Status: DisplayStatus(status)})
}

// Cancel handles POST /contracts/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := h.params(w, r)
	if !ok {
		return
	}
	status, err := h.svc.RefundContract(r.Context(), id, caller)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Status: DisplayStatus(status)})
}

// UpdateStatus handles PATCH /contracts/{id}/status.
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
	target, valid := ParseStatus(req.Status)
	if !valid {
		httputil.WriteError(w, http.StatusBadRequest, "invalid contract status")
		return
	}
	status, err := h.svc.UpdateContractStatus(r.Context(), id, caller, target)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Success: true, Status: DisplayStatus(status)})
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid contract ID")
		return uuid.Nil, uuid.Nil, false
	}
	return caller, id, true
}

// WriteError maps contract and ledger errors to HTTP responses. Faults get a generic body;
// the service has already logged the cause.
func WriteError(w http.ResponseWriter, err error) {
	status, msg := StatusOf(err)
	httputil.WriteError(w, status, msg)
}

// StatusOf returns the HTTP status and client message for err.
func StatusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient funds to accept this proposal"
	case errors.Is(err, ErrContractNotFound):
		return http.StatusNotFound, "contract not found"
	case errors.Is(err, ErrProposalNotFound):
		return http.StatusNotFound, "proposal not found"
	case errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden, "not authorized"
	case errors.Is(err, ErrAlreadyDecided),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrNotRefundable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrTaskNotOpen):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}
