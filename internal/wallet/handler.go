package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

type BalanceResponse struct {
	Available string `json:"available"`
	Escrow    string `json:"escrow"`
	Total     string `json:"total"`
}

type TransactionResponse struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	Bucket      string  `json:"bucket"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	ContractID  *string `json:"contract_id"`
}

type exportEnvelope struct {
	ExportDate       string                `json:"exportDate"`
	UserID           string                `json:"userId"`
	TransactionCount int                   `json:"transactionCount"`
	Transactions     []TransactionResponse `json:"transactions"`
}

var csvHeader = []string{"ID", "Date", "Description", "Amount", "Type", "Status"}

type Handler struct {
	svc *Service
	log *slog.Logger
	now func() time.Time
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log, now: time.Now}
}

// Get handles GET /wallet.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wal, err := h.svc.Get(r.Context(), caller)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("get wallet failed", "error", err, "caller_id", caller)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{
		Available: wal.Available.StringFixed(2),
		Escrow:    wal.Escrow.StringFixed(2),
		Total:     wal.Total().StringFixed(2),
	})
}

// Transactions handles GET /wallet/transactions.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// Export handles GET /wallet/transactions/export?format=csv|json.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httputil.WriteError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}
	list, ok := h.list(w, r)
	if !ok {
		return
	}
	caller, _ := middleware.CallerID(r.Context())
	now := h.now().UTC()
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transactions_%s.%s"`, now.Format("2006-01-02"), format))

	if format == "json" {
		httputil.WriteJSON(w, http.StatusOK, exportEnvelope{
			ExportDate:       now.Format(time.RFC3339),
			UserID:           caller.String(),
			TransactionCount: len(list),
			Transactions:     list,
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, t := range list {
		_ = cw.Write([]string{t.ID, t.Date, t.Description, t.Amount, t.Type, t.Status})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.log.Warn("csv export interrupted", "error", err, "caller_id", caller)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) ([]TransactionResponse, bool) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	txs, err := h.svc.Transactions(r.Context(), caller)
	if err != nil {
		h.log.Error("list transactions failed", "error", err, "caller_id", caller)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out, true
}

func toTransactionResponse(t *models.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          t.ID.String(),
		Date:        t.CreatedAt.Format("2006-01-02"),
		Description: t.Description,
		Amount:      t.Amount.StringFixed(2),
		Bucket:      t.Bucket,
		Type:        t.Type,
		Status:      t.Status,
	}
	if t.ContractID != nil {
		id := t.ContractID.String()
		resp.ContractID = &id
	}
	return resp
}
