package tasks

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

const dateLayout = "2006-01-02"

type TaskResponse struct {
	ID             string   `json:"id"`
	PosterID       string   `json:"poster_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Budget         string   `json:"budget"`
	Category       string   `json:"category"`
	Skills         []string `json:"skills"`
	Deadline       *string  `json:"deadline"`
	Status         string   `json:"status"`
	ProposalsCount int      `json:"proposals_count"`
	CreatedAt      string   `json:"created_at"`
}

func toResponse(t *models.Task) TaskResponse {
	resp := TaskResponse{
		ID:             t.ID.String(),
		PosterID:       t.PosterID.String(),
		Title:          t.Title,
		Description:    t.Description,
		Budget:         t.Budget.StringFixed(2),
		Category:       t.Category,
		Skills:         t.Skills,
		Status:         httputil.DisplayStatus(t.Status),
		ProposalsCount: t.ProposalsCount,
		CreatedAt:      t.CreatedAt.Format(dateLayout),
	}
	if resp.Skills == nil {
		resp.Skills = []string{}
	}
	if t.Deadline != nil {
		d := t.Deadline.Format(dateLayout)
		resp.Deadline = &d
	}
	return resp
}

type createRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Budget      httputil.Amount `json:"budget"`
	Category    string          `json:"category"`
	Skills      []string        `json:"skills"`
	Deadline    *string         `json:"deadline"`
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

// Create handles POST /tasks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in := CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget.Decimal,
		Category:    req.Category,
		Skills:      req.Skills,
	}
	if req.Deadline != nil && *req.Deadline != "" {
		d, err := parseDeadline(*req.Deadline)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "deadline must be YYYY-MM-DD or RFC 3339")
			return
		}
		in.Deadline = &d
	}
	t, err := h.svc.Create(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(t))
}

// ListOpen handles GET /tasks.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListOpen(r.Context())
	h.writeList(w, list, err)
}

// Mine handles GET /tasks/mine.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.svc.ListMine(r.Context(), caller)
	h.writeList(w, list, err)
}

// Get handles GET /tasks/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid task ID")
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) writeList(w http.ResponseWriter, list []*models.Task, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]TaskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidBudget), errors.Is(err, ErrMissingFields):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("task request failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
