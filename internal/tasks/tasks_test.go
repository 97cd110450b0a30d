package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/memstore"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

func newRouter(svc *Service) http.Handler {
	h := NewHandler(svc, nil)
	r := chi.NewRouter()
	r.Post("/tasks", h.Create)
	r.Get("/tasks", h.ListOpen)
	r.Get("/tasks/mine", h.Mine)
	r.Get("/tasks/{id}", h.Get)
	return r
}

func do(router http.Handler, caller uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != uuid.Nil {
		req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(memstore.New().Tasks())
	poster := uuid.New()

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"missing title", CreateInput{Description: "d", Budget: decimal.NewFromInt(5)}, ErrMissingFields},
		{"blank description", CreateInput{Title: "t", Description: "  ", Budget: decimal.NewFromInt(5)}, ErrMissingFields},
		{"zero budget", CreateInput{Title: "t", Description: "d"}, ErrInvalidBudget},
		{"negative budget", CreateInput{Title: "t", Description: "d", Budget: decimal.NewFromInt(-1)}, ErrInvalidBudget},
		{"fraction of a cent", CreateInput{Title: "t", Description: "d", Budget: decimal.RequireFromString("3.333")}, ErrInvalidBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), poster, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreate_DedupesSkills(t *testing.T) {
	svc := NewService(memstore.New().Tasks())
	task, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Title:       "Fix my bike",
		Description: "Rear derailleur",
		Budget:      decimal.NewFromInt(12),
		Skills:      []string{"Repair", "repair", " ", "Cycling"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(task.Skills) != 2 || task.Skills[0] != "Repair" || task.Skills[1] != "Cycling" {
		t.Errorf("skills = %v", task.Skills)
	}
	if task.Status != models.TaskStatusOpen {
		t.Errorf("status = %s", task.Status)
	}
}

func TestHandler_CreateAndList(t *testing.T) {
	store := memstore.New()
	router := newRouter(NewService(store.Tasks()))
	poster, other := uuid.New(), uuid.New()

	rec := do(router, poster, http.MethodPost, "/tasks", `{"title":"Garden help","description":"Weeding","budget":"20","deadline":"2026-12-01","skills":["gardening"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Budget != "20.00" || created.Status != "open" || created.Deadline == nil || *created.Deadline != "2026-12-01" {
		t.Errorf("unexpected body: %+v", created)
	}

	if rec := do(router, other, http.MethodPost, "/tasks", `{"title":"Other","description":"x","budget":3}`); rec.Code != http.StatusCreated {
		t.Fatalf("second create: %d", rec.Code)
	}

	rec = do(router, uuid.Nil, http.MethodGet, "/tasks", "")
	var open []TaskResponse
	json.Unmarshal(rec.Body.Bytes(), &open)
	if len(open) != 2 {
		t.Fatalf("open tasks = %d, want 2", len(open))
	}

	rec = do(router, poster, http.MethodGet, "/tasks/mine", "")
	var mine []TaskResponse
	json.Unmarshal(rec.Body.Bytes(), &mine)
	if len(mine) != 1 || mine[0].ID != created.ID {
		t.Errorf("mine = %+v", mine)
	}

	if rec := do(router, poster, http.MethodGet, "/tasks/"+created.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("get: %d", rec.Code)
	}
}

func TestHandler_InProgressDisplay(t *testing.T) {
	store := memstore.New()
	task := &models.Task{ID: uuid.New(), PosterID: uuid.New(), Title: "t", Description: "d", Budget: decimal.NewFromInt(1), Status: models.TaskStatusInProgress}
	if err := store.Tasks().Create(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	router := newRouter(NewService(store.Tasks()))

	rec := do(router, uuid.Nil, http.MethodGet, "/tasks/"+task.ID.String(), "")
	var got TaskResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != "in-progress" {
		t.Errorf("status = %q, want in-progress", got.Status)
	}

	rec = do(router, uuid.Nil, http.MethodGet, "/tasks", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("in-progress task listed as open: %s", rec.Body.String())
	}
}

func TestHandler_Errors(t *testing.T) {
	router := newRouter(NewService(memstore.New().Tasks()))
	caller := uuid.New()

	tests := []struct {
		name   string
		caller uuid.UUID
		method string
		path   string
		body   string
		want   int
	}{
		{"unauthenticated create", uuid.Nil, http.MethodPost, "/tasks", `{}`, http.StatusUnauthorized},
		{"bad json", caller, http.MethodPost, "/tasks", `{`, http.StatusBadRequest},
		{"missing fields", caller, http.MethodPost, "/tasks", `{"budget":5}`, http.StatusBadRequest},
		{"bad deadline", caller, http.MethodPost, "/tasks", `{"title":"t","description":"d","budget":5,"deadline":"soon"}`, http.StatusBadRequest},
		{"bad id", caller, http.MethodGet, "/tasks/xyz", "", http.StatusBadRequest},
		{"unknown id", caller, http.MethodGet, "/tasks/" + uuid.NewString(), "", http.StatusNotFound},
		{"unauthenticated mine", uuid.Nil, http.MethodGet, "/tasks/mine", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(router, tt.caller, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
