package messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/memstore"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/notify"
	"github.com/timegarden/backend/internal/repository"
)

type recordingNotifier struct{ ch chan notify.Event }

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.ch <- ev
	return nil
}

func (r *recordingNotifier) next(t *testing.T) notify.Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	return notify.Event{}
}

type env struct {
	store    *memstore.Store
	svc      *Service
	events   *recordingNotifier
	poster   uuid.UUID
	bidder   uuid.UUID
	outsider uuid.UUID
	task     *models.Task
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	e := &env{
		store:    store,
		events:   &recordingNotifier{ch: make(chan notify.Event, 16)},
		poster:   uuid.New(),
		bidder:   uuid.New(),
		outsider: uuid.New(),
	}
	err := repository.WithAtomicUnit(ctx, store, func(tx pgx.Tx) error {
		for name, id := range map[string]uuid.UUID{"Pat": e.poster, "Bea": e.bidder, "Oz": e.outsider} {
			u := &models.User{ID: id, Email: strings.ToLower(name) + "@example.com", DisplayName: name}
			if err := store.Users().CreateTx(ctx, tx, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}
	e.task = &models.Task{ID: uuid.New(), PosterID: e.poster, Title: "Hang shelves", Budget: decimal.NewFromInt(25), Status: models.TaskStatusOpen}
	if err := store.Tasks().Create(ctx, e.task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	e.svc = NewService(store, store.Messages(), store.Tasks(), store.Users(), e.events, nil)
	return e
}

func (e *env) thread(t *testing.T) uuid.UUID {
	t.Helper()
	id, _, err := e.svc.Initiate(context.Background(), e.bidder, e.task.ID, e.poster)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return id
}

func TestInitiate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id, isNew, err := e.svc.Initiate(ctx, e.bidder, e.task.ID, e.poster)
	if err != nil || !isNew {
		t.Fatalf("Initiate = %v, %v", isNew, err)
	}
	msgs, err := e.svc.Messages(ctx, e.poster, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != OpeningMessage || msgs[0].SenderID != e.bidder || msgs[0].SenderName != "Bea" {
		t.Errorf("opening messages = %+v", msgs)
	}

	again, isNew, err := e.svc.Initiate(ctx, e.poster, e.task.ID, e.bidder)
	if err != nil || isNew || again != id {
		t.Errorf("reverse Initiate = %s, %v, %v; want %s", again, isNew, err, id)
	}
	if msgs, _ := e.svc.Messages(ctx, e.poster, id); len(msgs) != 1 {
		t.Errorf("existing thread got another opening message: %d", len(msgs))
	}
}

func TestInitiateGuards(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name    string
		caller  uuid.UUID
		task    uuid.UUID
		partner uuid.UUID
		want    error
	}{
		{"with yourself", e.poster, e.task.ID, e.poster, ErrSelfThread},
		{"unknown partner", e.bidder, e.task.ID, uuid.New(), ErrPartnerNotFound},
		{"unknown task", e.bidder, uuid.New(), e.poster, ErrTaskNotFound},
		{"poster not involved", e.bidder, e.task.ID, e.outsider, ErrNotTaskParty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.svc.Initiate(context.Background(), tc.caller, tc.task, tc.partner)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if threads, _ := e.svc.Threads(context.Background(), e.bidder); len(threads) != 0 {
		t.Errorf("rejected calls left threads behind: %+v", threads)
	}
}

func TestInitiate_Concurrent(t *testing.T) {
	e := newEnv(t)
	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uuid.UUID]int{}
		created int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, isNew, err := e.svc.Initiate(context.Background(), e.bidder, e.task.ID, e.poster)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[id]++
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()
	if len(ids) != 1 || created != 1 {
		t.Errorf("threads = %v, created = %d", ids, created)
	}
}

func TestSend(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.thread(t)

	m, err := e.svc.Send(ctx, e.poster, id, "  Saturday works  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Body != "Saturday works" || m.SenderName != "Pat" {
		t.Errorf("message = %+v", m)
	}
	ev := e.events.next(t)
	if ev.Type != notify.EventMessageSent || ev.ThreadID != id || ev.MessageID != m.ID || ev.Text != "Saturday works" || len(ev.Recipients) != 2 {
		t.Errorf("event = %+v", ev)
	}

	if _, err := e.svc.Send(ctx, e.poster, id, " \n "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank: %v", err)
	}
	if _, err := e.svc.Send(ctx, e.outsider, id, "hello"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider: %v", err)
	}
	if _, err := e.svc.Send(ctx, e.poster, uuid.New(), "hello"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("unknown thread: %v", err)
	}
	if _, err := e.svc.Messages(ctx, e.outsider, id); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider read: %v", err)
	}

	msgs, _ := e.svc.Messages(ctx, e.bidder, id)
	if len(msgs) != 2 || msgs[0].Body != OpeningMessage || msgs[1].ID != m.ID {
		t.Errorf("messages not oldest first: %+v", msgs)
	}
	threads, _ := e.svc.Threads(ctx, e.bidder)
	if len(threads) != 1 {
		t.Fatalf("threads = %+v", threads)
	}
	got := threads[0]
	if got.PartnerID != e.poster || got.PartnerName != "Pat" || got.TaskTitle != "Hang shelves" || got.LastMessage != "Saturday works" {
		t.Errorf("summary = %+v", got)
	}
	if !got.LastMessageAt.Equal(m.CreatedAt) {
		t.Errorf("last activity = %v, want %v", got.LastMessageAt, m.CreatedAt)
	}
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.thread(t)
	opening, _ := e.svc.Messages(ctx, e.poster, id)
	m, err := e.svc.Send(ctx, e.poster, id, "Wrong thread, sorry")
	if err != nil {
		t.Fatal(err)
	}
	e.events.next(t)

	if err := e.svc.Delete(ctx, e.bidder, m.ID); !errors.Is(err, ErrNotSender) {
		t.Errorf("non-sender delete: %v", err)
	}
	if err := e.svc.Delete(ctx, e.poster, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ev := e.events.next(t)
	if ev.Type != notify.EventMessageDeleted || ev.MessageID != m.ID || ev.Text != "" {
		t.Errorf("event = %+v", ev)
	}
	if err := e.svc.Delete(ctx, e.poster, m.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("second delete: %v", err)
	}

	threads, _ := e.svc.Threads(ctx, e.poster)
	if len(threads) != 1 || threads[0].LastMessage != OpeningMessage || !threads[0].LastMessageAt.Equal(opening[0].CreatedAt) {
		t.Errorf("thread after delete = %+v", threads)
	}
}

func TestHandler(t *testing.T) {
	e := newEnv(t)
	h := NewHandler(e.svc, nil)
	r := chi.NewRouter()
	r.Get("/threads", h.Threads)
	r.Post("/threads/initiate", h.Initiate)
	r.Get("/threads/{id}/messages", h.Messages)
	r.Post("/threads/{id}/messages", h.Send)
	r.Delete("/messages/{id}", h.Delete)

	do := func(caller uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(middleware.WithCaller(req.Context(), caller))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	body := `{"task_id":"` + e.task.ID.String() + `","partner_id":"` + e.poster.String() + `"}`
	rec := do(e.bidder, http.MethodPost, "/threads/initiate", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("initiate: %d %s", rec.Code, rec.Body.String())
	}
	var started initiateResponse
	json.Unmarshal(rec.Body.Bytes(), &started)
	if !started.IsNew {
		t.Errorf("initiate = %+v", started)
	}
	if rec := do(e.bidder, http.MethodPost, "/threads/initiate", body); rec.Code != http.StatusOK {
		t.Errorf("repeat initiate: %d", rec.Code)
	}

	path := "/threads/" + started.ThreadID + "/messages"
	rec = do(e.poster, http.MethodPost, path, `{"text":"Bring a drill"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}
	var sent MessageResponse
	json.Unmarshal(rec.Body.Bytes(), &sent)
	if !sent.IsMe || sent.Text != "Bring a drill" {
		t.Errorf("sent = %+v", sent)
	}

	rec = do(e.bidder, http.MethodGet, path, "")
	var list []MessageResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list) != 2 || !list[0].IsMe || list[1].IsMe {
		t.Errorf("list: %d %+v", rec.Code, list)
	}

	cases := []struct {
		name   string
		caller uuid.UUID
		method string
		path   string
		body   string
		want   int
	}{
		{"outsider reads", e.outsider, http.MethodGet, path, "", http.StatusForbidden},
		{"blank text", e.poster, http.MethodPost, path, `{"text":""}`, http.StatusBadRequest},
		{"bad thread id", e.poster, http.MethodGet, "/threads/nope/messages", "", http.StatusBadRequest},
		{"not the sender", e.bidder, http.MethodDelete, "/messages/" + sent.ID, "", http.StatusForbidden},
		{"missing message", e.poster, http.MethodDelete, "/messages/" + uuid.NewString(), "", http.StatusNotFound},
		{"self thread", e.poster, http.MethodPost, "/threads/initiate", `{"task_id":"` + e.task.ID.String() + `","partner_id":"` + e.poster.String() + `"}`, http.StatusBadRequest},
		{"sender deletes", e.poster, http.MethodDelete, "/messages/" + sent.ID, "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(tc.caller, tc.method, tc.path, tc.body); rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	rec = do(e.poster, http.MethodGet, "/threads", "")
	var threads []ThreadResponse
	json.Unmarshal(rec.Body.Bytes(), &threads)
	if len(threads) != 1 || threads[0].PartnerName != "Bea" || threads[0].LastMessage != OpeningMessage {
		t.Errorf("threads = %+v", threads)
	}
}
