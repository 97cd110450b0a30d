// Package router assembles the /api/v1 HTTP surface.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/timegarden/backend/internal/auth"
	"github.com/timegarden/backend/internal/contracts"
	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/messages"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/proposals"
	"github.com/timegarden/backend/internal/tasks"
	"github.com/timegarden/backend/internal/validate"
	"github.com/timegarden/backend/internal/wallet"
)

type Handlers struct {
	Auth      *auth.Handler
	Tasks     *tasks.Handler
	Proposals *proposals.Handler
	Contracts *contracts.Handler
	Wallet    *wallet.Handler
	Messages  *messages.Handler
	Events    http.Handler
}

type Options struct {
	Tokens    middleware.TokenValidator
	Validator middleware.BodyValidator
	// Health reports whether storage is reachable.
	Health func(ctx context.Context) error
}

// New returns an http.Handler that serves the API under /api/v1.
func New(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", health(opts.Health))

	body := func(schema string) func(http.Handler) http.Handler {
		return middleware.ValidateBody(opts.Validator, schema)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(body(validate.Register)).Post("/auth/register", h.Auth.Register)
		r.With(body(validate.Login)).Post("/auth/login", h.Auth.Login)
		r.Get("/tasks", h.Tasks.ListOpen)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(opts.Tokens))

			r.Get("/users/me", h.Auth.Me)

			r.With(body(validate.CreateTask)).Post("/tasks", h.Tasks.Create)
			r.Get("/tasks/mine", h.Tasks.Mine)
			r.Get("/tasks/{id}", h.Tasks.Get)
			r.Get("/tasks/{id}/proposals", h.Proposals.ForTask)

			r.With(body(validate.CreateProposal)).Post("/proposals", h.Proposals.Submit)
			r.Get("/proposals/mine", h.Proposals.Mine)
			r.Get("/proposals/received", h.Proposals.Received)
			r.With(body(validate.UpdateProposalStatus)).Patch("/proposals/{id}/status", h.Proposals.UpdateStatus)
			r.Delete("/proposals/{id}", h.Proposals.Delete)

			r.Get("/contracts", h.Contracts.List)
			r.Get("/contracts/{id}", h.Contracts.Get)
			r.With(body(validate.ReleasePayment)).Post("/contracts/{id}/release", h.Contracts.Release)
			r.Post("/contracts/{id}/cancel", h.Contracts.Cancel)
			r.With(body(validate.UpdateContractStatus)).Patch("/contracts/{id}/status", h.Contracts.UpdateStatus)

			r.Get("/wallet", h.Wallet.Get)
			r.Get("/wallet/transactions", h.Wallet.Transactions)
			r.Get("/wallet/transactions/export", h.Wallet.Export)

			r.Get("/threads", h.Messages.Threads)
			r.With(body(validate.InitiateThread)).Post("/threads/initiate", h.Messages.Initiate)
			r.Get("/threads/{id}/messages", h.Messages.Messages)
			r.With(body(validate.SendMessage)).Post("/threads/{id}/messages", h.Messages.Send)
			r.Delete("/messages/{id}", h.Messages.Delete)

			r.Get("/events", h.Events.ServeHTTP)
		})
	})
	return r
}

func health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
