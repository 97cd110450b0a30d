package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/timegarden/backend/internal/auth"
	"github.com/timegarden/backend/internal/config"
	"github.com/timegarden/backend/internal/contracts"
	"github.com/timegarden/backend/internal/ledger"
	"github.com/timegarden/backend/internal/messages"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/notify"
	"github.com/timegarden/backend/internal/proposals"
	"github.com/timegarden/backend/internal/router"
	"github.com/timegarden/backend/internal/tasks"
	"github.com/timegarden/backend/internal/validate"
	"github.com/timegarden/backend/internal/wallet"
)

// newAPI wires services and handlers over st and returns the routed API.
func newAPI(cfg *config.Config, st stores, hub *notify.Hub, notifier notify.Notifier, logger *slog.Logger) (http.Handler, error) {
	validator, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	authRepo := auth.NewRepository(st.db, st.users, st.wallets, st.txlog)
	authSvc := auth.NewService(authRepo, auth.Options{
		Secret:          cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		StartingBalance: cfg.StartingBalance,
	})

	l := ledger.New(st.wallets, st.txlog)
	contractSvc := contracts.NewService(st.db, st.contracts, st.proposals, st.tasks, l, st.txlog, notifier, logger)
	proposalSvc := proposals.NewService(st.db, st.proposals, st.tasks, st.contracts, notifier, logger)
	messageSvc := messages.NewService(st.db, st.messages, st.tasks, st.users, notifier, logger)

	return router.New(router.Handlers{
		Auth:      auth.NewHandler(authSvc, logger),
		Tasks:     tasks.NewHandler(tasks.NewService(st.tasks), logger),
		Proposals: proposals.NewHandler(proposalSvc, contractSvc, logger),
		Contracts: contracts.NewHandler(contractSvc, logger),
		Wallet:    wallet.NewHandler(wallet.NewService(st.wallets, st.txlog), logger),
		Messages:  messages.NewHandler(messageSvc, logger),
		Events:    notify.NewStreamHandler(hub, middleware.CallerFromRequest, logger),
	}, router.Options{
		Tokens:    authSvc,
		Validator: validator,
		Health:    st.health,
	}), nil
}
