package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/timegarden/backend/internal/auth"
	"github.com/timegarden/backend/internal/config"
	"github.com/timegarden/backend/internal/contracts"
	"github.com/timegarden/backend/internal/ledger"
	"github.com/timegarden/backend/internal/memstore"
	"github.com/timegarden/backend/internal/messages"
	"github.com/timegarden/backend/internal/notify"
	"github.com/timegarden/backend/internal/proposals"
	"github.com/timegarden/backend/internal/repository"
	"github.com/timegarden/backend/internal/tasks"
	"github.com/timegarden/backend/internal/wallet"
)

// stores is the storage surface shared by the PostgreSQL repositories and memstore.
type stores struct {
	db        repository.TxBeginner
	users     auth.UserRepo
	wallets   walletStore
	txlog     txlogStore
	tasks     taskStore
	proposals proposalStore
	contracts contractStore
	messages  messages.Repo
	health    func(ctx context.Context) error
}

type walletStore interface {
	auth.WalletRepo
	ledger.WalletRepo
	wallet.WalletRepo
}

type txlogStore interface {
	ledger.TransactionRepo
	wallet.TransactionRepo
	contracts.History
}

type taskStore interface {
	tasks.Repo
	contracts.TaskRepo
	proposals.TaskRepo
	messages.TaskRepo
}

type proposalStore interface {
	contracts.ProposalRepo
	proposals.ProposalRepo
}

type contractStore interface {
	contracts.ContractRepo
	proposals.ContractChecker
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		db:        pool,
		users:     repository.NewUserRepo(pool),
		wallets:   repository.NewWalletRepo(pool),
		txlog:     repository.NewTransactionRepo(pool),
		tasks:     repository.NewTaskRepo(pool),
		proposals: repository.NewProposalRepo(pool),
		contracts: repository.NewContractRepo(pool),
		messages:  repository.NewMessageRepo(pool),
		health:    pool.Ping,
	}
}

func memoryStores(s *memstore.Store) stores {
	return stores{
		db:        s,
		users:     s.Users(),
		wallets:   s.Wallets(),
		txlog:     s.Transactions(),
		tasks:     s.Tasks(),
		proposals: s.Proposals(),
		contracts: s.Contracts(),
		messages:  s.Messages(),
		health:    func(context.Context) error { return nil },
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := notify.NewHub(logger)
	var (
		st       stores
		notifier notify.Notifier
	)

	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		slog.Warn("Using in-memory storage; all data is lost on exit")
		st = memoryStores(memstore.New())
		notifier = notify.Direct{Hub: hub}

	default:
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		poolCfg.MaxConns = cfg.DBMaxConns
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("create database pool: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("cannot reach PostgreSQL (is it running? e.g. docker-compose up -d): %w", err)
		}
		slog.Info("Connected to PostgreSQL database successfully!")

		if err := repository.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("schema migration: %w", err)
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			return fmt.Errorf("create river migrator: %w", err)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			return fmt.Errorf("river migrate up: %w", err)
		}
		slog.Info("Migrations applied")

		workers := river.NewWorkers()
		river.AddWorker(workers, notify.NewEventWorker(hub))
		riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: cfg.NotifyMaxWorkers},
			},
			Workers: workers,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("create river client: %w", err)
		}
		notifier = notify.NewQueue(func(ctx context.Context, args notify.EventArgs) error {
			_, err := riverClient.Insert(ctx, args, nil)
			return err
		})

		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				slog.Warn("River client did not stop cleanly", "error", err)
			}
		}()

		st = postgresStores(pool)
	}

	api, err := newAPI(cfg, st, hub, notifier, logger)
	if err != nil {
		return fmt.Errorf("build API: %w", err)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting HTTP server", "addr", srv.Addr, "storage", cfg.StorageDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
