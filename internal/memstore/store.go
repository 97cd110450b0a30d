// Package memstore is an in-process implementation of the repository contracts. Writers are
// serialized and each transaction works on a private copy of the data that replaces the
// committed copy on Commit, so a rolled-back transaction leaves no trace and readers never
// see uncommitted rows.
package memstore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/timegarden/backend/internal/models"
)

var errForeignTx = errors.New("memstore: transaction was not started by this store")

type state struct {
	users     map[uuid.UUID]models.User
	emails    map[string]uuid.UUID
	wallets   map[uuid.UUID]models.Wallet
	tasks     map[uuid.UUID]models.Task
	proposals map[uuid.UUID]models.Proposal
	contracts map[uuid.UUID]models.Contract
	txs       []models.Transaction

	threads      map[uuid.UUID]models.Thread
	participants []models.ThreadParticipant
	messages     []models.Message
}

func newState() *state {
	return &state{
		users:     map[uuid.UUID]models.User{},
		emails:    map[string]uuid.UUID{},
		wallets:   map[uuid.UUID]models.Wallet{},
		tasks:     map[uuid.UUID]models.Task{},
		proposals: map[uuid.UUID]models.Proposal{},
		contracts: map[uuid.UUID]models.Contract{},
		threads:   map[uuid.UUID]models.Thread{},
	}
}

func (s *state) clone() *state {
	return &state{
		users:     maps.Clone(s.users),
		emails:    maps.Clone(s.emails),
		wallets:   maps.Clone(s.wallets),
		tasks:     maps.Clone(s.tasks),
		proposals: maps.Clone(s.proposals),
		contracts: maps.Clone(s.contracts),
		txs:       slices.Clone(s.txs),

		threads:      maps.Clone(s.threads),
		participants: slices.Clone(s.participants),
		messages:     slices.Clone(s.messages),
	}
}

// Store holds the committed state. The zero value is not usable; call New.
type Store struct {
	writer chan struct{}

	mu        sync.RWMutex
	committed *state
}

func New() *Store {
	return &Store{writer: make(chan struct{}, 1), committed: newState()}
}

// Begin waits for the single writer slot and opens a transaction over a copy of the committed state.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.RLock()
	st := s.committed.clone()
	s.mu.RUnlock()
	return &memTx{store: s, st: st}, nil
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

// write applies fn to the committed state outside of an explicit transaction.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	mt := tx.(*memTx)
	if err := fn(mt.st); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// stateOf resolves the working copy of a transaction started by this store.
func (s *Store) stateOf(tx pgx.Tx) (*state, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return nil, errForeignTx
	}
	if mt.closed {
		return nil, pgx.ErrTxClosed
	}
	return mt.st, nil
}

func (s *Store) Users() *UserRepo               { return &UserRepo{s: s} }
func (s *Store) Wallets() *WalletRepo           { return &WalletRepo{s: s} }
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{s: s} }
func (s *Store) Tasks() *TaskRepo               { return &TaskRepo{s: s} }
func (s *Store) Proposals() *ProposalRepo       { return &ProposalRepo{s: s} }
func (s *Store) Contracts() *ContractRepo       { return &ContractRepo{s: s} }
func (s *Store) Messages() *MessageRepo         { return &MessageRepo{s: s} }

// memTx satisfies pgx.Tx. Only Commit and Rollback have effect; SQL entry points are rejected.
type memTx struct {
	store  *Store
	st     *state
	closed bool
}

var errNoSQL = errors.New("memstore: SQL is not supported")

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return nil, errNoSQL }

func (t *memTx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.store.mu.Lock()
	t.store.committed = t.st
	t.store.mu.Unlock()
	<-t.store.writer
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.st = nil
	<-t.store.writer
	return nil
}

func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNoSQL }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow{} }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errNoSQL
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errNoSQL
}
func (t *memTx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNoSQL }
