package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"exchangecore/internal/models"
	"exchangecore/internal/xerrors"
)

// balanceKey identifies one (account, asset) balance row.
type balanceKey struct {
	account uuid.UUID
	asset   string
}

// journalEntry is one committed mutation, kept so the in-memory store can
// be audited or replayed; spec.md §9 allows treating a strictly in-memory
// book as the cache and the ledger's transaction as the system of record,
// provided mutations are journaled.
type journalEntry struct {
	kind string
	key  string
}

// MemoryStore is the in-memory storage-port implementation: a lock plus
// a journal, per spec.md §4.2 ("An in-memory implementation (locks +
// journal)").
type MemoryStore struct {
	mu sync.Mutex

	accounts map[uuid.UUID]*models.Account
	balances map[balanceKey]*models.Balance
	orders   map[uuid.UUID]*models.Order
	trades   map[uuid.UUID]*models.Trade

	journal []journalEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*models.Account),
		balances: make(map[balanceKey]*models.Balance),
		orders:   make(map[uuid.UUID]*models.Order),
		trades:   make(map[uuid.UUID]*models.Trade),
	}
}

// memoryTx buffers writes issued between Begin and Commit/Rollback.
type memoryTx struct {
	store *MemoryStore
	ops   []func()
	done  bool
}

func (t *memoryTx) ensureOpen() error {
	if t.done {
		return xerrors.New(xerrors.Database, "transaction already closed")
	}
	return nil
}

// Commit applies every buffered op under a single critical section, so
// observers never see a partial set of writes (the storage port's core
// contract, spec.md §4.2).
func (t *memoryTx) Commit() error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op()
	}
	return nil
}

// Rollback discards every buffered op; the store is left untouched.
func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.ops = nil
	return nil
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	select {
	case <-ctx.Done():
		return nil, xerrors.Wrap(xerrors.Database, "begin transaction", ctx.Err())
	default:
	}
	return &memoryTx{store: s}, nil
}

func asMemoryTx(tx Tx) (*memoryTx, error) {
	mt, ok := tx.(*memoryTx)
	if !ok {
		return nil, xerrors.New(xerrors.Database, "tx does not belong to this store")
	}
	if mt.done {
		return nil, xerrors.New(xerrors.Database, "transaction already closed")
	}
	return mt, nil
}

func (s *MemoryStore) CreateAccount(tx Tx, account *models.Account) error {
	mt, err := asMemoryTx(tx)
	if err != nil {
		return err
	}
	a := *account
	mt.ops = append(mt.ops, func() {
		s.accounts[a.ID] = &a
		s.journal = append(s.journal, journalEntry{kind: "create_account", key: a.ID.String()})
	})
	return nil
}

func (s *MemoryStore) GetAccount(tx Tx, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, xerrors.Newf(xerrors.NotFound, "account %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetBalance(tx Tx, accountID uuid.UUID, asset string) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[balanceKey{accountID, asset}]
	if !ok {
		return models.NewBalance(accountID, asset), nil
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) GetBalances(tx Tx, accountID uuid.UUID) ([]*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Balance, 0)
	for k, b := range s.balances {
		if k.account == accountID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutBalance(tx Tx, balance *models.Balance) error {
	mt, err := asMemoryTx(tx)
	if err != nil {
		return err
	}
	if err := balance.CheckInvariant(); err != nil {
		return err
	}
	b := *balance
	mt.ops = append(mt.ops, func() {
		s.balances[balanceKey{b.AccountID, b.Asset}] = &b
		s.journal = append(s.journal, journalEntry{kind: "put_balance", key: fmt.Sprintf("%s/%s", b.AccountID, b.Asset)})
	})
	return nil
}

func (s *MemoryStore) PutOrder(tx Tx, order *models.Order) error {
	mt, err := asMemoryTx(tx)
	if err != nil {
		return err
	}
	o := *order
	mt.ops = append(mt.ops, func() {
		s.orders[o.ID] = &o
		s.journal = append(s.journal, journalEntry{kind: "put_order", key: o.ID.String()})
	})
	return nil
}

func (s *MemoryStore) GetOrder(tx Tx, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, xerrors.Newf(xerrors.NotFound, "order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) PutTrade(tx Tx, trade *models.Trade) error {
	mt, err := asMemoryTx(tx)
	if err != nil {
		return err
	}
	t := *trade
	mt.ops = append(mt.ops, func() {
		s.trades[t.ID] = &t
		s.journal = append(s.journal, journalEntry{kind: "put_trade", key: t.ID.String()})
	})
	return nil
}

func (s *MemoryStore) GetTrade(tx Tx, id uuid.UUID) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, xerrors.Newf(xerrors.NotFound, "trade %s not found", id)
	}
	cp := *t
	return &cp, nil
}

// JournalLen reports how many mutations have been committed; exposed for
// tests asserting that a rolled-back transaction left no trace.
func (s *MemoryStore) JournalLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.journal)
}
