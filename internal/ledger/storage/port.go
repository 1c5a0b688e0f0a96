// Package storage defines the generic transactional port the Account
// Ledger consumes (spec.md §4.2, §6). The SQL binding for this port is
// out of scope (spec.md §1); only the in-memory implementation lives
// here.
package storage

import (
	"context"

	"github.com/google/uuid"

	"exchangecore/internal/models"
)

// Tx is a transaction: every mutation issued against it is observed
// atomically at Commit, or discarded entirely at Rollback.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the storage port the ledger is built against. An
// implementation must guarantee that all Put* calls made against one Tx
// become visible together, or not at all.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	CreateAccount(tx Tx, account *models.Account) error
	GetAccount(tx Tx, id uuid.UUID) (*models.Account, error)

	GetBalance(tx Tx, accountID uuid.UUID, asset string) (*models.Balance, error)
	GetBalances(tx Tx, accountID uuid.UUID) ([]*models.Balance, error)
	PutBalance(tx Tx, balance *models.Balance) error

	PutOrder(tx Tx, order *models.Order) error
	GetOrder(tx Tx, id uuid.UUID) (*models.Order, error)

	PutTrade(tx Tx, trade *models.Trade) error
	GetTrade(tx Tx, id uuid.UUID) (*models.Trade, error)
}
