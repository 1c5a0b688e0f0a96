package models

import (
	"time"

	"github.com/google/uuid"

	"exchangecore/internal/money"
	"exchangecore/internal/xerrors"
)

// Account is a ledger principal. Balances live separately, keyed by
// (account, asset) (spec.md §3).
type Account struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates a fresh account with a random ID.
func NewAccount() *Account {
	now := time.Now().UTC()
	return &Account{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Balance is unique per (account, asset); total == available + locked
// (spec.md §3, invariant 1).
type Balance struct {
	AccountID uuid.UUID    `json:"account_id"`
	Asset     string       `json:"asset"`
	Total     money.Amount `json:"total"`
	Available money.Amount `json:"available"`
	Locked    money.Amount `json:"locked"`
}

// NewBalance builds a zeroed balance row for an (account, asset) pair.
func NewBalance(accountID uuid.UUID, asset string) *Balance {
	return &Balance{
		AccountID: accountID,
		Asset:     asset,
		Total:     money.Zero,
		Available: money.Zero,
		Locked:    money.Zero,
	}
}

// CheckInvariant verifies spec.md §8 invariant 1 holds for this row.
func (b *Balance) CheckInvariant() error {
	if b.Available.IsNegative() || b.Locked.IsNegative() {
		return xerrors.Newf(xerrors.Internal, "balance invariant violated for %s/%s: available=%s locked=%s", b.AccountID, b.Asset, b.Available, b.Locked)
	}
	if !b.Total.Equal(b.Available.Add(b.Locked)) {
		return xerrors.Newf(xerrors.Internal, "balance invariant violated for %s/%s: total=%s != available+locked=%s", b.AccountID, b.Asset, b.Total, b.Available.Add(b.Locked))
	}
	return nil
}
