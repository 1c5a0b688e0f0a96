// Package ledger owns account balances: reservation, release, and trade
// settlement, all applied atomically per (account, asset) (spec.md §4.2).
package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"exchangecore/internal/ledger/storage"
	"exchangecore/internal/models"
	"exchangecore/internal/money"
	"exchangecore/internal/xerrors"
)

// Ledger is the account ledger: it serializes mutations per account and
// applies every multi-row mutation through the storage port's
// transaction (spec.md §4.2, §5).
type Ledger struct {
	store storage.Store
	log   zerolog.Logger

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// New builds a Ledger against the given storage port.
func New(store storage.Store, log zerolog.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log.With().Str("component", "ledger").Logger(),
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the per-account mutex, creating it on first use.
// Per-account serialization, spec.md §5.
func (l *Ledger) lockFor(id uuid.UUID) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// CreateAccount registers a new account with a zero balance sheet.
func (l *Ledger) CreateAccount(ctx context.Context) (*models.Account, error) {
	account := models.NewAccount()
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Database, "begin create_account tx", err)
	}
	if err := l.store.CreateAccount(tx, account); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.Database, "commit create_account tx", err)
	}
	return account, nil
}

// GetAccount returns the account snapshot.
func (l *Ledger) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return l.store.GetAccount(nil, id)
}

// GetBalance returns the (account, asset) balance, zeroed if never touched.
func (l *Ledger) GetBalance(ctx context.Context, id uuid.UUID, asset string) (*models.Balance, error) {
	return l.store.GetBalance(nil, id, asset)
}

// GetBalances returns every balance row for an account.
func (l *Ledger) GetBalances(ctx context.Context, id uuid.UUID) ([]*models.Balance, error) {
	return l.store.GetBalances(nil, id)
}

// Deposit credits total and available (spec.md §4.2 deposit).
func (l *Ledger) Deposit(ctx context.Context, accountID uuid.UUID, asset string, amount money.Amount) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, xerrors.New(xerrors.InvalidOrder, "deposit amount must be positive")
	}
	lock := l.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	bal, err := l.store.GetBalance(nil, accountID, asset)
	if err != nil {
		return nil, err
	}
	bal.Total = bal.Total.Add(amount)
	bal.Available = bal.Available.Add(amount)

	if err := l.commitBalances(ctx, bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// Withdraw debits total and available, failing if available is short
// (spec.md §4.2 withdraw).
func (l *Ledger) Withdraw(ctx context.Context, accountID uuid.UUID, asset string, amount money.Amount) (*models.Balance, error) {
	if !amount.IsPositive() {
		return nil, xerrors.New(xerrors.InvalidOrder, "withdraw amount must be positive")
	}
	lock := l.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	bal, err := l.store.GetBalance(nil, accountID, asset)
	if err != nil {
		return nil, err
	}
	if bal.Available.LessThan(amount) {
		return nil, xerrors.Newf(xerrors.InsufficientBalance, "available %s < requested %s for %s", bal.Available, amount, asset)
	}
	bal.Total = bal.Total.Sub(amount)
	bal.Available = bal.Available.Sub(amount)

	if err := l.commitBalances(ctx, bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// reservationAsset resolves the asset and amount an order must lock,
// per spec.md §4.2 "reserve_for_order". A Market Buy with no MaxCost is
// rejected (Open Question resolved in SPEC_FULL.md §4.2: require a
// caller-supplied cost cap).
func reservationAsset(order *models.Order, market models.Market) (asset string, amount money.Amount, err error) {
	if order.Side == models.Buy {
		switch order.Type {
		case models.Limit:
			if order.Price == nil {
				return "", money.Zero, xerrors.New(xerrors.InvalidOrder, "limit buy requires a price")
			}
			return market.QuoteAsset, order.Price.Mul(order.Quantity), nil
		case models.Market:
			if order.MaxCost == nil {
				return "", money.Zero, xerrors.New(xerrors.InvalidOrder, "market buy requires max_cost to reserve quote funds")
			}
			return market.QuoteAsset, *order.MaxCost, nil
		default:
			return "", money.Zero, xerrors.New(xerrors.InvalidOrder, "unknown order type")
		}
	}
	// Sell: lock the base asset being sold.
	return market.BaseAsset, order.Quantity, nil
}

// ReserveForOrder locks the funding asset against available balance
// (spec.md §4.2 reserve_for_order). On InsufficientBalance the caller
// must not proceed to matching (spec.md §2 step 2).
func (l *Ledger) ReserveForOrder(ctx context.Context, order *models.Order, market models.Market) error {
	asset, amount, err := reservationAsset(order, market)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return xerrors.New(xerrors.InvalidOrder, "reservation amount must be positive")
	}

	lock := l.lockFor(order.AccountID)
	lock.Lock()
	defer lock.Unlock()

	bal, err := l.store.GetBalance(nil, order.AccountID, asset)
	if err != nil {
		return err
	}
	if bal.Available.LessThan(amount) {
		return xerrors.Newf(xerrors.InsufficientBalance, "available %s %s < required %s", bal.Available, asset, amount)
	}
	bal.Available = bal.Available.Sub(amount)
	bal.Locked = bal.Locked.Add(amount)

	return l.commitBalances(ctx, bal)
}

// ReleaseReserved releases the residual reservation backing an order's
// remaining unfilled quantity at the time of cancellation — not the
// original full reservation (spec.md §9 Open Question, resolved in
// SPEC_FULL.md §4.2).
func (l *Ledger) ReleaseReserved(ctx context.Context, order *models.Order, market models.Market) error {
	var asset string
	var amount money.Amount
	if order.Side == models.Buy {
		asset = market.QuoteAsset
		switch {
		case order.Price != nil:
			// Limit buy: reservation was price*quantity, so the residual
			// is price*remaining_quantity.
			amount = order.Price.Mul(order.RemainingQuantity)
		case order.MaxCost != nil:
			// Market buy: the whole reservation was a flat max_cost with
			// no per-unit price, so release the share proportional to
			// what never filled.
			if !order.Quantity.IsPositive() {
				return xerrors.New(xerrors.Internal, "cannot compute release amount: order quantity is zero")
			}
			amount = order.MaxCost.Mul(order.RemainingQuantity).Div(order.Quantity)
		default:
			return xerrors.New(xerrors.Internal, "cannot compute release amount: order has neither price nor max_cost")
		}
	} else {
		asset = market.BaseAsset
		amount = order.RemainingQuantity
	}
	if !amount.IsPositive() {
		return nil
	}

	lock := l.lockFor(order.AccountID)
	lock.Lock()
	defer lock.Unlock()

	bal, err := l.store.GetBalance(nil, order.AccountID, asset)
	if err != nil {
		return err
	}
	if bal.Locked.LessThan(amount) {
		return xerrors.Newf(xerrors.Internal, "release %s exceeds locked %s for %s/%s", amount, bal.Locked, order.AccountID, asset)
	}
	bal.Locked = bal.Locked.Sub(amount)
	bal.Available = bal.Available.Add(amount)

	return l.commitBalances(ctx, bal)
}

// SettleTrade atomically applies the four balance deltas for one match
// pair (spec.md §4.2 settlement rules). Locks are acquired on both
// accounts in ascending account-ID order to avoid deadlock (spec.md §5).
//
// Let taker_side = buy mean the taker bought base (spec.md §4.2):
//   - buyer (whichever of maker/taker bought base): quote.locked -= p*q,
//     quote.total -= p*q, base.available += q, base.total += q.
//   - seller (the other party): base.locked -= q, base.total -= q,
//     quote.available += p*q, quote.total += p*q.
//
// A taker sell is the mirror image: the maker is the buyer.
func (l *Ledger) SettleTrade(ctx context.Context, trade *models.Trade, market models.Market) error {
	buyerID, sellerID := trade.TakerAccountID, trade.MakerAccountID
	if trade.TakerSide == models.Sell {
		buyerID, sellerID = trade.MakerAccountID, trade.TakerAccountID
	}

	first, second := buyerID, sellerID
	if sellerID.String() < buyerID.String() {
		first, second = sellerID, buyerID
	}
	lockA := l.lockFor(first)
	lockA.Lock()
	defer lockA.Unlock()
	if first != second {
		lockB := l.lockFor(second)
		lockB.Lock()
		defer lockB.Unlock()
	}

	base, quote := market.BaseAsset, market.QuoteAsset
	qty := trade.Quantity
	notional := trade.Price.Mul(trade.Quantity)
	selfTrade := buyerID == sellerID

	buyerQuote, err := l.store.GetBalance(nil, buyerID, quote)
	if err != nil {
		return err
	}
	buyerBase, err := l.store.GetBalance(nil, buyerID, base)
	if err != nil {
		return err
	}
	// A self-trade reads the same two rows for both legs; reuse the
	// objects already fetched so both legs' deltas land on one copy
	// instead of two copies that would clobber each other on commit.
	sellerBase, sellerQuote := buyerBase, buyerQuote
	if !selfTrade {
		sellerBase, err = l.store.GetBalance(nil, sellerID, base)
		if err != nil {
			return err
		}
		sellerQuote, err = l.store.GetBalance(nil, sellerID, quote)
		if err != nil {
			return err
		}
	}

	if buyerQuote.Locked.LessThan(notional) {
		return xerrors.Newf(xerrors.Internal, "settlement: buyer %s locked %s < debit %s", buyerID, buyerQuote.Locked, notional)
	}
	buyerQuote.Locked = buyerQuote.Locked.Sub(notional)
	buyerQuote.Total = buyerQuote.Total.Sub(notional)
	buyerBase.Available = buyerBase.Available.Add(qty)
	buyerBase.Total = buyerBase.Total.Add(qty)

	if sellerBase.Locked.LessThan(qty) {
		return xerrors.Newf(xerrors.Internal, "settlement: seller %s locked %s < debit %s", sellerID, sellerBase.Locked, qty)
	}
	sellerBase.Locked = sellerBase.Locked.Sub(qty)
	sellerBase.Total = sellerBase.Total.Sub(qty)
	sellerQuote.Available = sellerQuote.Available.Add(notional)
	sellerQuote.Total = sellerQuote.Total.Add(notional)

	balances := []*models.Balance{buyerQuote, buyerBase}
	if !selfTrade {
		balances = append(balances, sellerBase, sellerQuote)
	}
	if err := l.commitBalances(ctx, balances...); err != nil {
		return err
	}
	l.log.Debug().Str("trade_id", trade.ID.String()).Str("market", market.ID).Msg("settled trade")
	return nil
}

// commitBalances wraps a set of balance writes in a single storage-port
// transaction (spec.md §4.2 "Every multi-row mutation ... is wrapped in
// a transaction").
func (l *Ledger) commitBalances(ctx context.Context, balances ...*models.Balance) error {
	for _, b := range balances {
		if err := b.CheckInvariant(); err != nil {
			return err
		}
	}
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.Database, "begin tx", err)
	}
	for _, b := range balances {
		if err := l.store.PutBalance(tx, b); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.Database, "commit tx", err)
	}
	return nil
}
