package ledger

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"exchangecore/internal/models"
	"exchangecore/internal/money"
)

// TestConservationOfFunds_RandomizedTrades is the randomized property
// test for spec.md §8's invariant 5: the total of each asset (base and
// quote) held across all accounts is conserved across any sequence of
// trades, since a
// trade only moves value between the two counterparties and never
// creates or destroys it.
func TestConservationOfFunds_RandomizedTrades(t *testing.T) {
	l := newTestLedger()
	market := testMarket()

	const numAccounts = 6
	accounts := make([]uuid.UUID, numAccounts)
	for i := range accounts {
		accounts[i] = uuid.New()
		fund(t, l, accounts[i], "USD", "100000")
		fund(t, l, accounts[i], "BTC", "1000")
	}

	totalBefore := totalHoldings(t, l, accounts)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		buyer := accounts[rng.Intn(numAccounts)]
		seller := accounts[rng.Intn(numAccounts)]
		price := money.MustParse("100")
		qty := money.NewFromInt(int64(1 + rng.Intn(5)))

		buyOrder := models.NewOrder(buyer, market.ID, models.Buy, models.Limit, &price, qty, models.GTC)
		sellOrder := models.NewOrder(seller, market.ID, models.Sell, models.Limit, &price, qty, models.GTC)

		if err := l.ReserveForOrder(context.Background(), buyOrder, market); err != nil {
			continue // insufficient balance: a legal outcome, not a conservation failure
		}
		if err := l.ReserveForOrder(context.Background(), sellOrder, market); err != nil {
			require.NoError(t, l.ReleaseReserved(context.Background(), buyOrder, market))
			continue
		}

		trade := models.NewTrade(uuid.New(), market.ID, sellOrder, buyOrder, price, qty, models.Buy, uint64(i))
		require.NoError(t, l.SettleTrade(context.Background(), trade, market))
	}

	totalAfter := totalHoldings(t, l, accounts)
	require.True(t, totalBefore.usd.Equal(totalAfter.usd), "USD conserved: before=%s after=%s", totalBefore.usd, totalAfter.usd)
	require.True(t, totalBefore.btc.Equal(totalAfter.btc), "BTC conserved: before=%s after=%s", totalBefore.btc, totalAfter.btc)

	for _, acc := range accounts {
		for _, asset := range []string{"USD", "BTC"} {
			bal, err := l.GetBalance(context.Background(), acc, asset)
			require.NoError(t, err)
			require.NoError(t, bal.CheckInvariant())
		}
	}
}

type holdings struct {
	usd money.Amount
	btc money.Amount
}

func totalHoldings(t *testing.T, l *Ledger, accounts []uuid.UUID) holdings {
	t.Helper()
	h := holdings{usd: money.Zero, btc: money.Zero}
	for _, acc := range accounts {
		usd, err := l.GetBalance(context.Background(), acc, "USD")
		require.NoError(t, err)
		btc, err := l.GetBalance(context.Background(), acc, "BTC")
		require.NoError(t, err)
		h.usd = h.usd.Add(usd.Total)
		h.btc = h.btc.Add(btc.Total)
	}
	return h
}
