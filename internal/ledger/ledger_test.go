package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"exchangecore/internal/ledger/storage"
	"exchangecore/internal/models"
	"exchangecore/internal/money"
)

func testMarket() models.Market {
	return models.Market{
		ID:          "BTC/USD",
		BaseAsset:   "BTC",
		QuoteAsset:  "USD",
		TickSize:    money.MustParse("0.01"),
		StepSize:    money.MustParse("0.001"),
		MinPrice:    money.MustParse("0.01"),
		MaxPrice:    money.MustParse("1000000"),
		MinQuantity: money.MustParse("0.001"),
		MaxQuantity: money.MustParse("10000"),
	}
}

func newTestLedger() *Ledger {
	return New(storage.NewMemoryStore(), zerolog.Nop())
}

func fund(t *testing.T, l *Ledger, accountID uuid.UUID, asset, amount string) {
	t.Helper()
	_, err := l.Deposit(context.Background(), accountID, asset, money.MustParse(amount))
	require.NoError(t, err)
}

func TestDepositWithdraw(t *testing.T) {
	l := newTestLedger()
	acc := uuid.New()

	bal, err := l.Deposit(context.Background(), acc, "USD", money.MustParse("100"))
	require.NoError(t, err)
	require.True(t, bal.Total.Equal(money.MustParse("100")))
	require.True(t, bal.Available.Equal(money.MustParse("100")))

	_, err = l.Withdraw(context.Background(), acc, "USD", money.MustParse("40"))
	require.NoError(t, err)

	bal, err = l.GetBalance(context.Background(), acc, "USD")
	require.NoError(t, err)
	require.True(t, bal.Total.Equal(money.MustParse("60")))

	_, err = l.Withdraw(context.Background(), acc, "USD", money.MustParse("1000"))
	require.Error(t, err)
}

func TestReserveForOrder_LimitBuy(t *testing.T) {
	l := newTestLedger()
	market := testMarket()
	acc := uuid.New()
	fund(t, l, acc, "USD", "1000")

	price := money.MustParse("100")
	order := models.NewOrder(acc, market.ID, models.Buy, models.Limit, &price, money.MustParse("5"), models.GTC)

	require.NoError(t, l.ReserveForOrder(context.Background(), order, market))

	bal, err := l.GetBalance(context.Background(), acc, "USD")
	require.NoError(t, err)
	require.True(t, bal.Available.Equal(money.MustParse("500")))
	require.True(t, bal.Locked.Equal(money.MustParse("500")))
	require.True(t, bal.Total.Equal(money.MustParse("1000")))
}

func TestReserveForOrder_InsufficientBalance(t *testing.T) {
	l := newTestLedger()
	market := testMarket()
	acc := uuid.New()
	fund(t, l, acc, "USD", "10")

	price := money.MustParse("100")
	order := models.NewOrder(acc, market.ID, models.Buy, models.Limit, &price, money.MustParse("5"), models.GTC)

	err := l.ReserveForOrder(context.Background(), order, market)
	require.Error(t, err)
}

func TestReleaseReserved_LimitBuyPartialFill(t *testing.T) {
	l := newTestLedger()
	market := testMarket()
	acc := uuid.New()
	fund(t, l, acc, "USD", "1000")

	price := money.MustParse("100")
	order := models.NewOrder(acc, market.ID, models.Buy, models.Limit, &price, money.MustParse("5"), models.GTC)
	require.NoError(t, l.ReserveForOrder(context.Background(), order, market))

	// Simulate a partial fill: 2 of 5 filled, 3 remaining.
	order.FilledQuantity = money.MustParse("2")
	order.RemainingQuantity = money.MustParse("3")

	require.NoError(t, l.ReleaseReserved(context.Background(), order, market))

	bal, err := l.GetBalance(context.Background(), acc, "USD")
	require.NoError(t, err)
	// Residual reservation released is price * remaining = 100*3 = 300.
	require.True(t, bal.Locked.Equal(money.MustParse("200")))
	require.True(t, bal.Available.Equal(money.MustParse("800")))
}

func TestReleaseReserved_MarketBuyProportional(t *testing.T) {
	l := newTestLedger()
	market := testMarket()
	acc := uuid.New()
	fund(t, l, acc, "USD", "1000")

	order := models.NewOrder(acc, market.ID, models.Buy, models.Market, nil, money.MustParse("10"), models.IOC).
		WithMaxCost(money.MustParse("500"))
	require.NoError(t, l.ReserveForOrder(context.Background(), order, market))

	// Half the quantity filled, half remains.
	order.FilledQuantity = money.MustParse("5")
	order.RemainingQuantity = money.MustParse("5")

	require.NoError(t, l.ReleaseReserved(context.Background(), order, market))

	bal, err := l.GetBalance(context.Background(), acc, "USD")
	require.NoError(t, err)
	// Proportional residual = 500 * 5/10 = 250, leaving 250 locked.
	require.True(t, bal.Locked.Equal(money.MustParse("250")))
	require.True(t, bal.Available.Equal(money.MustParse("750")))
}

func TestSettleTrade_TwoParties(t *testing.T) {
	l := newTestLedger()
	market := testMarket()
	buyer, seller := uuid.New(), uuid.New()
	fund(t, l, buyer, "USD", "1000")
	fund(t, l, seller, "BTC", "10")

	price := money.MustParse("100")
	buyOrder := models.NewOrder(buyer, market.ID, models.Buy, models.Limit, &price, money.MustParse("5"), models.GTC)
	sellOrder := models.NewOrder(seller, market.ID, models.Sell, models.Limit, &price, money.MustParse("5"), models.GTC)
	require.NoError(t, l.ReserveForOrder(context.Background(), buyOrder, market))
	require.NoError(t, l.ReserveForOrder(context.Background(), sellOrder, market))

	trade := models.NewTrade(uuid.New(), market.ID, sellOrder, buyOrder, price, money.MustParse("5"), models.Buy, 1)
	require.NoError(t, l.SettleTrade(context.Background(), trade, market))

	buyerUSD, err := l.GetBalance(context.Background(), buyer, "USD")
	require.NoError(t, err)
	require.True(t, buyerUSD.Total.Equal(money.MustParse("500")))
	require.True(t, buyerUSD.Locked.IsZero())

	buyerBTC, err := l.GetBalance(context.Background(), buyer, "BTC")
	require.NoError(t, err)
	require.True(t, buyerBTC.Total.Equal(money.MustParse("5")))

	sellerBTC, err := l.GetBalance(context.Background(), seller, "BTC")
	require.NoError(t, err)
	require.True(t, sellerBTC.Total.Equal(money.MustParse("5")))
	require.True(t, sellerBTC.Locked.IsZero())

	sellerUSD, err := l.GetBalance(context.Background(), seller, "USD")
	require.NoError(t, err)
	require.True(t, sellerUSD.Total.Equal(money.MustParse("500")))
}

func TestSettleTrade_SelfTrade(t *testing.T) {
	l := newTestLedger()
	market := testMarket()
	acc := uuid.New()
	fund(t, l, acc, "USD", "1000")
	fund(t, l, acc, "BTC", "10")

	price := money.MustParse("100")
	buyOrder := models.NewOrder(acc, market.ID, models.Buy, models.Limit, &price, money.MustParse("5"), models.GTC)
	sellOrder := models.NewOrder(acc, market.ID, models.Sell, models.Limit, &price, money.MustParse("5"), models.GTC)
	require.NoError(t, l.ReserveForOrder(context.Background(), buyOrder, market))
	require.NoError(t, l.ReserveForOrder(context.Background(), sellOrder, market))

	trade := models.NewTrade(uuid.New(), market.ID, sellOrder, buyOrder, price, money.MustParse("5"), models.Buy, 1)
	require.NoError(t, l.SettleTrade(context.Background(), trade, market))

	// Both legs must have applied: USD spent on the buy leg and credited
	// back on the sell leg, BTC received on the buy leg and debited on
	// the sell leg, leaving total holdings unchanged by quantity.
	usd, err := l.GetBalance(context.Background(), acc, "USD")
	require.NoError(t, err)
	require.True(t, usd.Total.Equal(money.MustParse("1000")))
	require.True(t, usd.Locked.IsZero())

	btc, err := l.GetBalance(context.Background(), acc, "BTC")
	require.NoError(t, err)
	require.True(t, btc.Total.Equal(money.MustParse("10")))
	require.True(t, btc.Locked.IsZero())
}
