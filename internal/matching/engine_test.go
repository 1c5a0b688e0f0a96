package matching

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func limitOrder(side models.Side, price, qty string, tif models.TimeInForce) *models.Order {
	p := money.MustParse(price)
	return models.NewOrder(uuid.New(), "BTC/USD", side, models.Limit, &p, money.MustParse(qty), tif)
}

func marketOrder(side models.Side, qty string) *models.Order {
	return models.NewOrder(uuid.New(), "BTC/USD", side, models.Market, nil, money.MustParse(qty), models.IOC)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	require.NoError(t, e.RegisterMarket(testMarket()))
	return e
}

func TestPlaceOrder_SimpleMatch(t *testing.T) {
	e := newTestEngine(t)

	sell := limitOrder(models.Sell, "100", "10", models.GTC)
	_, err := e.PlaceOrder(sell)
	require.NoError(t, err)

	buy := limitOrder(models.Buy, "100", "10", models.GTC)
	result, err := e.PlaceOrder(buy)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Quantity.Equal(money.MustParse("10")))
	assert.True(t, result.Trades[0].Price.Equal(money.MustParse("100")))
	assert.True(t, buy.RemainingQuantity.IsZero())
	assert.Equal(t, models.Filled, buy.Status)
	assert.Equal(t, models.Filled, sell.Status)

	bids, asks, err := e.GetMarketDepth("BTC/USD", 10)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestPlaceOrder_PartialFillRests(t *testing.T) {
	e := newTestEngine(t)

	sell := limitOrder(models.Sell, "100", "5", models.GTC)
	_, err := e.PlaceOrder(sell)
	require.NoError(t, err)

	buy := limitOrder(models.Buy, "100", "10", models.GTC)
	result, err := e.PlaceOrder(buy)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Quantity.Equal(money.MustParse("5")))
	assert.True(t, buy.RemainingQuantity.Equal(money.MustParse("5")))
	assert.Equal(t, models.PartiallyFilled, buy.Status)

	bids, asks, err := e.GetMarketDepth("BTC/USD", 10)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Empty(t, asks)
	assert.True(t, bids[0].Quantity.Equal(money.MustParse("5")))
}

func TestPlaceOrder_MultiLevelMatchPriceTimePriority(t *testing.T) {
	e := newTestEngine(t)

	sell1 := limitOrder(models.Sell, "100", "5", models.GTC)
	sell2 := limitOrder(models.Sell, "101", "5", models.GTC)
	_, err := e.PlaceOrder(sell1)
	require.NoError(t, err)
	_, err = e.PlaceOrder(sell2)
	require.NoError(t, err)

	buy := limitOrder(models.Buy, "101", "8", models.GTC)
	result, err := e.PlaceOrder(buy)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[0].Price.Equal(money.MustParse("100")))
	assert.True(t, result.Trades[0].Quantity.Equal(money.MustParse("5")))
	assert.True(t, result.Trades[1].Price.Equal(money.MustParse("101")))
	assert.True(t, result.Trades[1].Quantity.Equal(money.MustParse("3")))
	assert.True(t, buy.RemainingQuantity.IsZero())

	_, asks, err := e.GetMarketDepth("BTC/USD", 10)
	require.NoError(t, err)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Quantity.Equal(money.MustParse("2")))
}

func TestPlaceOrder_MarketOrderInsufficientLiquidityCancelsResidual(t *testing.T) {
	e := newTestEngine(t)

	sell := limitOrder(models.Sell, "100", "5", models.GTC)
	_, err := e.PlaceOrder(sell)
	require.NoError(t, err)

	buy := marketOrder(models.Buy, "10")
	result, err := e.PlaceOrder(buy)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].Quantity.Equal(money.MustParse("5")))
	assert.Equal(t, models.Canceled, buy.Status)
	assert.True(t, buy.RemainingQuantity.Equal(money.MustParse("5")))

	_, asks, err := e.GetMarketDepth("BTC/USD", 10)
	require.NoError(t, err)
	assert.Empty(t, asks)
}

func TestPlaceOrder_IOCCancelsUnfilledResidual(t *testing.T) {
	e := newTestEngine(t)

	sell := limitOrder(models.Sell, "100", "5", models.GTC)
	_, err := e.PlaceOrder(sell)
	require.NoError(t, err)

	buy := limitOrder(models.Buy, "100", "10", models.IOC)
	_, err = e.PlaceOrder(buy)
	require.NoError(t, err)

	assert.Equal(t, models.Canceled, buy.Status)
	assert.True(t, buy.RemainingQuantity.Equal(money.MustParse("5")))

	bids, _, err := e.GetMarketDepth("BTC/USD", 10)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestPlaceOrder_NoCrossRestsWithoutMatch(t *testing.T) {
	e := newTestEngine(t)

	sell := limitOrder(models.Sell, "101", "5", models.GTC)
	_, err := e.PlaceOrder(sell)
	require.NoError(t, err)

	buy := limitOrder(models.Buy, "100", "5", models.GTC)
	result, err := e.PlaceOrder(buy)
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, models.New, buy.Status)
}

func TestCancelOrder(t *testing.T) {
	e := newTestEngine(t)

	buy := limitOrder(models.Buy, "100", "5", models.GTC)
	_, err := e.PlaceOrder(buy)
	require.NoError(t, err)

	canceled, err := e.CancelOrder("BTC/USD", buy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Canceled, canceled.Status)

	_, err = e.CancelOrder("BTC/USD", buy.ID)
	assert.Error(t, err)
}

func TestPlaceOrder_InvalidPriceRejected(t *testing.T) {
	e := newTestEngine(t)

	buy := limitOrder(models.Buy, "100.005", "5", models.GTC) // not a multiple of tick size
	_, err := e.PlaceOrder(buy)
	assert.Error(t, err)
}

func TestPlaceOrder_UnregisteredMarketRejected(t *testing.T) {
	e := NewEngine()
	buy := limitOrder(models.Buy, "100", "5", models.GTC)
	_, err := e.PlaceOrder(buy)
	assert.Error(t, err)
}

func TestEngineConcurrentOrdersSameMarket(t *testing.T) {
	e := newTestEngine(t)

	var wg sync.WaitGroup
	const goroutines = 50
	const perGoroutine = 20
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				side := models.Buy
				if (id+j)%2 == 0 {
					side = models.Sell
				}
				order := limitOrder(side, "100", "1", models.GTC)
				_, err := e.PlaceOrder(order)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
}
