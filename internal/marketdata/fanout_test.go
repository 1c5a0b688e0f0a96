package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchangecore/internal/marketdata/envelope"
	"exchangecore/internal/money"
)

func newTestFanout() *Fanout {
	return New(Config{
		RecentTradesCapacity: 4,
		SubscriberBuffer:     2,
		RollingWindow:        24 * time.Hour,
	}, nil)
}

func TestOnTrade_UpdatesTickerAndRing(t *testing.T) {
	f := newTestFanout()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	f.OnTrade(TradeEvent{ID: "t1", Market: "BTC/USD", Price: money.MustParse("100"), Quantity: money.MustParse("1"), Side: "BUY", At: now})
	f.OnTrade(TradeEvent{ID: "t2", Market: "BTC/USD", Price: money.MustParse("110"), Quantity: money.MustParse("2"), Side: "BUY", At: now.Add(time.Minute)})

	ticker := f.GetTicker("BTC/USD")
	assert.True(t, ticker.Last.Equal(money.MustParse("110")))
	assert.True(t, ticker.Volume24h.Equal(money.MustParse("3")))
	assert.True(t, ticker.Change24h.Equal(money.MustParse("10")))

	trades := f.GetRecentTrades("BTC/USD", 10)
	require.Len(t, trades, 2)
	assert.Equal(t, "t2", trades[0].ID) // newest first
	assert.Equal(t, "t1", trades[1].ID)
}

func TestTradeRing_DropsOldestPastCapacity(t *testing.T) {
	f := newTestFanout() // capacity 4
	now := time.Now()
	for i := 0; i < 6; i++ {
		f.OnTrade(TradeEvent{ID: string(rune('a' + i)), Market: "BTC/USD", Price: money.MustParse("100"), Quantity: money.MustParse("1"), Side: "BUY", At: now})
	}
	trades := f.GetRecentTrades("BTC/USD", 0)
	require.Len(t, trades, 4)
	assert.Equal(t, "f", trades[0].ID)
	assert.Equal(t, "c", trades[3].ID)
}

func TestOnDepth_UpdatesBidAskAndPublishes(t *testing.T) {
	f := newTestFanout()
	id, ch := f.Subscribe(Topic{Kind: TopicOrderBook, Market: "BTC/USD"})
	defer f.Unsubscribe(Topic{Kind: TopicOrderBook, Market: "BTC/USD"}, id)

	f.OnDepth(DepthEvent{
		Market: "BTC/USD",
		Bids:   []DepthLevel{{Price: money.MustParse("99"), Quantity: money.MustParse("1")}},
		Asks:   []DepthLevel{{Price: money.MustParse("101"), Quantity: money.MustParse("1")}},
		At:     time.Now(),
	})

	ticker := f.GetTicker("BTC/USD")
	assert.True(t, ticker.Bid.Equal(money.MustParse("99")))
	assert.True(t, ticker.Ask.Equal(money.MustParse("101")))

	select {
	case msg := <-ch:
		env, ok := msg.Body.(envelope.OrderBookEnvelope)
		require.True(t, ok)
		assert.Len(t, env.Data.Bids, 1)
	case <-time.After(time.Second):
		t.Fatal("expected a published depth snapshot")
	}
}

func TestSubscribe_DropsNewestWhenBufferFull(t *testing.T) {
	f := newTestFanout() // buffer size 2
	topic := Topic{Kind: TopicTrades, Market: "BTC/USD"}
	id, ch := f.Subscribe(topic)
	defer f.Unsubscribe(topic, id)

	now := time.Now()
	for i := 0; i < 5; i++ {
		f.OnTrade(TradeEvent{ID: "t", Market: "BTC/USD", Price: money.MustParse("1"), Quantity: money.MustParse("1"), Side: "BUY", At: now})
	}

	// The publisher must never block: draining what did arrive should be
	// at most the buffer size, and the call above must have returned.
	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			assert.LessOrEqual(t, drained, 2)
			return
		}
	}
}

func TestCandles_BucketAndOHLCV(t *testing.T) {
	f := newTestFanout()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f.OnTrade(TradeEvent{ID: "1", Market: "BTC/USD", Price: money.MustParse("100"), Quantity: money.MustParse("1"), Side: "BUY", At: base})
	f.OnTrade(TradeEvent{ID: "2", Market: "BTC/USD", Price: money.MustParse("105"), Quantity: money.MustParse("1"), Side: "BUY", At: base.Add(30 * time.Second)})
	f.OnTrade(TradeEvent{ID: "3", Market: "BTC/USD", Price: money.MustParse("95"), Quantity: money.MustParse("1"), Side: "BUY", At: base.Add(90 * time.Second)})

	candles := f.GetCandles("BTC/USD", Interval1m, 0)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.True(t, first.Open.Equal(money.MustParse("100")))
	assert.True(t, first.High.Equal(money.MustParse("105")))
	assert.True(t, first.Close.Equal(money.MustParse("105")))
	assert.True(t, first.Volume.Equal(money.MustParse("2")))

	second := candles[1]
	assert.True(t, second.Open.Equal(money.MustParse("95")))
}

func TestJanitor_TrimsRollingWindow(t *testing.T) {
	f := New(Config{RecentTradesCapacity: 10, SubscriberBuffer: 2, RollingWindow: 50 * time.Millisecond, JanitorInterval: 10 * time.Millisecond}, nil)

	now := time.Now()
	f.OnTrade(TradeEvent{ID: "old", Market: "BTC/USD", Price: money.MustParse("100"), Quantity: money.MustParse("5"), Side: "BUY", At: now.Add(-time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx, 10*time.Millisecond)
	defer f.Shutdown()

	require.Eventually(t, func() bool {
		return f.GetTicker("BTC/USD").Volume24h.IsZero()
	}, time.Second, 10*time.Millisecond)
}
