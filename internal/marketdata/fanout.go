// Package marketdata aggregates trades and order-book snapshots into
// per-market tickers, recent-trades rings, and OHLCV candles, and
// distributes them to topic subscribers (spec.md §4.3). It supplements
// the teacher, which had no market-data layer at all; the channel-based
// streaming shape is grounded on mkhoshkam-orderbook's engine.Engine
// (TradeStream/PriceUpdates/DepthUpdates) and the bounded-ring technique
// of ccyyhlg-lightning-exchange's trade ring buffer.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/btree"
	tomb "gopkg.in/tomb.v2"

	"exchangecore/internal/marketdata/envelope"
	"exchangecore/internal/metrics"
	"exchangecore/internal/money"
)

// DepthLevel is one aggregated price/quantity row, mirroring
// matching.DepthLevel without importing the matching package.
type DepthLevel struct {
	Price    money.Amount
	Quantity money.Amount
}

// DepthSnapshot is the most recent top-N bids/asks published by the
// matching engine (spec.md §4.3).
type DepthSnapshot struct {
	Bids      []DepthLevel
	Asks      []DepthLevel
	Timestamp time.Time
}

// TopicKind identifies the class of fan-out channel (spec.md §4.3).
type TopicKind int

const (
	TopicOrderBook TopicKind = iota
	TopicTrades
	TopicTicker
	TopicAllTickers
)

// Topic addresses one fan-out channel: a market-scoped book/trade/ticker
// stream, or the cross-market AllTickers stream.
type Topic struct {
	Kind   TopicKind
	Market string
}

// Message is what a subscriber receives: one of the envelope types in
// internal/marketdata/envelope, already market/topic-scoped.
type Message struct {
	Topic Topic
	Body  any
}

// marketState is the per-market aggregation state (spec.md §4.3).
type marketState struct {
	mu      sync.RWMutex
	ticker  Ticker
	depth   DepthSnapshot
	trades  *tradeRing
	candles map[Interval]*btree.Map[int64, Candle]
	volume  []volumeSample // rolling 24h window, trimmed by the janitor
}

func newMarketState(ringCapacity int) *marketState {
	candles := make(map[Interval]*btree.Map[int64, Candle], len(Intervals))
	for _, iv := range Intervals {
		m := &btree.Map[int64, Candle]{}
		candles[iv] = m
	}
	return &marketState{
		trades:  newTradeRing(ringCapacity),
		candles: candles,
	}
}

// subscriber is one registered delivery sink with a bounded,
// drop-newest buffer (spec.md §9 "Fan-out back-pressure").
type subscriber struct {
	id   uint64
	ch   chan Message
	stop chan struct{}
}

// Fanout is the market-data aggregation and distribution hub. One
// Fanout instance serves every registered market.
type Fanout struct {
	ringCapacity int
	bufferSize   int
	window       time.Duration
	metrics      *metrics.Collector

	mu      sync.RWMutex
	markets map[string]*marketState

	subsMu sync.Mutex
	subs   map[Topic]map[uint64]*subscriber
	nextID uint64

	t *tomb.Tomb
}

// Config tunes a Fanout instance.
type Config struct {
	RecentTradesCapacity int
	SubscriberBuffer     int
	RollingWindow        time.Duration
	JanitorInterval      time.Duration
}

// New builds a Fanout with no market state yet; stateFor lazily creates
// a market's state on first intake or query for that market.
func New(cfg Config, collector *metrics.Collector) *Fanout {
	if cfg.RecentTradesCapacity <= 0 {
		cfg.RecentTradesCapacity = 1000
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = 24 * time.Hour
	}
	return &Fanout{
		ringCapacity: cfg.RecentTradesCapacity,
		bufferSize:   cfg.SubscriberBuffer,
		window:       cfg.RollingWindow,
		metrics:      collector,
		markets:      make(map[string]*marketState),
		subs:         make(map[Topic]map[uint64]*subscriber),
	}
}

// stateFor returns (creating if necessary) the state for market.
func (f *Fanout) stateFor(market string) *marketState {
	f.mu.RLock()
	st, ok := f.markets[market]
	f.mu.RUnlock()
	if ok {
		return st
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.markets[market]; ok {
		return st
	}
	st = newMarketState(f.ringCapacity)
	f.markets[market] = st
	return st
}

// TradeEvent is the input to OnTrade, independent of models.Trade so
// this package has no dependency on the matching/ledger domain types.
type TradeEvent struct {
	ID       string
	Market   string
	Price    money.Amount
	Quantity money.Amount
	Side     string // "BUY" or "SELL", the taker's side
	At       time.Time
}

// OnTrade folds a trade into the ticker, recent-trades ring, and every
// candle interval, then publishes to the market's Trades and Ticker
// topics (spec.md §4.3 on_trade).
func (f *Fanout) OnTrade(ev TradeEvent) {
	st := f.stateFor(ev.Market)

	st.mu.Lock()
	st.trades.push(RecentTrade{ID: ev.ID, Price: ev.Price, Quantity: ev.Quantity, Side: ev.Side, Timestamp: ev.At})
	st.volume = append(st.volume, volumeSample{at: ev.At, quantity: ev.Quantity, price: ev.Price})

	prevLast := st.ticker.Last
	st.ticker.Last = ev.Price
	st.ticker.Timestamp = ev.At
	recomputeTicker(&st.ticker, st.volume, prevLast)

	for _, iv := range Intervals {
		bucket := bucketStart(iv, ev.At.Unix())
		m := st.candles[iv]
		c, ok := m.Get(bucket)
		if !ok {
			c = newCandle(bucket)
		}
		c.applyTrade(ev.Price, ev.Quantity)
		m.Set(bucket, c)
	}
	ticker := st.ticker
	st.mu.Unlock()

	f.publish(Topic{Kind: TopicTrades, Market: ev.Market}, envelope.NewTradeEnvelope(ev.Market, ev.ID, ev.Price, ev.Quantity, ev.Side, ev.At.Unix()))
	f.publish(Topic{Kind: TopicTicker, Market: ev.Market}, tickerEnvelope(ev.Market, ticker))
	f.publish(Topic{Kind: TopicAllTickers}, tickerEnvelope(ev.Market, ticker))

	if f.metrics != nil {
		f.metrics.TradesTotal.WithLabelValues(ev.Market).Inc()
		f.metrics.TradeVolume.WithLabelValues(ev.Market).Add(decimalFloat(ev.Quantity))
	}
}

// tickerEnvelope builds the wire-shaped ticker envelope for market,
// published on both its own Ticker topic and the cross-market
// AllTickers topic (spec.md §6).
func tickerEnvelope(market string, t Ticker) envelope.TickerEnvelope {
	return envelope.NewTickerEnvelope(market, envelope.TickerData{
		Bid:           t.Bid,
		Ask:           t.Ask,
		Last:          t.Last,
		Volume:        t.Volume24h,
		Change:        t.Change24h,
		ChangePercent: t.ChangePct24h,
		Timestamp:     t.Timestamp.Unix(),
	})
}

// recomputeTicker derives 24h_volume/change/change_pct from the
// rolling-window samples (spec.md §4.3 ticker fields).
func recomputeTicker(t *Ticker, samples []volumeSample, prevLast money.Amount) {
	if len(samples) == 0 {
		t.Volume24h = money.Zero
		t.Change24h = money.Zero
		t.ChangePct24h = money.Zero
		return
	}
	vol := money.Zero
	open := samples[0].price
	for _, s := range samples {
		vol = vol.Add(s.quantity)
	}
	t.Volume24h = vol
	t.Change24h = t.Last.Sub(open)
	if open.IsPositive() {
		t.ChangePct24h = t.Change24h.Mul(money.NewFromInt(100)).Div(open)
	}
}

// DepthEvent is the input to OnDepth.
type DepthEvent struct {
	Market string
	Bids   []DepthLevel
	Asks   []DepthLevel
	At     time.Time
}

// OnDepth replaces the depth snapshot and refreshes ticker.bid/ask,
// then publishes to the market's OrderBook topic (spec.md §4.3 on_depth).
func (f *Fanout) OnDepth(ev DepthEvent) {
	st := f.stateFor(ev.Market)

	st.mu.Lock()
	st.depth = DepthSnapshot{Bids: ev.Bids, Asks: ev.Asks, Timestamp: ev.At}
	if len(ev.Bids) > 0 {
		st.ticker.Bid = ev.Bids[0].Price
	}
	if len(ev.Asks) > 0 {
		st.ticker.Ask = ev.Asks[0].Price
	}
	snapshot := st.depth
	st.mu.Unlock()

	f.publish(Topic{Kind: TopicOrderBook, Market: ev.Market}, orderBookEnvelope(ev.Market, snapshot))
}

// orderBookEnvelope builds the wire-shaped depth snapshot for market
// (spec.md §6).
func orderBookEnvelope(market string, snap DepthSnapshot) envelope.OrderBookEnvelope {
	bids := make([][2]money.Amount, len(snap.Bids))
	for i, l := range snap.Bids {
		bids[i] = [2]money.Amount{l.Price, l.Quantity}
	}
	asks := make([][2]money.Amount, len(snap.Asks))
	for i, l := range snap.Asks {
		asks[i] = [2]money.Amount{l.Price, l.Quantity}
	}
	return envelope.NewOrderBookEnvelope(market, bids, asks, snap.Timestamp.Unix())
}

// GetTicker returns a snapshot of the market's ticker.
func (f *Fanout) GetTicker(market string) Ticker {
	st := f.stateFor(market)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.ticker
}

// GetDepth returns a snapshot of the market's last published depth.
func (f *Fanout) GetDepth(market string) DepthSnapshot {
	st := f.stateFor(market)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.depth
}

// GetRecentTrades returns up to limit of the market's most recent
// trades, newest first. limit <= 0 returns every trade in the ring.
func (f *Fanout) GetRecentTrades(market string, limit int) []RecentTrade {
	st := f.stateFor(market)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.trades.latest(limit)
}

// GetCandles returns up to limit of the market's most recent candles for
// interval, oldest first. limit <= 0 returns every retained bucket.
func (f *Fanout) GetCandles(market string, interval Interval, limit int) []Candle {
	st := f.stateFor(market)
	st.mu.RLock()
	defer st.mu.RUnlock()

	m, ok := st.candles[interval]
	if !ok {
		return nil
	}
	all := make([]Candle, 0, m.Len())
	m.Scan(func(_ int64, c Candle) bool {
		all = append(all, c)
		return true
	})
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	return all
}

// Subscribe registers a delivery sink for topic and returns a
// subscription ID plus the channel to receive on. The channel is
// bounded; a lagging subscriber has messages dropped, never blocking
// the publisher (spec.md §9).
func (f *Fanout) Subscribe(topic Topic) (uint64, <-chan Message) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()

	f.nextID++
	id := f.nextID
	sub := &subscriber{id: id, ch: make(chan Message, f.bufferSize), stop: make(chan struct{})}

	if f.subs[topic] == nil {
		f.subs[topic] = make(map[uint64]*subscriber)
	}
	f.subs[topic][id] = sub
	return id, sub.ch
}

// Unsubscribe removes subscription id from topic.
func (f *Fanout) Unsubscribe(topic Topic, id uint64) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()

	subs, ok := f.subs[topic]
	if !ok {
		return
	}
	if sub, ok := subs[id]; ok {
		close(sub.stop)
		delete(subs, id)
	}
}

// publish delivers msg to every subscriber of topic, dropping it for
// any subscriber whose buffer is full (spec.md §4.3, §9).
func (f *Fanout) publish(topic Topic, body any) {
	f.subsMu.Lock()
	subs := f.subs[topic]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	f.subsMu.Unlock()

	msg := Message{Topic: topic, Body: body}
	for _, s := range targets {
		select {
		case s.ch <- msg:
			if f.metrics != nil {
				f.metrics.FanoutDelivered.WithLabelValues(topicLabel(topic)).Inc()
			}
		default:
			if f.metrics != nil {
				f.metrics.FanoutDropped.WithLabelValues(topicLabel(topic)).Inc()
			}
		}
	}
}

func topicLabel(t Topic) string {
	switch t.Kind {
	case TopicOrderBook:
		return "orderbook:" + t.Market
	case TopicTrades:
		return "trades:" + t.Market
	case TopicTicker:
		return "ticker:" + t.Market
	default:
		return "all_tickers"
	}
}

// Start launches the rolling-window janitor under a supervising tomb,
// in the idiom used by the teacher pack's WorkerPool
// (gopkg.in/tomb.v2: t.Go, t.Dying()). Stop via Shutdown or by
// cancelling ctx.
func (f *Fanout) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	f.t, ctx = tomb.WithContext(ctx)
	f.t.Go(func() error {
		return f.janitor(ctx, interval)
	})
}

// Shutdown stops the janitor and waits for it to exit.
func (f *Fanout) Shutdown() error {
	if f.t == nil {
		return nil
	}
	f.t.Kill(nil)
	return f.t.Wait()
}

// janitor periodically drops 24h-volume samples older than the rolling
// window and recomputes each ticker (pure ambient housekeeping, not part
// of the intake hot path). The recent-trades ring is bounded by its
// capacity only and is not trimmed by age.
func (f *Fanout) janitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.t.Dying():
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.trimAll(time.Now())
		}
	}
}

func (f *Fanout) trimAll(now time.Time) {
	f.mu.RLock()
	states := make([]*marketState, 0, len(f.markets))
	for _, st := range f.markets {
		states = append(states, st)
	}
	f.mu.RUnlock()

	cutoff := now.Add(-f.window)
	for _, st := range states {
		st.mu.Lock()
		kept := st.volume[:0:0]
		for _, s := range st.volume {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}
		st.volume = kept
		recomputeTicker(&st.ticker, st.volume, st.ticker.Last)
		st.mu.Unlock()
	}
}

func decimalFloat(a money.Amount) float64 {
	f, _ := a.Decimal().Float64()
	return f
}
