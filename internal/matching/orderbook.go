// Package matching implements per-market limit order books with
// price-time priority matching (spec.md §4.1).
package matching

import (
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/google/uuid"

	"exchangecore/internal/models"
	"exchangecore/internal/money"
)

// priceComparator orders money.Amount keys ascending.
// reversePriceComparator reuses it in reverse for bids.
func priceComparator(a, b interface{}) int {
	return a.(money.Amount).Cmp(b.(money.Amount))
}

func reversePriceComparator(a, b interface{}) int {
	return priceComparator(b, a)
}

// PriceLevel is all resting orders at one price, FIFO by arrival
// (spec.md §3).
type PriceLevel struct {
	Price  money.Amount
	Orders []*models.Order
}

// TotalQuantity sums the remaining quantity of every order resting at
// this level.
func (l *PriceLevel) TotalQuantity() money.Amount {
	total := money.Zero
	for _, o := range l.Orders {
		total = total.Add(o.RemainingQuantity)
	}
	return total
}

func (l *PriceLevel) append(o *models.Order) {
	l.Orders = append(l.Orders, o)
}

// removeAt deletes the order at the given index, preserving FIFO order of
// the remainder.
func (l *PriceLevel) removeAt(idx int) {
	l.Orders = append(l.Orders[:idx], l.Orders[idx+1:]...)
}

// OrderBook is the book for a single market: two price-ordered trees plus
// a by-ID index, all guarded by one mutex for the full duration of every
// mutation (spec.md §5).
type OrderBook struct {
	Market models.Market

	mu   sync.RWMutex
	bids *redblacktree.Tree // money.Amount -> *PriceLevel, iterates descending
	asks *redblacktree.Tree // money.Amount -> *PriceLevel, iterates ascending
	byID map[uuid.UUID]*models.Order

	lastPrice   *money.Amount
	nextOrderSeq uint64
}

// NewOrderBook creates an empty book for market.
func NewOrderBook(market models.Market) *OrderBook {
	return &OrderBook{
		Market: market,
		bids:   redblacktree.NewWith(reversePriceComparator),
		asks:   redblacktree.NewWith(priceComparator),
		byID:   make(map[uuid.UUID]*models.Order),
	}
}

func (b *OrderBook) treeFor(side models.Side) *redblacktree.Tree {
	if side == models.Buy {
		return b.bids
	}
	return b.asks
}

// nextSequence assigns the next monotonic per-book sequence number
// (spec.md §4.1: "On entry, an order is assigned a monotonic per-book
// sequence number").
func (b *OrderBook) nextSequence() uint64 {
	b.nextOrderSeq++
	return b.nextOrderSeq
}

// bestLevel returns the best opposing level for side: lowest ask for a
// Buy, highest bid for a Sell (spec.md §4.1 step 2a).
func (b *OrderBook) bestLevel(side models.Side) *PriceLevel {
	tree := b.treeFor(side.Opposite())
	node := tree.Left()
	if node == nil {
		return nil
	}
	return node.Value.(*PriceLevel)
}

// restOrder inserts order into its side's price level, creating the
// level if necessary (spec.md §4.1 step 3, "rest at taker.price").
func (b *OrderBook) restOrder(order *models.Order) {
	tree := b.treeFor(order.Side)
	price := *order.Price
	var level *PriceLevel
	if v, found := tree.Get(price); found {
		level = v.(*PriceLevel)
	} else {
		level = &PriceLevel{Price: price}
		tree.Put(price, level)
	}
	level.append(order)
	b.byID[order.ID] = order
}

// removeOrderLocked removes order from its price level and the by-ID
// index, deleting an emptied level (spec.md §4.1 step 2f, §4.1 Cancellation).
// Caller must hold b.mu.
func (b *OrderBook) removeOrderLocked(order *models.Order) {
	tree := b.treeFor(order.Side)
	price := *order.Price
	v, found := tree.Get(price)
	if !found {
		delete(b.byID, order.ID)
		return
	}
	level := v.(*PriceLevel)
	for i, o := range level.Orders {
		if o.ID == order.ID {
			level.removeAt(i)
			break
		}
	}
	if len(level.Orders) == 0 {
		tree.Remove(price)
	}
	delete(b.byID, order.ID)
}

// DepthLevel is one aggregated row of market depth.
type DepthLevel struct {
	Price    money.Amount `json:"price"`
	Quantity money.Amount `json:"quantity"`
}

// Depth returns the first n price levels of each side, descending for
// bids and ascending for asks (spec.md §4.1 get_market_depth). n <= 0
// means "all levels".
func (b *OrderBook) Depth(n int) (bids, asks []DepthLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = collectDepth(b.bids, n)
	asks = collectDepth(b.asks, n)
	return bids, asks
}

func collectDepth(tree *redblacktree.Tree, n int) []DepthLevel {
	out := make([]DepthLevel, 0)
	it := tree.Iterator()
	it.Begin()
	count := 0
	for it.Next() {
		if n > 0 && count >= n {
			break
		}
		level := it.Value().(*PriceLevel)
		out = append(out, DepthLevel{Price: level.Price, Quantity: level.TotalQuantity()})
		count++
	}
	return out
}

// BestBid returns the best bid price, if any.
func (b *OrderBook) BestBid() (money.Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	node := b.bids.Left()
	if node == nil {
		return money.Zero, false
	}
	return node.Value.(*PriceLevel).Price, true
}

// BestAsk returns the best ask price, if any.
func (b *OrderBook) BestAsk() (money.Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	node := b.asks.Left()
	if node == nil {
		return money.Zero, false
	}
	return node.Value.(*PriceLevel).Price, true
}

// LastPrice returns the price of the most recent trade in this book.
func (b *OrderBook) LastPrice() (money.Amount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastPrice == nil {
		return money.Zero, false
	}
	return *b.lastPrice, true
}

// OrderAt returns a snapshot copy of the order with the given ID.
func (b *OrderBook) OrderAt(id uuid.UUID) (models.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byID[id]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}
