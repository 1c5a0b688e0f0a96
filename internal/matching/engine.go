package matching

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"exchangecore/internal/models"
	"exchangecore/internal/money"
	"exchangecore/internal/xerrors"
)

// MatchResult is what place_order returns: the (possibly mutated) taker
// order, the maker orders it touched, and the trades produced, in the
// order the matching loop produced them (spec.md §4.1).
type MatchResult struct {
	Taker  *models.Order
	Makers []*models.Order
	Trades []*models.Trade
}

// Engine owns one OrderBook per market and matches each independently
// (spec.md §5: "Different markets match in parallel").
type Engine struct {
	mu     sync.RWMutex
	books  map[string]*OrderBook
	seq    atomic.Uint64 // global monotonic trade sequence
}

// NewEngine creates an engine with no registered markets.
func NewEngine() *Engine {
	return &Engine{books: make(map[string]*OrderBook)}
}

// RegisterMarket idempotently creates an empty book for market
// (spec.md §4.1 register_market).
func (e *Engine) RegisterMarket(market models.Market) error {
	if err := market.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.books[market.ID]; exists {
		return nil
	}
	e.books[market.ID] = NewOrderBook(market)
	return nil
}

func (e *Engine) book(marketID string) (*OrderBook, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[marketID]
	if !ok {
		return nil, xerrors.Newf(xerrors.NotFound, "market %q is not registered", marketID)
	}
	return b, nil
}

// GetMarketDepth returns the top-n aggregated levels of both sides
// (spec.md §4.1 get_market_depth).
func (e *Engine) GetMarketDepth(marketID string, depth int) (bids, asks []DepthLevel, err error) {
	b, err := e.book(marketID)
	if err != nil {
		return nil, nil, err
	}
	bids, asks = b.Depth(depth)
	return bids, asks, nil
}

// GetOrder returns a snapshot of a resting order (spec.md §4.1 get_order).
func (e *Engine) GetOrder(marketID string, id uuid.UUID) (models.Order, error) {
	b, err := e.book(marketID)
	if err != nil {
		return models.Order{}, err
	}
	o, ok := b.OrderAt(id)
	if !ok {
		return models.Order{}, xerrors.Newf(xerrors.NotFound, "order %s not found", id)
	}
	return o, nil
}

// validate checks an incoming order against its market spec
// (spec.md §4.1 step 1).
func validate(order *models.Order, market models.Market) error {
	if order.Side != models.Buy && order.Side != models.Sell {
		return xerrors.New(xerrors.InvalidOrder, "invalid side")
	}
	if !order.Quantity.IsPositive() {
		return xerrors.New(xerrors.InvalidOrder, "quantity must be positive")
	}
	if err := market.CheckQuantity(order.Quantity); err != nil {
		return err
	}
	switch order.Type {
	case models.Limit:
		if order.Price == nil {
			return xerrors.New(xerrors.InvalidOrder, "limit order requires a price")
		}
		if err := market.CheckPrice(*order.Price); err != nil {
			return err
		}
	case models.Market:
		if order.Price != nil {
			return xerrors.New(xerrors.InvalidOrder, "market order must have no price")
		}
	default:
		return xerrors.New(xerrors.InvalidOrder, "unknown order type")
	}
	return nil
}

// crosses reports whether the taker crosses against a resting order at
// restingPrice (spec.md §4.1 step 2c).
func crosses(taker *models.Order, restingPrice money.Amount) bool {
	if taker.Type == models.Market {
		return true
	}
	if taker.Side == models.Buy {
		return taker.Price.GreaterThan(restingPrice) || taker.Price.Equal(restingPrice)
	}
	return taker.Price.LessThan(restingPrice) || taker.Price.Equal(restingPrice)
}

// PlaceOrder submits an order for immediate matching and possible resting
// (spec.md §4.1 place_order). Every failure leaves the book unchanged.
func (e *Engine) PlaceOrder(order *models.Order) (*MatchResult, error) {
	b, err := e.book(order.Market)
	if err != nil {
		return nil, err
	}

	if err := validate(order, b.Market); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order.Sequence = b.nextSequence()

	result := &MatchResult{Taker: order, Makers: make([]*models.Order, 0), Trades: make([]*models.Trade, 0)}

	for order.RemainingQuantity.IsPositive() {
		level := b.bestLevel(order.Side)
		if level == nil || len(level.Orders) == 0 {
			break
		}
		if !crosses(order, level.Price) {
			break
		}

		maker := level.Orders[0]
		fillQty := order.RemainingQuantity
		if maker.RemainingQuantity.LessThan(fillQty) {
			fillQty = maker.RemainingQuantity
		}
		tradePrice := maker.Price

		trade := models.NewTrade(uuid.New(), b.Market.ID, maker, order, *tradePrice, fillQty, order.Side, e.seq.Add(1))

		order.FilledQuantity = order.FilledQuantity.Add(fillQty)
		order.RemainingQuantity = order.RemainingQuantity.Sub(fillQty)
		order.UpdatedAt = trade.ExecutedAt

		maker.FilledQuantity = maker.FilledQuantity.Add(fillQty)
		maker.RemainingQuantity = maker.RemainingQuantity.Sub(fillQty)
		maker.UpdatedAt = trade.ExecutedAt

		if order.RemainingQuantity.IsZero() {
			order.Status = models.Filled
		} else {
			order.Status = models.PartiallyFilled
		}

		if maker.RemainingQuantity.IsZero() {
			maker.Status = models.Filled
			level.removeAt(0)
			delete(b.byID, maker.ID)
			if len(level.Orders) == 0 {
				b.treeFor(maker.Side).Remove(level.Price)
			}
		} else {
			maker.Status = models.PartiallyFilled
		}

		last := *tradePrice
		b.lastPrice = &last

		result.Trades = append(result.Trades, trade)
		result.Makers = append(result.Makers, maker)
	}

	switch {
	case order.RemainingQuantity.IsZero():
		order.Status = models.Filled
	case order.Type == models.Market:
		order.Status = models.Canceled
	case order.TimeInForce == models.IOC:
		order.Status = models.Canceled
	default:
		b.restOrder(order)
		if order.FilledQuantity.IsPositive() {
			order.Status = models.PartiallyFilled
		} else {
			order.Status = models.New
		}
	}

	return result, nil
}

// CancelOrder removes a resting order and marks it Canceled
// (spec.md §4.1 cancel_order).
func (e *Engine) CancelOrder(marketID string, id uuid.UUID) (models.Order, error) {
	b, err := e.book(marketID)
	if err != nil {
		return models.Order{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.byID[id]
	if !ok {
		return models.Order{}, xerrors.Newf(xerrors.NotFound, "order %s not found", id)
	}
	if !order.IsResting() {
		return models.Order{}, xerrors.Newf(xerrors.InvalidState, "order %s is not cancelable in status %s", id, order.Status)
	}

	b.removeOrderLocked(order)
	order.Status = models.Canceled
	return *order, nil
}
