package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"exchangecore/internal/money"
)

// OrderStatus represents the state of an order (spec.md §3).
type OrderStatus int

const (
	New OrderStatus = iota
	PartiallyFilled
	Filled
	Canceled
)

func (s OrderStatus) String() string {
	switch s {
	case New:
		return "NEW"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Canceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	str := unquote(data)
	switch str {
	case "NEW":
		*s = New
	case "PARTIALLY_FILLED":
		*s = PartiallyFilled
	case "FILLED":
		*s = Filled
	case "CANCELED":
		*s = Canceled
	default:
		return fmt.Errorf("unknown order status: %s", str)
	}
	return nil
}

// Side is the side of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "BUY":
		*s = Buy
	case "SELL":
		*s = Sell
	default:
		return fmt.Errorf("unknown side: %s", unquote(data))
	}
	return nil
}

// Opposite returns the side that would cross against s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is Limit or Market (spec.md §3).
type OrderType int

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *OrderType) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "LIMIT":
		*t = Limit
	case "MARKET":
		*t = Market
	default:
		return fmt.Errorf("unknown order type: %s", unquote(data))
	}
	return nil
}

// TimeInForce is GTC or IOC (spec.md §3).
type TimeInForce int

const (
	GTC TimeInForce = iota
	IOC
)

func (f TimeInForce) String() string {
	if f == GTC {
		return "GTC"
	}
	return "IOC"
}

func (f TimeInForce) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

func (f *TimeInForce) UnmarshalJSON(data []byte) error {
	switch unquote(data) {
	case "GTC":
		*f = GTC
	case "IOC":
		*f = IOC
	default:
		return fmt.Errorf("unknown time in force: %s", unquote(data))
	}
	return nil
}

// Order is a single order, resting or terminal (spec.md §3).
type Order struct {
	ID                uuid.UUID     `json:"id"`
	AccountID         uuid.UUID     `json:"account_id"`
	Market            string        `json:"market"`
	Side              Side          `json:"side"`
	Type              OrderType     `json:"type"`
	Price             *money.Amount `json:"price,omitempty"`
	MaxCost           *money.Amount `json:"max_cost,omitempty"`
	Quantity          money.Amount  `json:"quantity"`
	FilledQuantity    money.Amount  `json:"filled_quantity"`
	RemainingQuantity money.Amount  `json:"remaining_quantity"`
	Status            OrderStatus   `json:"status"`
	TimeInForce       TimeInForce   `json:"time_in_force"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Sequence          uint64        `json:"sequence"`
}

// NewOrder builds an order in its pre-submission state. Sequence is
// assigned by the book on entry (spec.md §4.1), not here.
func NewOrder(accountID uuid.UUID, market string, side Side, typ OrderType, price *money.Amount, quantity money.Amount, tif TimeInForce) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:                uuid.New(),
		AccountID:         accountID,
		Market:            market,
		Side:              side,
		Type:              typ,
		Price:             price,
		Quantity:          quantity,
		FilledQuantity:    money.Zero,
		RemainingQuantity: quantity,
		Status:            New,
		TimeInForce:       tif,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// WithMaxCost attaches a quote-asset cost cap, required to reserve funds
// for a Market Buy order (spec.md §4.2 reserve_for_order).
func (o *Order) WithMaxCost(maxCost money.Amount) *Order {
	o.MaxCost = &maxCost
	return o
}

func (o *Order) String() string {
	price := "MKT"
	if o.Price != nil {
		price = o.Price.String()
	}
	return fmt.Sprintf("Order[id=%s market=%s side=%s type=%s price=%s qty=%s/%s status=%s seq=%d]",
		o.ID, o.Market, o.Side, o.Type, price, o.FilledQuantity, o.Quantity, o.Status, o.Sequence)
}

// IsResting reports whether the order can sit on a book (spec.md §3,
// invariant 2).
func (o *Order) IsResting() bool {
	return o.Status == New || o.Status == PartiallyFilled
}

// IsTerminal reports whether the order can no longer be mutated.
func (o *Order) IsTerminal() bool {
	return o.Status == Filled || o.Status == Canceled
}

func unquote(data []byte) string {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
