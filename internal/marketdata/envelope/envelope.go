// Package envelope defines the JSON message shapes the gateway port
// would serialize onto a subscriber sink (spec.md §6). The transport
// that would consume these types is out of scope; only the shapes are
// specified here so internal/marketdata can produce them directly.
package envelope

import "exchangecore/internal/money"

// OrderBookData is the payload of an "orderbook" envelope.
type OrderBookData struct {
	Bids      [][2]money.Amount `json:"bids"`
	Asks      [][2]money.Amount `json:"asks"`
	Timestamp int64             `json:"timestamp"`
}

// OrderBookEnvelope wraps a depth snapshot for one market.
type OrderBookEnvelope struct {
	Type   string        `json:"type"`
	Market string        `json:"market"`
	Data   OrderBookData `json:"data"`
}

// NewOrderBookEnvelope builds an "orderbook" envelope.
func NewOrderBookEnvelope(market string, bids, asks [][2]money.Amount, timestamp int64) OrderBookEnvelope {
	return OrderBookEnvelope{Type: "orderbook", Market: market, Data: OrderBookData{Bids: bids, Asks: asks, Timestamp: timestamp}}
}

// TradeData is the payload of a "trade" envelope.
type TradeData struct {
	ID        string       `json:"id"`
	Price     money.Amount `json:"price"`
	Quantity  money.Amount `json:"quantity"`
	Side      string       `json:"side"`
	Timestamp int64        `json:"timestamp"`
}

// TradeEnvelope wraps one executed trade.
type TradeEnvelope struct {
	Type   string    `json:"type"`
	Market string    `json:"market"`
	Data   TradeData `json:"data"`
}

// NewTradeEnvelope builds a "trade" envelope.
func NewTradeEnvelope(market, id string, price, quantity money.Amount, side string, timestamp int64) TradeEnvelope {
	return TradeEnvelope{Type: "trade", Market: market, Data: TradeData{ID: id, Price: price, Quantity: quantity, Side: side, Timestamp: timestamp}}
}

// TickerData is the payload of a "ticker" envelope.
type TickerData struct {
	Bid            money.Amount `json:"bid"`
	Ask            money.Amount `json:"ask"`
	Last           money.Amount `json:"last"`
	Volume         money.Amount `json:"volume"`
	Change         money.Amount `json:"change"`
	ChangePercent  money.Amount `json:"change_percent"`
	Timestamp      int64        `json:"timestamp"`
}

// TickerEnvelope wraps a ticker update for one market.
type TickerEnvelope struct {
	Type   string     `json:"type"`
	Market string     `json:"market"`
	Data   TickerData `json:"data"`
}

// NewTickerEnvelope builds a "ticker" envelope.
func NewTickerEnvelope(market string, data TickerData) TickerEnvelope {
	return TickerEnvelope{Type: "ticker", Market: market, Data: data}
}
