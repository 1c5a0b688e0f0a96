package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"exchangecore/internal/money"
)

// Trade is an immutable record of one match between a maker and a taker
// (spec.md §3). Trades are only created by the matching engine.
type Trade struct {
	ID             uuid.UUID    `json:"id"`
	Market         string       `json:"market"`
	MakerOrderID   uuid.UUID    `json:"maker_order_id"`
	TakerOrderID   uuid.UUID    `json:"taker_order_id"`
	MakerAccountID uuid.UUID    `json:"maker_account_id"`
	TakerAccountID uuid.UUID    `json:"taker_account_id"`
	Price          money.Amount `json:"price"`
	Quantity       money.Amount `json:"quantity"`
	TakerSide      Side         `json:"taker_side"`
	ExecutedAt     time.Time    `json:"executed_at"`
	Sequence       uint64       `json:"sequence"`
}

// NewTrade builds a Trade. id and sequence are supplied by the matching
// engine; sequence comes from its monotonic trade-sequence counter.
func NewTrade(id uuid.UUID, market string, maker, taker *Order, price, quantity money.Amount, takerSide Side, sequence uint64) *Trade {
	return &Trade{
		ID:             id,
		Market:         market,
		MakerOrderID:   maker.ID,
		TakerOrderID:   taker.ID,
		MakerAccountID: maker.AccountID,
		TakerAccountID: taker.AccountID,
		Price:          price,
		Quantity:       quantity,
		TakerSide:      takerSide,
		ExecutedAt:     time.Now().UTC(),
		Sequence:       sequence,
	}
}

func (t *Trade) String() string {
	return fmt.Sprintf("Trade[id=%s market=%s price=%s qty=%s taker_side=%s seq=%d]",
		t.ID, t.Market, t.Price, t.Quantity, t.TakerSide, t.Sequence)
}
