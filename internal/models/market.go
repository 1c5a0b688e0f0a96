package models

import (
	"fmt"

	"exchangecore/internal/money"
	"exchangecore/internal/xerrors"
)

// Market is immutable once registered (spec.md §3).
type Market struct {
	ID          string       `json:"id"`
	BaseAsset   string       `json:"base_asset"`
	QuoteAsset  string       `json:"quote_asset"`
	TickSize    money.Amount `json:"tick_size"`
	StepSize    money.Amount `json:"step_size"`
	MinPrice    money.Amount `json:"min_price"`
	MaxPrice    money.Amount `json:"max_price"`
	MinQuantity money.Amount `json:"min_quantity"`
	MaxQuantity money.Amount `json:"max_quantity"`
}

// Validate checks that a market spec is well-formed before registration
// (spec.md §4.1, register_market "Fails if the spec is malformed").
func (m Market) Validate() error {
	if m.ID == "" {
		return xerrors.New(xerrors.InvalidOrder, "market id must not be empty")
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return xerrors.New(xerrors.InvalidOrder, "market must declare base and quote assets")
	}
	if m.BaseAsset == m.QuoteAsset {
		return xerrors.New(xerrors.InvalidOrder, "base and quote assets must differ")
	}
	if !m.TickSize.IsPositive() || !m.StepSize.IsPositive() {
		return xerrors.New(xerrors.InvalidOrder, "tick_size and step_size must be positive")
	}
	if !m.MinPrice.GreaterThan(money.Zero) && !m.MinPrice.IsZero() {
		return xerrors.New(xerrors.InvalidOrder, "min_price must not be negative")
	}
	if m.MaxPrice.LessThan(m.MinPrice) {
		return xerrors.New(xerrors.InvalidOrder, "max_price must not be below min_price")
	}
	if m.MaxQuantity.LessThan(m.MinQuantity) {
		return xerrors.New(xerrors.InvalidOrder, "max_quantity must not be below min_quantity")
	}
	return nil
}

// CheckPrice validates a limit price against tick size and range
// (spec.md §4.1 step 1).
func (m Market) CheckPrice(p money.Amount) error {
	if p.LessThan(m.MinPrice) || p.GreaterThan(m.MaxPrice) {
		return xerrors.Newf(xerrors.InvalidOrder, "price %s out of range [%s, %s]", p, m.MinPrice, m.MaxPrice)
	}
	if !isMultipleOf(p, m.TickSize) {
		return xerrors.Newf(xerrors.InvalidOrder, "price %s is not a multiple of tick size %s", p, m.TickSize)
	}
	return nil
}

// CheckQuantity validates an order quantity against step size and range.
func (m Market) CheckQuantity(q money.Amount) error {
	if q.LessThan(m.MinQuantity) || q.GreaterThan(m.MaxQuantity) {
		return xerrors.Newf(xerrors.InvalidOrder, "quantity %s out of range [%s, %s]", q, m.MinQuantity, m.MaxQuantity)
	}
	if !isMultipleOf(q, m.StepSize) {
		return xerrors.Newf(xerrors.InvalidOrder, "quantity %s is not a multiple of step size %s", q, m.StepSize)
	}
	return nil
}

func isMultipleOf(v, step money.Amount) bool {
	if step.IsZero() {
		return true
	}
	rem := v.Decimal().Mod(step.Decimal())
	return rem.IsZero()
}

func (m Market) String() string {
	return fmt.Sprintf("%s (%s/%s)", m.ID, m.BaseAsset, m.QuoteAsset)
}
