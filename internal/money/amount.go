// Package money wraps github.com/shopspring/decimal so no binary float
// ever touches a balance, price, or quantity.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a fixed-point decimal value used for every price, quantity,
// and balance field in the system.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// New wraps a decimal.Decimal directly.
func New(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// NewFromInt builds an Amount from a whole number.
func NewFromInt(i int64) Amount {
	return Amount{d: decimal.NewFromInt(i)}
}

// Parse parses a decimal string such as "20000.50".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustParse panics if s is not a valid decimal string. Intended for
// constants and tests, never for request input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Mul(b Amount) Amount { return Amount{d: a.d.Mul(b.d)} }

// Div divides with banker's-rounding avoidance via a fixed 16-digit
// scale, matching decimal.Decimal's DivRound default precision. Used for
// proportional releases and ticker change percentages, never for trade
// pricing.
func (a Amount) Div(b Amount) Amount { return Amount{d: a.d.DivRound(b.d, 16)} }

func (a Amount) Cmp(b Amount) int       { return a.d.Cmp(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) LessThan(b Amount) bool    { return a.d.LessThan(b.d) }
func (a Amount) Equal(b Amount) bool       { return a.d.Equal(b.d) }
func (a Amount) IsZero() bool              { return a.d.IsZero() }
func (a Amount) IsPositive() bool          { return a.d.Sign() > 0 }
func (a Amount) IsNegative() bool          { return a.d.Sign() < 0 }

func (a Amount) String() string { return a.d.String() }

// MarshalJSON encodes the amount as a decimal string, matching the
// persisted layout in spec.md §6 ("prices and quantities are persisted as
// decimal strings to avoid float loss").
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON
// number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("money: unmarshal %q: %w", s, err)
	}
	a.d = d
	return nil
}

// Value implements driver.Valuer so Amount can be bound directly by a
// storage-port SQL implementation without a separate conversion layer.
func (a Amount) Value() (driver.Value, error) {
	return a.d.String(), nil
}
