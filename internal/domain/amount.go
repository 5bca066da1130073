package domain

import (
	"fmt"
	"math/big"
)

// Amount is a non-negative integer amount in minor units of an asset.
// It serializes to a decimal string so that values above 2^53 survive
// JSON encoders that read numbers as float64.
type Amount struct {
	v *big.Int
}

// NewAmount wraps a big.Int value. The value is copied.
func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(v)}
}

// AmountFromInt64 builds an Amount from an int64.
func AmountFromInt64(v int64) Amount {
	return Amount{v: big.NewInt(v)}
}

// BigInt returns a copy of the underlying integer. The zero Amount
// yields zero.
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

// Sign returns -1, 0 or +1 like big.Int.Sign.
func (a Amount) Sign() int {
	if a.v == nil {
		return 0
	}
	return a.v.Sign()
}

// IsZero reports whether the amount is zero or unset.
func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

// Equal reports whether both amounts hold the same integer value.
func (a Amount) Equal(b Amount) bool {
	return a.BigInt().Cmp(b.BigInt()) == 0
}

// String returns the decimal representation in minor units.
func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON
// number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		a.v = nil
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", string(data))
	}
	a.v = v
	return nil
}
