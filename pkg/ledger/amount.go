package ledger

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
)

// Amount is a quantity in the smallest unit. In JSON it is a decimal
// string: 18-decimal values overflow the 2^53 integers a float64 holds.
type Amount struct{ *big.Int }

func NewAmount(n *big.Int) Amount { return Amount{n} }

// IsNil reports whether the amount is unset.
func (a Amount) IsNil() bool { return a.Int == nil }

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Int == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(a.Int.String())), nil
}

// UnmarshalJSON accepts a decimal string, a bare integer or null.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		a.Int = nil
		return nil
	}
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %s", b)
	}
	a.Int = n
	return nil
}
