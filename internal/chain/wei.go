package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/carmarket/carmarket/internal/domain"
)

// weiPerEther is 10^18, the base-unit exponent of the chain's native
// currency.
var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// EtherToWei converts a human-readable decimal ether amount to wei,
// rounding half away from zero when the decimal carries more than 18
// fractional digits.
func EtherToWei(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, &domain.ValidationError{Field: "price", Reason: fmt.Sprintf("%q is not a decimal number", amount)}
	}
	if r.Sign() < 0 {
		return nil, &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}

	r.Mul(r, new(big.Rat).SetInt(weiPerEther))

	// Round num/den half away from zero.
	num, den := r.Num(), r.Denom()
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		doubled := new(big.Int).Lsh(rem, 1)
		if doubled.CmpAbs(den) >= 0 {
			quo.Add(quo, big.NewInt(1))
		}
	}
	return quo, nil
}

// WeiToEther renders a wei amount as a decimal ether string with trailing
// zeros trimmed.
func WeiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
