package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/carmarket/carmarket/internal/domain"
)

func TestEtherToWei(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		valid bool
	}{
		{name: "whole ether", in: "1", want: "1000000000000000000", valid: true},
		{name: "fractional", in: "0.5", want: "500000000000000000", valid: true},
		{name: "small fraction", in: "0.000000001", want: "1000000000", valid: true},
		{name: "zero", in: "0", want: "0", valid: true},
		{name: "whitespace trimmed", in: "  2.25 ", want: "2250000000000000000", valid: true},
		{name: "more than 18 decimals rounds up", in: "0.0000000000000000015", want: "2", valid: true},
		{name: "more than 18 decimals rounds down", in: "0.0000000000000000014", want: "1", valid: true},
		{name: "exactly half rounds away", in: "0.0000000000000000005", want: "1", valid: true},
		{name: "negative rejected", in: "-1", valid: false},
		{name: "garbage rejected", in: "1.2.3", valid: false},
		{name: "empty rejected", in: "", valid: false},
		{name: "words rejected", in: "one ether", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EtherToWei(tt.in)
			if !tt.valid {
				if err == nil {
					t.Fatalf("EtherToWei(%q) = %v, want error", tt.in, got)
				}
				var verr *domain.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("EtherToWei(%q) error = %v, want ValidationError", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EtherToWei(%q) returned error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("EtherToWei(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestWeiToEther(t *testing.T) {
	tests := []struct {
		name string
		in   *big.Int
		want string
	}{
		{name: "nil", in: nil, want: "0"},
		{name: "zero", in: big.NewInt(0), want: "0"},
		{name: "one ether", in: mustBig(t, "1000000000000000000"), want: "1"},
		{name: "half ether", in: mustBig(t, "500000000000000000"), want: "0.5"},
		{name: "one wei", in: big.NewInt(1), want: "0.000000000000000001"},
		{name: "trailing zeros trimmed", in: mustBig(t, "1100000000000000000"), want: "1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeiToEther(tt.in); got != tt.want {
				t.Errorf("WeiToEther(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEtherToWeiRoundTrip(t *testing.T) {
	for _, amount := range []string{"1", "0.5", "123.456", "0.000000000000000001"} {
		wei, err := EtherToWei(amount)
		if err != nil {
			t.Fatalf("EtherToWei(%q) returned error: %v", amount, err)
		}
		if got := WeiToEther(wei); got != amount {
			t.Errorf("round trip of %q = %q", amount, got)
		}
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big.Int literal %q", s)
	}
	return v
}
