package chain

import (
	"math/big"
	"strings"
	"testing"
	"time"
)

func TestValidateListing(t *testing.T) {
	nextYear := uint16(time.Now().Year() + 1)
	price := big.NewInt(1)

	tests := []struct {
		name    string
		make_   string
		model   string
		year    uint16
		price   *big.Int
		wantErr string // substring of the error; empty means valid
	}{
		{name: "valid", make_: "Toyota", model: "Corolla", year: 2020, price: price},
		{name: "next year allowed", make_: "Tesla", model: "Model 3", year: nextYear, price: price},
		{name: "oldest allowed", make_: "Ford", model: "Model T", year: 1900, price: price},
		{name: "empty make", make_: "  ", model: "Corolla", year: 2020, price: price, wantErr: "make"},
		{name: "empty model", make_: "Toyota", model: "", year: 2020, price: price, wantErr: "model"},
		{name: "year too old", make_: "Toyota", model: "Corolla", year: 1899, price: price, wantErr: "year"},
		{name: "year too far out", make_: "Toyota", model: "Corolla", year: nextYear + 1, price: price, wantErr: "year"},
		{name: "nil price", make_: "Toyota", model: "Corolla", year: 2020, price: nil, wantErr: "price"},
		{name: "zero price", make_: "Toyota", model: "Corolla", year: 2020, price: big.NewInt(0), wantErr: "price"},
		{name: "negative price", make_: "Toyota", model: "Corolla", year: 2020, price: big.NewInt(-5), wantErr: "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateListing(tt.make_, tt.model, tt.year, tt.price)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateListing returned error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("validateListing returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
