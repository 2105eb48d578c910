package domain

import (
	"math/big"
	"testing"
)

func TestMatchesSearch(t *testing.T) {
	item := Item{ID: 42, Make: "Toyota", Model: "Corolla", Year: 2020, PriceWei: big.NewInt(1)}

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"toyota", true},
		{"TOYOTA", true},
		{"rolla", true},
		{"42", true},
		{"4", true},
		{"honda", false},
		{"2020", false}, // year is not searched
	}

	for _, tt := range tests {
		if got := item.MatchesSearch(tt.query); got != tt.want {
			t.Errorf("MatchesSearch(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestMatchesStatus(t *testing.T) {
	available := Item{ID: 1}
	sold := Item{ID: 2, Sold: true}

	if !available.MatchesStatus(StatusAll) || !sold.MatchesStatus(StatusAll) {
		t.Error("StatusAll should match everything")
	}
	if !available.MatchesStatus(StatusAvailable) || sold.MatchesStatus(StatusAvailable) {
		t.Error("StatusAvailable should match only unsold items")
	}
	if available.MatchesStatus(StatusSold) || !sold.MatchesStatus(StatusSold) {
		t.Error("StatusSold should match only sold items")
	}
}

func TestParseItemStatus(t *testing.T) {
	tests := []struct {
		in    string
		want  ItemStatus
		valid bool
	}{
		{"", StatusAll, true},
		{"all", StatusAll, true},
		{"available", StatusAvailable, true},
		{"sold", StatusSold, true},
		{"SOLD", StatusSold, true},
		{" available ", StatusAvailable, true},
		{"pending", "", false},
	}

	for _, tt := range tests {
		got, err := ParseItemStatus(tt.in)
		if tt.valid {
			if err != nil {
				t.Errorf("ParseItemStatus(%q) returned error: %v", tt.in, err)
				continue
			}
			if got != tt.want {
				t.Errorf("ParseItemStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
			continue
		}
		if err == nil {
			t.Errorf("ParseItemStatus(%q) = %q, want error", tt.in, got)
		}
	}
}

func TestHasBuyer(t *testing.T) {
	if (Item{Buyer: ""}).HasBuyer() {
		t.Error("empty buyer should not count")
	}
	if (Item{Buyer: ZeroAddress}).HasBuyer() {
		t.Error("zero address should not count")
	}
	if (Item{Buyer: "0x0000000000000000000000000000000000000000"}).HasBuyer() {
		t.Error("zero address should not count regardless of case")
	}
	if !(Item{Buyer: "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"}).HasBuyer() {
		t.Error("real address should count")
	}
}

func TestSameAddress(t *testing.T) {
	a := "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	if !SameAddress(a, "0xab5801a7d398351b8be11c439e05c5b3259aec9b") {
		t.Error("comparison should ignore case")
	}
	if SameAddress(a, "") || SameAddress("", a) || SameAddress("", "") {
		t.Error("empty addresses should never match")
	}
	if SameAddress(a, ZeroAddress) {
		t.Error("different addresses should not match")
	}
}
