// Package domain defines the core types and interfaces of the CarMarket
// backend: marketplace items, account statistics, contract events, and the
// store/bus interfaces implemented by the infrastructure packages.
package domain

import (
	"math/big"
	"strconv"
	"strings"
)

// ZeroAddress is the sentinel the contract reports for "no buyer yet".
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ItemStatus selects a slice of the listing snapshot.
type ItemStatus string

const (
	StatusAll       ItemStatus = "all"
	StatusAvailable ItemStatus = "available"
	StatusSold      ItemStatus = "sold"
)

// Item is a single vehicle listing as recorded on-chain.
type Item struct {
	ID       uint64   `json:"id"`
	Make     string   `json:"make"`
	Model    string   `json:"model"`
	Year     uint16   `json:"year"`
	PriceWei *big.Int `json:"price_wei"`
	Seller   string   `json:"seller"`
	Buyer    string   `json:"buyer"`
	Sold     bool     `json:"sold"`

	// SettlementHash is the transaction hash of the purchase when known.
	// Older contract revisions do not store it; when the contract read
	// omits it, the listing cache backfills best-effort from the local
	// receipt store. Empty means unavailable, never "not sold".
	SettlementHash string `json:"settlement_hash,omitempty"`
}

// HasBuyer reports whether the buyer field carries a real address rather
// than the zero sentinel.
func (i Item) HasBuyer() bool {
	return i.Buyer != "" && !strings.EqualFold(i.Buyer, ZeroAddress)
}

// MatchesSearch reports whether the item matches a free-text query against
// make, model, or the identifier rendered as text. Matching is
// case-insensitive; an empty query matches everything.
func (i Item) MatchesSearch(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(i.Make), q) ||
		strings.Contains(strings.ToLower(i.Model), q) ||
		strings.Contains(strconv.FormatUint(i.ID, 10), q)
}

// ParseItemStatus validates a status filter string. Empty selects all.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch ItemStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusAvailable:
		return StatusAvailable, nil
	case StatusSold:
		return StatusSold, nil
	default:
		return "", &ValidationError{Field: "status", Reason: "must be all, available, or sold"}
	}
}

// MatchesStatus reports whether the item belongs to the given status slice.
func (i Item) MatchesStatus(status ItemStatus) bool {
	switch status {
	case StatusAvailable:
		return !i.Sold
	case StatusSold:
		return i.Sold
	default:
		return true
	}
}

// SameAddress compares two hex addresses case-insensitively. Empty
// addresses never match anything.
func SameAddress(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// AccountStats are the per-account aggregates shown next to a connected
// session. The counters are always recomputed from a full snapshot scan,
// never incrementally maintained.
type AccountStats struct {
	BalanceEth string `json:"balance_eth"`
	Listed     int    `json:"listed"`
	Purchased  int    `json:"purchased"`
	Sold       int    `json:"sold"`
}
