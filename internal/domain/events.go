package domain

import "math/big"

// ListedEvent is the contract's ItemListed notification. The payload is
// recorded in the activity log; for synchronization purposes only the fact
// that the event arrived matters.
type ListedEvent struct {
	ItemID      uint64
	Make        string
	Model       string
	Year        uint16
	PriceWei    *big.Int
	Seller      string
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
}

// PurchasedEvent is the contract's ItemPurchased notification.
type PurchasedEvent struct {
	ItemID      uint64
	Buyer       string
	PriceWei    *big.Int
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
}
