package domain

import (
	"context"
	"time"
)

// ReceiptStore is the best-effort local record of settlement transaction
// hashes, keyed by item identifier. It is a cache overlay used to backfill
// a field the contract read may omit, never a source of truth: absence
// degrades to "unavailable", and presence proves nothing about sale state.
type ReceiptStore interface {
	// Get returns the recorded settlement hash for an item, or ErrNotFound.
	Get(ctx context.Context, itemID uint64) (string, error)
	// Set records the settlement hash for an item. Entries do not expire;
	// they must outlive any individual snapshot.
	Set(ctx context.Context, itemID uint64, txHash string) error
}

// ActivityKind discriminates rows in the activity log.
type ActivityKind string

const (
	ActivityListed    ActivityKind = "listed"
	ActivityPurchased ActivityKind = "purchased"
)

// Activity is one observed contract event, as persisted by the bridge.
type Activity struct {
	ID          int64        `json:"id"`
	Kind        ActivityKind `json:"kind"`
	ItemID      uint64       `json:"item_id"`
	Make        string       `json:"make,omitempty"`
	Model       string       `json:"model,omitempty"`
	Year        uint16       `json:"year,omitempty"`
	PriceWei    string       `json:"price_wei"`
	Seller      string       `json:"seller,omitempty"`
	Buyer       string       `json:"buyer,omitempty"`
	TxHash      string       `json:"tx_hash"`
	LogIndex    uint32       `json:"log_index"`
	BlockNumber uint64       `json:"block_number"`
	ObservedAt  time.Time    `json:"observed_at"`
}

// ActivityStore persists observed contract events. Implementations must
// deduplicate on (tx_hash, log_index) so redelivered events are harmless.
type ActivityStore interface {
	RecordListing(ctx context.Context, ev ListedEvent) error
	RecordPurchase(ctx context.Context, ev PurchasedEvent) error
	ListRecent(ctx context.Context, limit int) ([]Activity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Activity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
