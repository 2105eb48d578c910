package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carmarket/carmarket/internal/domain"
)

// receiptKeyPrefix matches the key shape historically used by browser
// clients of the marketplace, so receipts written by either side are
// mutually visible.
const receiptKeyPrefix = "txHash_Item_"

// ReceiptStore implements domain.ReceiptStore on Redis. Keys carry no TTL;
// a settlement hash stays useful for as long as the item exists.
type ReceiptStore struct {
	rdb *redis.Client
}

// NewReceiptStore creates a ReceiptStore backed by the given Client.
func NewReceiptStore(c *Client) *ReceiptStore {
	return &ReceiptStore{rdb: c.Underlying()}
}

func receiptKey(itemID uint64) string {
	return fmt.Sprintf("%s%d", receiptKeyPrefix, itemID)
}

// Get returns the recorded settlement hash for an item, or
// domain.ErrNotFound when none was recorded.
func (s *ReceiptStore) Get(ctx context.Context, itemID uint64) (string, error) {
	hash, err := s.rdb.Get(ctx, receiptKey(itemID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: get receipt %d: %w", itemID, err)
	}
	return hash, nil
}

// Set records the settlement hash for an item. Re-recording overwrites;
// the hash for a given item never legitimately changes, so this is
// idempotent in practice.
func (s *ReceiptStore) Set(ctx context.Context, itemID uint64, txHash string) error {
	if err := s.rdb.Set(ctx, receiptKey(itemID), txHash, 0).Err(); err != nil {
		return fmt.Errorf("redis: set receipt %d: %w", itemID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ReceiptStore = (*ReceiptStore)(nil)
