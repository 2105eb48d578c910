// Package market maintains an in-memory snapshot of the marketplace
// listing state. The chain is the source of truth; the cache exists so
// that reads and filters never wait on RPC, and so that a failed refresh
// leaves the last good snapshot in place.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carmarket/carmarket/internal/domain"
)

// Fetcher reads the full listing set from the chain.
type Fetcher interface {
	FetchAllItems(ctx context.Context) ([]domain.Item, error)
}

// Cache holds the current listing snapshot. Reads are lock-free; refreshes
// are coalesced so concurrent triggers cost a single chain read.
type Cache struct {
	fetcher  Fetcher
	receipts domain.ReceiptStore // nil disables settlement-hash backfill
	logger   *slog.Logger

	snap  atomic.Value // *snapshot
	group singleflight.Group
}

type snapshot struct {
	items     []domain.Item
	byID      map[uint64]int
	updatedAt time.Time
}

// New builds a Cache. The receipt store may be nil.
func New(fetcher Fetcher, receipts domain.ReceiptStore, logger *slog.Logger) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		receipts: receipts,
		logger:   logger.With(slog.String("component", "market")),
	}
	c.snap.Store(&snapshot{byID: map[uint64]int{}})
	return c
}

// Refresh fetches the full listing set and atomically replaces the
// snapshot. Concurrent calls share one fetch. On failure the previous
// snapshot is kept and the error returned.
func (c *Cache) Refresh(ctx context.Context) ([]domain.Item, error) {
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		// The fetch serves every coalesced caller, so it must not die
		// with whichever one happened to trigger it.
		fetchCtx := context.WithoutCancel(ctx)

		items, err := c.fetcher.FetchAllItems(fetchCtx)
		if err != nil {
			c.logger.WarnContext(fetchCtx, "refresh failed, keeping previous snapshot",
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("market: refresh: %w", err)
		}

		c.enrich(fetchCtx, items)

		s := &snapshot{
			items:     items,
			byID:      make(map[uint64]int, len(items)),
			updatedAt: time.Now(),
		}
		for i, it := range items {
			s.byID[it.ID] = i
		}
		c.snap.Store(s)
		c.logger.DebugContext(fetchCtx, "snapshot refreshed", slog.Int("items", len(items)))
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Item), nil
}

// enrich backfills missing settlement hashes for sold items from the
// receipt store. An on-chain hash always wins over a locally recorded one.
func (c *Cache) enrich(ctx context.Context, items []domain.Item) {
	if c.receipts == nil {
		return
	}
	for i := range items {
		if !items[i].Sold || items[i].SettlementHash != "" {
			continue
		}
		hash, err := c.receipts.Get(ctx, items[i].ID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				c.logger.WarnContext(ctx, "receipt lookup failed",
					slog.Uint64("item_id", items[i].ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		items[i].SettlementHash = hash
	}
}

// Snapshot returns a copy of the current items and the time they were
// fetched. The zero time means no refresh has succeeded yet.
func (c *Cache) Snapshot() ([]domain.Item, time.Time) {
	s := c.snap.Load().(*snapshot)
	items := make([]domain.Item, len(s.items))
	copy(items, s.items)
	return items, s.updatedAt
}

// Item returns a single item from the snapshot by id.
func (c *Cache) Item(id uint64) (domain.Item, bool) {
	s := c.snap.Load().(*snapshot)
	i, ok := s.byID[id]
	if !ok {
		return domain.Item{}, false
	}
	return s.items[i], true
}

// Filter returns the snapshot items matching a free-text query and a
// status. An empty query matches everything.
func (c *Cache) Filter(query string, status domain.ItemStatus) []domain.Item {
	s := c.snap.Load().(*snapshot)
	out := make([]domain.Item, 0, len(s.items))
	for _, it := range s.items {
		if it.MatchesStatus(status) && it.MatchesSearch(query) {
			out = append(out, it)
		}
	}
	return out
}

// Totals are aggregate figures over the current snapshot.
type Totals struct {
	Available   int
	Sold        int
	PriceSumWei *big.Int
}

// Totals derives the available/sold counts and the price sum from the
// snapshot on every call, so the figures can never go stale relative to
// the items they summarize.
func (c *Cache) Totals() Totals {
	s := c.snap.Load().(*snapshot)
	t := Totals{PriceSumWei: new(big.Int)}
	for _, it := range s.items {
		if it.Sold {
			t.Sold++
		} else {
			t.Available++
		}
		if it.PriceWei != nil {
			t.PriceSumWei.Add(t.PriceSumWei, it.PriceWei)
		}
	}
	return t
}

// CountsFor scans the snapshot and returns how many items the address has
// listed, purchased, and sold. Address comparison ignores case.
func (c *Cache) CountsFor(address string) (listed, purchased, sold int) {
	s := c.snap.Load().(*snapshot)
	for _, it := range s.items {
		if domain.SameAddress(it.Seller, address) {
			listed++
			if it.Sold {
				sold++
			}
		}
		if it.Sold && domain.SameAddress(it.Buyer, address) {
			purchased++
		}
	}
	return listed, purchased, sold
}
