package market

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/carmarket/carmarket/internal/domain"
)

type fakeFetcher struct {
	items []domain.Item
	err   error
	calls int
}

func (f *fakeFetcher) FetchAllItems(ctx context.Context) ([]domain.Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

type fakeReceipts struct {
	hashes map[uint64]string
}

func (f *fakeReceipts) Get(ctx context.Context, itemID uint64) (string, error) {
	h, ok := f.hashes[itemID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return h, nil
}

func (f *fakeReceipts) Set(ctx context.Context, itemID uint64, txHash string) error {
	f.hashes[itemID] = txHash
	return nil
}

// ctxFetcher fails when called with a cancelled context, the way a real
// RPC client would.
type ctxFetcher struct {
	items []domain.Item
}

func (f *ctxFetcher) FetchAllItems(ctx context.Context) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testItems() []domain.Item {
	return []domain.Item{
		{ID: 1, Make: "Toyota", Model: "Corolla", Year: 2019, PriceWei: big.NewInt(100), Seller: "0xSELLER"},
		{ID: 2, Make: "Honda", Model: "Civic", Year: 2021, PriceWei: big.NewInt(200), Seller: "0xSELLER", Buyer: "0xBUYER", Sold: true},
		{ID: 3, Make: "Ford", Model: "Focus", Year: 2018, PriceWei: big.NewInt(300), Seller: "0xOTHER"},
	}
}

func TestRefreshSurvivesTriggerCancellation(t *testing.T) {
	cache := New(&ctxFetcher{items: testItems()}, nil, testLogger())

	// The triggering caller's context may already be dead when the
	// coalesced fetch runs; the fetch itself must not inherit that.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := cache.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh with a cancelled trigger returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Refresh returned %d items, want 3", len(items))
	}
}

func TestTotals(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems()}
	cache := New(fetcher, nil, testLogger())

	empty := cache.Totals()
	if empty.Available != 0 || empty.Sold != 0 || empty.PriceSumWei.Sign() != 0 {
		t.Errorf("Totals on empty cache = %+v, want zeros", empty)
	}

	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	got := cache.Totals()
	if got.Available != 2 {
		t.Errorf("Available = %d, want 2", got.Available)
	}
	if got.Sold != 1 {
		t.Errorf("Sold = %d, want 1", got.Sold)
	}
	if got.PriceSumWei.String() != "600" {
		t.Errorf("PriceSumWei = %s, want 600", got.PriceSumWei)
	}
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems()}
	cache := New(fetcher, nil, testLogger())

	items, err := cache.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Refresh returned %d items, want 3", len(items))
	}

	snap, updatedAt := cache.Snapshot()
	if len(snap) != 3 {
		t.Errorf("Snapshot returned %d items, want 3", len(snap))
	}
	if updatedAt.IsZero() {
		t.Error("Snapshot time should be set after a successful refresh")
	}

	item, ok := cache.Item(2)
	if !ok {
		t.Fatal("Item(2) not found")
	}
	if item.Model != "Civic" {
		t.Errorf("Item(2).Model = %q, want Civic", item.Model)
	}
	if _, ok := cache.Item(99); ok {
		t.Error("Item(99) should not exist")
	}
}

func TestRefreshFailureKeepsLastGood(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems()}
	cache := New(fetcher, nil, testLogger())

	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	fetcher.err = errors.New("rpc unreachable")
	if _, err := cache.Refresh(context.Background()); err == nil {
		t.Fatal("second refresh should have returned the fetch error")
	}

	snap, updatedAt := cache.Snapshot()
	if len(snap) != 3 {
		t.Errorf("failed refresh replaced the snapshot; got %d items, want 3", len(snap))
	}
	if updatedAt.IsZero() {
		t.Error("failed refresh cleared the snapshot time")
	}
}

func TestFilter(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems()}
	cache := New(fetcher, nil, testLogger())
	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	tests := []struct {
		name   string
		query  string
		status domain.ItemStatus
		want   int
	}{
		{name: "all", query: "", status: domain.StatusAll, want: 3},
		{name: "available only", query: "", status: domain.StatusAvailable, want: 2},
		{name: "sold only", query: "", status: domain.StatusSold, want: 1},
		{name: "query match", query: "civic", status: domain.StatusAll, want: 1},
		{name: "query plus status excludes", query: "civic", status: domain.StatusAvailable, want: 0},
		{name: "no match", query: "tesla", status: domain.StatusAll, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.Filter(tt.query, tt.status); len(got) != tt.want {
				t.Errorf("Filter(%q, %q) returned %d items, want %d", tt.query, tt.status, len(got), tt.want)
			}
		})
	}
}

func TestEnrichBackfillsSettlementHash(t *testing.T) {
	items := testItems()
	items[1].SettlementHash = "" // sold, no on-chain hash
	fetcher := &fakeFetcher{items: items}
	receipts := &fakeReceipts{hashes: map[uint64]string{
		2: "0xlocal",
		1: "0xstray", // unsold item, must be ignored
	}}
	cache := New(fetcher, receipts, testLogger())

	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	sold, _ := cache.Item(2)
	if sold.SettlementHash != "0xlocal" {
		t.Errorf("sold item hash = %q, want backfilled 0xlocal", sold.SettlementHash)
	}
	unsold, _ := cache.Item(1)
	if unsold.SettlementHash != "" {
		t.Errorf("unsold item picked up a receipt hash %q", unsold.SettlementHash)
	}
}

func TestEnrichOnChainHashWins(t *testing.T) {
	items := testItems()
	items[1].SettlementHash = "0xchain"
	fetcher := &fakeFetcher{items: items}
	receipts := &fakeReceipts{hashes: map[uint64]string{2: "0xlocal"}}
	cache := New(fetcher, receipts, testLogger())

	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	sold, _ := cache.Item(2)
	if sold.SettlementHash != "0xchain" {
		t.Errorf("hash = %q, want on-chain 0xchain to win over local receipt", sold.SettlementHash)
	}
}

func TestCountsFor(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems()}
	cache := New(fetcher, nil, testLogger())
	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// Mixed case exercises the case-insensitive scan.
	listed, purchased, sold := cache.CountsFor("0xseller")
	if listed != 2 || purchased != 0 || sold != 1 {
		t.Errorf("CountsFor(seller) = (%d, %d, %d), want (2, 0, 1)", listed, purchased, sold)
	}

	listed, purchased, sold = cache.CountsFor("0xBuyer")
	if listed != 0 || purchased != 1 || sold != 0 {
		t.Errorf("CountsFor(buyer) = (%d, %d, %d), want (0, 1, 0)", listed, purchased, sold)
	}

	listed, purchased, sold = cache.CountsFor("0xnobody")
	if listed != 0 || purchased != 0 || sold != 0 {
		t.Errorf("CountsFor(nobody) = (%d, %d, %d), want zeros", listed, purchased, sold)
	}
}
