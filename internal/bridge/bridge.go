// Package bridge subscribes to the contract's listing and purchase events
// and fans their effects out: it refreshes the listing snapshot, updates
// the connected account's view, appends to the activity log, and pushes a
// signal to connected clients. Events, not write confirmations, drive the
// synchronized state, so activity from other participants is picked up
// the same way as our own.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/event"

	"github.com/carmarket/carmarket/internal/chain"
	"github.com/carmarket/carmarket/internal/domain"
	"github.com/carmarket/carmarket/internal/notify"
)

// Channel names used on the signal bus.
const (
	ChannelItems    = "carmarket:items"
	ChannelActivity = "carmarket:activity"
)

// Watcher opens contract event subscriptions.
type Watcher interface {
	WatchItemListed(opts *bind.WatchOpts, sink chan<- domain.ListedEvent) (event.Subscription, error)
	WatchItemPurchased(opts *bind.WatchOpts, sink chan<- domain.PurchasedEvent) (event.Subscription, error)
}

// Refresher re-reads the listing snapshot.
type Refresher interface {
	Refresh(ctx context.Context) ([]domain.Item, error)
}

// AccountView updates the connected account's derived state.
type AccountView interface {
	RefreshStats(ctx context.Context) error
}

// Bridge owns the event subscriptions and their fan-out. Activity store,
// signal bus, receipt store, and notifier are all optional.
type Bridge struct {
	watcher  Watcher
	cache    Refresher
	session  AccountView
	activity domain.ActivityStore
	receipts domain.ReceiptStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	runCtx    context.Context // lifecycle context from Start, reused on session restarts
	listedSub event.Subscription
	purchSub  event.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Bridge. Nil is accepted for activity, receipts, bus, and
// notifier.
func New(
	watcher Watcher,
	cache Refresher,
	session AccountView,
	activity domain.ActivityStore,
	receipts domain.ReceiptStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Bridge {
	return &Bridge{
		watcher:  watcher,
		cache:    cache,
		session:  session,
		activity: activity,
		receipts: receipts,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "bridge")),
	}
}

// Start opens the subscriptions and begins processing events. Calling
// Start on a running bridge tears down the old subscriptions first, so
// there is never more than one live subscription per event.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runCtx = ctx
	return b.startLocked()
}

func (b *Bridge) startLocked() error {
	b.stopLocked()

	listedCh := make(chan domain.ListedEvent, 16)
	purchCh := make(chan domain.PurchasedEvent, 16)
	opts := &bind.WatchOpts{Context: b.runCtx}

	listedSub, err := b.watcher.WatchItemListed(opts, listedCh)
	if err != nil {
		return fmt.Errorf("bridge: subscribe listings: %w", err)
	}
	purchSub, err := b.watcher.WatchItemPurchased(opts, purchCh)
	if err != nil {
		listedSub.Unsubscribe()
		return fmt.Errorf("bridge: subscribe purchases: %w", err)
	}

	loopCtx, cancel := context.WithCancel(b.runCtx)
	b.listedSub = listedSub
	b.purchSub = purchSub
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.loop(loopCtx, listedCh, purchCh, listedSub, purchSub, b.done)

	b.logger.InfoContext(b.runCtx, "event subscriptions started")
	return nil
}

// Stop tears down the subscriptions and waits for the processing loop to
// drain. Safe to call on a stopped bridge.
func (b *Bridge) Stop() {
	b.mu.Lock()
	done := b.done
	b.stopLocked()
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (b *Bridge) stopLocked() {
	if b.listedSub != nil {
		b.listedSub.Unsubscribe()
		b.listedSub = nil
	}
	if b.purchSub != nil {
		b.purchSub.Unsubscribe()
		b.purchSub = nil
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.done = nil
}

// SessionConnected restarts the subscriptions for the new session. The
// restart reuses the lifecycle context given to Start, never the caller's:
// the connecting HTTP request ends long before the subscriptions should.
// A no-op until Start has been called.
func (b *Bridge) SessionConnected(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runCtx == nil {
		return
	}
	if err := b.startLocked(); err != nil {
		b.logger.ErrorContext(ctx, "restarting subscriptions failed",
			slog.String("error", err.Error()),
		)
	}
}

// SessionDisconnected tears the subscriptions down; the next
// SessionConnected reopens them. Modes without a session surface never
// reach this, so their subscriptions stay app-scoped.
func (b *Bridge) SessionDisconnected() {
	b.Stop()
}

func (b *Bridge) loop(
	ctx context.Context,
	listedCh <-chan domain.ListedEvent,
	purchCh <-chan domain.PurchasedEvent,
	listedSub, purchSub event.Subscription,
	done chan struct{},
) {
	defer close(done)
	for {
		select {
		case ev := <-listedCh:
			b.handleListed(ctx, ev)
		case ev := <-purchCh:
			b.handlePurchased(ctx, ev)
		case err := <-listedSub.Err():
			b.logSubErr(ctx, "listings", err)
			return
		case err := <-purchSub.Err():
			b.logSubErr(ctx, "purchases", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) logSubErr(ctx context.Context, name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	b.logger.ErrorContext(ctx, "subscription failed",
		slog.String("subscription", name),
		slog.String("error", err.Error()),
	)
	if b.notifier != nil {
		_ = b.notifier.Notify(ctx, notify.EventError,
			"Event subscription lost",
			fmt.Sprintf("%s subscription failed: %v", name, err),
		)
	}
}

func (b *Bridge) handleListed(ctx context.Context, ev domain.ListedEvent) {
	b.logger.InfoContext(ctx, "item listed",
		slog.Uint64("item_id", ev.ItemID),
		slog.String("seller", ev.Seller),
		slog.String("tx", ev.TxHash),
	)

	if b.activity != nil {
		if err := b.activity.RecordListing(ctx, ev); err != nil {
			b.logger.WarnContext(ctx, "recording listing failed",
				slog.Uint64("item_id", ev.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}

	b.refreshAndSignal(ctx, ChannelItems, map[string]any{
		"type":    "item_listed",
		"item_id": ev.ItemID,
		"tx_hash": ev.TxHash,
	})

	if b.notifier != nil {
		_ = b.notifier.Notify(ctx, notify.EventItemListed,
			"New listing",
			fmt.Sprintf("%d %s %s listed by %s for %s ETH",
				ev.Year, ev.Make, ev.Model, ev.Seller, chain.WeiToEther(ev.PriceWei)),
		)
	}
}

func (b *Bridge) handlePurchased(ctx context.Context, ev domain.PurchasedEvent) {
	b.logger.InfoContext(ctx, "item purchased",
		slog.Uint64("item_id", ev.ItemID),
		slog.String("buyer", ev.Buyer),
		slog.String("tx", ev.TxHash),
	)

	// Keep the local receipt overlay current even for purchases made by
	// other participants, so legacy contract reads can still show a
	// settlement hash.
	if b.receipts != nil {
		if err := b.receipts.Set(ctx, ev.ItemID, ev.TxHash); err != nil {
			b.logger.WarnContext(ctx, "recording receipt failed",
				slog.Uint64("item_id", ev.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}

	if b.activity != nil {
		if err := b.activity.RecordPurchase(ctx, ev); err != nil {
			b.logger.WarnContext(ctx, "recording purchase failed",
				slog.Uint64("item_id", ev.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}

	b.refreshAndSignal(ctx, ChannelItems, map[string]any{
		"type":    "item_purchased",
		"item_id": ev.ItemID,
		"tx_hash": ev.TxHash,
	})

	if b.notifier != nil {
		_ = b.notifier.Notify(ctx, notify.EventItemPurchased,
			"Item sold",
			fmt.Sprintf("item %d bought by %s for %s ETH",
				ev.ItemID, ev.Buyer, chain.WeiToEther(ev.PriceWei)),
		)
	}
}

// refreshAndSignal re-reads the snapshot, updates the account view, and
// publishes the payload so connected clients re-render.
func (b *Bridge) refreshAndSignal(ctx context.Context, channel string, payload map[string]any) {
	if _, err := b.cache.Refresh(ctx); err != nil {
		b.logger.WarnContext(ctx, "snapshot refresh after event failed",
			slog.String("error", err.Error()),
		)
	}

	if err := b.session.RefreshStats(ctx); err != nil && !errors.Is(err, domain.ErrNotConnected) {
		b.logger.WarnContext(ctx, "stats refresh after event failed",
			slog.String("error", err.Error()),
		)
	}

	if b.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := b.bus.Publish(ctx, channel, data); err != nil {
		b.logger.WarnContext(ctx, "signal publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
