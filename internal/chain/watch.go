package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/carmarket/carmarket/internal/domain"
)

// errNoWS is returned by Watch* when the client was dialed without a
// WebSocket endpoint.
var errNoWS = errors.New("chain: log subscriptions require a ws endpoint")

// itemListedLog mirrors the ItemListed event arguments.
type itemListedLog struct {
	Id     *big.Int
	Make   string
	Model  string
	Year   uint16
	Price  *big.Int
	Seller common.Address
}

// itemPurchasedLog mirrors the ItemPurchased event arguments.
type itemPurchasedLog struct {
	Id    *big.Int
	Buyer common.Address
	Price *big.Int
}

// WatchItemListed streams ItemListed events into sink until the returned
// subscription is unsubscribed or fails.
func (c *Client) WatchItemListed(opts *bind.WatchOpts, sink chan<- domain.ListedEvent) (event.Subscription, error) {
	if c.wsEth == nil {
		return nil, errNoWS
	}
	logs, sub, err := c.market.WatchLogs(opts, "ItemListed")
	if err != nil {
		return nil, fmt.Errorf("chain: watch ItemListed: %w", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				ev, err := c.decodeListed(log)
				if err != nil {
					return err
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				case err := <-sub.Err():
					return err
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// WatchItemPurchased streams ItemPurchased events into sink until the
// returned subscription is unsubscribed or fails.
func (c *Client) WatchItemPurchased(opts *bind.WatchOpts, sink chan<- domain.PurchasedEvent) (event.Subscription, error) {
	if c.wsEth == nil {
		return nil, errNoWS
	}
	logs, sub, err := c.market.WatchLogs(opts, "ItemPurchased")
	if err != nil {
		return nil, fmt.Errorf("chain: watch ItemPurchased: %w", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				ev, err := c.decodePurchased(log)
				if err != nil {
					return err
				}
				select {
				case sink <- ev:
				case <-quit:
					return nil
				case err := <-sub.Err():
					return err
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) decodeListed(log types.Log) (domain.ListedEvent, error) {
	var raw itemListedLog
	if err := c.market.UnpackLog(&raw, "ItemListed", log); err != nil {
		return domain.ListedEvent{}, fmt.Errorf("chain: unpack ItemListed: %w", err)
	}
	return domain.ListedEvent{
		ItemID:      raw.Id.Uint64(),
		Make:        raw.Make,
		Model:       raw.Model,
		Year:        raw.Year,
		PriceWei:    raw.Price,
		Seller:      raw.Seller.Hex(),
		TxHash:      log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

func (c *Client) decodePurchased(log types.Log) (domain.PurchasedEvent, error) {
	var raw itemPurchasedLog
	if err := c.market.UnpackLog(&raw, "ItemPurchased", log); err != nil {
		return domain.PurchasedEvent{}, fmt.Errorf("chain: unpack ItemPurchased: %w", err)
	}
	return domain.PurchasedEvent{
		ItemID:      raw.Id.Uint64(),
		Buyer:       raw.Buyer.Hex(),
		PriceWei:    raw.Price,
		TxHash:      log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}
