// Package chain implements the typed facade over the CarMarket contract:
// reads, state-changing submissions, and event subscriptions. It hides the
// exact field layout of the deployed contract, which has drifted across
// revisions (with and without a stored settlement hash).
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/carmarket/carmarket/internal/domain"
)

// Config holds the endpoints and contract address for a Client.
type Config struct {
	// RPCURL is the HTTP(S) JSON-RPC endpoint used for calls and
	// transaction submission.
	RPCURL string
	// WSURL is the WebSocket endpoint used for log subscriptions. May be
	// empty, in which case Watch* operations are unavailable.
	WSURL string
	// ContractAddress is the deployed CarMarket contract address.
	ContractAddress string
}

// Client is the contract client facade. A freshly dialed Client is
// read-only; WithSigner derives a write-capable view bound to one signing
// identity. All write operations block until on-chain inclusion.
type Client struct {
	eth     *ethclient.Client
	wsEth   *ethclient.Client // nil when no ws endpoint is configured
	market  *bind.BoundContract
	legacy  *bind.BoundContract
	address common.Address
	signer  *bind.TransactOpts // nil for read-only clients
	logger  *slog.Logger
}

// Dial connects to the configured endpoints and binds the contract. The
// returned Client is read-only.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := loadABIs(); err != nil {
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("chain: invalid contract address %q", cfg.ContractAddress)
	}
	addr := common.HexToAddress(cfg.ContractAddress)

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc: %w", err)
	}

	var wsEth *ethclient.Client
	if cfg.WSURL != "" {
		wsEth, err = ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain: dial ws: %w", err)
		}
	}

	// Subscriptions need the ws connection; calls and sends go over HTTP.
	var filterer bind.ContractFilterer = eth
	if wsEth != nil {
		filterer = wsEth
	}

	return &Client{
		eth:     eth,
		wsEth:   wsEth,
		market:  bind.NewBoundContract(addr, marketABI, eth, eth, filterer),
		legacy:  bind.NewBoundContract(addr, legacyABI, eth, eth, filterer),
		address: addr,
		logger:  logger.With(slog.String("component", "chain")),
	}, nil
}

// WithSigner returns a write-capable view of the client bound to the given
// transact options. The underlying connections are shared; only the
// signing identity differs.
func (c *Client) WithSigner(opts *bind.TransactOpts) *Client {
	bound := *c
	bound.signer = opts
	return &bound
}

// Close releases the underlying RPC connections.
func (c *Client) Close() {
	c.eth.Close()
	if c.wsEth != nil {
		c.wsEth.Close()
	}
}

// marketItem mirrors the current item tuple layout.
type marketItem struct {
	Id     *big.Int
	Make   string
	Model  string
	Year   uint16
	Price  *big.Int
	Seller common.Address
	Buyer  common.Address
	Sold   bool
	TxHash [32]byte
}

// legacyItem mirrors the pre-settlement-hash tuple layout.
type legacyItem struct {
	Id     *big.Int
	Make   string
	Model  string
	Year   uint16
	Price  *big.Int
	Seller common.Address
	Buyer  common.Address
	Sold   bool
}

func (r marketItem) toDomain() domain.Item {
	it := legacyItem{r.Id, r.Make, r.Model, r.Year, r.Price, r.Seller, r.Buyer, r.Sold}.toDomain()
	if r.TxHash != ([32]byte{}) {
		it.SettlementHash = common.Hash(r.TxHash).Hex()
	}
	return it
}

func (r legacyItem) toDomain() domain.Item {
	return domain.Item{
		ID:       r.Id.Uint64(),
		Make:     r.Make,
		Model:    r.Model,
		Year:     r.Year,
		PriceWei: r.Price,
		Seller:   r.Seller.Hex(),
		Buyer:    r.Buyer.Hex(),
		Sold:     r.Sold,
	}
}

// FetchAllItems returns the full listing snapshot. An empty marketplace
// yields an empty slice. When decoding with the current ABI fails the call
// is retried with the legacy layout.
func (c *Client) FetchAllItems(ctx context.Context) ([]domain.Item, error) {
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	err := c.market.Call(opts, &out, "getAllItems")
	if err == nil {
		raw := *abi.ConvertType(out[0], new([]marketItem)).(*[]marketItem)
		items := make([]domain.Item, 0, len(raw))
		for _, r := range raw {
			items = append(items, r.toDomain())
		}
		return items, nil
	}

	var legacyOut []interface{}
	if lerr := c.legacy.Call(opts, &legacyOut, "getAllItems"); lerr == nil {
		raw := *abi.ConvertType(legacyOut[0], new([]legacyItem)).(*[]legacyItem)
		items := make([]domain.Item, 0, len(raw))
		for _, r := range raw {
			items = append(items, r.toDomain())
		}
		c.logger.DebugContext(ctx, "decoded items with legacy contract layout",
			slog.Int("count", len(items)),
		)
		return items, nil
	}

	return nil, fmt.Errorf("chain: getAllItems: %w", err)
}

// FetchItem returns a single item by identifier. It returns
// domain.ErrInvalidID for a non-positive id and domain.ErrNotFound when the
// contract has no such item.
func (c *Client) FetchItem(ctx context.Context, id uint64) (domain.Item, error) {
	if id == 0 {
		return domain.Item{}, fmt.Errorf("%w: %d", domain.ErrInvalidID, id)
	}
	opts := &bind.CallOpts{Context: ctx}
	arg := new(big.Int).SetUint64(id)

	var out []interface{}
	err := c.market.Call(opts, &out, "getItem", arg)
	if err == nil {
		it := (*abi.ConvertType(out[0], new(marketItem)).(*marketItem)).toDomain()
		return checkItemExists(it)
	}

	var legacyOut []interface{}
	if lerr := c.legacy.Call(opts, &legacyOut, "getItem", arg); lerr == nil {
		it := (*abi.ConvertType(legacyOut[0], new(legacyItem)).(*legacyItem)).toDomain()
		return checkItemExists(it)
	}

	return domain.Item{}, fmt.Errorf("chain: getItem %d: %w", id, err)
}

// checkItemExists treats the contract's zero-value item as absent.
func checkItemExists(it domain.Item) (domain.Item, error) {
	if it.ID == 0 {
		return domain.Item{}, domain.ErrNotFound
	}
	return it, nil
}

// ItemCount returns the number of items ever listed.
func (c *Client) ItemCount(ctx context.Context) (uint64, error) {
	opts := &bind.CallOpts{Context: ctx}
	var out []interface{}
	if err := c.market.Call(opts, &out, "itemCount"); err != nil {
		return 0, fmt.Errorf("chain: itemCount: %w", err)
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return count.Uint64(), nil
}

// FetchBalance returns the native-currency balance of an address in
// human-readable ether.
func (c *Client) FetchBalance(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("chain: invalid address %q", address)
	}
	wei, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", fmt.Errorf("chain: balance of %s: %w", address, err)
	}
	return WeiToEther(wei), nil
}

// ListItem validates the listing locally, converts the decimal ether price
// to wei, submits the listing, and waits for inclusion. It returns the
// transaction hash of the listing.
func (c *Client) ListItem(ctx context.Context, make_, model string, year uint16, price string) (string, error) {
	priceWei, err := EtherToWei(price)
	if err != nil {
		return "", err
	}
	if err := validateListing(make_, model, year, priceWei); err != nil {
		return "", err
	}
	if c.signer == nil {
		return "", fmt.Errorf("%w: client has no signer", domain.ErrWalletUnavailable)
	}

	opts := *c.signer
	opts.Context = ctx

	tx, err := c.market.Transact(&opts, "listItem", make_, model, year, priceWei)
	if err != nil {
		return "", classifySubmission(err)
	}

	c.logger.InfoContext(ctx, "listing submitted",
		slog.String("tx", tx.Hash().Hex()),
		slog.String("make", make_),
		slog.String("model", model),
	)

	if err := c.waitMined(ctx, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// PurchaseItem re-reads the item, refuses when it is already sold, and
// otherwise submits the purchase with the item's current price attached as
// payment. The re-read reduces wasted submissions; it cannot prevent a
// race with another buyer, which surfaces as a post-hoc failure. It
// returns the purchase transaction hash and the price paid.
func (c *Client) PurchaseItem(ctx context.Context, id uint64) (string, *big.Int, error) {
	if id == 0 {
		return "", nil, fmt.Errorf("%w: %d", domain.ErrInvalidID, id)
	}
	if c.signer == nil {
		return "", nil, fmt.Errorf("%w: client has no signer", domain.ErrWalletUnavailable)
	}

	item, err := c.FetchItem(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if item.Sold {
		return "", nil, fmt.Errorf("%w: item %d", domain.ErrAlreadySold, id)
	}

	opts := *c.signer
	opts.Context = ctx
	opts.Value = item.PriceWei

	tx, err := c.market.Transact(&opts, "purchaseItem", new(big.Int).SetUint64(id))
	if err != nil {
		return "", nil, classifySubmission(err)
	}

	c.logger.InfoContext(ctx, "purchase submitted",
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("item_id", id),
	)

	if err := c.waitMined(ctx, tx); err != nil {
		return "", nil, err
	}
	return tx.Hash().Hex(), item.PriceWei, nil
}

// waitMined blocks until the transaction is included and checks its
// receipt status.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) error {
	rcpt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return classifySubmission(err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrUnknownSubmission, tx.Hash().Hex())
	}
	return nil
}
