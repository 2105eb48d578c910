package session

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/carmarket/carmarket/internal/domain"
)

type fakeContract struct {
	balance   string
	listTx    string
	listErr   error
	purchTx   string
	purchErr  error
	purchases []uint64
}

func (f *fakeContract) FetchBalance(ctx context.Context, address string) (string, error) {
	return f.balance, nil
}

func (f *fakeContract) ListItem(ctx context.Context, make_, model string, year uint16, price string) (string, error) {
	return f.listTx, f.listErr
}

func (f *fakeContract) PurchaseItem(ctx context.Context, id uint64) (string, *big.Int, error) {
	if f.purchErr != nil {
		return "", nil, f.purchErr
	}
	f.purchases = append(f.purchases, id)
	return f.purchTx, big.NewInt(1), nil
}

type fakeWallet struct {
	accounts []string
	bindErr  error
	// onBind runs inside Bind, before it returns. Lets tests supersede
	// the session mid-bind.
	onBind func()
}

func (f *fakeWallet) Available() bool    { return len(f.accounts) > 0 }
func (f *fakeWallet) Accounts() []string { return f.accounts }

func (f *fakeWallet) Bind(address, passphrase string) (*bind.TransactOpts, string, error) {
	if f.onBind != nil {
		f.onBind()
	}
	if f.bindErr != nil {
		return nil, "", f.bindErr
	}
	return &bind.TransactOpts{}, address, nil
}

type fakeCounter struct {
	listed, purchased, sold int
}

func (f *fakeCounter) CountsFor(address string) (int, int, int) {
	return f.listed, f.purchased, f.sold
}

type fakeReceiptStore struct {
	hashes map[uint64]string
}

func (f *fakeReceiptStore) Get(ctx context.Context, itemID uint64) (string, error) {
	h, ok := f.hashes[itemID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return h, nil
}

func (f *fakeReceiptStore) Set(ctx context.Context, itemID uint64, txHash string) error {
	f.hashes[itemID] = txHash
	return nil
}

type recordingHook struct {
	connected    int
	disconnected int
}

func (h *recordingHook) SessionConnected(ctx context.Context) { h.connected++ }
func (h *recordingHook) SessionDisconnected()                 { h.disconnected++ }

func newTestManager(contract *fakeContract, wallet *fakeWallet) *Manager {
	binder := func(opts *bind.TransactOpts) Contract { return contract }
	logger := slog.New(slog.DiscardHandler)
	return New(contract, binder, wallet, &fakeCounter{listed: 2, purchased: 1, sold: 1}, nil, logger)
}

func TestConnectWalletUnavailable(t *testing.T) {
	mgr := newTestManager(&fakeContract{}, &fakeWallet{})

	_, err := mgr.Connect(context.Background(), "")
	if !errors.Is(err, domain.ErrWalletUnavailable) {
		t.Fatalf("Connect with empty keystore returned %v, want ErrWalletUnavailable", err)
	}
	if mgr.Current().State != StateDisconnected {
		t.Errorf("state = %q, want disconnected", mgr.Current().State)
	}
}

func TestConnectMultipleAccountsWaitsForSelection(t *testing.T) {
	wallet := &fakeWallet{accounts: []string{"0xaaa", "0xbbb"}}
	mgr := newTestManager(&fakeContract{balance: "1"}, wallet)

	snap, err := mgr.Connect(context.Background(), "secret")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if snap.State != StateAccountSelectionPending {
		t.Errorf("state = %q, want account_selection_pending", snap.State)
	}
	if len(snap.Accounts) != 2 {
		t.Errorf("snapshot offers %d accounts, want 2", len(snap.Accounts))
	}
	if snap.Address != "" {
		t.Errorf("no account should be bound yet, got %q", snap.Address)
	}
	if snap.ID == "" {
		t.Error("session id should be issued on connect")
	}
}

func TestConnectSingleAccountAutoBinds(t *testing.T) {
	wallet := &fakeWallet{accounts: []string{"0xaaa"}}
	mgr := newTestManager(&fakeContract{balance: "2.5"}, wallet)

	snap, err := mgr.Connect(context.Background(), "secret")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if snap.State != StateConnected {
		t.Fatalf("state = %q, want connected", snap.State)
	}
	if snap.Address != "0xaaa" {
		t.Errorf("address = %q, want 0xaaa", snap.Address)
	}
	if snap.Stats == nil {
		t.Fatal("connected snapshot should carry stats")
	}
	if snap.Stats.BalanceEth != "2.5" {
		t.Errorf("balance = %q, want 2.5", snap.Stats.BalanceEth)
	}
	if snap.Stats.Listed != 2 || snap.Stats.Purchased != 1 || snap.Stats.Sold != 1 {
		t.Errorf("counts = (%d, %d, %d), want (2, 1, 1)",
			snap.Stats.Listed, snap.Stats.Purchased, snap.Stats.Sold)
	}
}

func TestConnectSingleAccountWithoutPassphraseWaits(t *testing.T) {
	wallet := &fakeWallet{accounts: []string{"0xaaa"}}
	mgr := newTestManager(&fakeContract{balance: "1"}, wallet)

	snap, err := mgr.Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if snap.State != StateAccountSelectionPending {
		t.Errorf("state = %q, want account_selection_pending without a passphrase", snap.State)
	}
}

func TestSelectAccountWhenDisconnected(t *testing.T) {
	mgr := newTestManager(&fakeContract{}, &fakeWallet{accounts: []string{"0xaaa"}})

	_, err := mgr.SelectAccount(context.Background(), "0xaaa", "secret")
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("SelectAccount on disconnected session returned %v, want ErrNotConnected", err)
	}
}

func TestSelectAccountSupersededSession(t *testing.T) {
	contract := &fakeContract{balance: "1"}
	wallet := &fakeWallet{accounts: []string{"0xaaa", "0xbbb"}}
	mgr := newTestManager(contract, wallet)

	if _, err := mgr.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	// A second Connect issues a new session identity while the first
	// selection is still binding.
	wallet.onBind = func() {
		wallet.onBind = nil
		if _, err := mgr.Connect(context.Background(), ""); err != nil {
			t.Fatalf("superseding Connect returned error: %v", err)
		}
	}

	_, err := mgr.SelectAccount(context.Background(), "0xaaa", "secret")
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("stale selection returned %v, want ErrNotConnected", err)
	}
	if mgr.IsConnected() {
		t.Error("superseded selection must not bind the new session")
	}
}

func TestSelectAccountBindFailure(t *testing.T) {
	wallet := &fakeWallet{
		accounts: []string{"0xaaa"},
		bindErr:  domain.ErrSignerBinding,
	}
	mgr := newTestManager(&fakeContract{}, wallet)

	if _, err := mgr.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	_, err := mgr.SelectAccount(context.Background(), "0xaaa", "wrong")
	if !errors.Is(err, domain.ErrSignerBinding) {
		t.Fatalf("SelectAccount returned %v, want ErrSignerBinding", err)
	}
	if mgr.IsConnected() {
		t.Error("failed bind should leave the session unconnected")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	wallet := &fakeWallet{accounts: []string{"0xaaa"}}
	mgr := newTestManager(&fakeContract{balance: "1"}, wallet)
	hook := &recordingHook{}
	mgr.RegisterHook(hook)

	if _, err := mgr.Connect(context.Background(), "secret"); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if hook.connected != 1 {
		t.Errorf("connected hook fired %d times, want 1", hook.connected)
	}

	mgr.Disconnect()
	mgr.Disconnect()
	mgr.Disconnect()

	if hook.disconnected != 1 {
		t.Errorf("disconnected hook fired %d times, want 1", hook.disconnected)
	}
	if mgr.Current().State != StateDisconnected {
		t.Errorf("state = %q, want disconnected", mgr.Current().State)
	}
}

func TestWriteOperationsRequireConnection(t *testing.T) {
	mgr := newTestManager(&fakeContract{}, &fakeWallet{accounts: []string{"0xaaa"}})

	if _, err := mgr.ListItem(context.Background(), "Toyota", "Corolla", 2020, "1"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("ListItem returned %v, want ErrNotConnected", err)
	}
	if _, err := mgr.PurchaseItem(context.Background(), 1); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("PurchaseItem returned %v, want ErrNotConnected", err)
	}
	if err := mgr.RefreshStats(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("RefreshStats returned %v, want ErrNotConnected", err)
	}
	if _, err := mgr.Stats(); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Stats returned %v, want ErrNotConnected", err)
	}
}

func TestPurchaseRecordsReceipt(t *testing.T) {
	contract := &fakeContract{balance: "1", purchTx: "0xdeadbeef"}
	wallet := &fakeWallet{accounts: []string{"0xaaa"}}
	receipts := &fakeReceiptStore{hashes: map[uint64]string{}}
	binder := func(opts *bind.TransactOpts) Contract { return contract }
	mgr := New(contract, binder, wallet, &fakeCounter{}, receipts, slog.New(slog.DiscardHandler))

	if _, err := mgr.Connect(context.Background(), "secret"); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	txHash, err := mgr.PurchaseItem(context.Background(), 7)
	if err != nil {
		t.Fatalf("PurchaseItem returned error: %v", err)
	}
	if txHash != "0xdeadbeef" {
		t.Errorf("tx hash = %q, want 0xdeadbeef", txHash)
	}
	if got := receipts.hashes[7]; got != "0xdeadbeef" {
		t.Errorf("receipt for item 7 = %q, want 0xdeadbeef", got)
	}
}
