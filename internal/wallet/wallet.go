// Package wallet manages the signing accounts available to the service.
// Keys live in a go-ethereum keystore directory; an account must be
// explicitly bound with its passphrase before it can sign.
package wallet

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"

	"github.com/carmarket/carmarket/internal/domain"
)

// Wallet wraps an on-disk keystore and the chain identity transactions
// must be signed for.
type Wallet struct {
	ks      *keystore.KeyStore
	chainID *big.Int
	logger  *slog.Logger
}

// Open loads the keystore directory. A missing or empty directory is not
// an error; the wallet is simply unavailable until keys are imported.
func Open(dir string, chainID int64, logger *slog.Logger) *Wallet {
	return &Wallet{
		ks:      keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		chainID: big.NewInt(chainID),
		logger:  logger.With(slog.String("component", "wallet")),
	}
}

// Available reports whether the keystore holds at least one account.
func (w *Wallet) Available() bool {
	return len(w.ks.Accounts()) > 0
}

// Accounts returns the hex addresses of every keystore account, in
// keystore order.
func (w *Wallet) Accounts() []string {
	accts := w.ks.Accounts()
	out := make([]string, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Address.Hex())
	}
	return out
}

// Bind unlocks the named account and returns transact options bound to it
// along with the account's canonical hex address. Address matching is
// case-insensitive. Failures wrap domain.ErrSignerBinding.
func (w *Wallet) Bind(address, passphrase string) (*bind.TransactOpts, string, error) {
	if !w.Available() {
		return nil, "", fmt.Errorf("%w: keystore holds no accounts", domain.ErrWalletUnavailable)
	}

	acct, err := w.find(address)
	if err != nil {
		return nil, "", err
	}

	if err := w.ks.Unlock(acct, passphrase); err != nil {
		return nil, "", fmt.Errorf("%w: unlock %s: %v", domain.ErrSignerBinding, acct.Address.Hex(), err)
	}

	opts, err := bind.NewKeyStoreTransactorWithChainID(w.ks, acct, w.chainID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: transactor for %s: %v", domain.ErrSignerBinding, acct.Address.Hex(), err)
	}

	w.logger.Info("account bound", slog.String("address", acct.Address.Hex()))
	return opts, acct.Address.Hex(), nil
}

func (w *Wallet) find(address string) (accounts.Account, error) {
	for _, a := range w.ks.Accounts() {
		if domain.SameAddress(a.Address.Hex(), address) {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("%w: no keystore account %s", domain.ErrSignerBinding, address)
}
