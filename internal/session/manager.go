// Package session tracks the wallet session: which signing account, if
// any, is currently bound, and the account-scoped view derived from it.
// The session moves through disconnected, connecting, account selection,
// and connected states; every transition invalidates results of
// operations started under the previous session identity.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/google/uuid"

	"github.com/carmarket/carmarket/internal/domain"
)

// State names a phase of the session lifecycle.
type State string

const (
	StateDisconnected            State = "disconnected"
	StateConnecting              State = "connecting"
	StateAccountSelectionPending State = "account_selection_pending"
	StateConnected               State = "connected"
)

// Contract is the slice of the chain client the session needs.
type Contract interface {
	FetchBalance(ctx context.Context, address string) (string, error)
	ListItem(ctx context.Context, make_, model string, year uint16, price string) (string, error)
	PurchaseItem(ctx context.Context, id uint64) (string, *big.Int, error)
}

// Binder derives a write-capable contract view for a bound signer.
type Binder func(opts *bind.TransactOpts) Contract

// Wallet is the slice of the keystore wallet the session needs.
type Wallet interface {
	Available() bool
	Accounts() []string
	Bind(address, passphrase string) (*bind.TransactOpts, string, error)
}

// Counter computes per-address marketplace counts from the listing
// snapshot.
type Counter interface {
	CountsFor(address string) (listed, purchased, sold int)
}

// Hook observes session lifecycle transitions. Hooks run outside the
// session lock.
type Hook interface {
	SessionConnected(ctx context.Context)
	SessionDisconnected()
}

// Snapshot is a point-in-time copy of the session, safe to hand out.
type Snapshot struct {
	ID       string               `json:"id,omitempty"`
	State    State                `json:"state"`
	Accounts []string             `json:"accounts,omitempty"`
	Address  string               `json:"address,omitempty"`
	Stats    *domain.AccountStats `json:"stats,omitempty"`
}

// Manager owns the session state machine. All exported methods are safe
// for concurrent use.
type Manager struct {
	contract Contract
	binder   Binder
	wallet   Wallet
	counter  Counter
	receipts domain.ReceiptStore // nil disables local receipt recording
	logger   *slog.Logger

	mu       sync.Mutex
	id       string
	state    State
	accounts []string
	address  string
	bound    Contract // write-capable view, nil unless connected
	stats    *domain.AccountStats
	hooks    []Hook
}

// New builds a Manager in the disconnected state. The receipt store may
// be nil.
func New(contract Contract, binder Binder, wallet Wallet, counter Counter, receipts domain.ReceiptStore, logger *slog.Logger) *Manager {
	return &Manager{
		contract: contract,
		binder:   binder,
		wallet:   wallet,
		counter:  counter,
		receipts: receipts,
		logger:   logger.With(slog.String("component", "session")),
		state:    StateDisconnected,
	}
}

// RegisterHook adds a lifecycle observer. Call before the session is
// first connected.
func (m *Manager) RegisterHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:      m.id,
		State:   m.state,
		Address: m.address,
	}
	if len(m.accounts) > 0 {
		snap.Accounts = append([]string(nil), m.accounts...)
	}
	if m.stats != nil {
		statsCopy := *m.stats
		snap.Stats = &statsCopy
	}
	return snap
}

// Connect begins a session. When the keystore exposes exactly one account
// and a passphrase is supplied the account is bound immediately;
// otherwise the session waits in account selection. A new session
// identity is issued either way, superseding any previous session.
func (m *Manager) Connect(ctx context.Context, passphrase string) (Snapshot, error) {
	if !m.wallet.Available() {
		return Snapshot{}, fmt.Errorf("%w: no signing accounts installed", domain.ErrWalletUnavailable)
	}

	accounts := m.wallet.Accounts()

	m.mu.Lock()
	m.id = uuid.NewString()
	m.state = StateConnecting
	m.accounts = accounts
	m.address = ""
	m.bound = nil
	m.stats = nil
	m.state = StateAccountSelectionPending
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session connecting",
		slog.String("session_id", snap.ID),
		slog.Int("accounts", len(accounts)),
	)

	if len(accounts) == 1 && passphrase != "" {
		return m.SelectAccount(ctx, accounts[0], passphrase)
	}
	return snap, nil
}

// SelectAccount binds the named account to the session and loads its
// account view. Valid from account selection or from an already connected
// session, which switches accounts.
func (m *Manager) SelectAccount(ctx context.Context, address, passphrase string) (Snapshot, error) {
	m.mu.Lock()
	if m.state != StateAccountSelectionPending && m.state != StateConnected {
		state := m.state
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: cannot select account in state %q", domain.ErrNotConnected, state)
	}
	sessionID := m.id
	m.mu.Unlock()

	opts, canonical, err := m.wallet.Bind(address, passphrase)
	if err != nil {
		return Snapshot{}, err
	}

	stats, err := m.buildStats(ctx, canonical)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	if m.id != sessionID {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "discarding account selection for superseded session",
			slog.String("session_id", sessionID),
		)
		return Snapshot{}, fmt.Errorf("%w: session superseded", domain.ErrNotConnected)
	}
	m.state = StateConnected
	m.address = canonical
	m.bound = m.binder(opts)
	m.stats = stats
	snap := m.snapshotLocked()
	hooks := append([]Hook(nil), m.hooks...)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session connected",
		slog.String("session_id", snap.ID),
		slog.String("address", canonical),
	)

	for _, h := range hooks {
		h.SessionConnected(ctx)
	}
	return snap, nil
}

// Disconnect ends the session. Disconnecting an already disconnected
// session is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	id := m.id
	m.id = ""
	m.state = StateDisconnected
	m.accounts = nil
	m.address = ""
	m.bound = nil
	m.stats = nil
	hooks := append([]Hook(nil), m.hooks...)
	m.mu.Unlock()

	m.logger.Info("session disconnected", slog.String("session_id", id))

	for _, h := range hooks {
		h.SessionDisconnected()
	}
}

// RefreshStats recomputes the connected account's balance and counts.
// Results are discarded if the session changes while the chain is being
// read.
func (m *Manager) RefreshStats(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return domain.ErrNotConnected
	}
	sessionID := m.id
	address := m.address
	m.mu.Unlock()

	stats, err := m.buildStats(ctx, address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id != sessionID {
		return nil
	}
	m.stats = stats
	return nil
}

// Stats returns the connected account's stats.
func (m *Manager) Stats() (domain.AccountStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.stats == nil {
		return domain.AccountStats{}, domain.ErrNotConnected
	}
	return *m.stats, nil
}

func (m *Manager) buildStats(ctx context.Context, address string) (*domain.AccountStats, error) {
	balance, err := m.contract.FetchBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	listed, purchased, sold := m.counter.CountsFor(address)
	return &domain.AccountStats{
		BalanceEth: balance,
		Listed:     listed,
		Purchased:  purchased,
		Sold:       sold,
	}, nil
}

// ListItem submits a listing under the connected account and returns the
// transaction hash.
func (m *Manager) ListItem(ctx context.Context, make_, model string, year uint16, price string) (string, error) {
	bound, _, err := m.boundContract()
	if err != nil {
		return "", err
	}
	return bound.ListItem(ctx, make_, model, year, price)
}

// PurchaseItem buys an item under the connected account. The settlement
// hash is recorded locally on success even if the session has since been
// superseded, because the chain transaction itself cannot be undone.
func (m *Manager) PurchaseItem(ctx context.Context, id uint64) (string, error) {
	bound, sessionID, err := m.boundContract()
	if err != nil {
		return "", err
	}

	txHash, _, err := bound.PurchaseItem(ctx, id)
	if err != nil {
		return "", err
	}

	if m.receipts != nil {
		if rerr := m.receipts.Set(ctx, id, txHash); rerr != nil {
			m.logger.WarnContext(ctx, "recording purchase receipt failed",
				slog.Uint64("item_id", id),
				slog.String("error", rerr.Error()),
			)
		}
	}

	m.mu.Lock()
	stale := m.id != sessionID
	m.mu.Unlock()
	if stale {
		m.logger.WarnContext(ctx, "purchase completed under superseded session",
			slog.String("session_id", sessionID),
			slog.Uint64("item_id", id),
		)
	}
	return txHash, nil
}

func (m *Manager) boundContract() (Contract, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.bound == nil {
		return nil, "", fmt.Errorf("%w: no account bound", domain.ErrNotConnected)
	}
	return m.bound, m.id, nil
}

// IsConnected reports whether an account is currently bound.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}
