package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carmarket/carmarket/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given
// connection pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

const activitySelectCols = `id, kind, item_id, make, model, year, price_wei,
	seller, buyer, tx_hash, log_index, block_number, observed_at`

const activityInsert = `
	INSERT INTO contract_events (
		kind, item_id, make, model, year, price_wei,
		seller, buyer, tx_hash, log_index, block_number
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (tx_hash, log_index) DO NOTHING`

func scanActivityRows(rows pgx.Rows) ([]domain.Activity, error) {
	var acts []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(
			&a.ID, &a.Kind, &a.ItemID, &a.Make, &a.Model, &a.Year,
			&a.PriceWei, &a.Seller, &a.Buyer, &a.TxHash,
			&a.LogIndex, &a.BlockNumber, &a.ObservedAt,
		); err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

func weiText(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return wei.String()
}

// RecordListing appends an ItemListed observation. A replayed event with
// the same (tx_hash, log_index) is silently skipped.
func (s *ActivityStore) RecordListing(ctx context.Context, ev domain.ListedEvent) error {
	_, err := s.pool.Exec(ctx, activityInsert,
		domain.ActivityListed, ev.ItemID, ev.Make, ev.Model, ev.Year,
		weiText(ev.PriceWei), ev.Seller, "", ev.TxHash,
		int32(ev.LogIndex), ev.BlockNumber,
	)
	if err != nil {
		return fmt.Errorf("postgres: record listing %d: %w", ev.ItemID, err)
	}
	return nil
}

// RecordPurchase appends an ItemPurchased observation with the same
// replay semantics as RecordListing.
func (s *ActivityStore) RecordPurchase(ctx context.Context, ev domain.PurchasedEvent) error {
	_, err := s.pool.Exec(ctx, activityInsert,
		domain.ActivityPurchased, ev.ItemID, "", "", 0,
		weiText(ev.PriceWei), "", ev.Buyer, ev.TxHash,
		int32(ev.LogIndex), ev.BlockNumber,
	)
	if err != nil {
		return fmt.Errorf("postgres: record purchase %d: %w", ev.ItemID, err)
	}
	return nil
}

// ListRecent returns the newest activity entries, most recent first.
func (s *ActivityStore) ListRecent(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + activitySelectCols + `
		FROM contract_events ORDER BY observed_at DESC, id DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent activity: %w", err)
	}
	defer rows.Close()

	acts, err := scanActivityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent activity: %w", err)
	}
	return acts, nil
}

// ListBefore returns all entries observed strictly before the given time,
// oldest first, for archiving.
func (s *ActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activitySelectCols + `
		FROM contract_events WHERE observed_at < $1 ORDER BY observed_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity before: %w", err)
	}
	defer rows.Close()
	return scanActivityRows(rows)
}

// DeleteBefore deletes all entries observed before the given time and
// returns the number deleted.
func (s *ActivityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contract_events WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete activity before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ActivityStore = (*ActivityStore)(nil)
