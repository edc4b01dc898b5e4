package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL. Rows are
// append-only; the (tx_hash, log_index) unique constraint is the second line
// of idempotency defense behind the router's existence pre-check.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Exists reports whether an activity with the given idempotency key has
// already been recorded.
func (s *ActivityStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM activities WHERE id = $1)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check activity %s: %w", id, err)
	}
	return exists, nil
}

// Insert appends one activity. A unique violation on the idempotency key maps
// to domain.ErrDuplicateActivity so callers can treat redelivery as a no-op.
func (s *ActivityStore) Insert(ctx context.Context, a domain.Activity) error {
	const query = `
		INSERT INTO activities (
			id, tx_hash, log_index, vault_address, condition_id,
			block_number, ts, type, user_address, position, info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var user *string
	if a.UserAddress != "" {
		user = &a.UserAddress
	}
	var position *string
	if a.Position != "" && a.Position != domain.PositionNone {
		p := string(a.Position)
		position = &p
	}

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.TxHash, int64(a.LogIndex), a.VaultAddress, a.ConditionID,
		int64(a.BlockNumber), a.Timestamp, a.Type, user, position, a.Info,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateActivity
		}
		return fmt.Errorf("postgres: insert activity %s: %w", a.ID, err)
	}
	return nil
}

// ListByMarket returns a market's full history in replay order.
func (s *ActivityStore) ListByMarket(ctx context.Context, conditionID string) ([]domain.Activity, error) {
	const query = `
		SELECT id, tx_hash, log_index, vault_address, condition_id,
			block_number, ts, type, user_address, position, info
		FROM activities
		WHERE condition_id = $1
		ORDER BY block_number ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, conditionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activities for %s: %w", conditionID, err)
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var (
			a        domain.Activity
			logIndex int64
			block    int64
			user     *string
			position *string
		)
		err := rows.Scan(
			&a.ID, &a.TxHash, &logIndex, &a.VaultAddress, &a.ConditionID,
			&block, &a.Timestamp, &a.Type, &user, &position, &a.Info,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		a.LogIndex = uint(logIndex)
		a.BlockNumber = uint64(block)
		if user != nil {
			a.UserAddress = *user
		}
		a.Position = domain.PositionNone
		if position != nil {
			a.Position = domain.Position(*position)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activities rows: %w", err)
	}
	return activities, nil
}

var _ domain.ActivityStore = (*ActivityStore)(nil)
