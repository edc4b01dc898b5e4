package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// UserPositionStore implements domain.UserPositionStore using PostgreSQL.
type UserPositionStore struct {
	pool *pgxpool.Pool
}

// NewUserPositionStore creates a new UserPositionStore backed by the given pool.
func NewUserPositionStore(pool *pgxpool.Pool) *UserPositionStore {
	return &UserPositionStore{pool: pool}
}

// ApplyDelta upserts the (user, market) row and increments every numeric
// column inside the database. Two concurrent deltas for the same user both
// land; there is no read-modify-write cycle to lose.
func (s *UserPositionStore) ApplyDelta(ctx context.Context, d domain.PositionDelta) error {
	const query = `
		INSERT INTO user_positions (
			user_address, condition_id, vault_address,
			yes_tokens, no_tokens, yield_harvested, usd_redeemed, updated_at
		) VALUES (
			$1, $2, $3,
			$4::numeric, $5::numeric, $6::numeric, $7::numeric, NOW()
		)
		ON CONFLICT (user_address, condition_id) DO UPDATE SET
			yes_tokens      = user_positions.yes_tokens + EXCLUDED.yes_tokens,
			no_tokens       = user_positions.no_tokens + EXCLUDED.no_tokens,
			yield_harvested = user_positions.yield_harvested + EXCLUDED.yield_harvested,
			usd_redeemed    = user_positions.usd_redeemed + EXCLUDED.usd_redeemed,
			updated_at      = NOW()`

	_, err := s.pool.Exec(ctx, query,
		d.UserAddress, d.ConditionID, d.VaultAddress,
		numArg(d.YesTokens), numArg(d.NoTokens),
		numArg(d.YieldHarvested), numArg(d.USDRedeemed),
	)
	if err != nil {
		return fmt.Errorf("postgres: apply position delta for %s/%s: %w", d.UserAddress, d.ConditionID, err)
	}
	return nil
}

// Get retrieves a single user's position in a market.
func (s *UserPositionStore) Get(ctx context.Context, userAddress, conditionID string) (domain.UserPosition, error) {
	const query = `
		SELECT user_address, condition_id, vault_address,
			yes_tokens::text, no_tokens::text, yield_harvested::text, usd_redeemed::text,
			updated_at
		FROM user_positions
		WHERE user_address = $1 AND condition_id = $2`

	var (
		p         domain.UserPosition
		yes       string
		no        string
		harvested string
		redeemed  string
	)
	err := s.pool.QueryRow(ctx, query, userAddress, conditionID).Scan(
		&p.UserAddress, &p.ConditionID, &p.VaultAddress,
		&yes, &no, &harvested, &redeemed, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserPosition{}, domain.ErrNotFound
		}
		return domain.UserPosition{}, fmt.Errorf("postgres: get position %s/%s: %w", userAddress, conditionID, err)
	}

	if p.YesTokens, err = scanBig(yes); err != nil {
		return domain.UserPosition{}, err
	}
	if p.NoTokens, err = scanBig(no); err != nil {
		return domain.UserPosition{}, err
	}
	if p.YieldHarvested, err = scanBig(harvested); err != nil {
		return domain.UserPosition{}, err
	}
	if p.USDRedeemed, err = scanBig(redeemed); err != nil {
		return domain.UserPosition{}, err
	}
	return p, nil
}

var _ domain.UserPositionStore = (*UserPositionStore)(nil)
