package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `condition_id, vault_address, status,
	matched_tokens::text, unmatched_yes::text, unmatched_no::text, tvl::text,
	winning_position, genesis_slot, eligible, end_time, last_price::text,
	created_block, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m            domain.Market
		vault        *string
		status       string
		matched      string
		unmatchedYes string
		unmatchedNo  string
		tvl          string
		winning      *string
		lastPrice    *string
	)

	err := row.Scan(
		&m.ConditionID, &vault, &status,
		&matched, &unmatchedYes, &unmatchedNo, &tvl,
		&winning, &m.GenesisSlot, &m.Eligible, &m.EndTime, &lastPrice,
		&m.CreatedBlock, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	if vault != nil {
		m.VaultAddress = *vault
	}
	m.Status = domain.MarketStatus(status)
	m.WinningPosition = domain.PositionNone
	if winning != nil {
		m.WinningPosition = domain.Position(*winning)
	}

	if m.MatchedTokens, err = scanBig(matched); err != nil {
		return domain.Market{}, err
	}
	if m.UnmatchedYes, err = scanBig(unmatchedYes); err != nil {
		return domain.Market{}, err
	}
	if m.UnmatchedNo, err = scanBig(unmatchedNo); err != nil {
		return domain.Market{}, err
	}
	if m.TVL, err = scanBig(tvl); err != nil {
		return domain.Market{}, err
	}
	if m.LastPrice, err = scanBigPtr(lastPrice); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// Provision inserts the market row if absent and stamps identity fields on
// conflict. Aggregates of an existing row are never touched here; the status
// only moves off uninitialized so a late provisioning event cannot rewind a
// finalized market.
func (s *MarketStore) Provision(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			condition_id, vault_address, status,
			matched_tokens, unmatched_yes, unmatched_no, tvl,
			genesis_slot, eligible, end_time, created_block, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4::numeric, $5::numeric, $6::numeric, $7::numeric,
			$8, $9, $10, $11, NOW(), NOW()
		)
		ON CONFLICT (condition_id) DO UPDATE SET
			vault_address = EXCLUDED.vault_address,
			status = CASE WHEN markets.status = 'uninitialized'
				THEN EXCLUDED.status ELSE markets.status END,
			genesis_slot  = EXCLUDED.genesis_slot,
			eligible      = EXCLUDED.eligible,
			end_time      = EXCLUDED.end_time,
			created_block = EXCLUDED.created_block,
			updated_at    = NOW()`

	var vault *string
	if m.VaultAddress != "" {
		vault = &m.VaultAddress
	}

	_, err := s.pool.Exec(ctx, query,
		m.ConditionID, vault, string(m.Status),
		numArg(m.MatchedTokens), numArg(m.UnmatchedYes), numArg(m.UnmatchedNo), numArg(m.TVL),
		m.GenesisSlot, m.Eligible, m.EndTime, m.CreatedBlock,
	)
	if err != nil {
		return fmt.Errorf("postgres: provision market %s: %w", m.ConditionID, err)
	}
	return nil
}

// GetByConditionID retrieves a market by its condition ID.
func (s *MarketStore) GetByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE condition_id = $1`, conditionID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// GetByVaultAddress retrieves a market by its (lower-cased) vault address.
func (s *MarketStore) GetByVaultAddress(ctx context.Context, vaultAddress string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE vault_address = $1`, vaultAddress)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by vault %s: %w", vaultAddress, err)
	}
	return m, nil
}

// GetBySlot retrieves a genesis-slot market by its slot index.
func (s *MarketStore) GetBySlot(ctx context.Context, slot int64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE genesis_slot = $1`, slot)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by slot %d: %w", slot, err)
	}
	return m, nil
}

// ListProvisioned returns all markets with a known vault address.
func (s *MarketStore) ListProvisioned(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE vault_address IS NOT NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list provisioned markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan provisioned market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list provisioned markets rows: %w", err)
	}
	return markets, nil
}

// UpdateAggregates overwrites the matched/unmatched columns in one write.
// TVL is defined as the matched amount.
func (s *MarketStore) UpdateAggregates(ctx context.Context, conditionID string, matched, unmatchedYes, unmatchedNo *big.Int) error {
	const query = `
		UPDATE markets SET
			matched_tokens = $2::numeric,
			unmatched_yes  = $3::numeric,
			unmatched_no   = $4::numeric,
			tvl            = $2::numeric,
			updated_at     = NOW()
		WHERE condition_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		conditionID, numArg(matched), numArg(unmatchedYes), numArg(unmatchedNo))
	if err != nil {
		return fmt.Errorf("postgres: update aggregates for %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Finalize moves the market to finalized and records the winning side.
func (s *MarketStore) Finalize(ctx context.Context, conditionID string, winning domain.Position) error {
	const query = `
		UPDATE markets SET
			status           = 'finalized',
			winning_position = $2,
			updated_at       = NOW()
		WHERE condition_id = $1`

	tag, err := s.pool.Exec(ctx, query, conditionID, string(winning))
	if err != nil {
		return fmt.Errorf("postgres: finalize market %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus sets the lifecycle status of a market.
func (s *MarketStore) UpdateStatus(ctx context.Context, conditionID string, status domain.MarketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2, updated_at = NOW() WHERE condition_id = $1`,
		conditionID, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update status for %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetLastPrice records the most recent submitted price for a genesis slot.
func (s *MarketStore) SetLastPrice(ctx context.Context, conditionID string, price *big.Int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET last_price = $2::numeric, updated_at = NOW() WHERE condition_id = $1`,
		conditionID, numArg(price))
	if err != nil {
		return fmt.Errorf("postgres: set last price for %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
