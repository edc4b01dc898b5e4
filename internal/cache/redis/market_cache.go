package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outcomefi/vaultsync/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using JSON-serialized market rows
// and a secondary vault-address index. It only shortcuts the vault-address
// lookup on the ingest hot path; every market write invalidates the entry, so
// a cached row is never older than the last applied event.
//
// Key schema:
//
//	market:{conditionID} - hash with field "data" containing JSON
//	market:vault:{addr}  - string value of the condition ID
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache on the shared client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.rdb}
}

func marketKey(conditionID string) string { return "market:" + conditionID }
func marketVaultKey(addr string) string   { return "market:vault:" + addr }

// Set stores a market in the cache with a 5-minute TTL and indexes its vault
// address to the condition ID.
func (mc *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ConditionID, err)
	}

	key := marketKey(m.ConditionID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)
	if m.VaultAddress != "" {
		pipe.Set(ctx, marketVaultKey(m.VaultAddress), m.ConditionID, marketTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ConditionID, err)
	}
	return nil
}

func (mc *MarketCache) get(ctx context.Context, conditionID string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(conditionID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", conditionID, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", conditionID, err)
	}
	return m, nil
}

// GetByVault looks up a market by its (lower-cased) vault address.
// It returns domain.ErrNotFound if the index or market entry does not exist.
func (mc *MarketCache) GetByVault(ctx context.Context, vaultAddress string) (domain.Market, error) {
	conditionID, err := mc.rdb.Get(ctx, marketVaultKey(vaultAddress)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market by vault %s: %w", vaultAddress, err)
	}

	return mc.get(ctx, conditionID)
}

// Invalidate removes a market and its vault index entry from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, conditionID string) error {
	// Read the entry first so the reverse index can be cleaned up too.
	m, err := mc.get(ctx, conditionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate market %s: %w", conditionID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, marketKey(conditionID))
	if err == nil && m.VaultAddress != "" {
		pipe.Del(ctx, marketVaultKey(m.VaultAddress))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", conditionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
