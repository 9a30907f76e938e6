package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

const loanKeyPrefix = "ledger:loan:"

// setScript stores a loan unless a newer version was already written. The
// version key outlives Invalidate, so a read that raced a commit cannot put
// the older aggregate back.
var setScript = redis.NewScript(`
local newest = tonumber(redis.call("GET", KEYS[2]) or "0")
if newest > tonumber(ARGV[2]) then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
	redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[1])
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// LoanCache is a read-through cache of committed Loan aggregates. A nil
// client turns every call into a miss.
type LoanCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLoanCache(rdb *redis.Client, ttl time.Duration) *LoanCache {
	return &LoanCache{rdb: rdb, ttl: ttl}
}

// keys share a hash tag so the script runs on one cluster slot
func loanKey(loanID string) string {
	return loanKeyPrefix + "{" + loanID + "}"
}

func versionKey(loanID string) string {
	return loanKey(loanID) + ":version"
}

// Get returns the cached loan and whether it was found
func (c *LoanCache) Get(ctx context.Context, loanID string) (*domain.Loan, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}

	data, err := c.rdb.Get(ctx, loanKey(loanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, customError.WrapCacheError(err)
	}

	var loan domain.Loan
	if err := json.Unmarshal(data, &loan); err != nil {
		// corrupt entry, drop it and read from the store
		_ = c.rdb.Del(ctx, loanKey(loanID)).Err()
		return nil, false, customError.WrapCacheError(err)
	}
	return &loan, true, nil
}

// Set caches loan unless the cache has already seen a newer version of it
func (c *LoanCache) Set(ctx context.Context, loan *domain.Loan) error {
	if c == nil || c.rdb == nil || loan == nil {
		return nil
	}

	data, err := json.Marshal(loan)
	if err != nil {
		return customError.WrapCacheError(err)
	}
	keys := []string{loanKey(loan.ID), versionKey(loan.ID)}
	if err := setScript.Run(ctx, c.rdb, keys, data, loan.Version, c.ttl.Milliseconds()).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// Invalidate drops the cached aggregates but keeps their version floor
func (c *LoanCache) Invalidate(ctx context.Context, loanIDs ...string) error {
	if c == nil || c.rdb == nil || len(loanIDs) == 0 {
		return nil
	}

	keys := make([]string, len(loanIDs))
	for i, id := range loanIDs {
		keys[i] = loanKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}
