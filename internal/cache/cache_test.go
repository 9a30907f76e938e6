package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := OpenRedis(context.Background(), config.RedisConfig{URL: mr.Addr(), DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, 2, c.Options().DB)

	c2, err := OpenRedis(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr() + "/3"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c2.Close() })
	assert.Equal(t, 3, c2.Options().DB)

	_, err = OpenRedis(context.Background(), config.RedisConfig{URL: "not-a-real-host:6379"})
	assert.Error(t, err)
}

func TestLoanCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	c := NewLoanCache(rdb, time.Minute)

	_, found, err := c.Get(ctx, "L1")
	require.NoError(t, err)
	assert.False(t, found)

	loan := &domain.Loan{
		ID:              "L1",
		TotalAmount:     decimal.NewFromInt(300),
		RemainingAmount: decimal.NewFromInt(200),
		Status:          domain.LoanStatusActive,
		Borrowers: domain.Borrowers{
			"bob": {Amount: decimal.NewFromInt(300), PaidAmount: decimal.NewFromInt(100), Status: domain.LoanStatusActive},
		},
		Version: 7,
	}
	require.NoError(t, c.Set(ctx, loan))
	assert.Equal(t, time.Minute, mr.TTL(loanKey("L1")))

	got, found, err := c.Get(ctx, "L1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), got.Version)
	assert.True(t, got.Borrowers["bob"].PaidAmount.Equal(decimal.NewFromInt(100)))

	require.NoError(t, c.Invalidate(ctx, "L1"))
	assert.False(t, mr.Exists(loanKey("L1")))
}

func TestLoanCache_SetKeepsNewerVersion(t *testing.T) {
	ctx := context.Background()
	_, rdb := newMiniRedis(t)
	c := NewLoanCache(rdb, time.Minute)

	newer := &domain.Loan{ID: "L1", RemainingAmount: decimal.NewFromInt(600), Version: 2}
	older := &domain.Loan{ID: "L1", RemainingAmount: decimal.NewFromInt(1000), Version: 1}

	require.NoError(t, c.Set(ctx, newer))
	require.NoError(t, c.Set(ctx, older))

	got, found, err := c.Get(ctx, "L1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), got.Version)

	// the version floor survives invalidation
	require.NoError(t, c.Invalidate(ctx, "L1"))
	require.NoError(t, c.Set(ctx, older))
	_, found, err = c.Get(ctx, "L1")
	require.NoError(t, err)
	assert.False(t, found)

	// same or newer versions are written
	require.NoError(t, c.Set(ctx, newer))
	got, found, err = c.Get(ctx, "L1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.RemainingAmount.Equal(decimal.NewFromInt(600)))
}

func TestLoanCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	c := NewLoanCache(rdb, time.Minute)

	require.NoError(t, mr.Set(loanKey("L1"), "{not json"))

	_, found, err := c.Get(ctx, "L1")
	assert.False(t, found)
	assert.Equal(t, customError.ErrCodeCacheError, customError.Code(err))
	assert.False(t, mr.Exists(loanKey("L1")))
}

func TestLoanCache_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	c := NewLoanCache(rdb, time.Minute)
	mr.Close()

	_, _, err := c.Get(ctx, "L1")
	assert.Equal(t, customError.ErrCodeCacheError, customError.Code(err))
}

func TestLoanCache_NilClient(t *testing.T) {
	ctx := context.Background()
	c := NewLoanCache(nil, time.Minute)

	_, found, err := c.Get(ctx, "L1")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Set(ctx, &domain.Loan{ID: "L1"}))
	assert.NoError(t, c.Invalidate(ctx, "L1"))
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)

	first := NewLock(rdb, "ledger:sweep", time.Minute)
	second := NewLock(rdb, "ledger:sweep", time.Minute)

	release, ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("ledger:sweep"))

	release2, ok, err := second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestLock_ReleaseKeepsForeignHolder(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	lock := NewLock(rdb, "ledger:sweep", time.Minute)

	release, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another replica took over
	require.NoError(t, mr.Set("ledger:sweep", "someone-else"))
	release()

	got, err := mr.Get("ledger:sweep")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLock_RenewsLeaseWhileHeld(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	ttl := 300 * time.Millisecond
	lock := NewLock(rdb, "ledger:sweep", ttl)

	release, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// simulate the lease running down during a long sweep
	mr.SetTTL("ledger:sweep", time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("ledger:sweep") == ttl
	}, 2*time.Second, 10*time.Millisecond)

	release()
	assert.False(t, mr.Exists("ledger:sweep"))

	// releasing twice is harmless
	release()
}

func TestLock_StopsRenewingForeignHolder(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	ttl := 300 * time.Millisecond
	lock := NewLock(rdb, "ledger:sweep", ttl)

	release, ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	require.NoError(t, mr.Set("ledger:sweep", "someone-else"))
	mr.SetTTL("ledger:sweep", time.Hour)

	time.Sleep(ttl)
	assert.Equal(t, time.Hour, mr.TTL("ledger:sweep"))
}

func TestLock_NilClient(t *testing.T) {
	release, ok, err := NewLock(nil, "k", time.Second).Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
