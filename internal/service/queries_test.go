package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-ledger/internal/cache"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository/memory"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

func TestGetLoansForBorrowerAndLender(t *testing.T) {
	clock := newFixedClock(day0)
	svc, _ := newTestLedger(t, clock)

	first := createLoan(t, svc, "0", map[string]string{"bob": "100", "carol": "50"})
	clock.Set(day0.Add(time.Hour))
	second := createLoan(t, svc, "0", map[string]string{"bob": "70"})

	loans, err := svc.GetLoansForBorrower(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, second.ID, loans[0].ID)
	assert.Equal(t, first.ID, loans[1].ID)

	again, err := svc.GetLoansForBorrower(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, loans, again)

	carol, err := svc.GetLoansForBorrower(context.Background(), "carol")
	require.NoError(t, err)
	assert.Len(t, carol, 1)

	byLender, err := svc.GetLoansForLender(context.Background(), "lender-1")
	require.NoError(t, err)
	assert.Len(t, byLender, 2)

	none, err := svc.GetLoansForLender(context.Background(), "someone")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.GetLoansForBorrower(context.Background(), "")
	assert.ErrorIs(t, err, customError.ErrInvalidInput)
}

func TestGetLoansByStatus(t *testing.T) {
	svc, _ := newTestLedger(t, newFixedClock(day0))
	loan := createLoan(t, svc, "0", map[string]string{"B": "10"})
	createLoan(t, svc, "0", map[string]string{"B": "20"})
	_, err := pay(svc, loan.ID, "B", "10")
	require.NoError(t, err)

	paid, err := svc.GetLoansByStatus(context.Background(), domain.LoanStatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, loan.ID, paid[0].ID)

	active, err := svc.GetLoansByStatus(context.Background(), domain.LoanStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = svc.GetLoansByStatus(context.Background(), "closed")
	assert.ErrorIs(t, err, customError.ErrInvalidInput)
}

func TestGetPaymentsForBorrower(t *testing.T) {
	clock := newFixedClock(day0)
	svc, _ := newTestLedger(t, clock)
	loan := createLoan(t, svc, "0", map[string]string{"B": "100", "C": "100"})

	_, err := pay(svc, loan.ID, "B", "10")
	require.NoError(t, err)
	clock.Set(day0.AddDate(0, 0, 1))
	_, err = pay(svc, loan.ID, "B", "20")
	require.NoError(t, err)
	_, err = pay(svc, loan.ID, "C", "5")
	require.NoError(t, err)

	payments, err := svc.GetPaymentsForBorrower(context.Background(), loan.ID, "B")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].Amount.Equal(dec("10")))
	assert.True(t, payments[1].Amount.Equal(dec("20")))

	_, err = svc.GetPaymentsForBorrower(context.Background(), loan.ID, "Z")
	assert.ErrorIs(t, err, customError.ErrBorrowerNotFound)

	_, err = svc.GetPaymentsForBorrower(context.Background(), "nope", "B")
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

func TestGetTransactionHistory_ByBorrower(t *testing.T) {
	svc, _ := newTestLedger(t, newFixedClock(day0))
	loan := createLoan(t, svc, "0", map[string]string{"B": "100"})
	_, err := svc.AddBorrowerToLoan(context.Background(), loan.ID, &domain.AddBorrowerRequest{BorrowerID: "C", Amount: dec("40")})
	require.NoError(t, err)
	_, err = pay(svc, loan.ID, "B", "10")
	require.NoError(t, err)

	all, err := svc.GetTransactionHistory(context.Background(), loan.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forB, err := svc.GetTransactionHistory(context.Background(), loan.ID, "B")
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, domain.TransactionTypePayment, forB[0].Type)

	_, err = svc.GetTransactionHistory(context.Background(), "nope", "")
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

func TestGetLoan_ReadThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.NewStore()
	svc := NewLedgerService(store, store.Repos(), cache.NewLoanCache(rdb, time.Minute), nil,
		newFixedClock(day0), discardLogger(), Options{MaxRetries: 3})

	loan := createLoan(t, svc, "0", map[string]string{"B": "100"})
	key := "ledger:loan:{" + loan.ID + "}"

	// commits write the new aggregate through
	assert.True(t, mr.Exists(key))
	mr.Del(key)

	got, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, mr.Exists(key))

	_, err = pay(svc, loan.ID, "B", "40")
	require.NoError(t, err)

	got, err = svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.RemainingAmount.Equal(dec("60")))

	// cache outage falls back to the store
	mr.Close()
	got, err = svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	_, err = svc.GetLoan(context.Background(), "nope")
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

// interleavingCache runs beforeSet once, right before the first cache write
// that comes from a read
type interleavingCache struct {
	*cache.LoanCache
	beforeSet func()
}

func (c *interleavingCache) Set(ctx context.Context, loan *domain.Loan) error {
	if fn := c.beforeSet; fn != nil {
		c.beforeSet = nil
		fn()
	}
	return c.LoanCache.Set(ctx, loan)
}

func TestGetLoan_StaleReadDoesNotOverwriteNewerCommit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.NewStore()
	loanCache := &interleavingCache{LoanCache: cache.NewLoanCache(rdb, time.Minute)}
	svc := NewLedgerService(store, store.Repos(), loanCache, nil,
		newFixedClock(day0), discardLogger(), Options{MaxRetries: 3})

	loan := createLoan(t, svc, "0", map[string]string{"B": "1000"})
	require.NoError(t, loanCache.Invalidate(context.Background(), loan.ID))

	// a payment commits after GetLoan read version 1 but before it caches it
	loanCache.beforeSet = func() {
		_, err := pay(svc, loan.ID, "B", "400")
		require.NoError(t, err)
	}
	stale, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Version)

	got, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.RemainingAmount.Equal(dec("600")), got.RemainingAmount.String())
}
