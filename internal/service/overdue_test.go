package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/mocks"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

type stubLocker struct {
	granted  bool
	err      error
	released atomic.Int32
}

func (l *stubLocker) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.granted {
		return nil, false, l.err
	}
	return func() { l.released.Add(1) }, true, nil
}

func createLoanDue(t *testing.T, svc *LedgerService, amount string, due time.Time) *domain.Loan {
	t.Helper()
	loan, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		Name:      "due loan",
		Borrowers: []domain.BorrowerShare{{BorrowerID: "B", Amount: dec(amount)}},
		LenderID:  "lender-1",
		DueDate:   &due,
	})
	require.NoError(t, err)
	return loan
}

func TestCheckAndUpdateOverdueStatus_ThenFullPayment(t *testing.T) {
	clock := newFixedClock(day0)
	svc, _ := newTestLedger(t, clock)
	sweeper := NewOverdueSweeper(svc, nil, 2)
	loan := createLoanDue(t, svc, "300", day0.AddDate(0, 0, 30))

	_, err := pay(svc, loan.ID, "B", "100")
	require.NoError(t, err)

	clock.Set(day0.AddDate(0, 0, 31))
	updated, flagged, err := sweeper.CheckAndUpdateOverdueStatus(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.True(t, flagged)
	assert.Equal(t, domain.LoanStatusOverdue, updated.Status)
	assert.True(t, updated.RemainingAmount.Equal(dec("200")))
	assert.Equal(t, domain.LoanStatusActive, updated.Borrowers["B"].Status)

	entries := history(t, svc, loan.ID)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.TransactionTypeStatusChange, last.Type)
	assert.Equal(t, "Status changed active -> overdue", last.Description)

	resp, err := pay(svc, loan.ID, "B", "200")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusPaid, resp.Loan.Status)
	assert.NoError(t, resp.Loan.CheckInvariants())
}

func TestCheckAndUpdateOverdueStatus_NoOps(t *testing.T) {
	clock := newFixedClock(day0)
	svc, _ := newTestLedger(t, clock)
	sweeper := NewOverdueSweeper(svc, nil, 2)
	due := day0.AddDate(0, 0, 10)

	notDue := createLoanDue(t, svc, "100", day0.AddDate(0, 0, 60))
	noDueDate := createLoan(t, svc, "0", map[string]string{"B": "100"})
	paid := createLoanDue(t, svc, "100", due)
	_, err := pay(svc, paid.ID, "B", "100")
	require.NoError(t, err)
	alreadyOverdue := createLoanDue(t, svc, "100", due)
	_, err = svc.UpdateLoanStatus(context.Background(), alreadyOverdue.ID, &domain.UpdateStatusRequest{Status: domain.LoanStatusOverdue})
	require.NoError(t, err)
	exactlyDue := createLoanDue(t, svc, "100", day0.AddDate(0, 0, 20))

	clock.Set(day0.AddDate(0, 0, 20))

	tests := []struct {
		name       string
		loanID     string
		wantStatus string
	}{
		{"not yet due", notDue.ID, domain.LoanStatusActive},
		{"no due date", noDueDate.ID, domain.LoanStatusActive},
		{"paid", paid.ID, domain.LoanStatusPaid},
		{"already overdue", alreadyOverdue.ID, domain.LoanStatusOverdue},
		{"now equals due date", exactlyDue.ID, domain.LoanStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := history(t, svc, tt.loanID)

			loan, flagged, err := sweeper.CheckAndUpdateOverdueStatus(context.Background(), tt.loanID)
			require.NoError(t, err)
			assert.False(t, flagged)
			assert.Equal(t, tt.wantStatus, loan.Status)
			assert.Len(t, history(t, svc, tt.loanID), len(before))
		})
	}

	_, _, err = sweeper.CheckAndUpdateOverdueStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, customError.ErrLoanNotFound)
}

func TestSweep(t *testing.T) {
	clock := newFixedClock(day0)
	svc, _ := newTestLedger(t, clock)
	lock := &stubLocker{granted: true}
	sweeper := NewOverdueSweeper(svc, lock, 3)

	var pastDue []string
	for i := 0; i < 5; i++ {
		pastDue = append(pastDue, createLoanDue(t, svc, "100", day0.AddDate(0, 0, i+1)).ID)
	}
	createLoanDue(t, svc, "100", day0.AddDate(0, 1, 0))
	paid := createLoanDue(t, svc, "100", day0.AddDate(0, 0, 1))
	_, err := pay(svc, paid.ID, "B", "100")
	require.NoError(t, err)

	clock.Set(day0.AddDate(0, 0, 7))
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.SweepResult{Checked: 5, Flagged: 5}, result)
	assert.Equal(t, int32(1), lock.released.Load())

	overdue, err := svc.GetLoansByStatus(context.Background(), domain.LoanStatusOverdue)
	require.NoError(t, err)
	assert.Len(t, overdue, len(pastDue))

	// a second pass finds nothing left to flag
	result, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.SweepResult{}, result)
}

func TestSweep_LockHeldElsewhere(t *testing.T) {
	repos := mocks.NewMockRepos()
	uow := &mocks.PassThroughUnitOfWork{Repos: repos}
	svc := NewLedgerService(uow, repos.Repos(), nil, nil, newFixedClock(day0), discardLogger(), Options{})
	sweeper := NewOverdueSweeper(svc, &stubLocker{granted: false}, 2)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &domain.SweepResult{}, result)
	repos.Loans.AssertNotCalled(t, "ListPastDue", mock.Anything, mock.Anything)
}

func TestSweep_Failures(t *testing.T) {
	repos := mocks.NewMockRepos()
	uow := &mocks.PassThroughUnitOfWork{Repos: repos}
	svc := NewLedgerService(uow, repos.Repos(), nil, nil, newFixedClock(day0), discardLogger(), Options{})

	t.Run("lock error", func(t *testing.T) {
		sweeper := NewOverdueSweeper(svc, &stubLocker{err: errors.New("redis down")}, 2)
		_, err := sweeper.Sweep(context.Background())
		assert.EqualError(t, err, "redis down")
	})

	t.Run("listing fails", func(t *testing.T) {
		repos.Loans.On("ListPastDue", mock.Anything, day0).Return(nil, errors.New("timeout")).Once()
		sweeper := NewOverdueSweeper(svc, nil, 2)

		_, err := sweeper.Sweep(context.Background())
		assert.ErrorIs(t, err, customError.ErrStorage)
	})

	t.Run("one loan fails", func(t *testing.T) {
		due := day0.Add(-time.Hour)
		ok := &domain.Loan{ID: "ok", Status: domain.LoanStatusActive, DueDate: &due, Borrowers: domain.Borrowers{}, Version: 1}
		broken := &domain.Loan{ID: "broken", Status: domain.LoanStatusActive, DueDate: &due, Borrowers: domain.Borrowers{}, Version: 1}

		repos.Loans.On("ListPastDue", mock.Anything, day0).Return([]*domain.Loan{ok, broken}, nil).Once()
		repos.Loans.On("GetByID", mock.Anything, "ok").Return(ok, nil)
		repos.Loans.On("GetByID", mock.Anything, "broken").Return(nil, errors.New("row lock timeout"))
		repos.Loans.On("Update", mock.Anything, mock.Anything).Return(nil)
		repos.Transactions.On("Append", mock.Anything, mock.Anything).Return(nil)

		sweeper := NewOverdueSweeper(svc, nil, 2)
		result, err := sweeper.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, &domain.SweepResult{Checked: 2, Flagged: 1, Failed: 1}, result)
	})
}
