// Package mocks holds testify mocks of the repository and service boundaries.
package mocks

import (
	"context"
	"time"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, loanID string) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan).Clone(), args.Error(1)
}

func (m *MockLoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) ListByLender(ctx context.Context, lenderID string) ([]*domain.Loan, error) {
	args := m.Called(ctx, lenderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]*domain.Loan, error) {
	args := m.Called(ctx, borrowerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListPastDue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) ListByBorrower(ctx context.Context, loanID, borrowerID string) ([]*domain.Payment, error) {
	args := m.Called(ctx, loanID, borrowerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Payment), args.Error(1)
}

type MockTransactionLogRepository struct {
	mock.Mock
}

func (m *MockTransactionLogRepository) Append(ctx context.Context, entry *domain.TransactionLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockTransactionLogRepository) ListByLoan(ctx context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error) {
	args := m.Called(ctx, loanID, borrowerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransactionLogEntry), args.Error(1)
}

// MockRepos bundles one mock per repository
type MockRepos struct {
	Loans        *MockLoanRepository
	Payments     *MockPaymentRepository
	Transactions *MockTransactionLogRepository
}

func NewMockRepos() *MockRepos {
	return &MockRepos{
		Loans:        &MockLoanRepository{},
		Payments:     &MockPaymentRepository{},
		Transactions: &MockTransactionLogRepository{},
	}
}

func (m *MockRepos) Repos() repository.Repos {
	return repository.Repos{Loans: m.Loans, Payments: m.Payments, Transactions: m.Transactions}
}

// PassThroughUnitOfWork hands the mocked repositories to fn and returns its
// error, or CommitErr when fn succeeded. Commits counts successful calls.
type PassThroughUnitOfWork struct {
	Repos     *MockRepos
	CommitErr error
	Commits   int
}

func (u *PassThroughUnitOfWork) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	if err := fn(u.Repos.Repos()); err != nil {
		return err
	}
	if u.CommitErr != nil {
		return u.CommitErr
	}
	u.Commits++
	return nil
}

var _ repository.UnitOfWork = (*PassThroughUnitOfWork)(nil)
