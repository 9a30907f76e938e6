package service

import (
	"context"

	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

// GetLoan returns a loan, served from the cache when possible
func (s *LedgerService) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	if loanID == "" {
		return nil, customError.WrapInvalidInput("loan_id is required", nil)
	}

	cached, found, err := s.cache.Get(ctx, loanID)
	if err != nil {
		s.log.WarnContext(ctx, "cache read failed", "loan_id", loanID, "error", err)
	}
	if found {
		return cached, nil
	}

	loan, err := s.loadLoan(ctx, s.repos, loanID)
	if err != nil {
		return nil, s.classify(err)
	}

	if err := s.cache.Set(ctx, loan); err != nil {
		s.log.WarnContext(ctx, "cache write failed", "loan_id", loanID, "error", err)
	}
	return loan, nil
}

func (s *LedgerService) GetLoansForBorrower(ctx context.Context, userID string) ([]*domain.Loan, error) {
	if userID == "" {
		return nil, customError.WrapInvalidInput("user_id is required", nil)
	}

	loans, err := s.repos.Loans.ListByBorrower(ctx, userID)
	if err != nil {
		return nil, s.classify(err)
	}
	return loans, nil
}

func (s *LedgerService) GetLoansForLender(ctx context.Context, userID string) ([]*domain.Loan, error) {
	if userID == "" {
		return nil, customError.WrapInvalidInput("user_id is required", nil)
	}

	loans, err := s.repos.Loans.ListByLender(ctx, userID)
	if err != nil {
		return nil, s.classify(err)
	}
	return loans, nil
}

func (s *LedgerService) GetLoansByStatus(ctx context.Context, status string) ([]*domain.Loan, error) {
	if !domain.IsValidStatus(status) {
		return nil, customError.WrapInvalidInput("status must be one of: active paid overdue", nil)
	}

	loans, err := s.repos.Loans.ListByStatus(ctx, status)
	if err != nil {
		return nil, s.classify(err)
	}
	return loans, nil
}

// GetPaymentsForBorrower lists one borrower's payments on a loan, oldest first
func (s *LedgerService) GetPaymentsForBorrower(ctx context.Context, loanID, borrowerID string) ([]*domain.Payment, error) {
	if loanID == "" || borrowerID == "" {
		return nil, customError.WrapInvalidInput("loan_id and borrower_id are required", nil)
	}

	loan, err := s.loadLoan(ctx, s.repos, loanID)
	if err != nil {
		return nil, s.classify(err)
	}
	if !loan.HasBorrower(borrowerID) {
		return nil, customError.WrapBorrowerNotFound(loanID, borrowerID)
	}

	payments, err := s.repos.Payments.ListByBorrower(ctx, loanID, borrowerID)
	if err != nil {
		return nil, s.classify(err)
	}
	return payments, nil
}

// GetTransactionHistory lists a loan's log entries in time order. A non-empty
// borrowerID narrows it to entries about that borrower.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error) {
	if loanID == "" {
		return nil, customError.WrapInvalidInput("loan_id is required", nil)
	}

	if _, err := s.loadLoan(ctx, s.repos, loanID); err != nil {
		return nil, s.classify(err)
	}

	entries, err := s.repos.Transactions.ListByLoan(ctx, loanID, borrowerID)
	if err != nil {
		return nil, s.classify(err)
	}
	return entries, nil
}
