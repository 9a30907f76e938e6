package repository

import (
	"context"
	"errors"
	"time"

	"github.com/segyhp/loan-ledger/internal/domain"
)

var (
	// ErrNotFound is returned when a loan does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a loan was changed by another
	// writer between read and update. Callers retry with a fresh read.
	ErrVersionConflict = errors.New("loan version conflict")
)

// LoanRepository defines the interface for loan aggregate operations
type LoanRepository interface {
	// Create inserts a new loan with its borrowers
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its ID
	GetByID(ctx context.Context, loanID string) (*domain.Loan, error)

	// Update writes the whole aggregate if its stored version still equals
	// loan.Version, and bumps loan.Version on success
	Update(ctx context.Context, loan *domain.Loan) error

	// ListByLender retrieves loans originated by lenderID
	ListByLender(ctx context.Context, lenderID string) ([]*domain.Loan, error)

	// ListByBorrower retrieves loans in which borrowerID participates
	ListByBorrower(ctx context.Context, borrowerID string) ([]*domain.Loan, error)

	// ListByStatus retrieves loans in the given status
	ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error)

	// ListPastDue retrieves active loans whose due date is before now
	ListPastDue(ctx context.Context, now time.Time) ([]*domain.Loan, error)
}

// PaymentRepository defines the interface for payment records (append-only)
type PaymentRepository interface {
	// Create creates a new payment record
	Create(ctx context.Context, payment *domain.Payment) error

	// ListByBorrower retrieves payments of one borrower on one loan
	ListByBorrower(ctx context.Context, loanID, borrowerID string) ([]*domain.Payment, error)
}

// TransactionLogRepository defines the interface for the audit trail (append-only)
type TransactionLogRepository interface {
	// Append writes a new log entry
	Append(ctx context.Context, entry *domain.TransactionLogEntry) error

	// ListByLoan retrieves a loan's history, optionally narrowed to one borrower
	ListByLoan(ctx context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error)
}

// Repos groups the repositories bound to the same connection or transaction
type Repos struct {
	Loans        LoanRepository
	Payments     PaymentRepository
	Transactions TransactionLogRepository
}

// UnitOfWork runs fn atomically: every write made through the Repos passed
// to fn is committed together, or none is.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}
