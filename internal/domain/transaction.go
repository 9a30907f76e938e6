package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeLoanCreated   = "loan_created"
	TransactionTypeBorrowerAdded = "borrower_added"
	TransactionTypePayment       = "payment"
	TransactionTypeStatusChange  = "status_change"
)

// TransactionLogEntry is an immutable audit record written alongside every
// mutation of a loan. BorrowerID is empty for loan-wide entries.
type TransactionLogEntry struct {
	ID          string          `json:"id" db:"id"`
	LoanID      string          `json:"loan_id" db:"loan_id"`
	Type        string          `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	BorrowerID  string          `json:"borrower_id,omitempty" db:"borrower_id"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
