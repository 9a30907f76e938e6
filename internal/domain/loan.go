package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segyhp/loan-ledger/pkg/utils"

	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive  = "active"
	LoanStatusPaid    = "paid"
	LoanStatusOverdue = "overdue"
)

// IsValidStatus reports whether s is one of the loan/borrower statuses
func IsValidStatus(s string) bool {
	switch s {
	case LoanStatusActive, LoanStatusPaid, LoanStatusOverdue:
		return true
	}
	return false
}

// BorrowerRecord is the per-borrower sub-record embedded in a Loan
type BorrowerRecord struct {
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     string          `json:"status"`
	JoinedAt   time.Time       `json:"joined_at"`
}

// Remaining is the principal this borrower still owes
func (b *BorrowerRecord) Remaining() decimal.Decimal {
	return b.Amount.Sub(b.PaidAmount)
}

// Borrowers maps borrower ID to its record. It is stored as a single JSON
// column so the whole aggregate is written in one row.
type Borrowers map[string]*BorrowerRecord

// Value encodes as a string; lib/pq would send []byte as bytea.
func (b Borrowers) Value() (driver.Value, error) {
	if b == nil {
		return "{}", nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (b *Borrowers) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*b = Borrowers{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("borrowers: unsupported scan type %T", src)
	}

	out := Borrowers{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("borrowers: %w", err)
	}
	*b = out
	return nil
}

// Loan is the aggregate root; the loan row together with its borrowers is
// the unit of transactional isolation.
type Loan struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description" db:"description"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	InterestRate    decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	DueDate         *time.Time      `json:"due_date,omitempty" db:"due_date"`
	Status          string          `json:"status" db:"status"`
	LenderID        string          `json:"lender_id" db:"lender_id"`
	Borrowers       Borrowers       `json:"borrowers" db:"borrowers"`
	Version         int64           `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy, borrowers included.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	out := *l
	if l.DueDate != nil {
		due := *l.DueDate
		out.DueDate = &due
	}
	out.Borrowers = make(Borrowers, len(l.Borrowers))
	for id, rec := range l.Borrowers {
		r := *rec
		out.Borrowers[id] = &r
	}
	return &out
}

// HasBorrower reports whether borrowerID participates in the loan
func (l *Loan) HasBorrower(borrowerID string) bool {
	_, ok := l.Borrowers[borrowerID]
	return ok
}

// PaidPrincipal sums the principal paid by all borrowers
func (l *Loan) PaidPrincipal() decimal.Decimal {
	paid := decimal.Zero
	for _, rec := range l.Borrowers {
		paid = paid.Add(rec.PaidAmount)
	}
	return paid
}

// IsOverdueAt reports whether the loan is unpaid and past its due date at now
func (l *Loan) IsOverdueAt(now time.Time) bool {
	return l.Status != LoanStatusPaid && utils.IsPastDue(l.DueDate, now)
}

// CheckInvariants verifies the balance invariants of the aggregate
func (l *Loan) CheckInvariants() error {
	if !l.RemainingAmount.Equal(l.TotalAmount.Sub(l.PaidPrincipal())) {
		return fmt.Errorf("loan %s: remaining %s != total %s - paid %s",
			l.ID, l.RemainingAmount, l.TotalAmount, l.PaidPrincipal())
	}
	if l.RemainingAmount.IsNegative() {
		return fmt.Errorf("loan %s: negative remaining amount %s", l.ID, l.RemainingAmount)
	}
	for id, rec := range l.Borrowers {
		if rec.PaidAmount.IsNegative() || rec.PaidAmount.GreaterThan(rec.Amount) {
			return fmt.Errorf("loan %s: borrower %s paid %s outside [0, %s]", l.ID, id, rec.PaidAmount, rec.Amount)
		}
	}
	if (l.Status == LoanStatusPaid) != l.RemainingAmount.IsZero() && len(l.Borrowers) > 0 {
		return fmt.Errorf("loan %s: status %s with remaining %s", l.ID, l.Status, l.RemainingAmount)
	}
	return nil
}

// DTOs for requests and responses

type BorrowerShare struct {
	BorrowerID string          `json:"borrower_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"decimal_gt=0,decimal_scale=2"`
}

type CreateLoanRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	Borrowers    []BorrowerShare `json:"borrowers" validate:"required,min=1,unique=BorrowerID,dive"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"decimal_gte=0,decimal_scale=4"`
	StartDate    time.Time       `json:"start_date"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	LenderID     string          `json:"lender_id" validate:"required"`
}

type AddBorrowerRequest struct {
	BorrowerID string          `json:"borrower_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"decimal_gt=0,decimal_scale=2"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paid overdue"`
}

type SweepResult struct {
	Checked int `json:"checked"`
	Flagged int `json:"flagged"`
	Failed  int `json:"failed"`
}
