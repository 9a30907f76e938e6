package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an append-only record of one payment event
type Payment struct {
	ID          string          `json:"id" db:"id"`
	LoanID      string          `json:"loan_id" db:"loan_id"`
	BorrowerID  string          `json:"borrower_id" db:"borrower_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Interest    decimal.Decimal `json:"interest" db:"interest"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaymentDate time.Time       `json:"payment_date" db:"payment_date"`
	Note        string          `json:"note" db:"note"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type MakePaymentRequest struct {
	BorrowerID  string          `json:"borrower_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"decimal_gt=0,decimal_scale=2"`
	PaymentDate time.Time       `json:"payment_date"`
	Note        string          `json:"note" validate:"max=500"`
}

type MakePaymentResponse struct {
	Payment *Payment `json:"payment"`
	Loan    *Loan    `json:"loan"`
}
