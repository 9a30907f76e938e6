package repository

import (
	"context"

	"github.com/segyhp/loan-ledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

type paymentRepository struct {
	db sqlx.ExtContext
}

func NewPaymentRepository(db sqlx.ExtContext) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, loan_id, borrower_id, amount, interest, total_amount, payment_date, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.LoanID,
		payment.BorrowerID,
		payment.Amount,
		payment.Interest,
		payment.TotalAmount,
		payment.PaymentDate,
		payment.Note,
		payment.CreatedAt,
	)

	return translate(err)
}

func (r *paymentRepository) ListByBorrower(ctx context.Context, loanID, borrowerID string) ([]*domain.Payment, error) {
	query := `
		SELECT id, loan_id, borrower_id, amount, interest, total_amount, payment_date, note, created_at
		FROM payments
		WHERE loan_id = $1 AND borrower_id = $2
		ORDER BY payment_date, created_at, id
	`

	payments := []*domain.Payment{}
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, loanID, borrowerID); err != nil {
		return nil, translate(err)
	}

	return payments, nil
}
