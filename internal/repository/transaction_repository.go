package repository

import (
	"context"

	"github.com/segyhp/loan-ledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

type transactionLogRepository struct {
	db sqlx.ExtContext
}

func NewTransactionLogRepository(db sqlx.ExtContext) TransactionLogRepository {
	return &transactionLogRepository{db: db}
}

func (r *transactionLogRepository) Append(ctx context.Context, entry *domain.TransactionLogEntry) error {
	query := `
		INSERT INTO loan_transactions (id, loan_id, type, amount, borrower_id, timestamp, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.LoanID,
		entry.Type,
		entry.Amount,
		entry.BorrowerID,
		entry.Timestamp,
		entry.Description,
		entry.CreatedAt,
	)

	return translate(err)
}

func (r *transactionLogRepository) ListByLoan(ctx context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error) {
	query := `
		SELECT id, loan_id, type, amount, borrower_id, timestamp, description, created_at
		FROM loan_transactions
		WHERE loan_id = $1 AND ($2::text = '' OR borrower_id = $2)
		ORDER BY timestamp, created_at, id
	`

	entries := []*domain.TransactionLogEntry{}
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, loanID, borrowerID); err != nil {
		return nil, translate(err)
	}

	return entries, nil
}
