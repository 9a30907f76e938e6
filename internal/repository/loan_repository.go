package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/segyhp/loan-ledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

const loanColumns = `id, name, description, total_amount, remaining_amount, interest_rate,
		start_date, due_date, status, lender_id, borrowers, version, created_at, updated_at`

type loanRepository struct {
	db sqlx.ExtContext
}

func NewLoanRepository(db sqlx.ExtContext) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.Name,
		loan.Description,
		loan.TotalAmount,
		loan.RemainingAmount,
		loan.InterestRate,
		loan.StartDate,
		loan.DueDate,
		loan.Status,
		loan.LenderID,
		loan.Borrowers,
		loan.Version,
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return translate(err)
}

func (r *loanRepository) GetByID(ctx context.Context, loanID string) (*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1
	`

	var loan domain.Loan
	err := sqlx.GetContext(ctx, r.db, &loan, query, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, translate(err)
	}

	return &loan, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET name = $3, description = $4, total_amount = $5, remaining_amount = $6, interest_rate = $7,
			due_date = $8, status = $9, borrowers = $10, updated_at = $11, version = version + 1
		WHERE id = $1 AND version = $2
	`

	res, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.Version,
		loan.Name,
		loan.Description,
		loan.TotalAmount,
		loan.RemainingAmount,
		loan.InterestRate,
		loan.DueDate,
		loan.Status,
		loan.Borrowers,
		loan.UpdatedAt,
	)
	if err != nil {
		return translate(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}

	loan.Version++
	return nil
}

func (r *loanRepository) ListByLender(ctx context.Context, lenderID string) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE lender_id = $1
		ORDER BY created_at DESC, id
	`

	return r.list(ctx, query, lenderID)
}

func (r *loanRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]*domain.Loan, error) {
	// served by the GIN index on borrowers
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE borrowers ? $1
		ORDER BY created_at DESC, id
	`

	return r.list(ctx, query, borrowerID)
}

func (r *loanRepository) ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = $1
		ORDER BY created_at DESC, id
	`

	return r.list(ctx, query, status)
}

func (r *loanRepository) ListPastDue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = 'active' AND due_date IS NOT NULL AND due_date < $1
		ORDER BY due_date, id
	`

	return r.list(ctx, query, now)
}

func (r *loanRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Loan, error) {
	loans := []*domain.Loan{}
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, args...); err != nil {
		return nil, translate(err)
	}
	return loans, nil
}
