package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLUnitOfWork runs units of work in database transactions
type SQLUnitOfWork struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

func NewUnitOfWork(db *sqlx.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// NewRepos binds all repositories to db outside of any transaction
func NewRepos(db sqlx.ExtContext) Repos {
	return Repos{
		Loans:        NewLoanRepository(db),
		Payments:     NewPaymentRepository(db),
		Transactions: NewTransactionLogRepository(db),
	}
}

func (u *SQLUnitOfWork) WithinTx(ctx context.Context, fn func(r Repos) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, u.opts)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(NewRepos(tx)); err != nil {
		return err
	}

	// a cancelled caller must never observe a commit
	if err = ctx.Err(); err != nil {
		return err
	}

	return translate(tx.Commit())
}

var _ UnitOfWork = (*SQLUnitOfWork)(nil)
