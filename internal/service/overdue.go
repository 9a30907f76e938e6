package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"

	"github.com/panjf2000/ants/v2"
)

// Locker guards a sweep so only one scheduler replica runs it at a time
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// OverdueSweeper flips active loans past their due date to overdue
type OverdueSweeper struct {
	ledger  *LedgerService
	lock    Locker
	workers int
	log     *slog.Logger
}

func NewOverdueSweeper(ledger *LedgerService, lock Locker, workers int) *OverdueSweeper {
	if workers <= 0 {
		workers = 1
	}
	return &OverdueSweeper{
		ledger:  ledger,
		lock:    lock,
		workers: workers,
		log:     ledger.log.With("component", "overdue_sweeper"),
	}
}

// CheckAndUpdateOverdueStatus marks the loan overdue when it is unpaid and
// past its due date. It reports whether the status changed. Balances and
// borrower records are never touched.
func (o *OverdueSweeper) CheckAndUpdateOverdueStatus(ctx context.Context, loanID string) (*domain.Loan, bool, error) {
	if loanID == "" {
		return nil, false, customError.WrapInvalidInput("loan_id is required", nil)
	}

	s := o.ledger
	flagged := false
	result, err := s.runInLoanTx(ctx, loanID, func(r repository.Repos) (*change, error) {
		flagged = false
		loan, err := s.loadLoan(ctx, r, loanID)
		if err != nil {
			return nil, err
		}

		if loan.Status == domain.LoanStatusOverdue || !loan.IsOverdueAt(s.clock.Now()) {
			return &change{loan: loan}, nil
		}

		flagged = true
		return s.applyStatus(ctx, r, loan, domain.LoanStatusOverdue)
	})
	if err != nil {
		return nil, false, err
	}

	if flagged {
		o.log.InfoContext(ctx, "loan marked overdue", "loan_id", loanID, "due_date", result.loan.DueDate)
	}
	return result.loan, flagged, nil
}

// Sweep checks every active loan whose due date has passed on a bounded
// worker pool. It returns an empty result when another replica holds the lock.
func (o *OverdueSweeper) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	result := &domain.SweepResult{}

	if o.lock != nil {
		release, ok, err := o.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			o.log.InfoContext(ctx, "sweep skipped, lock held elsewhere")
			return result, nil
		}
		defer release()
	}

	loans, err := o.ledger.repos.Loans.ListPastDue(ctx, o.ledger.clock.Now())
	if err != nil {
		return nil, o.ledger.classify(err)
	}
	if len(loans) == 0 {
		return result, nil
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("create sweep pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(flagged bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Checked++
		switch {
		case err != nil:
			result.Failed++
		case flagged:
			result.Flagged++
		}
	}

	for _, loan := range loans {
		if ctx.Err() != nil {
			break
		}

		loanID := loan.ID
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			_, flagged, err := o.CheckAndUpdateOverdueStatus(ctx, loanID)
			if err != nil {
				o.log.WarnContext(ctx, "overdue check failed", "loan_id", loanID, "error", err)
			}
			record(flagged, err)
		})
		if submitErr != nil {
			wg.Done()
			record(false, submitErr)
		}
	}
	wg.Wait()

	o.log.InfoContext(ctx, "overdue sweep finished",
		"checked", result.Checked, "flagged", result.Flagged, "failed", result.Failed)
	return result, ctx.Err()
}
