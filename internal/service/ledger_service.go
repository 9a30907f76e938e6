package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/events"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const publishTimeout = 5 * time.Second

// LoanCache caches committed loans for GetLoan
type LoanCache interface {
	Get(ctx context.Context, loanID string) (*domain.Loan, bool, error)
	Set(ctx context.Context, loan *domain.Loan) error
	Invalidate(ctx context.Context, loanIDs ...string) error
}

type Options struct {
	// MaxRetries is how many times a unit of work is re-run after a version conflict
	MaxRetries   int
	RetryBackoff time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRetries:   cfg.Ledger.MaxRetries,
		RetryBackoff: cfg.Ledger.RetryBackoff,
	}
}

type LedgerService struct {
	uow       repository.UnitOfWork
	repos     repository.Repos
	cache     LoanCache
	publisher events.Publisher
	clock     Clock
	log       *slog.Logger
	opts      Options
}

func NewLedgerService(
	uow repository.UnitOfWork,
	repos repository.Repos,
	cache LoanCache,
	publisher events.Publisher,
	clock Clock,
	log *slog.Logger,
	opts Options,
) *LedgerService {
	if cache == nil {
		cache = noCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &LedgerService{
		uow:       uow,
		repos:     repos,
		cache:     cache,
		publisher: publisher,
		clock:     clock,
		log:       log,
		opts:      opts,
	}
}

// change is what one committed unit of work produced
type change struct {
	loan    *domain.Loan
	payment *domain.Payment
	entries []*domain.TransactionLogEntry
}

// CreateLoan creates a loan with its initial borrowers and a loan_created entry
func (s *LedgerService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error) {
	if err := validation.Struct(request); err != nil {
		return nil, customError.WrapInvalidInput(err.Error(), err)
	}

	now := s.clock.Now()
	startDate := request.StartDate
	if startDate.IsZero() {
		startDate = now
	}
	if request.DueDate != nil && request.DueDate.Before(startDate) {
		return nil, customError.WrapInvalidInput("due_date must not precede start_date", nil)
	}

	borrowers := make(domain.Borrowers, len(request.Borrowers))
	total := decimal.Zero
	for _, share := range request.Borrowers {
		borrowers[share.BorrowerID] = &domain.BorrowerRecord{
			Amount:     share.Amount,
			PaidAmount: decimal.Zero,
			Status:     domain.LoanStatusActive,
			JoinedAt:   now,
		}
		total = total.Add(share.Amount)
	}

	loan := &domain.Loan{
		ID:              uuid.NewString(),
		Name:            request.Name,
		Description:     request.Description,
		TotalAmount:     total,
		RemainingAmount: total,
		InterestRate:    request.InterestRate,
		StartDate:       startDate,
		DueDate:         request.DueDate,
		Status:          domain.LoanStatusActive,
		LenderID:        request.LenderID,
		Borrowers:       borrowers,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result, err := s.runInLoanTx(ctx, loan.ID, func(r repository.Repos) (*change, error) {
		created := loan.Clone()
		if err := r.Loans.Create(ctx, created); err != nil {
			return nil, err
		}

		entry := s.newEntry(created.ID, domain.TransactionTypeLoanCreated, "", total,
			fmt.Sprintf("Loan %q created with %d borrower(s), total %s", created.Name, len(created.Borrowers), total.StringFixed(2)))
		if err := r.Transactions.Append(ctx, entry); err != nil {
			return nil, err
		}

		return &change{loan: created, entries: []*domain.TransactionLogEntry{entry}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "loan created",
		"loan_id", result.loan.ID, "lender_id", result.loan.LenderID, "total", result.loan.TotalAmount.String())
	return result.loan, nil
}

// AddBorrowerToLoan adds a borrower share and grows the loan totals by it
func (s *LedgerService) AddBorrowerToLoan(ctx context.Context, loanID string, request *domain.AddBorrowerRequest) (*domain.Loan, error) {
	if loanID == "" {
		return nil, customError.WrapInvalidInput("loan_id is required", nil)
	}
	if err := validation.Struct(request); err != nil {
		return nil, customError.WrapInvalidInput(err.Error(), err)
	}

	result, err := s.runInLoanTx(ctx, loanID, func(r repository.Repos) (*change, error) {
		loan, err := s.loadLoan(ctx, r, loanID)
		if err != nil {
			return nil, err
		}
		if loan.HasBorrower(request.BorrowerID) {
			return nil, customError.WrapDuplicateBorrower(loanID, request.BorrowerID)
		}
		if loan.Status == domain.LoanStatusPaid {
			return nil, customError.WrapLoanAlreadyPaid(loanID)
		}

		now := s.clock.Now()
		loan.Borrowers[request.BorrowerID] = &domain.BorrowerRecord{
			Amount:     request.Amount,
			PaidAmount: decimal.Zero,
			Status:     domain.LoanStatusActive,
			JoinedAt:   now,
		}
		loan.TotalAmount = loan.TotalAmount.Add(request.Amount)
		loan.RemainingAmount = loan.RemainingAmount.Add(request.Amount)
		loan.UpdatedAt = now

		if err := r.Loans.Update(ctx, loan); err != nil {
			return nil, err
		}

		entry := s.newEntry(loanID, domain.TransactionTypeBorrowerAdded, request.BorrowerID, request.Amount,
			fmt.Sprintf("Borrower %s added with amount %s", request.BorrowerID, request.Amount.StringFixed(2)))
		if err := r.Transactions.Append(ctx, entry); err != nil {
			return nil, err
		}

		return &change{loan: loan, entries: []*domain.TransactionLogEntry{entry}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "borrower added",
		"loan_id", loanID, "borrower_id", request.BorrowerID, "amount", request.Amount.String())
	return result.loan, nil
}

// UpdateLoanStatus is an administrative override of the loan status. Balances
// are left as they are, and re-setting the current status is still logged.
func (s *LedgerService) UpdateLoanStatus(ctx context.Context, loanID string, request *domain.UpdateStatusRequest) (*domain.Loan, error) {
	if loanID == "" {
		return nil, customError.WrapInvalidInput("loan_id is required", nil)
	}
	if err := validation.Struct(request); err != nil {
		return nil, customError.WrapInvalidInput(err.Error(), err)
	}

	result, err := s.runInLoanTx(ctx, loanID, func(r repository.Repos) (*change, error) {
		loan, err := s.loadLoan(ctx, r, loanID)
		if err != nil {
			return nil, err
		}
		return s.applyStatus(ctx, r, loan, request.Status)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "loan status updated", "loan_id", loanID, "status", request.Status)
	return result.loan, nil
}

func (s *LedgerService) applyStatus(ctx context.Context, r repository.Repos, loan *domain.Loan, status string) (*change, error) {
	old := loan.Status
	loan.Status = status
	loan.UpdatedAt = s.clock.Now()

	if err := r.Loans.Update(ctx, loan); err != nil {
		return nil, err
	}

	entry := s.newEntry(loan.ID, domain.TransactionTypeStatusChange, "", decimal.Zero,
		fmt.Sprintf("Status changed %s -> %s", old, status))
	if err := r.Transactions.Append(ctx, entry); err != nil {
		return nil, err
	}

	return &change{loan: loan, entries: []*domain.TransactionLogEntry{entry}}, nil
}

// loadLoan reads the loan inside a unit of work, mapping absence to LOAN_NOT_FOUND
func (s *LedgerService) loadLoan(ctx context.Context, r repository.Repos, loanID string) (*domain.Loan, error) {
	loan, err := r.Loans.GetByID(ctx, loanID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapLoanNotFound(loanID)
	}
	if err != nil {
		return nil, err
	}
	if loan.Borrowers == nil {
		loan.Borrowers = domain.Borrowers{}
	}
	return loan, nil
}

func (s *LedgerService) newEntry(loanID, txType, borrowerID string, amount decimal.Decimal, description string) *domain.TransactionLogEntry {
	now := s.clock.Now()
	return &domain.TransactionLogEntry{
		ID:          uuid.NewString(),
		LoanID:      loanID,
		Type:        txType,
		Amount:      amount,
		BorrowerID:  borrowerID,
		Timestamp:   now,
		Description: description,
		CreatedAt:   now,
	}
}

// runInLoanTx runs fn in a unit of work and re-runs it with a fresh read
// whenever the loan changed underneath it, up to MaxRetries times.
func (s *LedgerService) runInLoanTx(ctx context.Context, loanID string, fn func(r repository.Repos) (*change, error)) (*change, error) {
	attempts := s.opts.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		var result *change
		err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
			var err error
			result, err = fn(r)
			return err
		})
		if err == nil {
			s.afterCommit(ctx, result)
			return result, nil
		}

		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, s.classify(err)
		}

		s.log.DebugContext(ctx, "version conflict", "loan_id", loanID, "attempt", attempt)
		if attempt < attempts {
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	s.log.WarnContext(ctx, "retry budget exhausted", "loan_id", loanID, "attempts", attempts)
	return nil, customError.WrapConcurrency(loanID, attempts)
}

func (s *LedgerService) backoff(ctx context.Context, attempt int) error {
	if s.opts.RetryBackoff <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.opts.RetryBackoff * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify passes business and context errors through and wraps the rest as storage failures
func (s *LedgerService) classify(err error) error {
	var be *customError.BusinessError
	switch {
	case errors.As(err, &be):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		s.log.Error("storage failure", "error", err)
		return customError.WrapDatabaseError(err)
	}
}

// afterCommit refreshes the cached copy and publishes the committed entries.
// Neither can undo the commit, so failures are only logged.
func (s *LedgerService) afterCommit(ctx context.Context, result *change) {
	if result == nil || result.loan == nil || len(result.entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.cache.Set(ctx, result.loan); err != nil {
		s.log.WarnContext(ctx, "cache refresh failed", "loan_id", result.loan.ID, "error", err)
		if err := s.cache.Invalidate(ctx, result.loan.ID); err != nil {
			s.log.WarnContext(ctx, "cache invalidate failed", "loan_id", result.loan.ID, "error", err)
		}
	}

	evs := make([]events.LedgerEvent, 0, len(result.entries))
	for _, entry := range result.entries {
		evs = append(evs, events.FromEntry(entry, result.loan))
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.log.WarnContext(ctx, "publish ledger events failed", "loan_id", result.loan.ID, "count", len(evs), "error", err)
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string) (*domain.Loan, bool, error) { return nil, false, nil }

func (noCache) Set(context.Context, *domain.Loan) error { return nil }

func (noCache) Invalidate(context.Context, ...string) error { return nil }
