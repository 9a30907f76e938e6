// Package memory provides an in-memory Ledger Store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
)

// Store keeps loans, payments and log entries in memory. Writes made inside
// WithinTx are staged and applied on commit only if every loan they touched
// still has the version it was read at.
type Store struct {
	mu       sync.RWMutex
	loans    map[string]*domain.Loan
	payments []*domain.Payment
	entries  []*domain.TransactionLogEntry
}

func NewStore() *Store {
	return &Store{
		loans: make(map[string]*domain.Loan),
	}
}

// Repos returns repositories whose writes commit immediately
func (s *Store) Repos() repository.Repos {
	return repository.Repos{
		Loans:        autoCommitLoans{store: s},
		Payments:     autoCommitPayments{store: s},
		Transactions: autoCommitEntries{store: s},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTxView(s)
	if err := fn(tx.repos()); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

func (s *Store) commit(ctx context.Context, tx *txView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	for id := range tx.created {
		if _, exists := s.loans[id]; exists {
			return fmt.Errorf("loan %s already exists", id)
		}
	}
	for id, staged := range tx.updated {
		current, ok := s.loans[id]
		if !ok {
			return repository.ErrNotFound
		}
		if current.Version != staged.expected {
			return repository.ErrVersionConflict
		}
	}

	for id, loan := range tx.created {
		s.loans[id] = loan.Clone()
	}
	for id, staged := range tx.updated {
		s.loans[id] = staged.loan.Clone()
	}
	s.payments = append(s.payments, tx.payments...)
	s.entries = append(s.entries, tx.entries...)
	return nil
}

func (s *Store) getLoan(id string) (*domain.Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	return loan.Clone(), ok
}

func (s *Store) versionOf(id string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok {
		return 0, false
	}
	return loan.Version, true
}

func (s *Store) snapshotLoans() map[string]*domain.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.Loan, len(s.loans))
	for id, loan := range s.loans {
		out[id] = loan.Clone()
	}
	return out
}

func (s *Store) snapshotPayments() []*domain.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.Payment(nil), s.payments...)
}

func (s *Store) snapshotEntries() []*domain.TransactionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.TransactionLogEntry(nil), s.entries...)
}

// =============================================================================
// TRANSACTION VIEW
// =============================================================================

type stagedUpdate struct {
	loan     *domain.Loan
	expected int64
}

type txView struct {
	store    *Store
	created  map[string]*domain.Loan
	updated  map[string]*stagedUpdate
	payments []*domain.Payment
	entries  []*domain.TransactionLogEntry
}

func newTxView(s *Store) *txView {
	return &txView{
		store:   s,
		created: make(map[string]*domain.Loan),
		updated: make(map[string]*stagedUpdate),
	}
}

func (tx *txView) repos() repository.Repos {
	return repository.Repos{
		Loans:        txLoans{tx},
		Payments:     txPayments{tx},
		Transactions: txEntries{tx},
	}
}

func (tx *txView) loans() map[string]*domain.Loan {
	all := tx.store.snapshotLoans()
	for id, staged := range tx.updated {
		all[id] = staged.loan.Clone()
	}
	for id, loan := range tx.created {
		all[id] = loan.Clone()
	}
	return all
}

type txLoans struct{ tx *txView }

func (r txLoans) Create(_ context.Context, loan *domain.Loan) error {
	if _, ok := r.tx.created[loan.ID]; ok {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	if _, ok := r.tx.store.versionOf(loan.ID); ok {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	r.tx.created[loan.ID] = loan.Clone()
	return nil
}

func (r txLoans) GetByID(_ context.Context, loanID string) (*domain.Loan, error) {
	if loan, ok := r.tx.created[loanID]; ok {
		return loan.Clone(), nil
	}
	if staged, ok := r.tx.updated[loanID]; ok {
		return staged.loan.Clone(), nil
	}
	loan, ok := r.tx.store.getLoan(loanID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return loan, nil
}

func (r txLoans) Update(_ context.Context, loan *domain.Loan) error {
	if created, ok := r.tx.created[loan.ID]; ok {
		if created.Version != loan.Version {
			return repository.ErrVersionConflict
		}
		loan.Version++
		r.tx.created[loan.ID] = loan.Clone()
		return nil
	}

	if staged, ok := r.tx.updated[loan.ID]; ok {
		if staged.loan.Version != loan.Version {
			return repository.ErrVersionConflict
		}
		loan.Version++
		staged.loan = loan.Clone()
		return nil
	}

	current, ok := r.tx.store.versionOf(loan.ID)
	if !ok {
		return repository.ErrNotFound
	}
	if current != loan.Version {
		return repository.ErrVersionConflict
	}
	expected := loan.Version
	loan.Version++
	r.tx.updated[loan.ID] = &stagedUpdate{loan: loan.Clone(), expected: expected}
	return nil
}

func (r txLoans) ListByLender(_ context.Context, lenderID string) ([]*domain.Loan, error) {
	return filterLoans(r.tx.loans(), func(l *domain.Loan) bool { return l.LenderID == lenderID }), nil
}

func (r txLoans) ListByBorrower(_ context.Context, borrowerID string) ([]*domain.Loan, error) {
	return filterLoans(r.tx.loans(), func(l *domain.Loan) bool { return l.HasBorrower(borrowerID) }), nil
}

func (r txLoans) ListByStatus(_ context.Context, status string) ([]*domain.Loan, error) {
	return filterLoans(r.tx.loans(), func(l *domain.Loan) bool { return l.Status == status }), nil
}

func (r txLoans) ListPastDue(_ context.Context, now time.Time) ([]*domain.Loan, error) {
	loans := filterLoans(r.tx.loans(), func(l *domain.Loan) bool {
		return l.Status == domain.LoanStatusActive && l.DueDate != nil && l.DueDate.Before(now)
	})
	sort.SliceStable(loans, func(i, j int) bool {
		if !loans[i].DueDate.Equal(*loans[j].DueDate) {
			return loans[i].DueDate.Before(*loans[j].DueDate)
		}
		return loans[i].ID < loans[j].ID
	})
	return loans, nil
}

func filterLoans(all map[string]*domain.Loan, keep func(*domain.Loan) bool) []*domain.Loan {
	out := []*domain.Loan{}
	for _, loan := range all {
		if keep(loan) {
			out = append(out, loan)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type txPayments struct{ tx *txView }

func (r txPayments) Create(_ context.Context, payment *domain.Payment) error {
	p := *payment
	r.tx.payments = append(r.tx.payments, &p)
	return nil
}

func (r txPayments) ListByBorrower(_ context.Context, loanID, borrowerID string) ([]*domain.Payment, error) {
	out := []*domain.Payment{}
	for _, p := range append(r.tx.store.snapshotPayments(), r.tx.payments...) {
		if p.LoanID == loanID && p.BorrowerID == borrowerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.Before(out[j].PaymentDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type txEntries struct{ tx *txView }

func (r txEntries) Append(_ context.Context, entry *domain.TransactionLogEntry) error {
	e := *entry
	r.tx.entries = append(r.tx.entries, &e)
	return nil
}

func (r txEntries) ListByLoan(_ context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error) {
	out := []*domain.TransactionLogEntry{}
	for _, e := range append(r.tx.store.snapshotEntries(), r.tx.entries...) {
		if e.LoanID != loanID {
			continue
		}
		if borrowerID != "" && e.BorrowerID != borrowerID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// =============================================================================
// AUTO-COMMIT REPOSITORIES
// =============================================================================

type autoCommitLoans struct{ store *Store }

func (r autoCommitLoans) Create(ctx context.Context, loan *domain.Loan) error {
	return r.store.WithinTx(ctx, func(repos repository.Repos) error { return repos.Loans.Create(ctx, loan) })
}

func (r autoCommitLoans) GetByID(ctx context.Context, loanID string) (*domain.Loan, error) {
	return newTxView(r.store).repos().Loans.GetByID(ctx, loanID)
}

func (r autoCommitLoans) Update(ctx context.Context, loan *domain.Loan) error {
	staged := loan.Clone()
	err := r.store.WithinTx(ctx, func(repos repository.Repos) error { return repos.Loans.Update(ctx, staged) })
	if err == nil {
		loan.Version = staged.Version
	}
	return err
}

func (r autoCommitLoans) ListByLender(ctx context.Context, lenderID string) ([]*domain.Loan, error) {
	return newTxView(r.store).repos().Loans.ListByLender(ctx, lenderID)
}

func (r autoCommitLoans) ListByBorrower(ctx context.Context, borrowerID string) ([]*domain.Loan, error) {
	return newTxView(r.store).repos().Loans.ListByBorrower(ctx, borrowerID)
}

func (r autoCommitLoans) ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error) {
	return newTxView(r.store).repos().Loans.ListByStatus(ctx, status)
}

func (r autoCommitLoans) ListPastDue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	return newTxView(r.store).repos().Loans.ListPastDue(ctx, now)
}

type autoCommitPayments struct{ store *Store }

func (r autoCommitPayments) Create(ctx context.Context, payment *domain.Payment) error {
	return r.store.WithinTx(ctx, func(repos repository.Repos) error { return repos.Payments.Create(ctx, payment) })
}

func (r autoCommitPayments) ListByBorrower(ctx context.Context, loanID, borrowerID string) ([]*domain.Payment, error) {
	return newTxView(r.store).repos().Payments.ListByBorrower(ctx, loanID, borrowerID)
}

type autoCommitEntries struct{ store *Store }

func (r autoCommitEntries) Append(ctx context.Context, entry *domain.TransactionLogEntry) error {
	return r.store.WithinTx(ctx, func(repos repository.Repos) error { return repos.Transactions.Append(ctx, entry) })
}

func (r autoCommitEntries) ListByLoan(ctx context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error) {
	return newTxView(r.store).repos().Transactions.ListByLoan(ctx, loanID, borrowerID)
}

// Compile-time check: ensure Store implements UnitOfWork
var _ repository.UnitOfWork = (*Store)(nil)
