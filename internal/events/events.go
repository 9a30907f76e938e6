// Package events carries committed ledger changes to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-ledger/internal/domain"
)

// LedgerEvent is the wire form of a committed transaction log entry
type LedgerEvent struct {
	EventID     string          `json:"event_id"`
	LoanID      string          `json:"loan_id"`
	Type        string          `json:"type"`
	BorrowerID  string          `json:"borrower_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	LoanStatus  string          `json:"loan_status"`
	LoanVersion int64           `json:"loan_version"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// FromEntry builds the event for an entry committed together with loan
func FromEntry(entry *domain.TransactionLogEntry, loan *domain.Loan) LedgerEvent {
	ev := LedgerEvent{
		EventID:     entry.ID,
		LoanID:      entry.LoanID,
		Type:        entry.Type,
		BorrowerID:  entry.BorrowerID,
		Amount:      entry.Amount,
		Description: entry.Description,
		OccurredAt:  entry.Timestamp,
	}
	if loan != nil {
		ev.LoanStatus = loan.Status
		ev.LoanVersion = loan.Version
	}
	return ev
}

// Publisher delivers events after the unit of work that produced them committed
type Publisher interface {
	Publish(ctx context.Context, events ...LedgerEvent) error
	Close() error
}

// NoopPublisher drops every event; used when no brokers are configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...LedgerEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
