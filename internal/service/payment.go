package service

import (
	"context"
	"fmt"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/utils"
	"github.com/segyhp/loan-ledger/pkg/validation"

	"github.com/google/uuid"
)

// MakePayment records a principal payment by one borrower, charging interest
// accrued since the loan start. The balance update, the payment record and
// its log entry commit together or not at all.
func (s *LedgerService) MakePayment(ctx context.Context, loanID string, request *domain.MakePaymentRequest) (*domain.MakePaymentResponse, error) {
	if loanID == "" {
		return nil, customError.WrapInvalidInput("loan_id is required", nil)
	}
	if err := validation.Struct(request); err != nil {
		return nil, customError.WrapInvalidInput(err.Error(), err)
	}

	paymentDate := request.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.clock.Now()
	}

	result, err := s.runInLoanTx(ctx, loanID, func(r repository.Repos) (*change, error) {
		loan, err := s.loadLoan(ctx, r, loanID)
		if err != nil {
			return nil, err
		}

		borrower, ok := loan.Borrowers[request.BorrowerID]
		if !ok {
			return nil, customError.WrapBorrowerNotFound(loanID, request.BorrowerID)
		}
		if borrower.Status == domain.LoanStatusPaid {
			return nil, customError.WrapBorrowerAlreadyPaid(loanID, request.BorrowerID)
		}
		if loan.Status == domain.LoanStatusPaid {
			return nil, customError.WrapLoanAlreadyPaid(loanID)
		}

		// interest is charged against the same ceiling as principal; the cap is
		// checked on the exact accrual, only the stored charge is rounded
		accrued := utils.AccruedInterest(loan.InterestRate, borrower.Amount, borrower.PaidAmount, loan.StartDate, paymentDate)
		if borrower.PaidAmount.Add(request.Amount).Add(accrued).GreaterThan(borrower.Amount) {
			return nil, customError.WrapOverpayment(request.BorrowerID,
				request.Amount.Add(accrued).RoundCeil(4).String(), borrower.Remaining().StringFixed(2))
		}
		interest := utils.RoundCurrency(accrued)
		totalCharge := request.Amount.Add(interest)

		now := s.clock.Now()
		borrower.PaidAmount = borrower.PaidAmount.Add(request.Amount)
		if borrower.PaidAmount.Equal(borrower.Amount) {
			borrower.Status = domain.LoanStatusPaid
		}
		loan.RemainingAmount = loan.RemainingAmount.Sub(request.Amount)
		if loan.RemainingAmount.IsZero() {
			loan.Status = domain.LoanStatusPaid
		}
		loan.UpdatedAt = now

		if err := r.Loans.Update(ctx, loan); err != nil {
			return nil, err
		}

		payment := &domain.Payment{
			ID:          uuid.NewString(),
			LoanID:      loanID,
			BorrowerID:  request.BorrowerID,
			Amount:      request.Amount,
			Interest:    interest,
			TotalAmount: totalCharge,
			PaymentDate: paymentDate,
			Note:        request.Note,
			CreatedAt:   now,
		}
		if err := r.Payments.Create(ctx, payment); err != nil {
			return nil, err
		}

		entry := s.newEntry(loanID, domain.TransactionTypePayment, request.BorrowerID, totalCharge,
			fmt.Sprintf("Payment of %s (principal %s, interest %s) by %s",
				totalCharge.StringFixed(2), request.Amount.StringFixed(2), interest.StringFixed(2), request.BorrowerID))
		if err := r.Transactions.Append(ctx, entry); err != nil {
			return nil, err
		}

		return &change{loan: loan, payment: payment, entries: []*domain.TransactionLogEntry{entry}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment recorded",
		"loan_id", loanID,
		"borrower_id", request.BorrowerID,
		"principal", request.Amount.String(),
		"interest", result.payment.Interest.String(),
		"loan_status", result.loan.Status)

	return &domain.MakePaymentResponse{Payment: result.payment, Loan: result.loan}, nil
}
