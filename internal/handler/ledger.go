package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/response"

	"github.com/gorilla/mux"
)

// LedgerService is the part of service.LedgerService the HTTP layer calls
type LedgerService interface {
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error)
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
	AddBorrowerToLoan(ctx context.Context, loanID string, request *domain.AddBorrowerRequest) (*domain.Loan, error)
	UpdateLoanStatus(ctx context.Context, loanID string, request *domain.UpdateStatusRequest) (*domain.Loan, error)
	MakePayment(ctx context.Context, loanID string, request *domain.MakePaymentRequest) (*domain.MakePaymentResponse, error)
	GetLoansForBorrower(ctx context.Context, userID string) ([]*domain.Loan, error)
	GetLoansForLender(ctx context.Context, userID string) ([]*domain.Loan, error)
	GetLoansByStatus(ctx context.Context, status string) ([]*domain.Loan, error)
	GetPaymentsForBorrower(ctx context.Context, loanID, borrowerID string) ([]*domain.Payment, error)
	GetTransactionHistory(ctx context.Context, loanID, borrowerID string) ([]*domain.TransactionLogEntry, error)
}

type OverdueChecker interface {
	CheckAndUpdateOverdueStatus(ctx context.Context, loanID string) (*domain.Loan, bool, error)
}

type LedgerHandler struct {
	service LedgerService
	overdue OverdueChecker
}

func NewLedgerHandler(service LedgerService, overdue OverdueChecker) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		overdue: overdue,
	}
}

type OverdueCheckResponse struct {
	Loan    *domain.Loan `json:"loan"`
	Flagged bool         `json:"flagged"`
}

// decode reads the JSON body into dst; field rules are checked by the service
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", customError.WrapInvalidInput("malformed JSON", err))
		return false
	}
	return true
}

// CreateLoan handles POST /loans
func (h *LedgerHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if !decode(w, r, &request) {
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, loan)
}

// GetLoan handles GET /loans/{loanId}
func (h *LedgerHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.service.GetLoan(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// AddBorrower handles POST /loans/{loanId}/borrowers
func (h *LedgerHandler) AddBorrower(w http.ResponseWriter, r *http.Request) {
	var request domain.AddBorrowerRequest
	if !decode(w, r, &request) {
		return
	}

	loan, err := h.service.AddBorrowerToLoan(r.Context(), mux.Vars(r)["loanId"], &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// MakePayment handles POST /loans/{loanId}/payments
func (h *LedgerHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	var request domain.MakePaymentRequest
	if !decode(w, r, &request) {
		return
	}

	result, err := h.service.MakePayment(r.Context(), mux.Vars(r)["loanId"], &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, result)
}

// UpdateStatus handles PUT /loans/{loanId}/status
func (h *LedgerHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var request domain.UpdateStatusRequest
	if !decode(w, r, &request) {
		return
	}

	loan, err := h.service.UpdateLoanStatus(r.Context(), mux.Vars(r)["loanId"], &request)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loan)
}

// CheckOverdue handles POST /loans/{loanId}/overdue-check
func (h *LedgerHandler) CheckOverdue(w http.ResponseWriter, r *http.Request) {
	loan, flagged, err := h.overdue.CheckAndUpdateOverdueStatus(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, OverdueCheckResponse{Loan: loan, Flagged: flagged})
}

// GetBorrowerPayments handles GET /loans/{loanId}/borrowers/{borrowerId}/payments
func (h *LedgerHandler) GetBorrowerPayments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	payments, err := h.service.GetPaymentsForBorrower(r.Context(), vars["loanId"], vars["borrowerId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, payments)
}

// GetTransactions handles GET /loans/{loanId}/transactions?borrower_id=
func (h *LedgerHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetTransactionHistory(r.Context(), mux.Vars(r)["loanId"], r.URL.Query().Get("borrower_id"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, entries)
}

// GetLenderLoans handles GET /lenders/{userId}/loans
func (h *LedgerHandler) GetLenderLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.GetLoansForLender(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loans)
}

// GetBorrowerLoans handles GET /borrowers/{userId}/loans
func (h *LedgerHandler) GetBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.GetLoansForBorrower(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loans)
}

// ListLoans handles GET /loans?status=
func (h *LedgerHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.GetLoansByStatus(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Success(w, loans)
}
