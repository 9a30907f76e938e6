package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrBorrowerNotFound  = errors.New("borrower not found")
	ErrDuplicateBorrower = errors.New("borrower already exists on loan")
	ErrAlreadyPaid       = errors.New("already paid")
	ErrOverpayment       = errors.New("payment exceeds outstanding principal")
	ErrConcurrency       = errors.New("concurrent modification, retry budget exhausted")
	ErrStorage           = errors.New("storage failure")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeLoanNotFound      = "LOAN_NOT_FOUND"
	ErrCodeBorrowerNotFound  = "BORROWER_NOT_FOUND"
	ErrCodeDuplicateBorrower = "DUPLICATE_BORROWER"
	ErrCodeAlreadyPaid       = "ALREADY_PAID"
	ErrCodeOverpayment       = "OVERPAYMENT"
	ErrCodeConcurrency       = "CONCURRENCY_CONFLICT"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeCacheError        = "CACHE_ERROR"
)

// WrapInvalidInput carries the validation failure as the message; cause may be nil.
func WrapInvalidInput(message string, cause error) *BusinessError {
	err := ErrInvalidInput
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidInput, cause)
	}
	return NewBusinessError(ErrCodeInvalidInput, message, err)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapBorrowerNotFound(loanID, borrowerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeBorrowerNotFound,
		fmt.Sprintf("Borrower %s is not part of loan %s", borrowerID, loanID),
		ErrBorrowerNotFound,
	)
}

func WrapDuplicateBorrower(loanID, borrowerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateBorrower,
		fmt.Sprintf("Borrower %s already exists on loan %s", borrowerID, loanID),
		ErrDuplicateBorrower,
	)
}

func WrapLoanAlreadyPaid(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyPaid,
		fmt.Sprintf("Loan with ID %s is already paid", loanID),
		ErrAlreadyPaid,
	)
}

func WrapBorrowerAlreadyPaid(loanID, borrowerID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyPaid,
		fmt.Sprintf("Borrower %s has already paid loan %s", borrowerID, loanID),
		ErrAlreadyPaid,
	)
}

func WrapOverpayment(borrowerID, charge, outstanding string) *BusinessError {
	return NewBusinessError(
		ErrCodeOverpayment,
		fmt.Sprintf("Payment of %s exceeds outstanding %s for borrower %s", charge, outstanding, borrowerID),
		ErrOverpayment,
	)
}

func WrapConcurrency(loanID string, attempts int) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrency,
		fmt.Sprintf("Loan %s changed concurrently, gave up after %d attempts", loanID, attempts),
		ErrConcurrency,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		fmt.Errorf("%w: %w", ErrStorage, err),
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// HTTPStatus maps an error returned by the ledger to a response status code
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrBorrowerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateBorrower), errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrConcurrency):
		return http.StatusConflict
	case errors.Is(err, ErrOverpayment):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Code extracts the business error code, if any
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
