package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/segyhp/loan-ledger/internal/domain"
)

func TestStruct_CreateLoanRequest(t *testing.T) {
	valid := func() domain.CreateLoanRequest {
		return domain.CreateLoanRequest{
			Name:         "Trip",
			InterestRate: decimal.NewFromInt(5),
			StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			LenderID:     "lender-1",
			Borrowers: []domain.BorrowerShare{
				{BorrowerID: "b1", Amount: decimal.NewFromInt(100)},
			},
		}
	}

	tests := []struct {
		name          string
		mutate        func(*domain.CreateLoanRequest)
		errorContains string
	}{
		{name: "valid request", mutate: func(*domain.CreateLoanRequest) {}},
		{
			name:          "missing lender",
			mutate:        func(r *domain.CreateLoanRequest) { r.LenderID = "" },
			errorContains: "lender_id is required",
		},
		{
			name:          "no borrowers",
			mutate:        func(r *domain.CreateLoanRequest) { r.Borrowers = nil },
			errorContains: "borrowers is required",
		},
		{
			name:          "negative interest rate",
			mutate:        func(r *domain.CreateLoanRequest) { r.InterestRate = decimal.NewFromInt(-1) },
			errorContains: "interest_rate must be greater than or equal to 0",
		},
		{
			name: "zero borrower amount",
			mutate: func(r *domain.CreateLoanRequest) {
				r.Borrowers[0].Amount = decimal.Zero
			},
			errorContains: "amount must be greater than 0",
		},
		{
			name:          "rate beyond four decimal places",
			mutate:        func(r *domain.CreateLoanRequest) { r.InterestRate = decimal.RequireFromString("10.12345") },
			errorContains: "interest_rate must have at most 4 decimal places",
		},
		{
			name:   "rate at four decimal places",
			mutate: func(r *domain.CreateLoanRequest) { r.InterestRate = decimal.RequireFromString("10.1234") },
		},
		{
			name: "borrower amount beyond cents",
			mutate: func(r *domain.CreateLoanRequest) {
				r.Borrowers[0].Amount = decimal.RequireFromString("100.005")
			},
			errorContains: "amount must have at most 2 decimal places",
		},
		{
			name: "trailing zeros are not extra precision",
			mutate: func(r *domain.CreateLoanRequest) {
				r.Borrowers[0].Amount = decimal.RequireFromString("100.1000")
			},
		},
		{
			name: "duplicate borrowers",
			mutate: func(r *domain.CreateLoanRequest) {
				r.Borrowers = append(r.Borrowers, domain.BorrowerShare{BorrowerID: "b1", Amount: decimal.NewFromInt(5)})
			},
			errorContains: "must not contain duplicates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)

			err := Struct(req)
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errorContains)
			}
		})
	}
}

func TestStruct_UpdateStatusRequest(t *testing.T) {
	assert.NoError(t, Struct(domain.UpdateStatusRequest{Status: domain.LoanStatusOverdue}))
	assert.Error(t, Struct(domain.UpdateStatusRequest{Status: "closed"}))
}

func TestStruct_AmountScale(t *testing.T) {
	tests := []struct {
		name    string
		request interface{}
		wantErr bool
	}{
		{name: "payment in cents", request: domain.MakePaymentRequest{BorrowerID: "b1", Amount: decimal.RequireFromString("0.01")}},
		{name: "payment below a cent", request: domain.MakePaymentRequest{BorrowerID: "b1", Amount: decimal.RequireFromString("0.001")}, wantErr: true},
		{name: "new borrower in cents", request: domain.AddBorrowerRequest{BorrowerID: "b2", Amount: decimal.RequireFromString("40.50")}},
		{name: "new borrower below a cent", request: domain.AddBorrowerRequest{BorrowerID: "b2", Amount: decimal.RequireFromString("40.505")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.request)
			if tt.wantErr {
				assert.ErrorContains(t, err, "amount must have at most 2 decimal places")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
