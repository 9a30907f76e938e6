package handler

import (
	"log/slog"

	"github.com/segyhp/loan-ledger/pkg/response"

	"github.com/gorilla/mux"
)

func NewRouter(ledgerHandler *LedgerHandler, healthHandler *HealthHandler, log *slog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(log))
	router.Use(response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/loans", ledgerHandler.CreateLoan).Methods("POST")
	api.HandleFunc("/loans", ledgerHandler.ListLoans).Methods("GET")
	api.HandleFunc("/loans/{loanId}", ledgerHandler.GetLoan).Methods("GET")
	api.HandleFunc("/loans/{loanId}/borrowers", ledgerHandler.AddBorrower).Methods("POST")
	api.HandleFunc("/loans/{loanId}/payments", ledgerHandler.MakePayment).Methods("POST")
	api.HandleFunc("/loans/{loanId}/status", ledgerHandler.UpdateStatus).Methods("PUT")
	api.HandleFunc("/loans/{loanId}/overdue-check", ledgerHandler.CheckOverdue).Methods("POST")
	api.HandleFunc("/loans/{loanId}/borrowers/{borrowerId}/payments", ledgerHandler.GetBorrowerPayments).Methods("GET")
	api.HandleFunc("/loans/{loanId}/transactions", ledgerHandler.GetTransactions).Methods("GET")
	api.HandleFunc("/lenders/{userId}/loans", ledgerHandler.GetLenderLoans).Methods("GET")
	api.HandleFunc("/borrowers/{userId}/loans", ledgerHandler.GetBorrowerLoans).Methods("GET")

	return router
}
