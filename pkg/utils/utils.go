package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// interestBasis converts an annual percentage rate into a daily fraction:
// 365 days times 100 percent.
var interestBasis = decimal.NewFromInt(36500)

// AccruedInterest computes simple interest on the principal a borrower still
// owes, unrounded.
// Formula: (amount - paid) * annualRate * days / 36500
func AccruedInterest(annualRate, amount, paid decimal.Decimal, startDate, asOf time.Time) decimal.Decimal {
	if annualRate.IsZero() || annualRate.IsNegative() {
		return decimal.Zero
	}

	days := ElapsedDays(startDate, asOf)
	if days == 0 {
		return decimal.Zero
	}

	remaining := amount.Sub(paid)
	if !remaining.IsPositive() {
		return decimal.Zero
	}

	return remaining.Mul(annualRate).Mul(decimal.NewFromInt(days)).Div(interestBasis)
}

// RoundCurrency rounds half away from zero to 2 decimal places
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ElapsedDays returns the number of whole days between from and to,
// clamped at zero when to precedes from.
func ElapsedDays(from, to time.Time) int64 {
	elapsed := to.Sub(from)
	if elapsed <= 0 {
		return 0
	}
	return int64(elapsed / day)
}

// IsPastDue checks if now is strictly after dueDate
func IsPastDue(dueDate *time.Time, now time.Time) bool {
	return dueDate != nil && now.After(*dueDate)
}
