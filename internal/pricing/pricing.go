// Package pricing derives loan terms from a borrower's reputation score.
// All functions are pure and use truncating integer arithmetic.
package pricing

import (
	"errors"
	"math/bits"
)

const (
	// BaseInterestRate is the rate, in percent, before the score discount.
	BaseInterestRate = 10

	collateralDiscount = 50
	rateDiscount       = 5
)

// ErrOverflow is returned when a derived amount does not fit in a uint64.
var ErrOverflow = errors.New("pricing: amount overflows")

// CollateralRatio returns the percentage of principal that must be locked.
// Score 50 yields 75, score 100 yields 50.
func CollateralRatio(score uint64) uint64 {
	return 100 - score*collateralDiscount/100
}

// RequiredCollateral returns floor(amount * ratio / 100). The ratio is
// truncated first and the product is truncated second; folding the two
// divisions together changes the result.
func RequiredCollateral(amount, score uint64) uint64 {
	return percentOf(amount, CollateralRatio(score))
}

// InterestRate returns the flat interest rate, in percent, for score.
func InterestRate(score uint64) uint64 {
	return BaseInterestRate - score*rateDiscount/100
}

// Interest returns floor(amount * rate / 100).
func Interest(amount, rate uint64) uint64 {
	return percentOf(amount, rate)
}

// TotalDue is the principal plus flat interest at the rate fixed on the loan.
func TotalDue(amount, rate uint64) (uint64, error) {
	sum, carry := bits.Add64(amount, Interest(amount, rate), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// percentOf computes floor(amount * pct / 100) without intermediate
// overflow. pct is at most 100 in every caller, so the quotient fits.
func percentOf(amount, pct uint64) uint64 {
	hi, lo := bits.Mul64(amount, pct)
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
