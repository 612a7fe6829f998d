package lending

import (
	"errors"

	"github.com/peace-bassey/BitTrust/internal/custody"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

// Every failed operation leaves state unchanged. Compare with errors.Is.
var (
	ErrUnauthorized            = errors.New("unauthorized")
	ErrAlreadyInitialized      = reputation.ErrAlreadyInitialized
	ErrInsufficientScore       = errors.New("insufficient score")
	ErrActiveLoanLimitExceeded = errors.New("active loan limit exceeded")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidDuration         = errors.New("invalid duration")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrLoanDefaulted           = errors.New("loan defaulted")
	ErrNotDue                  = errors.New("loan not due")
	ErrInvalidLoanID           = errors.New("invalid loan id")
	ErrInvalidScore            = errors.New("invalid score")
	ErrCapacityExceeded        = portfolio.ErrCapacityExceeded
	ErrTransferFailed          = custody.ErrTransferFailed
)

// Kind returns a short stable label for err, used in metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrInsufficientScore):
		return "insufficient_score"
	case errors.Is(err, ErrActiveLoanLimitExceeded):
		return "active_loan_limit_exceeded"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrLoanNotFound):
		return "loan_not_found"
	case errors.Is(err, ErrLoanDefaulted):
		return "loan_defaulted"
	case errors.Is(err, ErrNotDue):
		return "not_due"
	case errors.Is(err, ErrInvalidLoanID):
		return "invalid_loan_id"
	case errors.Is(err, ErrInvalidScore):
		return "invalid_score"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}
