package lending

import (
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/pricing"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

const (
	MinScore          = reputation.MinScore
	MaxScore          = reputation.MaxScore
	MinLoanScore      = 70
	MaxActiveLoans    = 5
	MaxDuration       = 52560
	PortfolioCapacity = portfolio.Capacity
	BaseInterestRate  = pricing.BaseInterestRate
)

// Status is a loan's lifecycle state. Repaid and Defaulted are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusRepaid    Status = "repaid"
	StatusDefaulted Status = "defaulted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRepaid, StatusDefaulted:
		return true
	}
	return false
}

// Loan is one issued loan. Amount, Collateral, InterestRate and DueAt are
// fixed at issuance; RepaidAmount only grows.
type Loan struct {
	ID           uint64 `json:"id"`
	Borrower     string `json:"borrower"`
	Amount       uint64 `json:"amount"`
	Collateral   uint64 `json:"collateral"`
	InterestRate uint64 `json:"interest_rate"`
	IssuedAt     uint64 `json:"issued_at"`
	DueAt        uint64 `json:"due_at"`
	Status       Status `json:"status"`
	RepaidAmount uint64 `json:"repaid_amount"`
}

// TotalDue is principal plus interest at the rate stored on the loan.
func (l Loan) TotalDue() (uint64, error) {
	return pricing.TotalDue(l.Amount, l.InterestRate)
}

// Outstanding is what remains to be repaid, zero once fully covered.
func (l Loan) Outstanding() uint64 {
	due, err := l.TotalDue()
	if err != nil || l.RepaidAmount >= due {
		return 0
	}
	return due - l.RepaidAmount
}

// Terms are the prices a given score would receive for a given amount.
type Terms struct {
	Amount          uint64 `json:"amount"`
	Score           uint64 `json:"score"`
	CollateralRatio uint64 `json:"collateral_ratio"`
	Collateral      uint64 `json:"required_collateral"`
	InterestRate    uint64 `json:"interest_rate"`
	TotalDue        uint64 `json:"total_due"`
}
