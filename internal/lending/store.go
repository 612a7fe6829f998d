package lending

import (
	"context"

	"github.com/peace-bassey/BitTrust/internal/custody"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

// Store owns the shared lending state: reputation records, loans,
// portfolios, the treasury counter and the custody movements that go with
// them.
type Store interface {
	// Update runs fn as one serializable unit of work. Every effect made
	// through tx, custody transfers included, commits only if fn returns nil.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn against a consistent snapshot. Writes are discarded.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the state visible inside one unit of work.
type Tx interface {
	reputation.Table

	Loan(ctx context.Context, id uint64) (Loan, bool, error)
	PutLoan(ctx context.Context, loan Loan) error
	// NextLoanID reserves the next identifier. The first is 1.
	NextLoanID(ctx context.Context) (uint64, error)

	Portfolio(ctx context.Context, user string) (portfolio.Entry, bool, error)
	PutPortfolio(ctx context.Context, user string, entry portfolio.Entry) error

	Treasury(ctx context.Context) (uint64, error)
	SetTreasury(ctx context.Context, total uint64) error

	// Custodian moves funds as part of this unit of work.
	Custodian() custody.Custodian
}
