package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peace-bassey/BitTrust/internal/ids"
)

// Amounts are minor units of the single custodied asset. No floats.

// Account is a balance holder. Accounts come into existence on first credit;
// an unknown account has a zero balance.
type Account struct {
	ID      string `json:"id"`
	Balance uint64 `json:"balance"`
}

// Transaction is one committed movement between two accounts. Deposits have
// an empty FromAccountID.
type Transaction struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	FromAccountID string    `json:"from_account_id,omitempty"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        uint64    `json:"amount"`
	Sequence      uint64    `json:"sequence"` // monotonic sequence number
}

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAccount    = errors.New("invalid account id")
	ErrInvalidAmount     = errors.New("invalid amount (must be > 0)")
	ErrBatchClosed       = errors.New("batch already committed or discarded")

	// ErrBalanceOverflow matches ErrInvalidAmount under errors.Is.
	ErrBalanceOverflow = fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
)

// Journal is the funding and read surface of a custody book, shared by the
// in-process Book and the PostgreSQL store.
type Journal interface {
	Account(ctx context.Context, id string) (Account, error)
	Deposit(ctx context.Context, id string, amount uint64) (Transaction, error)
	ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]Transaction, uint64, error)
}

var _ Journal = (*Book)(nil)

func newID() string {
	return ids.New()
}
