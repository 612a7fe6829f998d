// Package custody defines the asset custodian the lending core moves funds
// through.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/peace-bassey/BitTrust/internal/ledger"
)

var ErrTransferFailed = errors.New("custody: transfer failed")

// Custodian moves the single custodied asset between parties. Each call is
// atomic; callers obtain a Custodian bound to their unit of work so that
// several calls commit or roll back together.
type Custodian interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// TransferError reports a rejected movement. It matches ErrTransferFailed
// and the underlying cause with errors.Is.
type TransferError struct {
	From   string
	To     string
	Amount uint64
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("custody: transfer %d from %q to %q failed: %v", e.Amount, e.From, e.To, e.Err)
}

func (e *TransferError) Unwrap() []error { return []error{ErrTransferFailed, e.Err} }

// Staged adapts a ledger batch to Custodian. Nothing moves until the
// batch is committed by its owner.
type Staged struct {
	Batch *ledger.Batch
}

func (s Staged) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := s.Batch.Transfer(ctx, from, to, amount); err != nil {
		return &TransferError{From: from, To: to, Amount: amount, Err: err}
	}
	return nil
}
