package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/peace-bassey/BitTrust/internal/ledger"
)

func TestStagedTransferErrorMatchesCauses(t *testing.T) {
	book := ledger.NewBook()
	c := Staged{Batch: book.Begin()}

	err := c.Transfer(context.Background(), "custody", "alice", 10)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected cause ErrInsufficientFunds, got %v", err)
	}
	var te *TransferError
	if !errors.As(err, &te) || te.Amount != 10 || te.To != "alice" {
		t.Fatalf("unexpected transfer error: %#v", err)
	}
}

func TestStagedTransferWaitsForCommit(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewBook()
	_, _ = book.Deposit(ctx, "alice", 50)

	batch := book.Begin()
	if err := (Staged{Batch: batch}).Transfer(ctx, "alice", "custody", 50); err != nil {
		t.Fatal(err)
	}
	acc, _ := book.Account(ctx, "custody")
	if acc.Balance != 0 {
		t.Fatalf("staged transfer visible before commit: %d", acc.Balance)
	}
	if _, err := batch.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	acc, _ = book.Account(ctx, "custody")
	if acc.Balance != 50 {
		t.Fatalf("expected 50 after commit, got %d", acc.Balance)
	}
}
