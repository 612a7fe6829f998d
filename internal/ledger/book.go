package ledger

import (
	"context"
	"math/bits"
	"sync"
	"time"
)

// Book is an in-process custody book with concurrency safety. Movements are
// staged in a Batch and become visible together on Commit.
type Book struct {
	mu       sync.RWMutex
	balances map[string]uint64
	seq      uint64
	txs      []Transaction
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{balances: make(map[string]uint64)}
}

func (b *Book) Account(_ context.Context, id string) (Account, error) {
	if id == "" {
		return Account{}, ErrInvalidAccount
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Account{ID: id, Balance: b.balances[id]}, nil
}

// Deposit credits amount to id from outside the book.
func (b *Book) Deposit(ctx context.Context, id string, amount uint64) (Transaction, error) {
	if amount == 0 {
		return Transaction{}, ErrInvalidAmount
	}
	batch := b.Begin()
	if err := batch.credit(id, amount); err != nil {
		return Transaction{}, err
	}
	batch.legs = append(batch.legs, leg{to: id, amount: amount})
	txs, err := batch.Commit(ctx)
	if err != nil {
		return Transaction{}, err
	}
	return txs[0], nil
}

// Transfer moves amount between two accounts as its own batch.
func (b *Book) Transfer(ctx context.Context, fromID, toID string, amount uint64) (Transaction, error) {
	batch := b.Begin()
	if err := batch.Transfer(ctx, fromID, toID, amount); err != nil {
		return Transaction{}, err
	}
	txs, err := batch.Commit(ctx)
	if err != nil {
		return Transaction{}, err
	}
	return txs[0], nil
}

// ListTransactions pages through the journal by sequence.
func (b *Book) ListTransactions(_ context.Context, limit int, afterSeq uint64) ([]Transaction, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var res []Transaction
	var last uint64
	for _, tx := range b.txs {
		if tx.Sequence <= afterSeq {
			continue
		}
		res = append(res, tx)
		last = tx.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

// Begin opens a batch against the current balances.
func (b *Book) Begin() *Batch {
	return &Batch{
		book:    b,
		credits: make(map[string]uint64),
		debits:  make(map[string]uint64),
	}
}

type leg struct {
	from, to string
	amount   uint64
}

// Batch stages transfers. Balance checks see the book plus the batch's own
// legs; Commit re-checks under the book lock and applies all legs or none.
type Batch struct {
	book    *Book
	credits map[string]uint64
	debits  map[string]uint64
	legs    []leg
	closed  bool
}

// Balance returns id's balance as seen through the staged legs. A carry
// means the book moved since staging; Commit rejects that batch.
func (t *Batch) Balance(id string) uint64 {
	t.book.mu.RLock()
	base := t.book.balances[id]
	t.book.mu.RUnlock()
	total, carry := bits.Add64(base, t.credits[id], 0)
	if carry != 0 {
		total = ^uint64(0)
	}
	if t.debits[id] > total {
		return 0
	}
	return total - t.debits[id]
}

// Transfer stages a movement. Zero amounts are accepted and journaled.
func (t *Batch) Transfer(_ context.Context, fromID, toID string, amount uint64) error {
	if t.closed {
		return ErrBatchClosed
	}
	if fromID == "" || toID == "" {
		return ErrInvalidAccount
	}
	if t.Balance(fromID) < amount {
		return ErrInsufficientFunds
	}
	t.debits[fromID] += amount
	if err := t.credit(toID, amount); err != nil {
		t.debits[fromID] -= amount
		return err
	}
	t.legs = append(t.legs, leg{from: fromID, to: toID, amount: amount})
	return nil
}

func (t *Batch) credit(id string, amount uint64) error {
	if id == "" {
		return ErrInvalidAccount
	}
	t.book.mu.RLock()
	base := t.book.balances[id]
	t.book.mu.RUnlock()
	staged, carry := bits.Add64(t.credits[id], amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	if _, carry := bits.Add64(base, staged, 0); carry != 0 {
		return ErrBalanceOverflow
	}
	t.credits[id] = staged
	return nil
}

// Discard drops every staged leg.
func (t *Batch) Discard() {
	t.closed = true
	t.legs = nil
}

// Commit applies the staged legs atomically and journals them in order.
func (t *Batch) Commit(_ context.Context) ([]Transaction, error) {
	if t.closed {
		return nil, ErrBatchClosed
	}
	t.closed = true

	b := t.book
	b.mu.Lock()
	defer b.mu.Unlock()

	// the book may have moved since the legs were staged
	for id, credit := range t.credits {
		if _, carry := bits.Add64(b.balances[id], credit, 0); carry != 0 {
			return nil, ErrBalanceOverflow
		}
	}
	for id, debit := range t.debits {
		if b.balances[id]+t.credits[id] < debit {
			return nil, ErrInsufficientFunds
		}
	}
	for id, credit := range t.credits {
		b.balances[id] += credit
	}
	for id, debit := range t.debits {
		b.balances[id] -= debit
	}

	now := time.Now().UTC()
	out := make([]Transaction, 0, len(t.legs))
	for _, l := range t.legs {
		b.seq++
		tx := Transaction{
			ID:            newID(),
			CreatedAt:     now,
			FromAccountID: l.from,
			ToAccountID:   l.to,
			Amount:        l.amount,
			Sequence:      b.seq,
		}
		b.txs = append(b.txs, tx)
		out = append(out, tx)
	}
	return out, nil
}
