// Package memory is the in-process lending store. Writers are serialized
// and each unit of work is a write-set overlay applied on commit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/peace-bassey/BitTrust/internal/custody"
	"github.com/peace-bassey/BitTrust/internal/ledger"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

type Store struct {
	mu   sync.RWMutex
	book *ledger.Book

	reputations map[string]reputation.Record
	loans       map[uint64]lending.Loan
	portfolios  map[string]portfolio.Entry
	treasury    uint64
	lastLoanID  uint64
}

var _ lending.Store = (*Store)(nil)

// New creates an empty store whose custody movements settle in book. A nil
// book gets a fresh one.
func New(book *ledger.Book) *Store {
	if book == nil {
		book = ledger.NewBook()
	}
	return &Store{
		book:        book,
		reputations: make(map[string]reputation.Record),
		loans:       make(map[uint64]lending.Loan),
		portfolios:  make(map[string]portfolio.Entry),
	}
}

// Book returns the custody book backing this store.
func (s *Store) Book() *ledger.Book { return s.book }

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx lending.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin()
	if err := fn(ctx, tx); err != nil {
		tx.batch.Discard()
		return err
	}
	if _, err := tx.batch.Commit(ctx); err != nil {
		return fmt.Errorf("%w: settle: %v", custody.ErrTransferFailed, err)
	}
	s.apply(tx)
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx lending.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := s.begin()
	defer tx.batch.Discard()
	return fn(ctx, tx)
}

func (s *Store) begin() *tx {
	return &tx{
		store:       s,
		batch:       s.book.Begin(),
		reputations: make(map[string]reputation.Record),
		loans:       make(map[uint64]lending.Loan),
		portfolios:  make(map[string]portfolio.Entry),
		treasury:    s.treasury,
		lastLoanID:  s.lastLoanID,
	}
}

func (s *Store) apply(t *tx) {
	for k, v := range t.reputations {
		s.reputations[k] = v
	}
	for k, v := range t.loans {
		s.loans[k] = v
	}
	for k, v := range t.portfolios {
		s.portfolios[k] = v
	}
	s.treasury = t.treasury
	s.lastLoanID = t.lastLoanID
}

type tx struct {
	store *Store
	batch *ledger.Batch

	reputations map[string]reputation.Record
	loans       map[uint64]lending.Loan
	portfolios  map[string]portfolio.Entry
	treasury    uint64
	lastLoanID  uint64
}

func (t *tx) Reputation(_ context.Context, user string) (reputation.Record, bool, error) {
	if rec, ok := t.reputations[user]; ok {
		return rec, true, nil
	}
	rec, ok := t.store.reputations[user]
	return rec, ok, nil
}

func (t *tx) PutReputation(_ context.Context, user string, rec reputation.Record) error {
	t.reputations[user] = rec
	return nil
}

func (t *tx) Loan(_ context.Context, id uint64) (lending.Loan, bool, error) {
	if loan, ok := t.loans[id]; ok {
		return loan, true, nil
	}
	loan, ok := t.store.loans[id]
	return loan, ok, nil
}

func (t *tx) PutLoan(_ context.Context, loan lending.Loan) error {
	t.loans[loan.ID] = loan
	return nil
}

func (t *tx) NextLoanID(context.Context) (uint64, error) {
	t.lastLoanID++
	return t.lastLoanID, nil
}

func (t *tx) Portfolio(_ context.Context, user string) (portfolio.Entry, bool, error) {
	if e, ok := t.portfolios[user]; ok {
		return e, true, nil
	}
	e, ok := t.store.portfolios[user]
	return e, ok, nil
}

func (t *tx) PutPortfolio(_ context.Context, user string, entry portfolio.Entry) error {
	t.portfolios[user] = entry
	return nil
}

func (t *tx) Treasury(context.Context) (uint64, error) { return t.treasury, nil }

func (t *tx) SetTreasury(_ context.Context, total uint64) error {
	t.treasury = total
	return nil
}

func (t *tx) Custodian() custody.Custodian { return custody.Staged{Batch: t.batch} }
