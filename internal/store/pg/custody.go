package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/peace-bassey/BitTrust/internal/custody"
	"github.com/peace-bassey/BitTrust/internal/ids"
	"github.com/peace-bassey/BitTrust/internal/ledger"
)

// custodian settles movements in the balances table of the enclosing
// transaction.
type custodian struct {
	tx *sql.Tx
}

func (c custodian) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := transfer(ctx, c.tx, from, to, amount); err != nil {
		return &custody.TransferError{From: from, To: to, Amount: amount, Err: err}
	}
	return nil
}

func transfer(ctx context.Context, tx *sql.Tx, fromID, toID string, amount uint64) error {
	if fromID == "" || toID == "" {
		return ledger.ErrInvalidAccount
	}

	// Ensure balance rows exist
	if _, err := tx.ExecContext(ctx, `
		insert into balances(account_id, amount) values ($1,0), ($2,0)
		on conflict do nothing
	`, fromID, toID); err != nil {
		return err
	}

	// Lock both rows in a stable order to avoid deadlocks
	rows, err := tx.QueryContext(ctx, `
		select account_id, amount from balances
		where account_id in ($1,$2)
		order by account_id
		for update
	`, fromID, toID)
	if err != nil {
		return err
	}
	var fromBal uint64
	for rows.Next() {
		var (
			id  string
			bal uint64
		)
		if err := rows.Scan(&id, &bal); err != nil {
			rows.Close()
			return err
		}
		if id == fromID {
			fromBal = bal
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if fromBal < amount {
		return ledger.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `
		update balances set amount = amount - $2::numeric where account_id=$1
	`, fromID, num(amount)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update balances set amount = amount + $2::numeric where account_id=$1
	`, toID, num(amount)); err != nil {
		if isCheckViolation(err) {
			return ledger.ErrBalanceOverflow
		}
		return err
	}
	_, err = tx.ExecContext(ctx, `
		insert into transactions(id, from_account_id, to_account_id, amount)
		values ($1,$2,$3,$4)
	`, ids.New(), fromID, toID, num(amount))
	return err
}

func (s *Store) Account(ctx context.Context, id string) (ledger.Account, error) {
	if id == "" {
		return ledger.Account{}, ledger.ErrInvalidAccount
	}
	var bal uint64
	err := s.db.QueryRowContext(ctx, `select amount from balances where account_id=$1`, id).Scan(&bal)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, err
	}
	return ledger.Account{ID: id, Balance: bal}, nil
}

// Deposit credits amount to id from outside the book.
func (s *Store) Deposit(ctx context.Context, id string, amount uint64) (ledger.Transaction, error) {
	if id == "" {
		return ledger.Transaction{}, ledger.ErrInvalidAccount
	}
	if amount == 0 {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into balances(account_id, amount) values ($1,$2)
		on conflict (account_id) do update
		set amount = balances.amount + excluded.amount
	`, id, num(amount)); err != nil {
		if isCheckViolation(err) {
			return ledger.Transaction{}, ledger.ErrBalanceOverflow
		}
		return ledger.Transaction{}, err
	}
	t := ledger.Transaction{ID: ids.New(), ToAccountID: id, Amount: amount}
	if err := tx.QueryRowContext(ctx, `
		insert into transactions(id, to_account_id, amount)
		values ($1,$2,$3) returning sequence, created_at
	`, t.ID, id, num(amount)).Scan(&t.Sequence, &t.CreatedAt); err != nil {
		return ledger.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]ledger.Transaction, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, created_at, from_account_id, to_account_id, amount, sequence
		from transactions
		where sequence > $1
		order by sequence asc
		limit $2
	`, num(afterSeq), limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []ledger.Transaction
	var last uint64
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.Scan(&tx.ID, &tx.CreatedAt, &tx.FromAccountID, &tx.ToAccountID, &tx.Amount, &tx.Sequence); err != nil {
			return nil, 0, err
		}
		res = append(res, tx)
		last = tx.Sequence
	}
	return res, last, rows.Err()
}
