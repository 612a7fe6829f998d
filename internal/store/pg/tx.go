package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/peace-bassey/BitTrust/internal/custody"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

type tx struct {
	tx *sql.Tx
}

func (t *tx) Reputation(ctx context.Context, user string) (reputation.Record, bool, error) {
	var rec reputation.Record
	err := t.tx.QueryRowContext(ctx, `
		select score, total_borrowed, total_repaid, loans_taken, loans_repaid, last_update
		from reputations where user_id=$1
	`, user).Scan(&rec.Score, &rec.TotalBorrowed, &rec.TotalRepaid, &rec.LoansTaken, &rec.LoansRepaid, &rec.LastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return reputation.Record{}, false, nil
	}
	if err != nil {
		return reputation.Record{}, false, err
	}
	return rec, true, nil
}

func (t *tx) PutReputation(ctx context.Context, user string, rec reputation.Record) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into reputations(user_id, score, total_borrowed, total_repaid, loans_taken, loans_repaid, last_update)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (user_id) do update set
			score = excluded.score,
			total_borrowed = excluded.total_borrowed,
			total_repaid = excluded.total_repaid,
			loans_taken = excluded.loans_taken,
			loans_repaid = excluded.loans_repaid,
			last_update = excluded.last_update
	`, user, num(rec.Score), num(rec.TotalBorrowed), num(rec.TotalRepaid), num(rec.LoansTaken), num(rec.LoansRepaid), num(rec.LastUpdate))
	return err
}

func (t *tx) Loan(ctx context.Context, id uint64) (lending.Loan, bool, error) {
	var (
		loan   lending.Loan
		status string
	)
	err := t.tx.QueryRowContext(ctx, `
		select id, borrower, amount, collateral, interest_rate, issued_at, due_at, status, repaid_amount
		from loans where id=$1
	`, num(id)).Scan(&loan.ID, &loan.Borrower, &loan.Amount, &loan.Collateral, &loan.InterestRate,
		&loan.IssuedAt, &loan.DueAt, &status, &loan.RepaidAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return lending.Loan{}, false, nil
	}
	if err != nil {
		return lending.Loan{}, false, err
	}
	loan.Status = lending.Status(status)
	if !loan.Status.Valid() {
		return lending.Loan{}, false, fmt.Errorf("pg: loan %d has unknown status %q", id, status)
	}
	return loan, true, nil
}

// PutLoan inserts a new loan or updates the mutable fields of an existing one.
func (t *tx) PutLoan(ctx context.Context, loan lending.Loan) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into loans(id, borrower, amount, collateral, interest_rate, issued_at, due_at, status, repaid_amount)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (id) do update set
			status = excluded.status,
			repaid_amount = excluded.repaid_amount
	`, num(loan.ID), loan.Borrower, num(loan.Amount), num(loan.Collateral), num(loan.InterestRate),
		num(loan.IssuedAt), num(loan.DueAt), string(loan.Status), num(loan.RepaidAmount))
	return err
}

func (t *tx) NextLoanID(ctx context.Context) (uint64, error) {
	var id uint64
	err := t.tx.QueryRowContext(ctx, `
		update protocol_state set last_loan_id = last_loan_id + 1 where id returning last_loan_id
	`).Scan(&id)
	return id, err
}

func (t *tx) Portfolio(ctx context.Context, user string) (portfolio.Entry, bool, error) {
	rows, err := t.tx.QueryContext(ctx, `
		select loan_id from portfolios where user_id=$1 order by position asc
	`, user)
	if err != nil {
		return portfolio.Entry{}, false, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return portfolio.Entry{}, false, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return portfolio.Entry{}, false, err
	}
	if len(ids) == 0 {
		return portfolio.Entry{}, false, nil
	}
	return portfolio.Entry{LoanIDs: ids}, true, nil
}

// PutPortfolio stores entry. Entries only grow, so positions already on disk
// are left as they are.
func (t *tx) PutPortfolio(ctx context.Context, user string, entry portfolio.Entry) error {
	if entry.Len() == 0 {
		return nil
	}
	ids := make([]string, len(entry.LoanIDs))
	for i, id := range entry.LoanIDs {
		ids[i] = num(id)
	}
	_, err := t.tx.ExecContext(ctx, `
		insert into portfolios(user_id, position, loan_id)
		select $1, p.pos - 1, p.loan_id::numeric
		from unnest(string_to_array($2, ',')) with ordinality as p(loan_id, pos)
		on conflict (user_id, position) do nothing
	`, user, strings.Join(ids, ","))
	return err
}

func (t *tx) Treasury(ctx context.Context) (uint64, error) {
	var total uint64
	err := t.tx.QueryRowContext(ctx, `select treasury from protocol_state where id`).Scan(&total)
	return total, err
}

func (t *tx) SetTreasury(ctx context.Context, total uint64) error {
	_, err := t.tx.ExecContext(ctx, `update protocol_state set treasury = $1 where id`, num(total))
	return err
}

func (t *tx) Custodian() custody.Custodian { return custodian{tx: t.tx} }
