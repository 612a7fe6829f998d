package lending

import (
	"context"
	"fmt"
	"math/bits"
	"strings"

	"github.com/peace-bassey/BitTrust/internal/clock"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/pricing"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

// DefaultCustodyAccount holds collateral and lending liquidity.
const DefaultCustodyAccount = "custody"

// Engine is the loan lifecycle state machine. It prices loans from
// reputation, moves funds through the custodian and feeds outcomes back.
type Engine struct {
	store   Store
	clock   clock.Clock
	admin   string
	custody string
	sinks   []EventSink
}

// Option configures Engine.
type Option func(*Engine)

// WithCustodyAccount overrides the account collateral is locked in.
func WithCustodyAccount(id string) Option {
	return func(e *Engine) {
		if id = strings.TrimSpace(id); id != "" {
			e.custody = id
		}
	}
}

// WithEventSink registers a receiver for committed events.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// NewEngine constructs an Engine. admin is the only principal allowed to
// mark loans defaulted; an empty admin disables that operation.
func NewEngine(store Store, clk clock.Clock, admin string, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		clock:   clk,
		admin:   strings.TrimSpace(admin),
		custody: DefaultCustodyAccount,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CustodyAccount returns the account collateral is locked in.
func (e *Engine) CustodyAccount() string { return e.custody }

// Admin returns the configured administrator principal.
func (e *Engine) Admin() string { return e.admin }

// InitializeScore creates caller's reputation record.
func (e *Engine) InitializeScore(ctx context.Context, caller string) error {
	if caller == "" {
		return ErrUnauthorized
	}
	now := e.clock.Now()
	var evt Event
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := reputation.NewTracker(tx).Initialize(ctx, caller, now)
		if err != nil {
			return err
		}
		treasury, err := tx.Treasury(ctx)
		if err != nil {
			return err
		}
		evt = Event{Kind: EventScoreInitialized, User: caller, Score: rec.Score, Treasury: treasury, Height: now}
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(evt)
	return nil
}

// RequestLoan issues a loan to caller and returns its id. Preconditions are
// checked in a fixed order, each with its own error.
func (e *Engine) RequestLoan(ctx context.Context, caller string, amount, collateral, duration uint64) (uint64, error) {
	if caller == "" {
		return 0, ErrUnauthorized
	}
	now := e.clock.Now()
	var evt Event
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		rec, ok, err := tx.Reputation(ctx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorized
		}
		if rec.Score < MinLoanScore {
			return ErrInsufficientScore
		}
		entry, _, err := tx.Portfolio(ctx, caller)
		if err != nil {
			return err
		}
		// Counted before the append: a borrower holding exactly
		// MaxActiveLoans ids still passes and ends up with one more.
		if entry.Len() > MaxActiveLoans {
			return ErrActiveLoanLimitExceeded
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		rate := pricing.InterestRate(rec.Score)
		if _, err := pricing.TotalDue(amount, rate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		if duration == 0 || duration > MaxDuration {
			return ErrInvalidDuration
		}
		if collateral < pricing.RequiredCollateral(amount, rec.Score) {
			return ErrInsufficientCollateral
		}

		cust := tx.Custodian()
		if err := cust.Transfer(ctx, caller, e.custody, collateral); err != nil {
			return err
		}
		id, err := tx.NextLoanID(ctx)
		if err != nil {
			return err
		}
		loan := Loan{
			ID:           id,
			Borrower:     caller,
			Amount:       amount,
			Collateral:   collateral,
			InterestRate: rate,
			IssuedAt:     now,
			DueAt:        now + duration,
			Status:       StatusActive,
		}
		if err := tx.PutLoan(ctx, loan); err != nil {
			return err
		}
		entry, err = entry.Append(id)
		if err != nil {
			return err
		}
		if err := tx.PutPortfolio(ctx, caller, entry); err != nil {
			return err
		}
		if err := cust.Transfer(ctx, e.custody, caller, amount); err != nil {
			return err
		}
		treasury, err := adjustTreasury(ctx, tx, collateral, true)
		if err != nil {
			return err
		}
		evt = Event{
			Kind:       EventLoanIssued,
			User:       caller,
			LoanID:     id,
			Amount:     amount,
			Collateral: collateral,
			Score:      rec.Score,
			Treasury:   treasury,
			Height:     now,
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.publish(evt)
	return evt.LoanID, nil
}

// RepayLoan moves amount from caller toward loanID. A zero amount is a valid
// repayment: it still goes through custody and re-evaluates completion.
func (e *Engine) RepayLoan(ctx context.Context, caller string, loanID, amount uint64) error {
	now := e.clock.Now()
	var events []Event
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		loan, err := findLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if caller == "" || caller != loan.Borrower {
			return ErrUnauthorized
		}
		if err := requireActive(loan); err != nil {
			return err
		}

		repaid, carry := bits.Add64(loan.RepaidAmount, amount, 0)
		if carry != 0 {
			return fmt.Errorf("%w: repaid amount overflows", ErrInvalidAmount)
		}
		cust := tx.Custodian()
		if err := cust.Transfer(ctx, caller, e.custody, amount); err != nil {
			return err
		}
		loan.RepaidAmount = repaid

		due, err := loan.TotalDue()
		if err != nil {
			return err
		}
		evt := Event{Kind: EventRepayment, User: caller, LoanID: loan.ID, Amount: amount, Height: now}
		if loan.RepaidAmount < due {
			if err := tx.PutLoan(ctx, loan); err != nil {
				return err
			}
			rec, _, err := tx.Reputation(ctx, caller)
			if err != nil {
				return err
			}
			treasury, err := tx.Treasury(ctx)
			if err != nil {
				return err
			}
			evt.Score, evt.Treasury = rec.Score, treasury
			events = []Event{evt}
			return nil
		}

		loan.Status = StatusRepaid
		if err := tx.PutLoan(ctx, loan); err != nil {
			return err
		}
		rec, err := reputation.NewTracker(tx).ApplyOutcome(ctx, caller, reputation.Success, loan.Amount, now)
		if err != nil {
			return consistencyError(caller, err)
		}
		if err := cust.Transfer(ctx, e.custody, caller, loan.Collateral); err != nil {
			return err
		}
		treasury, err := adjustTreasury(ctx, tx, loan.Collateral, false)
		if err != nil {
			return err
		}
		evt.Score, evt.Treasury = rec.Score, treasury
		events = []Event{evt, {
			Kind:       EventLoanRepaid,
			User:       caller,
			LoanID:     loan.ID,
			Amount:     loan.Amount,
			Collateral: loan.Collateral,
			Score:      rec.Score,
			Treasury:   treasury,
			Height:     now,
		}}
		return nil
	})
	if err != nil {
		return err
	}
	for _, evt := range events {
		e.publish(evt)
	}
	return nil
}

// MarkLoanDefaulted closes an overdue loan as defaulted. Only the
// administrator may call it. Collateral stays in custody.
func (e *Engine) MarkLoanDefaulted(ctx context.Context, caller string, loanID uint64) error {
	if e.admin == "" || caller != e.admin {
		return ErrUnauthorized
	}
	now := e.clock.Now()
	var evt Event
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		loan, err := findLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != StatusActive {
			return ErrLoanNotFound
		}
		if now < loan.DueAt {
			return ErrNotDue
		}
		loan.Status = StatusDefaulted
		if err := tx.PutLoan(ctx, loan); err != nil {
			return err
		}
		rec, err := reputation.NewTracker(tx).ApplyOutcome(ctx, loan.Borrower, reputation.Default, loan.Amount, now)
		if err != nil {
			return consistencyError(loan.Borrower, err)
		}
		treasury, err := tx.Treasury(ctx)
		if err != nil {
			return err
		}
		evt = Event{
			Kind:       EventLoanDefaulted,
			User:       loan.Borrower,
			LoanID:     loan.ID,
			Amount:     loan.Amount,
			Collateral: loan.Collateral,
			Score:      rec.Score,
			Treasury:   treasury,
			Height:     now,
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(evt)
	return nil
}

// UserScore returns user's reputation record, if initialized.
func (e *Engine) UserScore(ctx context.Context, user string) (reputation.Record, bool, error) {
	var (
		rec reputation.Record
		ok  bool
	)
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		rec, ok, err = tx.Reputation(ctx, user)
		return err
	})
	return rec, ok, err
}

// Loan returns the loan with id, if any.
func (e *Engine) Loan(ctx context.Context, id uint64) (Loan, bool, error) {
	var (
		loan Loan
		ok   bool
	)
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		loan, ok, err = tx.Loan(ctx, id)
		return err
	})
	return loan, ok, err
}

// UserLoans returns every loan id ever issued to user, closed ones included.
func (e *Engine) UserLoans(ctx context.Context, user string) (portfolio.Entry, bool, error) {
	var (
		entry portfolio.Entry
		ok    bool
	)
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entry, ok, err = tx.Portfolio(ctx, user)
		return err
	})
	return entry, ok, err
}

// UserLoanDetails returns user's loans in issuance order, read from one
// snapshot.
func (e *Engine) UserLoanDetails(ctx context.Context, user string) ([]Loan, error) {
	var loans []Loan
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		entry, _, err := tx.Portfolio(ctx, user)
		if err != nil {
			return err
		}
		loans = make([]Loan, 0, entry.Len())
		for _, id := range entry.LoanIDs {
			loan, ok, err := tx.Loan(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("lending: portfolio of %s lists missing loan %d", user, id)
			}
			loans = append(loans, loan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// Treasury returns the collateral currently counted as custodied.
func (e *Engine) Treasury(ctx context.Context) (uint64, error) {
	var total uint64
	err := e.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		total, err = tx.Treasury(ctx)
		return err
	})
	return total, err
}

// Quote prices amount for a borrower with score, without touching state.
func Quote(amount, score uint64) (Terms, error) {
	if score < MinScore || score > MaxScore {
		return Terms{}, ErrInvalidScore
	}
	if amount == 0 {
		return Terms{}, ErrInvalidAmount
	}
	rate := pricing.InterestRate(score)
	due, err := pricing.TotalDue(amount, rate)
	if err != nil {
		return Terms{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return Terms{
		Amount:          amount,
		Score:           score,
		CollateralRatio: pricing.CollateralRatio(score),
		Collateral:      pricing.RequiredCollateral(amount, score),
		InterestRate:    rate,
		TotalDue:        due,
	}, nil
}

func findLoan(ctx context.Context, tx Tx, id uint64) (Loan, error) {
	loan, ok, err := tx.Loan(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	if !ok {
		return Loan{}, ErrLoanNotFound
	}
	return loan, nil
}

// requireActive rejects repayment of a closed loan. A repaid loan reads as
// not found; a defaulted one says so.
func requireActive(loan Loan) error {
	switch loan.Status {
	case StatusActive:
		return nil
	case StatusDefaulted:
		return ErrLoanDefaulted
	default:
		return ErrLoanNotFound
	}
}

func adjustTreasury(ctx context.Context, tx Tx, collateral uint64, lock bool) (uint64, error) {
	total, err := tx.Treasury(ctx)
	if err != nil {
		return 0, err
	}
	if lock {
		sum, carry := bits.Add64(total, collateral, 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: treasury overflows", ErrInvalidAmount)
		}
		total = sum
	} else {
		if collateral > total {
			return 0, fmt.Errorf("lending: treasury %d below released collateral %d", total, collateral)
		}
		total -= collateral
	}
	if err := tx.SetTreasury(ctx, total); err != nil {
		return 0, err
	}
	return total, nil
}

func consistencyError(user string, err error) error {
	return fmt.Errorf("lending: borrower %q holds a loan without a reputation record: %w", user, err)
}

func (e *Engine) publish(evt Event) {
	for _, s := range e.sinks {
		s.Publish(evt)
	}
}
