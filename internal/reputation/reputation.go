// Package reputation tracks per-participant creditworthiness.
package reputation

import (
	"context"
	"errors"
)

const (
	MinScore = 50
	MaxScore = 100

	successReward  = 2
	defaultPenalty = 10
)

var (
	ErrAlreadyInitialized = errors.New("reputation: already initialized")
	ErrNotFound           = errors.New("reputation: not found")
)

// Outcome is the result of a closed loan fed back into a record.
type Outcome int

const (
	Success Outcome = iota + 1
	Default
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Default:
		return "default"
	default:
		return "unknown"
	}
}

// Record is a participant's creditworthiness. Score stays within
// [MinScore, MaxScore]; counters never decrease.
type Record struct {
	Score         uint64 `json:"score"`
	TotalBorrowed uint64 `json:"total_borrowed"`
	TotalRepaid   uint64 `json:"total_repaid"`
	LoansTaken    uint64 `json:"loans_taken"`
	LoansRepaid   uint64 `json:"loans_repaid"`
	LastUpdate    uint64 `json:"last_update"`
}

// New returns the starting record for a participant first seen at height.
func New(height uint64) Record {
	return Record{Score: MinScore, LastUpdate: height}
}

// Apply returns r updated with the outcome of a loan of loanAmount.
func (r Record) Apply(outcome Outcome, loanAmount, height uint64) Record {
	switch outcome {
	case Success:
		r.Score = min(r.Score+successReward, MaxScore)
		r.TotalRepaid += loanAmount
		r.LoansRepaid++
	case Default:
		if r.Score < MinScore+defaultPenalty {
			r.Score = MinScore
		} else {
			r.Score -= defaultPenalty
		}
	}
	r.LastUpdate = height
	return r
}

// Table is the storage the tracker reads and writes. Implementations are
// bound to a single unit of work.
type Table interface {
	Reputation(ctx context.Context, user string) (Record, bool, error)
	PutReputation(ctx context.Context, user string, rec Record) error
}

// Tracker owns every mutation of reputation records.
type Tracker struct {
	table Table
}

func NewTracker(table Table) Tracker { return Tracker{table: table} }

// Initialize creates the starting record for user.
func (t Tracker) Initialize(ctx context.Context, user string, height uint64) (Record, error) {
	_, ok, err := t.table.Reputation(ctx, user)
	if err != nil {
		return Record{}, err
	}
	if ok {
		return Record{}, ErrAlreadyInitialized
	}
	rec := New(height)
	if err := t.table.PutReputation(ctx, user, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record for user, if any.
func (t Tracker) Get(ctx context.Context, user string) (Record, bool, error) {
	return t.table.Reputation(ctx, user)
}

// ApplyOutcome feeds a loan outcome back into user's record.
func (t Tracker) ApplyOutcome(ctx context.Context, user string, outcome Outcome, loanAmount, height uint64) (Record, error) {
	rec, ok, err := t.table.Reputation(ctx, user)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	rec = rec.Apply(outcome, loanAmount, height)
	if err := t.table.PutReputation(ctx, user, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
