// Package portfolio keeps the per-user history of issued loan identifiers.
package portfolio

import "errors"

// Capacity is the maximum number of loan ids recorded per user.
const Capacity = 20

var ErrCapacityExceeded = errors.New("portfolio: capacity exceeded")

// Entry lists every loan ever issued to a user, oldest first. Ids are never
// removed when a loan closes.
type Entry struct {
	LoanIDs []uint64 `json:"loan_ids"`
}

func (e Entry) Len() int { return len(e.LoanIDs) }

// Append returns a copy of e with id added at the end.
func (e Entry) Append(id uint64) (Entry, error) {
	if len(e.LoanIDs) >= Capacity {
		return e, ErrCapacityExceeded
	}
	ids := make([]uint64, len(e.LoanIDs), len(e.LoanIDs)+1)
	copy(ids, e.LoanIDs)
	return Entry{LoanIDs: append(ids, id)}, nil
}

// Contains reports whether id was ever issued to the owner of e.
func (e Entry) Contains(id uint64) bool {
	for _, v := range e.LoanIDs {
		if v == id {
			return true
		}
	}
	return false
}
