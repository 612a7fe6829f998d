package portfolio

import (
	"errors"
	"testing"
)

func TestAppendKeepsOrderAndCopies(t *testing.T) {
	var e Entry
	first, err := e.Append(1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := first.Append(2)
	if err != nil {
		t.Fatal(err)
	}
	if first.Len() != 1 || second.Len() != 2 {
		t.Fatalf("append mutated receiver: %v %v", first, second)
	}
	if second.LoanIDs[0] != 1 || second.LoanIDs[1] != 2 {
		t.Fatalf("unexpected order: %v", second.LoanIDs)
	}
	if !second.Contains(1) || second.Contains(3) {
		t.Fatalf("contains mismatch: %v", second.LoanIDs)
	}
}

func TestAppendCapacity(t *testing.T) {
	var e Entry
	var err error
	for i := uint64(1); i <= Capacity; i++ {
		e, err = e.Append(i)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	full, err := e.Append(Capacity + 1)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if full.Len() != Capacity {
		t.Fatalf("entry changed on failed append: %d", full.Len())
	}
}
