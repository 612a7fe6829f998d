package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestRequiredCollateral(t *testing.T) {
	cases := []struct {
		amount, score, want uint64
	}{
		{1_000_000, 70, 650_000},
		{1_000_000, 50, 750_000},
		{1_000_000, 100, 500_000},
		{999, 71, 649},
		{1, 70, 0},
		{0, 80, 0},
	}
	for _, tc := range cases {
		if got := RequiredCollateral(tc.amount, tc.score); got != tc.want {
			t.Fatalf("RequiredCollateral(%d, %d)=%d, want %d", tc.amount, tc.score, got, tc.want)
		}
	}
}

func TestRequiredCollateralTruncatesRatioFirst(t *testing.T) {
	// score 71: ratio = 100 - floor(35.5) = 65, so 999*65/100 = 649.35 -> 649.
	// Folding the divisions would give floor(999*(100-35.5)/100) = 644.
	if got := RequiredCollateral(999, 71); got != 649 {
		t.Fatalf("unexpected collateral: %d", got)
	}
}

func TestRequiredCollateralLargeAmount(t *testing.T) {
	got := RequiredCollateral(math.MaxUint64, 100)
	if got != math.MaxUint64/2 {
		t.Fatalf("unexpected collateral for max amount: %d", got)
	}
}

func TestInterestRate(t *testing.T) {
	cases := map[uint64]uint64{
		50:  8,
		60:  7,
		70:  7,
		79:  7,
		80:  6,
		99:  6,
		100: 5,
	}
	for score, want := range cases {
		if got := InterestRate(score); got != want {
			t.Fatalf("InterestRate(%d)=%d, want %d", score, got, want)
		}
	}
}

func TestMonotonicInScore(t *testing.T) {
	for _, amount := range []uint64{1, 37, 1_000, 1_000_000, 123_456_789} {
		prevCollateral := RequiredCollateral(amount, 50)
		prevRate := InterestRate(50)
		for score := uint64(51); score <= 100; score++ {
			c := RequiredCollateral(amount, score)
			if c > prevCollateral {
				t.Fatalf("collateral increased at score %d for amount %d: %d > %d", score, amount, c, prevCollateral)
			}
			r := InterestRate(score)
			if r > prevRate {
				t.Fatalf("rate increased at score %d: %d > %d", score, r, prevRate)
			}
			prevCollateral, prevRate = c, r
		}
	}
}

func TestTotalDue(t *testing.T) {
	due, err := TotalDue(1_000_000, 7)
	if err != nil {
		t.Fatal(err)
	}
	if due != 1_070_000 {
		t.Fatalf("unexpected total due: %d", due)
	}
	due, err = TotalDue(99, 7)
	if err != nil {
		t.Fatal(err)
	}
	if due != 105 {
		t.Fatalf("unexpected total due for small amount: %d", due)
	}
}

func TestTotalDueOverflow(t *testing.T) {
	if _, err := TotalDue(math.MaxUint64, 5); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if _, err := TotalDue(math.MaxUint64, 0); err != nil {
		t.Fatalf("zero rate must not overflow: %v", err)
	}
}
