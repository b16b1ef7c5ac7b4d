package solanafees

import (
	"errors"
	"testing"
)

func TestPriorityFeeLamports(t *testing.T) {
	t.Parallel()

	got, err := PriorityFeeLamports(200_000, 1_000_000)
	if err != nil {
		t.Fatalf("PriorityFeeLamports: %v", err)
	}
	if got != 200_000 {
		t.Fatalf("got=%d want=200000", got)
	}

	got, err = PriorityFeeLamports(1, 1)
	if err != nil {
		t.Fatalf("PriorityFeeLamports: %v", err)
	}
	if got != 1 {
		t.Fatalf("got=%d want=1", got)
	}

	if _, err := PriorityFeeLamports(^uint32(0), ^uint64(0)); err == nil {
		t.Fatalf("expected overflow")
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()

	est, err := Estimate(200_000, 1, 1, TokenAccountRentLamports)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.BaseFeeLamports != 5000 {
		t.Fatalf("base=%d, want 5000", est.BaseFeeLamports)
	}
	// 200k CU at 1 microLamport rounds up to one lamport.
	if est.PriorityFeeLamports != 1 {
		t.Fatalf("priority=%d, want 1", est.PriorityFeeLamports)
	}
	if want := uint64(5000 + 1 + TokenAccountRentLamports); est.TotalLamports != want {
		t.Fatalf("total=%d, want %d", est.TotalLamports, want)
	}

	if _, err := Estimate(0, 0, 1, ^uint64(0)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
}
