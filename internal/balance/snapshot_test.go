package balance

import (
	"context"
	"fmt"
	"math/big"
	"testing"
)

func TestBatchSourceFetchesOnce(t *testing.T) {
	calls := 0
	source := NewBatchSource("mainnet", []string{"0xAAA", "0xbbb"}, func(_ context.Context, holders []string) ([]*big.Int, error) {
		calls++
		if len(holders) != 2 {
			t.Fatalf("got %d holders, want 2", len(holders))
		}
		return []*big.Int{unit(10), unit(20)}, nil
	})

	for i := 0; i < 3; i++ {
		got, err := source.Current(context.Background(), "0xaaa")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Cmp(unit(10)) != 0 {
			t.Fatalf("got %v, want %v", got, unit(10))
		}
	}
	got, err := source.Current(context.Background(), "0xBBB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(unit(20)) != 0 {
		t.Fatalf("got %v, want %v", got, unit(20))
	}
	if calls != 1 {
		t.Fatalf("fetch ran %d times, want 1", calls)
	}
}

func TestBatchSourceRejectsUnknownUser(t *testing.T) {
	source := NewBatchSource("mainnet", []string{"0xaaa"}, func(context.Context, []string) ([]*big.Int, error) {
		return []*big.Int{unit(10)}, nil
	})

	if _, err := source.Current(context.Background(), "0xstranger"); err == nil {
		t.Fatal("expected an error for a user outside the holder set")
	}
}

func TestBatchSourceRetriesAfterFetchFailure(t *testing.T) {
	calls := 0
	source := NewBatchSource("mainnet", []string{"0xaaa"}, func(context.Context, []string) ([]*big.Int, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("rpc down")
		}
		return []*big.Int{unit(10)}, nil
	})

	if _, err := source.Current(context.Background(), "0xaaa"); err == nil {
		t.Fatal("expected the first lookup to fail")
	}
	got, err := source.Current(context.Background(), "0xaaa")
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if got.Cmp(unit(10)) != 0 {
		t.Fatalf("got %v, want %v", got, unit(10))
	}
}
