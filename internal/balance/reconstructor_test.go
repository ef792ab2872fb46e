package balance

import (
	"context"
	"math/big"
	"testing"

	"boostd/internal/model"
	"boostd/internal/storage/memory"
)

func unit(n int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func event(user string, typ model.EventType, amount *big.Int, block, ts uint64) model.LedgerEvent {
	return model.LedgerEvent{
		User:           user,
		Type:           typ,
		Amount:         amount,
		Chain:          "mainnet",
		BlockNumber:    block,
		BlockTimestamp: ts,
		TxHash:         "0xtx",
		LogIndex:       block,
	}
}

func TestBackwardReplayUndoesEvents(t *testing.T) {
	// Current balance 100k, one Withdraw of 50k after the target point:
	// the reconstructed balance at window start is 150k.
	events := []model.LedgerEvent{
		event("0xabc", model.EventWithdraw, unit(50_000), 500, 5000),
	}

	got, err := BackwardReplay(unit(100_000), events, 4000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(unit(150_000)) != 0 {
		t.Fatalf("got %s, want %s", got, unit(150_000))
	}
}

func TestBackwardReplayStopsAtTarget(t *testing.T) {
	events := []model.LedgerEvent{
		event("0xabc", model.EventTransferIn, unit(10), 300, 3000),
		event("0xabc", model.EventDeposit, unit(5), 200, 2000),
	}

	// Target between the two events: only the later one is undone.
	got, err := BackwardReplay(unit(100), events, 2500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(unit(90)) != 0 {
		t.Fatalf("got %s, want %s", got, unit(90))
	}
}

func TestBackwardMatchesForwardReplay(t *testing.T) {
	stream := []model.LedgerEvent{
		event("0xabc", model.EventDeposit, unit(40), 100, 1000),
		event("0xabc", model.EventTransferIn, unit(25), 200, 2000),
		event("0xabc", model.EventWithdraw, unit(15), 300, 3000),
		event("0xabc", model.EventTransferOut, unit(5), 400, 4000),
		event("0xabc", model.EventDeposit, unit(30), 500, 5000),
	}

	current, err := ForwardReplay(big.NewInt(0), stream)
	if err != nil {
		t.Fatalf("forward replay: %v", err)
	}

	for _, target := range []uint64{500, 1000, 2500, 3000, 4500, 5000} {
		var upTo []model.LedgerEvent
		for _, e := range stream {
			if e.BlockTimestamp <= target {
				upTo = append(upTo, e)
			}
		}
		want, err := ForwardReplay(big.NewInt(0), upTo)
		if err != nil {
			t.Fatalf("forward replay to %d: %v", target, err)
		}

		desc := make([]model.LedgerEvent, 0, len(stream))
		for i := len(stream) - 1; i >= 0; i-- {
			desc = append(desc, stream[i])
		}
		got, err := BackwardReplay(current, desc, target)
		if err != nil {
			t.Fatalf("backward replay to %d: %v", target, err)
		}
		if got.Cmp(want) != 0 {
			t.Fatalf("target %d: backward %s != forward %s", target, got, want)
		}
	}
}

func TestBackwardReplayRejectsUnorderedEvents(t *testing.T) {
	events := []model.LedgerEvent{
		event("0xabc", model.EventDeposit, unit(5), 200, 2000),
		event("0xabc", model.EventDeposit, unit(5), 300, 3000),
	}
	if _, err := BackwardReplay(unit(10), events, 0); err == nil {
		t.Fatalf("expected error for out-of-order events")
	}
}

func TestBackwardReplayRejectsIncompleteLedger(t *testing.T) {
	// Undoing a 20-unit TransferIn from a 10-unit balance means an
	// increase was recorded that the ledger cannot account for.
	events := []model.LedgerEvent{
		event("0xabc", model.EventTransferIn, unit(20), 300, 3000),
	}
	if _, err := BackwardReplay(unit(10), events, 0); err == nil {
		t.Fatalf("expected error for incomplete ledger")
	}
}

func TestReconstructorTotalAcrossChains(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	mainnetEvent := event("0xabc", model.EventDeposit, unit(30), 500, 5000)
	opEvent := event("0xabc", model.EventWithdraw, unit(10), 600, 5500)
	opEvent.Chain = "optimism"
	opEvent.TxHash = "0xop"
	if _, err := store.InsertLedgerEvents(ctx, []model.LedgerEvent{mainnetEvent, opEvent}); err != nil {
		t.Fatalf("insert events: %v", err)
	}

	rec := NewReconstructor(store, []ChainSource{
		{Chain: "mainnet", Current: func(ctx context.Context, user string) (*big.Int, error) {
			return unit(100), nil
		}},
		{Chain: "optimism", Current: func(ctx context.Context, user string) (*big.Int, error) {
			return unit(50), nil
		}},
	}, nil)

	// Before both events: mainnet 100-30=70, optimism 50+10=60.
	got, err := rec.TotalAt(ctx, "0xabc", 4000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(unit(130)) != 0 {
		t.Fatalf("got %s, want %s", got, unit(130))
	}
}
