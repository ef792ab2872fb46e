package memory

import (
	"context"
	"math/big"
	"testing"

	"boostd/internal/model"
)

func TestInsertLedgerEventsDedupesByIdentity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	// One transfer log between two tracked wallets produces two rows
	// that differ only in type; both must survive the identity check.
	batch := []model.LedgerEvent{
		{
			User: "0xaaa", Type: model.EventTransferOut, Amount: big.NewInt(40),
			Chain: "mainnet", BlockNumber: 15, BlockTimestamp: 1_600_000_180,
			TxHash: "0xdead", LogIndex: 1,
		},
		{
			User: "0xbbb", Type: model.EventTransferIn, Amount: big.NewInt(40),
			Chain: "mainnet", BlockNumber: 15, BlockTimestamp: 1_600_000_180,
			TxHash: "0xdead", LogIndex: 1,
		},
	}

	inserted, err := store.InsertLedgerEvents(ctx, batch)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("got %d inserted, want 2", inserted)
	}

	inserted, err = store.InsertLedgerEvents(ctx, batch)
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("reinsert stored %d events, want 0", inserted)
	}

	events, err := store.EventsByUser(ctx, "0xaaa", "mainnet")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events for 0xaaa, want 1", len(events))
	}
}
