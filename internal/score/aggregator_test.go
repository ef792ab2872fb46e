package score

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"boostd/internal/balance"
	"boostd/internal/boost"
	"boostd/internal/model"
	"boostd/internal/price"
	"boostd/internal/storage/memory"
)

const dayTs = 24 * 60 * 60

func newSeries(usd int64) *price.Series {
	value := new(big.Int).Mul(big.NewInt(usd), price.Scale)
	return price.NewSeries([]model.PricePoint{{Timestamp: 0, Value: value}}, nil)
}

func settlement(user, hash string, ts uint64) model.SettlementTx {
	gwei := new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)
	return model.SettlementTx{
		Chain:          "mainnet",
		TxHash:         hash,
		User:           user,
		Contract:       "0xaugustus",
		GasUsed:        100_000,
		GasPriceWei:    new(big.Int).Mul(big.NewInt(20), gwei),
		BlockNumber:    100,
		BlockTimestamp: ts,
	}
}

func stakedSource(chain string, n int64) balance.ChainSource {
	return balance.ChainSource{
		Chain: chain,
		Current: func(ctx context.Context, user string) (*big.Int, error) {
			return unit(n), nil
		},
	}
}

func TestAggregatorScoresSettlement(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	firstStake := uint64(1_600_000_000)
	if _, err := store.InsertLedgerEvents(ctx, []model.LedgerEvent{{
		User:           "0xabc",
		Type:           model.EventDeposit,
		Amount:         unit(100_000),
		Chain:          "mainnet",
		BlockNumber:    10,
		BlockTimestamp: firstStake,
		TxHash:         "0xstake",
		LogIndex:       1,
	}}); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	txTs := firstStake + 28*dayTs + dayTs
	if _, err := store.InsertSettlements(ctx, []model.SettlementTx{
		settlement("0xabc", "0xswap1", txTs),
	}); err != nil {
		t.Fatalf("insert settlement: %v", err)
	}

	sources := []balance.ChainSource{stakedSource("mainnet", 100_000)}
	balances := balance.NewReconstructor(store, sources, nil)
	engine := boost.NewEngine(store, store, balances, nil)

	agg := NewAggregator(Config{Chains: []string{"mainnet"}}, store, balances, engine, newSeries(2000), nil)
	if err := agg.Run(ctx, "mainnet"); err != nil {
		t.Fatalf("run: %v", err)
	}

	record, ok := store.Score("0xswap1")
	if !ok {
		t.Fatalf("score not persisted")
	}
	if record.Boost != 0.1 {
		t.Fatalf("got boost %v, want 0.1 after one eligible window", record.Boost)
	}

	wantUSD := new(big.Int).Mul(big.NewInt(4), price.Scale)
	if record.GasUsedUSD.Cmp(wantUSD) != 0 {
		t.Fatalf("got usd %s, want %s", record.GasUsedUSD, wantUSD)
	}

	// Balance at tx time: deposit happened before, current is 100k, no
	// events after the target, so sePSP2 = 100k.
	wantPSP := SplitSePSP2(unit(100_000)).PSP
	if record.TotalStakedPSP.Cmp(wantPSP) != 0 {
		t.Fatalf("got staked %s, want %s", record.TotalStakedPSP, wantPSP)
	}

	// The boost state advanced together with the score.
	state, err := store.BoostState(ctx, "0xabc")
	if err != nil {
		t.Fatalf("boost state missing after scoring: %v", err)
	}
	if state.EpochsGeneratingBoost != 1 {
		t.Fatalf("got streak %d, want 1", state.EpochsGeneratingBoost)
	}
}

func TestAggregatorIsolatesUserFailures(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if _, err := store.InsertSettlements(ctx, []model.SettlementTx{
		settlement("0xgood", "0xok", 1_700_000_000),
		settlement("0xbad", "0xfail", 1_700_000_000),
	}); err != nil {
		t.Fatalf("insert settlements: %v", err)
	}

	sources := []balance.ChainSource{{
		Chain: "mainnet",
		Current: func(ctx context.Context, user string) (*big.Int, error) {
			if user == "0xbad" {
				return nil, errors.New("rpc exploded")
			}
			return unit(0), nil
		},
	}}
	balances := balance.NewReconstructor(store, sources, nil)
	engine := boost.NewEngine(store, store, balances, nil)

	agg := NewAggregator(Config{Chains: []string{"mainnet"}, Concurrency: 2}, store, balances, engine, newSeries(2000), nil)
	err := agg.Run(ctx, "mainnet")
	if err == nil {
		t.Fatalf("expected joined error for the failing user")
	}
	if !strings.Contains(err.Error(), "0xbad") {
		t.Fatalf("error should identify the failing user: %v", err)
	}

	// The healthy user was still scored.
	if _, ok := store.Score("0xok"); !ok {
		t.Fatalf("healthy user's score must be persisted despite the other failure")
	}
	if _, ok := store.Score("0xfail"); ok {
		t.Fatalf("failing user must not have a score")
	}
}
