// Package balance reconstructs historical staking balances from the event
// ledger and one observed current balance.
package balance

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"boostd/internal/model"
	"boostd/internal/storage"
)

// BackwardReplay computes the balance that existed at targetTs by undoing
// events from the observed current balance. Events must be ordered most
// recent first and must cover every balance-affecting action for the user
// on that chain; a replay that drives the running value negative means the
// ledger is incomplete and is rejected.
func BackwardReplay(current *big.Int, events []model.LedgerEvent, targetTs uint64) (*big.Int, error) {
	if current == nil {
		return nil, fmt.Errorf("current balance is nil")
	}

	value := new(big.Int).Set(current)
	prevBlock := ^uint64(0)
	prevIndex := ^uint64(0)

	for _, event := range events {
		if event.BlockNumber > prevBlock || (event.BlockNumber == prevBlock && event.LogIndex > prevIndex) {
			return nil, fmt.Errorf("events out of order at %s", event.Identity())
		}
		prevBlock, prevIndex = event.BlockNumber, event.LogIndex

		if event.BlockTimestamp <= targetTs {
			break
		}
		if event.Amount == nil || !event.Type.Valid() {
			return nil, fmt.Errorf("malformed event %s", event.Identity())
		}

		// Undo the event's forward effect.
		if event.Type.Increases() {
			value.Sub(value, event.Amount)
		} else {
			value.Add(value, event.Amount)
		}
		if value.Sign() < 0 {
			return nil, fmt.Errorf("ledger incomplete for event %s: balance went negative during backward replay", event.Identity())
		}
	}
	return value, nil
}

// ForwardReplay applies events (oldest first) on top of start and returns
// the resulting balance. Used to cross-check backward reconstruction and
// to validate epoch windows.
func ForwardReplay(start *big.Int, events []model.LedgerEvent) (*big.Int, error) {
	if start == nil {
		return nil, fmt.Errorf("start balance is nil")
	}

	value := new(big.Int).Set(start)
	for _, event := range events {
		if event.Amount == nil || !event.Type.Valid() {
			return nil, fmt.Errorf("malformed event %s", event.Identity())
		}
		if event.Type.Increases() {
			value.Add(value, event.Amount)
		} else {
			value.Sub(value, event.Amount)
		}
	}
	return value, nil
}

// CurrentBalanceFunc fetches the user's current on-chain balance.
type CurrentBalanceFunc func(ctx context.Context, user string) (*big.Int, error)

// ChainSource ties a chain name to its current-balance lookup.
type ChainSource struct {
	Chain   string
	Current CurrentBalanceFunc
}

// Reconstructor resolves historical balances per chain and summed across
// chains.
type Reconstructor struct {
	store   storage.LedgerStore
	sources []ChainSource
	logger  *zap.Logger
}

func NewReconstructor(store storage.LedgerStore, sources []ChainSource, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{store: store, sources: sources, logger: logger}
}

// ChainAt reconstructs the user's balance on one chain at targetTs.
func (r *Reconstructor) ChainAt(ctx context.Context, user, chainName string, targetTs uint64) (*big.Int, error) {
	var source *ChainSource
	for i := range r.sources {
		if r.sources[i].Chain == chainName {
			source = &r.sources[i]
			break
		}
	}
	if source == nil {
		return nil, fmt.Errorf("unknown chain %q", chainName)
	}

	current, err := source.Current(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("current balance on %s: %w", chainName, err)
	}

	events, err := r.store.EventsByUser(ctx, user, chainName)
	if err != nil {
		return nil, fmt.Errorf("events on %s: %w", chainName, err)
	}

	value, err := BackwardReplay(current, events, targetTs)
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s on %s: %w", user, chainName, err)
	}

	r.logger.Debug("balance reconstructed",
		zap.String("user", user),
		zap.String("chain", chainName),
		zap.Uint64("target_ts", targetTs),
		zap.String("balance", value.String()),
	)
	return value, nil
}

// TotalAt reconstructs the user's balance at targetTs summed across all
// configured chains.
func (r *Reconstructor) TotalAt(ctx context.Context, user string, targetTs uint64) (*big.Int, error) {
	total := new(big.Int)
	for _, source := range r.sources {
		value, err := r.ChainAt(ctx, user, source.Chain, targetTs)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}
