// Package boost implements the per-user incremental epoch eligibility
// state machine ("ParaBoost").
package boost

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"boostd/internal/model"
	"boostd/internal/storage"
)

// MinStakedBalance is the continuous staking threshold: 60,000 token units
// scaled to the token's 18-decimal base unit.
var MinStakedBalance = new(big.Int).Mul(big.NewInt(60_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// BalanceSource resolves a user's staked balance at a point in time,
// summed across all chains.
type BalanceSource interface {
	TotalAt(ctx context.Context, user string, targetTs uint64) (*big.Int, error)
}

// Engine advances UserBoostState one scored transaction at a time. It is
// the sole owner of boost-state transitions; callers persist the returned
// state (typically together with the score, in one transaction).
type Engine struct {
	ledger   storage.LedgerStore
	boost    storage.BoostStore
	balances BalanceSource
	logger   *zap.Logger
}

func NewEngine(ledger storage.LedgerStore, boost storage.BoostStore, balances BalanceSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{ledger: ledger, boost: boost, balances: balances, logger: logger}
}

// Result is the outcome of evaluating one scored transaction.
type Result struct {
	Boost float64
	// State is the updated boost state to persist, or nil when the
	// evaluation produced no state change (unstaked user, or no full
	// window elapsed since the last one).
	State *model.UserBoostState
}

// Evaluate determines the boost for one scored transaction and computes
// the resulting state transition. At most one window is advanced per call
// in steady state; a longer backlog is worked off by subsequent scored
// transactions.
func (e *Engine) Evaluate(ctx context.Context, user string, txTimestamp uint64) (Result, error) {
	state, err := e.boost.BoostState(ctx, user)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("boost state for %s: %w", user, err)
	}
	hasState := err == nil

	first, err := e.ledger.FirstStakingEvent(ctx, user)
	if errors.Is(err, storage.ErrNotFound) {
		if !hasState {
			// No staking history at all: boost 0, nothing written.
			e.logger.Debug("no staking events", zap.String("user", user))
			return Result{}, nil
		}
	} else if err != nil {
		return Result{}, fmt.Errorf("first staking event for %s: %w", user, err)
	}

	if !hasState {
		return e.firstEvaluation(ctx, user, first, txTimestamp)
	}
	return e.steadyState(ctx, user, state, txTimestamp)
}

// firstEvaluation walks the windows elapsed since the user's first staking
// event, capped at MaxBoostEpochs.
func (e *Engine) firstEvaluation(ctx context.Context, user string, first model.LedgerEvent, txTimestamp uint64) (Result, error) {
	firstStake := time.Unix(int64(first.BlockTimestamp), 0).UTC()
	txTime := time.Unix(int64(txTimestamp), 0).UTC()

	elapsed := ElapsedWindows(firstStake, txTime)
	count := elapsed
	if count > MaxBoostEpochs {
		count = MaxBoostEpochs
	}

	// Older windows beyond the cap can no longer affect the streak.
	start := firstStake.Add(time.Duration(elapsed-count) * EpochDuration)
	windows := WindowsForward(start, elapsed-count+1, count)

	state := model.UserBoostState{User: user}
	var boost float64
	for _, window := range windows {
		eligible, err := e.windowEligible(ctx, user, window)
		if err != nil {
			return Result{}, err
		}
		boost = applyWindow(&state, eligible)
		end := window.To
		state.LastCalculated = &end
	}
	state.LastEpochProcessed = elapsed
	if state.LastCalculated == nil {
		// Not a single full window yet; anchor the next evaluation at
		// the first stake.
		state.LastCalculated = &firstStake
	}
	state.ParaBoost = boost

	e.logger.Info("first boost evaluation",
		zap.String("user", user),
		zap.Int("windows", count),
		zap.Int("epochs_generating_boost", state.EpochsGeneratingBoost),
		zap.Float64("boost", boost),
	)
	return Result{Boost: boost, State: &state}, nil
}

// steadyState advances at most one window past lastCalculated.
func (e *Engine) steadyState(ctx context.Context, user string, state model.UserBoostState, txTimestamp uint64) (Result, error) {
	if state.LastCalculated == nil {
		return Result{}, fmt.Errorf("boost state for %s has no lastCalculated", user)
	}

	txTime := time.Unix(int64(txTimestamp), 0).UTC()
	windowStart := state.LastCalculated.UTC()
	windowEnd := windowStart.Add(EpochDuration)

	if txTime.Before(windowEnd) {
		// Current window still open: the stored boost applies unchanged.
		return Result{Boost: state.ParaBoost}, nil
	}

	window := model.EpochWindow{
		Number: state.LastEpochProcessed + 1,
		From:   windowStart,
		To:     windowEnd,
	}
	eligible, err := e.windowEligible(ctx, user, window)
	if err != nil {
		return Result{}, err
	}

	boost := applyWindow(&state, eligible)
	state.ParaBoost = boost
	state.LastEpochProcessed++
	state.LastCalculated = &windowEnd

	e.logger.Info("boost window evaluated",
		zap.String("user", user),
		zap.Int("epoch", window.Number),
		zap.Bool("eligible", eligible),
		zap.Float64("boost", boost),
	)
	return Result{Boost: boost, State: &state}, nil
}

// windowEligible reconstructs the balance at the window start and replays
// the window's events forward, requiring the running total to stay at or
// above MinStakedBalance throughout.
func (e *Engine) windowEligible(ctx context.Context, user string, window model.EpochWindow) (bool, error) {
	startTs := uint64(window.From.Unix())
	endTs := uint64(window.To.Unix())

	running, err := e.balances.TotalAt(ctx, user, startTs)
	if err != nil {
		return false, fmt.Errorf("balance at epoch %d start: %w", window.Number, err)
	}
	if running.Cmp(MinStakedBalance) < 0 {
		return false, nil
	}

	// Half-open window: an event at exactly the window end belongs to the
	// next window, where it is folded into that window's start balance.
	events, err := e.ledger.EventsByUserBetween(ctx, user, startTs+1, endTs-1)
	if err != nil {
		return false, fmt.Errorf("events in epoch %d: %w", window.Number, err)
	}

	running = new(big.Int).Set(running)
	for _, event := range events {
		if event.Type.Increases() {
			running.Add(running, event.Amount)
		} else {
			running.Sub(running, event.Amount)
		}
		if running.Cmp(MinStakedBalance) < 0 {
			return false, nil
		}
	}
	return true, nil
}

// applyWindow folds one evaluated window into the state: an eligible
// window extends the streak (saturating at MaxBoostEpochs), an ineligible
// one resets it. Returns the boost for a transaction scored against this
// window, min(streak, 7) x 10%, capped at 0.7.
func applyWindow(state *model.UserBoostState, eligible bool) float64 {
	if !eligible {
		state.EpochsGeneratingBoost = 0
		return 0
	}
	if state.EpochsGeneratingBoost < MaxBoostEpochs {
		state.EpochsGeneratingBoost++
	}
	return float64(state.EpochsGeneratingBoost) / 10
}
